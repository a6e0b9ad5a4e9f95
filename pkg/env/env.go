// Package env reads process environment variables with fallbacks.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset.
// An empty value counts as set.
func Get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
