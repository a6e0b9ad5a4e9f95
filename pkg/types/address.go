package types

import "strings"

// Address is the shipping destination frozen onto an order. Stored as jsonb.
type Address struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Complete reports whether the fields checkout requires are present.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Name) != "" &&
		strings.TrimSpace(a.Phone) != "" &&
		strings.TrimSpace(a.Line1) != ""
}
