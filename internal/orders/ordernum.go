package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// orderNumberAttempts bounds regeneration when a generated number collides
// with the unique index.
const orderNumberAttempts = 5

// newOrderNumber produces a human-readable order number of the form
// TP{yy}{mm}{4 random digits}, e.g. TP26090417.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("TP%s%04d", now.Format("0601"), rand.IntN(10000))
}
