package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one answered query, kept for review and troubleshooting.
// Method records how the answer was produced ("emergency", "greeting",
// "generated" or "fallback"); Sources is a JSON array of cited document
// names stored as text.
type Interaction struct {
	ID        string
	CreatedAt time.Time
	UserQuery string
	Answer    string
	Method    string
	Sources   string
}
