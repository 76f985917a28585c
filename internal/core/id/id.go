// Package id provides record identities.
// Identities are UUIDv7: time-ordered, so rows inserted later sort later
// and primary key indexes keep good B-tree locality.
package id

import (
	"github.com/google/uuid"
)

// ID identifies one record. Self-exclusion during the uniqueness scan compares IDs.
type ID = uuid.UUID

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if the clock source fails (should never happen)
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
