// Package meter provides the utility-meter value type.
package meter

import "github.com/artpar/utilibill/domain/utility"

// Meter represents an installed utility meter (value type).
// Meters are created by their owning provider, mutated by billing and
// reading updates, and never deleted.
type Meter struct {
	ID            string
	Type          utility.Type
	ProviderID    string
	Customer      string // customer address the meter bills to
	InstalledAt   int64  // unix seconds
	LastReading   int64
	LastReadingAt int64
	Active        bool
	Smart         bool
	Location      string
	Model         string
	Firmware      string
}

// WithReading returns a copy of m with the reading advanced;
// persistence is the caller's concern.
func WithReading(m Meter, reading, at int64) Meter {
	m.LastReading = reading
	m.LastReadingAt = at
	return m
}
