// Package provider provides utility-provider value types and pure functions.
package provider

import "github.com/artpar/utilibill/domain/utility"

// Rating bounds. New providers start at the top of the scale and are
// revised by off-engine reputation processes.
const (
	MinRating     = 1
	MaxRating     = 5
	InitialRating = 5
)

// Provider represents a registered utility provider (value type).
// Providers are created once, toggled active/inactive and have their
// transaction counter incremented; they are never deleted.
type Provider struct {
	ID                string
	Name              string
	Address           string // capability: calls registering meters must come from here
	Type              utility.Type
	Region            string
	Active            bool
	RegisteredAt      int64 // unix seconds
	License           string
	Contact           string
	Rating            uint8
	TotalTransactions uint64
}

// Matches reports whether p is an active provider of the given type in the
// given region. This is a PURE function.
func Matches(p Provider, t utility.Type, region string) bool {
	return p.Active && p.Type == t && p.Region == region
}

// Filter returns the active providers matching type and region.
// Result order follows input order; callers must not rely on it.
func Filter(list []Provider, t utility.Type, region string) []Provider {
	var out []Provider
	for _, p := range list {
		if Matches(p, t, region) {
			out = append(out, p)
		}
	}
	return out
}
