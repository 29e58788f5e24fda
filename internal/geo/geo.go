// Package geo resolves a miner's IP address to a (subregion, country)
// pair used by the latency and distribution sub-scores.
package geo

import (
	"github.com/tos-network/subtensor-validator/internal/config"
)

// Location is a resolved (subregion, country) pair.
type Location struct {
	Subregion string
	Country   string
}

// Resolver maps an IP to a Location. Implementations must never return
// an error for an unknown IP; they fall back to the configured default
// instead, matching the behavior spec'd for every caller of Lookup.
type Resolver interface {
	Lookup(ip string) Location
}

// Static is a config-seeded resolver backed by a fixed ip->location
// table, with the documented ("Northern Europe", "GB") fallback for any
// IP not present in the table. Production deployments are expected to
// populate the table from a MaxMind-style database at startup; no such
// database ships with this package since none of the reference stacks
// this module was built from import one — see the design notes for the
// drop/justification trail.
type Static struct {
	fallback Location
	table    map[string]Location
}

// NewStatic builds a Static resolver from configuration.
func NewStatic(cfg config.GeoConfig) *Static {
	return &Static{
		fallback: Location{
			Subregion: cfg.FallbackSubregion,
			Country:   cfg.FallbackCountry,
		},
		table: make(map[string]Location),
	}
}

// Set seeds the table with a known IP->location mapping, e.g. loaded
// from an operator-supplied CSV or fetched from a third-party geo API.
func (s *Static) Set(ip string, loc Location) {
	s.table[ip] = loc
}

// Lookup returns the resolved location, or the fallback if the IP is
// not in the table.
func (s *Static) Lookup(ip string) Location {
	if loc, ok := s.table[ip]; ok {
		return loc
	}
	return s.fallback
}
