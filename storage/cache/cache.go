// Package cache holds the owner-scoped wallet cache: the client-side facts
// the ledger does not expose (pending submission id, locally-claimed ids,
// last-known geolocation, dismissed notifications). Entries are hints, never
// truth; malformed values are treated as absent so the resolver can
// self-heal from the ledger.
package cache

import "strings"

// Geolocation is the last-known position fallback for a wallet, stored in
// micro-degrees to match the ledger's fixed-point coordinates.
type Geolocation struct {
	Latitude  int64 `json:"latitude"`
	Longitude int64 `json:"longitude"`
}

func ownerKey(owner string) string {
	return strings.ToLower(strings.TrimSpace(owner))
}
