package services

import (
	"context"
	"os"
	"strconv"
	"strings"
)

// DefaultSearchMinChars is the shortest accepted wallet search query. The
// floor keeps one- and two-character prefixes from fanning out over the whole
// owner index.
const DefaultSearchMinChars = 4

// ErrQueryTooShort is returned when the search query is under the floor.
type ErrQueryTooShort struct {
	Min int
}

func (e ErrQueryTooShort) Error() string {
	return "search query must be at least " + strconv.Itoa(e.Min) + " characters"
}

// OwnerIndex searches registered wallet addresses by prefix.
type OwnerIndex interface {
	SearchOwners(ctx context.Context, prefix string, limit int) ([]string, error)
}

// WalletService answers wallet address lookups for the verifier dashboard.
type WalletService struct {
	index    OwnerIndex
	minChars int
	limit    int
}

// NewWalletService builds a service with the given query floor; minChars <= 0
// selects the default.
func NewWalletService(index OwnerIndex, minChars int) *WalletService {
	if minChars <= 0 {
		minChars = DefaultSearchMinChars
	}
	return &WalletService{index: index, minChars: minChars, limit: 25}
}

// SearchMinCharsFromEnv reads WALLET_SEARCH_MIN_CHARS with the default.
func SearchMinCharsFromEnv() int {
	if raw := strings.TrimSpace(os.Getenv("WALLET_SEARCH_MIN_CHARS")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return DefaultSearchMinChars
}

// Search returns wallet addresses matching the prefix, lowercased. Queries
// under the floor are rejected before touching the index.
func (s *WalletService) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if len(query) < s.minChars {
		return nil, ErrQueryTooShort{Min: s.minChars}
	}
	return s.index.SearchOwners(ctx, query, s.limit)
}
