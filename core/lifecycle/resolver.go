package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Resolver merges ledger truth with the local wallet cache into a single
// LifecycleStatus per owner. The ledger is ground truth for verification
// state; the cache is ground truth for nothing, but it is the only place
// that knows whether this client already claimed a submission.
type Resolver struct {
	ledger LedgerGateway
	cache  WalletCache
	prefix *PreFixDetector
	retry  RetryConfig
}

// NewResolver wires a resolver. The pre-fix detector may be nil, in which
// case the rewarded/zero-balance heuristic is skipped entirely.
func NewResolver(ledger LedgerGateway, cache WalletCache, prefix *PreFixDetector, retry RetryConfig) *Resolver {
	return &Resolver{ledger: ledger, cache: cache, prefix: prefix, retry: retry}
}

// Resolve returns the current lifecycle view for owner, or nil when there is
// no actionable submission. Stale-cache conditions (id not found, owner
// mismatch) are self-healed locally and reported as "nothing actionable"
// rather than propagated: they are steady-state, not exceptional.
func (r *Resolver) Resolve(ctx context.Context, owner string) (*LifecycleStatus, error) {
	owner = strings.ToLower(strings.TrimSpace(owner))
	if owner == "" {
		return nil, fmt.Errorf("resolve: owner is required")
	}

	id, ok, err := r.cache.PendingSubmissionID(ctx, owner)
	if err != nil {
		// Treat a broken cache read as an empty cache and fall through to
		// discovery.
		log.Printf("resolver: cache read failed for %s, falling back to discovery: %v", owner, err)
		ok = false
	}
	if !ok {
		id, ok, err = r.discover(ctx, owner)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if err := r.cache.SetPendingSubmissionID(ctx, owner, id); err != nil {
			log.Printf("resolver: failed to cache discovered id %d for %s: %v", id, owner, err)
		}
	}

	sub, err := r.getSubmission(ctx, id)
	if errors.Is(err, ErrSubmissionNotFound) {
		// Cache pointed at a submission the ledger does not know. Clear and
		// report nothing actionable.
		if cerr := r.cache.ClearPendingSubmissionID(ctx, owner); cerr != nil {
			log.Printf("resolver: failed to clear stale pending id for %s: %v", owner, cerr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve submission %d: %w", id, err)
	}

	if !strings.EqualFold(sub.Owner, owner) {
		// Cache corruption: this id belongs to someone else.
		if cerr := r.cache.ClearPendingSubmissionID(ctx, owner); cerr != nil {
			log.Printf("resolver: failed to clear corrupt pending id for %s: %v", owner, cerr)
		}
		log.Printf("resolver: pending id %d for %s belongs to %s, cache cleared", id, owner, sub.Owner)
		return nil, nil
	}

	status := &LifecycleStatus{
		SubmissionID:   sub.ID,
		Owner:          owner,
		Verified:       sub.Status == StatusApproved,
		Rejected:       sub.Status == StatusRejected,
		LedgerRewarded: sub.Rewarded,
	}

	if r.prefix != nil && status.Verified && !status.Rejected && sub.Rewarded {
		pf, err := r.prefix.Check(ctx, owner, sub)
		if err != nil {
			// The heuristic is advisory; a failed check must not take down
			// status resolution.
			log.Printf("resolver: prefix check failed for submission %d: %v", sub.ID, err)
		} else {
			status.PreFix = pf.IsPreFix
		}
	}

	claimed, err := r.cache.IsClaimed(ctx, owner, sub.ID)
	if err != nil {
		log.Printf("resolver: claim record read failed for %s/%d: %v", owner, sub.ID, err)
		claimed = false
	}
	status.Claimed = claimed
	status.CanClaim = status.Verified && !status.Rejected && !status.Claimed

	// Terminal-state conveniences. These writes are last-writer-wins safe:
	// losing one only costs a redundant discovery on the next resolve.
	switch {
	case status.Claimed, status.Rejected:
		if err := r.cache.ClearPendingSubmissionID(ctx, owner); err != nil {
			log.Printf("resolver: failed to clear pending id for %s: %v", owner, err)
		}
	}

	return status, nil
}

// discover is the fallback path for an empty cache (new device or cleared
// storage): walk the owner's submissions newest first and pick the most
// recent approved one not already claimed locally.
func (r *Resolver) discover(ctx context.Context, owner string) (uint64, bool, error) {
	var ids []uint64
	err := RetryWithBackoff(ctx, r.retry, IsTransient, func(ctx context.Context) error {
		var lerr error
		ids, lerr = r.ledger.ListSubmissionIDs(ctx, owner)
		return lerr
	})
	if err != nil {
		return 0, false, fmt.Errorf("discover submissions for %s: %w", owner, err)
	}

	// Ledger ids are monotonically increasing, so walk from the tail.
	for i := len(ids) - 1; i >= 0; i-- {
		sub, err := r.getSubmission(ctx, ids[i])
		if errors.Is(err, ErrSubmissionNotFound) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("discover submission %d: %w", ids[i], err)
		}
		if sub.Status != StatusApproved {
			continue
		}
		claimed, err := r.cache.IsClaimed(ctx, owner, sub.ID)
		if err != nil {
			claimed = false
		}
		if claimed {
			continue
		}
		log.Printf("resolver: discovered claimable submission %d for %s", sub.ID, owner)
		return sub.ID, true, nil
	}
	return 0, false, nil
}

func (r *Resolver) getSubmission(ctx context.Context, id uint64) (Submission, error) {
	var sub Submission
	err := RetryWithBackoff(ctx, r.retry, IsTransient, func(ctx context.Context) error {
		var lerr error
		sub, lerr = r.ledger.GetSubmission(ctx, id)
		return lerr
	})
	return sub, err
}
