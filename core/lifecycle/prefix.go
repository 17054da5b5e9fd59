package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultPreFixGrace is how long after approval a rewarded-but-zero-balance
// submission is still given the benefit of the doubt. The window is a
// heuristic carried over from the incident that introduced pre-fix
// artifacts; it is configurable rather than derived.
const DefaultPreFixGrace = time.Hour

// PreFixResult is the outcome of a pre-fix check.
type PreFixResult struct {
	// IsPreFix: the submission's rewarded flag was set by the old buggy
	// distribution path without crediting the owner. The id has been
	// written into the claim record so it stops surfacing as claimable.
	IsPreFix bool
	// Unclaimed: a stale claimed entry was removed so a first-time owner
	// can still mint their initial Impact Product.
	Unclaimed bool
}

// PreFixDetector identifies submissions whose rewarded flag was set without
// the owner ever receiving tokens (a known historical bug), and repairs the
// local claim record accordingly.
type PreFixDetector struct {
	ledger LedgerGateway
	cache  WalletCache
	grace  time.Duration
	now    func() time.Time
}

// NewPreFixDetector builds a detector with the given grace window; pass 0
// for the default one hour.
func NewPreFixDetector(ledger LedgerGateway, cache WalletCache, grace time.Duration) *PreFixDetector {
	if grace <= 0 {
		grace = DefaultPreFixGrace
	}
	return &PreFixDetector{ledger: ledger, cache: cache, grace: grace, now: time.Now}
}

// Check evaluates one submission for the pre-fix inconsistency:
// rewarded on the ledger, yet the owner's balance is zero.
//
// The level==0 asymmetry is deliberate. An owner who has never minted any
// Impact Product has no other path to their first NFT, so blocking the claim
// would strand them permanently; for them the artifact is treated as
// recoverable and any stale claimed entry is removed. An owner with an
// existing NFT gets the id written into the claim record instead, since a
// claim can never make progress for an artifact whose reward transaction
// already ran.
func (d *PreFixDetector) Check(ctx context.Context, owner string, sub Submission) (PreFixResult, error) {
	var res PreFixResult

	verified := sub.Status == StatusApproved
	rejected := sub.Status == StatusRejected
	if !verified || rejected || !sub.Rewarded {
		return res, nil
	}

	balance, err := d.ledger.GetBalance(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("prefix balance lookup: %w", err)
	}
	// A positive balance may belong to an unrelated claim; be conservative
	// and treat the submission as healthy.
	if balance > 0 {
		return res, nil
	}

	approvedAt := sub.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = sub.SubmittedAt
	}
	// Inside the grace window the reward transaction may simply still be
	// propagating.
	if d.now().Sub(approvedAt) <= d.grace {
		return res, nil
	}

	level, err := d.ledger.GetUserLevel(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("prefix level lookup: %w", err)
	}

	if level == 0 {
		claimed, err := d.cache.IsClaimed(ctx, owner, sub.ID)
		if err == nil && claimed {
			if err := d.cache.RemoveClaimed(ctx, owner, sub.ID); err != nil {
				log.Printf("prefix: failed to un-claim submission %d for %s: %v", sub.ID, owner, err)
			} else {
				res.Unclaimed = true
				log.Printf("prefix: self-healed stale claim for submission %d owner %s (level 0)", sub.ID, owner)
			}
		}
		return res, nil
	}

	if err := d.cache.AddClaimed(ctx, owner, sub.ID); err != nil {
		return res, fmt.Errorf("prefix mark claimed: %w", err)
	}
	res.IsPreFix = true
	log.Printf("prefix: flagged submission %d owner %s as pre-fix artifact", sub.ID, owner)
	return res, nil
}
