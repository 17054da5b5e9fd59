package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultConfirmTimeout bounds how long a claim waits for each ledger write
// to confirm before reporting the outcome as unknown.
const DefaultConfirmTimeout = 2 * time.Minute

// Coordinator executes the claim flow for a verified submission:
//
//  1. settle any legacy pre-NFT balance (with settlement-mismatch detection),
//  2. mint or upgrade the Impact Product NFT, which is the call that actually
//     distributes the rewards tied to this submission.
//
// The steps are strictly ordered; reordering would distribute rewards
// incorrectly or skip the legacy settlement. The coordinator holds no state
// between calls beyond the in-flight guard and never writes the claim
// record: on success the caller persists the id via WalletCache.
type Coordinator struct {
	ledger         LedgerGateway
	confirmTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCoordinator builds a coordinator; pass 0 for the default confirmation
// timeout.
func NewCoordinator(ledger LedgerGateway, confirmTimeout time.Duration) *Coordinator {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &Coordinator{
		ledger:         ledger,
		confirmTimeout: confirmTimeout,
		inflight:       make(map[string]struct{}),
	}
}

func inflightKey(owner string, id uint64) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(owner), id)
}

// Claim runs the full claim flow for (owner, submissionID).
//
// A second call for the same pair while the first is outstanding fails with
// ErrClaimInFlight; this is the single-session double-click guard. Cross
// session idempotency is the caller's job: check CanClaim from the resolver
// immediately before invoking.
func (c *Coordinator) Claim(ctx context.Context, owner string, submissionID uint64) (ClaimResult, error) {
	var res ClaimResult
	owner = strings.ToLower(strings.TrimSpace(owner))

	key := inflightKey(owner, submissionID)
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return res, ErrClaimInFlight
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	// Preconditions, checked before any ledger write.
	sub, err := c.ledger.GetSubmission(ctx, submissionID)
	if errors.Is(err, ErrSubmissionNotFound) {
		return res, claimErrf(ClaimNotFound, err, "submission %d not on ledger", submissionID)
	}
	if err != nil {
		return res, fmt.Errorf("claim: load submission %d: %w", submissionID, err)
	}
	if !strings.EqualFold(sub.Owner, owner) {
		return res, claimErrf(ClaimUnauthorized, nil, "submission %d belongs to %s", submissionID, sub.Owner)
	}
	if sub.Status != StatusApproved {
		return res, claimErrf(ClaimNotClaimable, nil, "submission %d is %s", submissionID, sub.Status)
	}

	// Step 1: settle any existing balance. This may be legacy rewards from
	// before NFT-gated distribution, so a zero balance is normal.
	balanceTx, claimedAmount, err := c.settleBalance(ctx, owner)
	if err != nil {
		return res, err
	}
	res.TxHash = balanceTx
	res.BalanceClaimed = claimedAmount

	// Step 2: mint or upgrade. This call performs the reward accounting for
	// this particular submission (cleanup, referral, impact report), so it
	// runs even when step 1 had nothing to settle.
	mintTx, mintedLevel, err := c.mintOrUpgrade(ctx, owner)
	switch {
	case err == nil:
		if mintedLevel == 0 {
			// Already at max level; nothing to mint. Success requires a
			// transaction from step 1, otherwise no reward moved at all.
			if balanceTx == "" {
				return res, claimErrf(ClaimMintUpgradeFailed, nil,
					"owner %s at max level with no balance to settle", owner)
			}
			res.MintSkipped = true
			return res, nil
		}
		res.MintedLevel = mintedLevel
		if mintTx != "" {
			res.TxHash = mintTx
		}
		return res, nil

	case errors.Is(err, ErrTxTimeout):
		// Outcome unknown either way: no cache mutation, the caller must
		// re-resolve later rather than assume failure.
		return res, claimErrf(ClaimTransactionTimeout, err, "mint/upgrade outcome unknown for %s", owner)

	case balanceTx != "":
		// The legacy settlement already succeeded; surface the mint failure
		// in logs but report the claim as settled.
		log.Printf("claim: mint/upgrade failed for %s after balance settlement %s: %v", owner, balanceTx, err)
		res.MintSkipped = true
		return res, nil

	default:
		// No balance transaction and the reward-distributing step failed:
		// nothing was distributed, never mark as claimed.
		return res, claimErrf(ClaimMintUpgradeFailed, err, "mint/upgrade failed for %s", owner)
	}
}

// settleBalance drains the owner's claimable balance if any. Returns the
// transaction hash ("" when the balance was zero) and the amount claimed.
func (c *Coordinator) settleBalance(ctx context.Context, owner string) (string, uint64, error) {
	balance, err := c.ledger.GetBalance(ctx, owner)
	if err != nil {
		return "", 0, fmt.Errorf("claim: read balance for %s: %w", owner, err)
	}
	if balance == 0 {
		return "", 0, nil
	}

	txHash, err := c.ledger.SubmitClaimBalance(ctx, owner, balance)
	if err != nil {
		return "", 0, fmt.Errorf("claim: submit balance claim for %s: %w", owner, err)
	}

	receipt, err := c.ledger.WaitForConfirmation(ctx, txHash, c.confirmTimeout)
	if errors.Is(err, ErrTxTimeout) {
		// The transaction may still land; report unknown, mutate nothing.
		return "", 0, claimErrf(ClaimTransactionTimeout, err, "balance claim %s unconfirmed", txHash)
	}
	if err != nil {
		return "", 0, fmt.Errorf("claim: balance claim %s: %w", txHash, err)
	}

	after, err := c.ledger.GetBalance(ctx, owner)
	if err != nil {
		return "", 0, fmt.Errorf("claim: re-read balance for %s: %w", owner, err)
	}
	if after >= balance && !receipt.HasEvent(EventRewardClaimed) {
		// Confirmed, balance unmoved, no claim event: a fatal inconsistency
		// that must never be reported as success.
		return "", 0, claimErrf(ClaimSettlementMismatch, nil,
			"balance claim %s confirmed but balance stayed at %d with no %s event", txHash, after, EventRewardClaimed)
	}

	log.Printf("claim: settled balance %d for %s in %s", balance, owner, txHash)
	return txHash, balance, nil
}

// mintOrUpgrade mints level 1 for first-time owners or upgrades one level,
// clamped at MaxImpactLevel. Returns the minted level, or 0 when the owner
// is already at the cap and there is nothing to do.
func (c *Coordinator) mintOrUpgrade(ctx context.Context, owner string) (string, int, error) {
	current, err := c.ledger.GetUserLevel(ctx, owner)
	if err != nil {
		return "", 0, fmt.Errorf("read level for %s: %w", owner, err)
	}
	if current >= MaxImpactLevel {
		return "", 0, nil
	}

	next := current + 1
	txHash, err := c.ledger.SubmitMintOrUpgrade(ctx, owner, next)
	if err != nil {
		return "", 0, fmt.Errorf("submit mint/upgrade to level %d: %w", next, err)
	}
	if _, err := c.ledger.WaitForConfirmation(ctx, txHash, c.confirmTimeout); err != nil {
		return "", 0, fmt.Errorf("mint/upgrade %s: %w", txHash, err)
	}

	log.Printf("claim: minted level %d for %s in %s", next, owner, txHash)
	return txHash, next, nil
}
