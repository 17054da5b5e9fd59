package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeLedger is a scriptable in-memory LedgerGateway for tests.
type fakeLedger struct {
	mu          sync.Mutex
	submissions map[uint64]Submission
	balances    map[string]uint64
	levels      map[string]int

	// listFailures makes ListSubmissionIDs fail transiently N times before
	// succeeding, to exercise the retry path.
	listFailures int

	// settleMismatch leaves the balance untouched and omits the claim event
	// from the receipt after a confirmed balance claim.
	settleMismatch bool
	// timeoutOnClaim / timeoutOnMint make WaitForConfirmation expire for the
	// corresponding transaction.
	timeoutOnClaim bool
	timeoutOnMint  bool
	// mintSubmitErr fails SubmitMintOrUpgrade outright.
	mintSubmitErr error
	// blockConfirm, when non-nil, parks WaitForConfirmation until closed.
	blockConfirm chan struct{}

	txSeq int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		submissions: make(map[uint64]Submission),
		balances:    make(map[string]uint64),
		levels:      make(map[string]int),
	}
}

func (f *fakeLedger) addSubmission(sub Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions[sub.ID] = sub
}

func (f *fakeLedger) GetSubmission(ctx context.Context, id uint64) (Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[id]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, nil
}

func (f *fakeLedger) ListSubmissionIDs(ctx context.Context, owner string) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listFailures > 0 {
		f.listFailures--
		return nil, fmt.Errorf("indexer behind head: %w", ErrTransient)
	}
	var ids []uint64
	for id, sub := range f.submissions {
		if sub.Owner == owner {
			ids = append(ids, id)
		}
	}
	// Callers expect ledger order: ascending ids.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return ids, nil
}

func (f *fakeLedger) GetBalance(ctx context.Context, owner string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[owner], nil
}

func (f *fakeLedger) GetUserLevel(ctx context.Context, owner string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[owner], nil
}

func (f *fakeLedger) nextTx(kind string) string {
	f.txSeq++
	return fmt.Sprintf("0xtx-%s-%d", kind, f.txSeq)
}

func (f *fakeLedger) SubmitApprove(ctx context.Context, id uint64, level int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[id]
	if !ok {
		return "", ErrSubmissionNotFound
	}
	sub.Status = StatusApproved
	sub.Level = level
	sub.ApprovedAt = time.Now()
	f.submissions[id] = sub
	return f.nextTx("approve"), nil
}

func (f *fakeLedger) SubmitReject(ctx context.Context, id uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[id]
	if !ok {
		return "", ErrSubmissionNotFound
	}
	sub.Status = StatusRejected
	f.submissions[id] = sub
	return f.nextTx("reject"), nil
}

func (f *fakeLedger) SubmitClaimBalance(ctx context.Context, owner string, amount uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settleMismatch {
		f.balances[owner] = 0
	}
	return f.nextTx("claim"), nil
}

func (f *fakeLedger) SubmitMintOrUpgrade(ctx context.Context, owner string, level int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintSubmitErr != nil {
		return "", f.mintSubmitErr
	}
	f.levels[owner] = level
	return f.nextTx("mint"), nil
}

func (f *fakeLedger) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (TxReceipt, error) {
	if f.blockConfirm != nil {
		select {
		case <-f.blockConfirm:
		case <-ctx.Done():
			return TxReceipt{}, ctx.Err()
		}
	}
	isClaim := len(txHash) > 7 && txHash[:8] == "0xtx-cla"
	isMint := len(txHash) > 7 && txHash[:8] == "0xtx-min"
	if (isClaim && f.timeoutOnClaim) || (isMint && f.timeoutOnMint) {
		return TxReceipt{}, fmt.Errorf("waited %s for %s: %w", timeout, txHash, ErrTxTimeout)
	}
	receipt := TxReceipt{TxHash: txHash, BlockHeight: 100, ConfirmedAt: time.Now()}
	if isClaim && !f.settleMismatch {
		receipt.Events = append(receipt.Events, TxEvent{Name: EventRewardClaimed})
	}
	return receipt, nil
}

func approvedSubmission(id uint64, owner string, approvedAgo time.Duration) Submission {
	now := time.Now()
	return Submission{
		ID:          id,
		Owner:       owner,
		Status:      StatusApproved,
		SubmittedAt: now.Add(-approvedAgo - time.Hour),
		ApprovedAt:  now.Add(-approvedAgo),
		Level:       1,
	}
}
