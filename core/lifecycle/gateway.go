package lifecycle

import (
	"context"
	"time"
)

// LedgerGateway is the read/write boundary to the authoritative ledger.
// Implementations live outside this package (see the ledger package for the
// HTTP indexer client); tests use in-memory fakes.
//
// Every call is a potential suspension point: callers must tolerate
// arbitrary latency and transient failure on each. Implementations should
// wrap not-yet-synced indexer responses with ErrTransient so callers can
// retry with backoff.
type LedgerGateway interface {
	GetSubmission(ctx context.Context, id uint64) (Submission, error)
	ListSubmissionIDs(ctx context.Context, owner string) ([]uint64, error)
	GetBalance(ctx context.Context, owner string) (uint64, error)
	GetUserLevel(ctx context.Context, owner string) (int, error)

	SubmitApprove(ctx context.Context, id uint64, level int) (string, error)
	SubmitReject(ctx context.Context, id uint64) (string, error)
	SubmitClaimBalance(ctx context.Context, owner string, amount uint64) (string, error)
	SubmitMintOrUpgrade(ctx context.Context, owner string, level int) (string, error)

	// WaitForConfirmation blocks until the transaction confirms, reverts
	// (ErrTxReverted), or the timeout elapses (ErrTxTimeout). On timeout the
	// transaction may still land; callers must treat the outcome as unknown.
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (TxReceipt, error)
}

// WalletCache is the owner-scoped slice of the local cache that the
// lifecycle engine reads and writes. The cache is a hint, never truth:
// malformed or stale entries are treated as absent and self-healed from the
// ledger. All mutation paths (resolver, pre-fix detector, claim callers) go
// through this one seam so tests can swap in an in-memory fake.
type WalletCache interface {
	PendingSubmissionID(ctx context.Context, owner string) (uint64, bool, error)
	SetPendingSubmissionID(ctx context.Context, owner string, id uint64) error
	ClearPendingSubmissionID(ctx context.Context, owner string) error

	IsClaimed(ctx context.Context, owner string, id uint64) (bool, error)
	AddClaimed(ctx context.Context, owner string, id uint64) error
	RemoveClaimed(ctx context.Context, owner string, id uint64) error
}
