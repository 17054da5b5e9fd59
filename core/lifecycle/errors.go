package lifecycle

import (
	"errors"
	"fmt"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	// ErrSubmissionNotFound is returned by ledger gateways when an id does
	// not resolve to any submission.
	ErrSubmissionNotFound = Err("submission not found")
	// ErrTxTimeout means a confirmation wait expired; the transaction
	// outcome is unknown and the caller must re-resolve, never assume
	// failure.
	ErrTxTimeout = Err("transaction confirmation timed out")
	// ErrTxReverted means the ledger rejected the transaction.
	ErrTxReverted = Err("transaction reverted")
	// ErrTransient marks ledger responses that are safe to retry, e.g. an
	// indexer that has not caught up to the head block yet.
	ErrTransient = Err("transient ledger error")
	// ErrClaimInFlight is returned when a claim for the same
	// (owner, submission) pair is still outstanding in this process.
	ErrClaimInFlight = Err("claim already in flight for this submission")
)

// ClaimErrorKind categorizes unrecoverable claim-path failures.
type ClaimErrorKind string

const (
	// ClaimNotFound: the submission id is unresolvable on the ledger.
	ClaimNotFound ClaimErrorKind = "NOT_FOUND"
	// ClaimUnauthorized: the submission belongs to a different owner.
	ClaimUnauthorized ClaimErrorKind = "UNAUTHORIZED"
	// ClaimNotClaimable: the submission is not verified, or was rejected.
	ClaimNotClaimable ClaimErrorKind = "NOT_CLAIMABLE"
	// ClaimSettlementMismatch: a balance claim confirmed but the balance
	// did not move and no claim event was found in the receipt.
	ClaimSettlementMismatch ClaimErrorKind = "SETTLEMENT_MISMATCH"
	// ClaimTransactionTimeout: confirmation wait exceeded; outcome unknown.
	ClaimTransactionTimeout ClaimErrorKind = "TRANSACTION_TIMEOUT"
	// ClaimMintUpgradeFailed: the mint/upgrade step failed and no legacy
	// balance claim settled, so no reward was distributed at all.
	ClaimMintUpgradeFailed ClaimErrorKind = "MINT_UPGRADE_FAILED"
)

// ClaimError is an unrecoverable claim failure with a machine-readable kind.
type ClaimError struct {
	Kind    ClaimErrorKind
	Message string
	Err     error
}

func (e *ClaimError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("claim %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("claim %s: %s", e.Kind, e.Message)
}

func (e *ClaimError) Unwrap() error { return e.Err }

func claimErrf(kind ClaimErrorKind, err error, format string, args ...interface{}) *ClaimError {
	return &ClaimError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ClaimErrorKindOf extracts the kind from err, or "" if err is not a ClaimError.
func ClaimErrorKindOf(err error) ClaimErrorKind {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTransient reports whether err is safe to retry against the ledger.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
