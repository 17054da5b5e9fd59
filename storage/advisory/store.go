// Package advisory persists dMRV pre-screen results and the verifier
// decisions that follow them. The ledger remains the source of truth for
// submission state; this store is the off-chain audit trail.
package advisory

import (
	"context"
	"time"

	"decleanup-backend/core/dmrv"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrAdvisoryNotFound  = Err("advisory not found")
	ErrDuplicateDecision = Err("decision already recorded for submission")
)

// Decision actions a verifier can take.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// VerifierDecision is one verifier's final call on a submission, recorded
// alongside the ledger transaction that carried it.
type VerifierDecision struct {
	SubmissionID uint64    `json:"submissionId"`
	Verifier     string    `json:"verifier"`
	Action       string    `json:"action"`
	Level        int       `json:"level,omitempty"`
	TxHash       string    `json:"txHash"`
	Note         string    `json:"note,omitempty"`
	DecidedAt    time.Time `json:"decidedAt"`
}

// Store is the persistence seam for advisories and verifier decisions.
type Store interface {
	// SaveAdvisory upserts the pre-screen result for a submission. A
	// re-run replaces the previous advisory.
	SaveAdvisory(ctx context.Context, adv dmrv.Advisory) error
	// GetAdvisory returns the advisory for a submission, or
	// ErrAdvisoryNotFound.
	GetAdvisory(ctx context.Context, submissionID uint64) (dmrv.Advisory, error)
	// ListPendingReview returns advisories routed to manual review that
	// have no verifier decision yet, oldest first, capped at limit.
	ListPendingReview(ctx context.Context, limit int) ([]dmrv.Advisory, error)
	// RecordDecision appends a verifier decision to the audit trail.
	RecordDecision(ctx context.Context, dec VerifierDecision) error
	// ListDecisions returns all decisions for a submission, oldest first.
	ListDecisions(ctx context.Context, submissionID uint64) ([]VerifierDecision, error)
	// Close releases underlying resources.
	Close()
}
