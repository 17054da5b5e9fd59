package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"decleanup-backend/core/lifecycle"
	"decleanup-backend/metrics"
	"decleanup-backend/storage/advisory"
)

// VerifierService carries a human verifier's decision to the ledger and
// records it in the audit trail. One decision per submission: once an
// approve or reject has landed, further decisions are refused.
type VerifierService struct {
	ledger         lifecycle.LedgerGateway
	store          advisory.Store
	confirmTimeout time.Duration
}

// NewVerifierService wires the ledger gateway and audit store.
func NewVerifierService(ledger lifecycle.LedgerGateway, store advisory.Store, confirmTimeout time.Duration) *VerifierService {
	if confirmTimeout <= 0 {
		confirmTimeout = lifecycle.DefaultConfirmTimeout
	}
	return &VerifierService{ledger: ledger, store: store, confirmTimeout: confirmTimeout}
}

// Approve marks the submission approved at the given level.
func (s *VerifierService) Approve(ctx context.Context, verifier string, submissionID uint64, level int, note string) (string, error) {
	if level < 1 || level > lifecycle.MaxImpactLevel {
		return "", fmt.Errorf("level %d out of range 1..%d", level, lifecycle.MaxImpactLevel)
	}
	if err := s.ensureUndecided(ctx, submissionID); err != nil {
		return "", err
	}

	txHash, err := s.ledger.SubmitApprove(ctx, submissionID, level)
	if err != nil {
		return "", fmt.Errorf("submit approve: %w", err)
	}
	if _, err := s.ledger.WaitForConfirmation(ctx, txHash, s.confirmTimeout); err != nil {
		return txHash, fmt.Errorf("approve tx %s: %w", txHash, err)
	}

	s.record(ctx, advisory.VerifierDecision{
		SubmissionID: submissionID,
		Verifier:     verifier,
		Action:       advisory.ActionApprove,
		Level:        level,
		TxHash:       txHash,
		Note:         note,
		DecidedAt:    time.Now(),
	})
	metrics.VerifierDecisions.WithLabelValues(advisory.ActionApprove).Inc()
	log.Printf("verifier: submission %d approved at level %d by %s (tx %s)", submissionID, level, verifier, txHash)
	return txHash, nil
}

// Reject marks the submission rejected.
func (s *VerifierService) Reject(ctx context.Context, verifier string, submissionID uint64, note string) (string, error) {
	if err := s.ensureUndecided(ctx, submissionID); err != nil {
		return "", err
	}

	txHash, err := s.ledger.SubmitReject(ctx, submissionID)
	if err != nil {
		return "", fmt.Errorf("submit reject: %w", err)
	}
	if _, err := s.ledger.WaitForConfirmation(ctx, txHash, s.confirmTimeout); err != nil {
		return txHash, fmt.Errorf("reject tx %s: %w", txHash, err)
	}

	s.record(ctx, advisory.VerifierDecision{
		SubmissionID: submissionID,
		Verifier:     verifier,
		Action:       advisory.ActionReject,
		TxHash:       txHash,
		Note:         note,
		DecidedAt:    time.Now(),
	})
	metrics.VerifierDecisions.WithLabelValues(advisory.ActionReject).Inc()
	log.Printf("verifier: submission %d rejected by %s (tx %s)", submissionID, verifier, txHash)
	return txHash, nil
}

// Decisions returns the audit trail for a submission.
func (s *VerifierService) Decisions(ctx context.Context, submissionID uint64) ([]advisory.VerifierDecision, error) {
	return s.store.ListDecisions(ctx, submissionID)
}

func (s *VerifierService) ensureUndecided(ctx context.Context, submissionID uint64) error {
	sub, err := s.ledger.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status != lifecycle.StatusPending {
		return advisory.ErrDuplicateDecision
	}
	decs, err := s.store.ListDecisions(ctx, submissionID)
	if err != nil {
		return err
	}
	if len(decs) > 0 {
		return advisory.ErrDuplicateDecision
	}
	return nil
}

// record appends to the audit trail. The ledger write has already landed at
// this point, so a store failure is logged rather than surfaced.
func (s *VerifierService) record(ctx context.Context, dec advisory.VerifierDecision) {
	if err := s.store.RecordDecision(ctx, dec); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("verifier: record decision for %d failed: %v", dec.SubmissionID, err)
	}
}
