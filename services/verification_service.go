// Package services holds the application services behind the HTTP and MCP
// surfaces: dMRV pre-screening, verifier decisions, wallet search and share
// links.
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"decleanup-backend/core/dmrv"
	"decleanup-backend/metrics"
	"decleanup-backend/storage/advisory"
)

// VerificationService runs the dMRV pre-screen for a submission's photo pair
// and persists the advisory. It never writes to the ledger.
type VerificationService struct {
	provider dmrv.Provider
	engine   *dmrv.Engine
	store    advisory.Store
	enabled  bool
}

// NewVerificationService wires the detection provider and decision engine.
func NewVerificationService(cfg dmrv.Config, provider dmrv.Provider, store advisory.Store) *VerificationService {
	return &VerificationService{
		provider: provider,
		engine:   dmrv.NewEngine(cfg),
		store:    store,
		enabled:  cfg.Enabled,
	}
}

// Verify analyzes both images and stores the resulting advisory. When the
// pre-screen is disabled every submission routes to manual review so the
// verifier queue stays complete.
func (s *VerificationService) Verify(ctx context.Context, submissionID uint64, beforeCID, afterCID string) (dmrv.Advisory, error) {
	if !s.enabled {
		adv := dmrv.Advisory{
			SubmissionID: submissionID,
			Decision:     dmrv.ManualReview,
			Reasoning:    "Pre-screen disabled; routed to manual review.",
			CreatedAt:    time.Now(),
		}
		if err := s.store.SaveAdvisory(ctx, adv); err != nil {
			return dmrv.Advisory{}, err
		}
		return adv, nil
	}

	before, err := s.provider.Analyze(ctx, beforeCID, true)
	if err != nil {
		return dmrv.Advisory{}, fmt.Errorf("analyze before image: %w", err)
	}
	after, err := s.provider.Analyze(ctx, afterCID, false)
	if err != nil {
		return dmrv.Advisory{}, fmt.Errorf("analyze after image: %w", err)
	}

	adv := s.engine.Decide(submissionID, before, after)
	if err := s.store.SaveAdvisory(ctx, adv); err != nil {
		return dmrv.Advisory{}, fmt.Errorf("save advisory: %w", err)
	}
	metrics.DMRVDecisions.WithLabelValues(string(adv.Decision)).Inc()
	metrics.DMRVConfidence.Observe(adv.Confidence)
	log.Printf("dmrv: submission %d pre-screened: %s (confidence %.2f)", submissionID, adv.Decision, adv.Confidence)
	return adv, nil
}

// Advisory returns the stored advisory for a submission.
func (s *VerificationService) Advisory(ctx context.Context, submissionID uint64) (dmrv.Advisory, error) {
	return s.store.GetAdvisory(ctx, submissionID)
}

// PendingReview lists advisories waiting on a human decision.
func (s *VerificationService) PendingReview(ctx context.Context, limit int) ([]dmrv.Advisory, error) {
	return s.store.ListPendingReview(ctx, limit)
}
