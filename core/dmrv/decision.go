package dmrv

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Engine scores a before/after analysis pair into an advisory decision.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine builds an engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// Decide scores the pair and produces the advisory.
//
// Weighting: 40% before confidence, 40% after confidence, 20% logic match
// (before shows waste AND after is clean). A pair whose logic does not match
// is always sent to manual review, no matter how confident the model is.
func (e *Engine) Decide(submissionID uint64, before, after ImageAnalysis) Advisory {
	beforeHasWaste := before.HasWaste && before.WasteCount > 0
	afterIsClean := !after.HasWaste || after.WasteCount == 0

	logicMatch := 0.0
	if beforeHasWaste && afterIsClean {
		logicMatch = 1.0
	}
	confidence := 0.4*before.OverallConfidence + 0.4*after.OverallConfidence + 0.2*logicMatch

	decision := ManualReview
	switch {
	case confidence >= e.cfg.AutoApproveThreshold && beforeHasWaste && afterIsClean:
		decision = AutoApproved
	case confidence < e.cfg.ManualReviewThreshold:
		decision = ManualReview
	case beforeHasWaste && afterIsClean:
		// Between thresholds with matching logic: configuration decides
		// whether medium-confidence pairs may auto-approve.
		if e.cfg.AllowAutoApprove {
			decision = AutoApproved
		}
	}

	adv := Advisory{
		SubmissionID: submissionID,
		Decision:     decision,
		Confidence:   confidence,
		Before:       before,
		After:        after,
		Reasoning:    reasoning(before, after, decision),
		ModelHash:    e.ModelHash(),
		CreatedAt:    e.now(),
	}
	adv.ResultHash = resultHash(before, after, decision, confidence)
	return adv
}

// ModelHash identifies the model version behind this engine's advisories so
// audits can tell which weights produced a decision.
func (e *Engine) ModelHash() string {
	info := fmt.Sprintf("%s-%s-v1", e.cfg.ModelProvider, e.cfg.ModelName)
	sum := sha256.Sum256([]byte(info))
	return hex.EncodeToString(sum[:])[:16]
}

// resultHash fingerprints the decision inputs and outcome for the audit
// trail.
func resultHash(before, after ImageAnalysis, decision Decision, confidence float64) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"before": map[string]interface{}{
			"hasWaste":   before.HasWaste,
			"wasteCount": before.WasteCount,
			"confidence": before.OverallConfidence,
		},
		"after": map[string]interface{}{
			"hasWaste":   after.HasWaste,
			"wasteCount": after.WasteCount,
			"confidence": after.OverallConfidence,
		},
		"decision":   decision,
		"confidence": confidence,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

func reasoning(before, after ImageAnalysis, decision Decision) string {
	if decision == AutoApproved {
		return fmt.Sprintf(
			"Cleanup verified: before image shows %d waste items (confidence: %.1f%%), after image shows clean state (confidence: %.1f%%). High confidence match.",
			before.WasteCount, before.OverallConfidence*100, after.OverallConfidence*100)
	}
	return fmt.Sprintf(
		"Requires manual review: before image analysis (%d items, %.1f%% confidence) or after image analysis (%d items, %.1f%% confidence) below auto-approval threshold.",
		before.WasteCount, before.OverallConfidence*100, after.WasteCount, after.OverallConfidence*100)
}
