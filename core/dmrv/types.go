// Package dmrv implements the AI-assisted pre-screen for cleanup
// submissions: waste detection results for the before/after photo pair are
// scored into an advisory decision. The output is strictly advisory: only a
// human verifier's ledger write changes a submission's status.
package dmrv

import "time"

// Decision is the advisory outcome of the pre-screen.
type Decision string

const (
	AutoApproved Decision = "AUTO_APPROVED"
	ManualReview Decision = "MANUAL_REVIEW"
)

// DetectionResult is one detected waste object in an image.
type DetectionResult struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	// BBox is [x, y, width, height] when the model reports one.
	BBox []int `json:"bbox,omitempty"`
}

// ImageAnalysis is the per-image output of the detection provider. The
// engine treats the provider as a black box and never inspects pixels.
type ImageAnalysis struct {
	HasWaste          bool              `json:"has_waste"`
	WasteCount        int               `json:"waste_count"`
	Detections        []DetectionResult `json:"detections,omitempty"`
	OverallConfidence float64           `json:"overall_confidence"`
}

// Advisory is the full pre-screen result kept for the audit trail.
type Advisory struct {
	SubmissionID uint64        `json:"submission_id"`
	Decision     Decision      `json:"decision"`
	Confidence   float64       `json:"confidence"`
	Before       ImageAnalysis `json:"before"`
	After        ImageAnalysis `json:"after"`
	Reasoning    string        `json:"reasoning"`
	ModelHash    string        `json:"model_hash"`
	ResultHash   string        `json:"result_hash"`
	CreatedAt    time.Time     `json:"created_at"`
}
