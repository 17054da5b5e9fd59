package dmrv

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the pre-screen thresholds and provider selection. The
// threshold defaults are heuristic constants carried from production; they
// are overridable rather than derived.
type Config struct {
	AutoApproveThreshold  float64
	ManualReviewThreshold float64
	ModelProvider         string
	ModelName             string
	Enabled               bool
	AllowAutoApprove      bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AutoApproveThreshold:  0.85,
		ManualReviewThreshold: 0.60,
		ModelProvider:         "mock",
		ModelName:             "FathomNet/trash-detector",
		Enabled:               true,
		AllowAutoApprove:      true,
	}
}

// LoadConfig reads the DMRV_* environment with defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if raw := strings.TrimSpace(os.Getenv("DMRV_AUTO_APPROVE_THRESHOLD")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v <= 1 {
			cfg.AutoApproveThreshold = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("DMRV_MANUAL_REVIEW_THRESHOLD")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v <= 1 {
			cfg.ManualReviewThreshold = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("DMRV_MODEL_PROVIDER")); raw != "" {
		cfg.ModelProvider = raw
	}
	if raw := strings.TrimSpace(os.Getenv("DMRV_MODEL_NAME")); raw != "" {
		cfg.ModelName = raw
	}
	cfg.Enabled = os.Getenv("DMRV_ENABLED") != "false"
	cfg.AllowAutoApprove = os.Getenv("DMRV_ALLOW_AUTO_APPROVE") != "false"
	return cfg
}
