package dmrv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider runs waste detection on one image, referenced by its
// content-addressed id. Implementations wrap an inference service; the
// engine never sees raw pixels.
type Provider interface {
	Analyze(ctx context.Context, imageCID string, isBefore bool) (ImageAnalysis, error)
}

// NewProvider selects a provider based on name.
func NewProvider(name, base, apiKey string) Provider {
	switch name {
	case "http":
		return NewHTTPProvider(base, apiKey)
	default:
		return NewMockProvider()
	}
}

// mockProvider returns simulated detections: the before image shows waste,
// the after image is clean. Used in development and as the safe default
// when no inference service is configured.
type mockProvider struct{}

// NewMockProvider returns the simulated detection provider.
func NewMockProvider() Provider {
	return &mockProvider{}
}

func (m *mockProvider) Analyze(ctx context.Context, imageCID string, isBefore bool) (ImageAnalysis, error) {
	if isBefore {
		detections := []DetectionResult{
			{Class: "plastic_bottle", Confidence: 0.92, BBox: []int{100, 150, 50, 80}},
			{Class: "plastic_bag", Confidence: 0.88, BBox: []int{200, 200, 60, 40}},
			{Class: "paper", Confidence: 0.75, BBox: []int{300, 100, 40, 50}},
		}
		return ImageAnalysis{
			HasWaste:          true,
			WasteCount:        len(detections),
			Detections:        detections,
			OverallConfidence: 0.85,
		}, nil
	}
	return ImageAnalysis{
		HasWaste:          false,
		WasteCount:        0,
		OverallConfidence: 0.90,
	}, nil
}

// httpProvider calls an external inference service over HTTP.
type httpProvider struct {
	base   string
	apiKey string
	client *http.Client
}

// NewHTTPProvider builds a provider against the inference service at base.
func NewHTTPProvider(base, apiKey string) Provider {
	return &httpProvider{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *httpProvider) Analyze(ctx context.Context, imageCID string, isBefore bool) (ImageAnalysis, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"image_cid": imageCID,
		"is_before": isBefore,
	})
	if err != nil {
		return ImageAnalysis{}, err
	}

	reqURL := p.base + "/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return ImageAnalysis{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ImageAnalysis{}, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ImageAnalysis{}, fmt.Errorf("detection failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var analysis ImageAnalysis
	if err := json.Unmarshal(body, &analysis); err != nil {
		return ImageAnalysis{}, fmt.Errorf("detection response decode failed: %w", err)
	}
	return analysis, nil
}
