// Package ledger implements the LedgerGateway against a chain indexer's
// REST API. The indexer mirrors the submission registry, reward balances
// and Impact Product levels, and relays signed transactions; this client
// never touches key material.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"decleanup-backend/core/lifecycle"
)

const defaultPollInterval = 3 * time.Second

// Client talks to the indexer API.
type Client struct {
	base         string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient builds a client against the indexer at base.
func NewClient(base, apiKey string) *Client {
	return &Client{
		base:         strings.TrimRight(base, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
	}
}

// NewClientFromEnv builds a client from LEDGER_API_BASE / LEDGER_API_KEY.
func NewClientFromEnv() *Client {
	base := strings.TrimSpace(os.Getenv("LEDGER_API_BASE"))
	if base == "" {
		base = "http://localhost:8545"
	}
	return NewClient(base, strings.TrimSpace(os.Getenv("LEDGER_API_KEY")))
}

// wireSubmission is the indexer's JSON shape for a submission record.
type wireSubmission struct {
	ID              uint64 `json:"id"`
	Owner           string `json:"owner"`
	BeforePhotoHash string `json:"before_photo_hash"`
	AfterPhotoHash  string `json:"after_photo_hash"`
	Latitude        int64  `json:"latitude"`
	Longitude       int64  `json:"longitude"`
	SubmittedAt     int64  `json:"submitted_at"`
	ApprovedAt      int64  `json:"approved_at"`
	Status          string `json:"status"`
	Rewarded        bool   `json:"rewarded"`
	Level           int    `json:"level"`
	HasImpactForm   bool   `json:"has_impact_form"`
	HasRecyclables  bool   `json:"has_recyclables"`
}

func (w wireSubmission) toSubmission() lifecycle.Submission {
	sub := lifecycle.Submission{
		ID:              w.ID,
		Owner:           strings.ToLower(w.Owner),
		BeforePhotoHash: w.BeforePhotoHash,
		AfterPhotoHash:  w.AfterPhotoHash,
		Latitude:        w.Latitude,
		Longitude:       w.Longitude,
		Rewarded:        w.Rewarded,
		Level:           w.Level,
		HasImpactForm:   w.HasImpactForm,
		HasRecyclables:  w.HasRecyclables,
	}
	if w.SubmittedAt > 0 {
		sub.SubmittedAt = time.Unix(w.SubmittedAt, 0)
	}
	if w.ApprovedAt > 0 {
		sub.ApprovedAt = time.Unix(w.ApprovedAt, 0)
	}
	switch strings.ToLower(w.Status) {
	case "approved":
		sub.Status = lifecycle.StatusApproved
	case "rejected":
		sub.Status = lifecycle.StatusRejected
	default:
		sub.Status = lifecycle.StatusPending
	}
	return sub
}

// GetSubmission fetches one submission record.
func (c *Client) GetSubmission(ctx context.Context, id uint64) (lifecycle.Submission, error) {
	var wire wireSubmission
	err := c.getJSON(ctx, fmt.Sprintf("/v1/submissions/%d", id), &wire)
	if err != nil {
		return lifecycle.Submission{}, err
	}
	return wire.toSubmission(), nil
}

// ListSubmissionIDs returns the owner's submission ids in ledger order
// (ascending, ids are a monotonic per-ledger counter).
func (c *Client) ListSubmissionIDs(ctx context.Context, owner string) ([]uint64, error) {
	var out struct {
		IDs []uint64 `json:"ids"`
	}
	if err := c.getJSON(ctx, "/v1/owners/"+strings.ToLower(owner)+"/submissions", &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// GetBalance returns the owner's claimable reward balance.
func (c *Client) GetBalance(ctx context.Context, owner string) (uint64, error) {
	var out struct {
		Balance uint64 `json:"balance"`
	}
	if err := c.getJSON(ctx, "/v1/owners/"+strings.ToLower(owner)+"/balance", &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// GetUserLevel returns the owner's current Impact Product level, 0 when the
// owner has never minted.
func (c *Client) GetUserLevel(ctx context.Context, owner string) (int, error) {
	var out struct {
		Level int `json:"level"`
	}
	if err := c.getJSON(ctx, "/v1/owners/"+strings.ToLower(owner)+"/level", &out); err != nil {
		return 0, err
	}
	return out.Level, nil
}

// SubmitApprove records a verifier approval at the given level.
func (c *Client) SubmitApprove(ctx context.Context, id uint64, level int) (string, error) {
	return c.postTx(ctx, "/v1/tx/approve", map[string]interface{}{
		"submission_id": id,
		"level":         level,
	})
}

// SubmitReject records a verifier rejection.
func (c *Client) SubmitReject(ctx context.Context, id uint64) (string, error) {
	return c.postTx(ctx, "/v1/tx/reject", map[string]interface{}{
		"submission_id": id,
	})
}

// SubmitClaimBalance drains the owner's claimable balance.
func (c *Client) SubmitClaimBalance(ctx context.Context, owner string, amount uint64) (string, error) {
	return c.postTx(ctx, "/v1/tx/claim-balance", map[string]interface{}{
		"owner":  strings.ToLower(owner),
		"amount": amount,
	})
}

// SubmitMintOrUpgrade mints or upgrades the owner's Impact Product to the
// given level. This is the call that distributes submission-linked rewards.
func (c *Client) SubmitMintOrUpgrade(ctx context.Context, owner string, level int) (string, error) {
	return c.postTx(ctx, "/v1/tx/mint-or-upgrade", map[string]interface{}{
		"owner": strings.ToLower(owner),
		"level": level,
	})
}

// SearchOwners returns wallet addresses with the given prefix, capped at
// limit. The indexer maintains the owner index from submission history.
func (c *Client) SearchOwners(ctx context.Context, prefix string, limit int) ([]string, error) {
	var out struct {
		Owners []string `json:"owners"`
	}
	path := fmt.Sprintf("/v1/owners?prefix=%s&limit=%d", url.QueryEscape(strings.ToLower(prefix)), limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Owners, nil
}

// wireReceipt is the indexer's transaction status shape.
type wireReceipt struct {
	TxHash      string `json:"tx_hash"`
	Status      string `json:"status"`
	BlockHeight int64  `json:"block_height"`
	Events      []struct {
		Name       string            `json:"name"`
		Attributes map[string]string `json:"attributes"`
	} `json:"events"`
}

// WaitForConfirmation polls the transaction until it confirms, reverts, or
// the timeout elapses. On timeout the transaction may still land later; the
// caller must treat the outcome as unknown.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (lifecycle.TxReceipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var wire wireReceipt
		err := c.getJSON(ctx, "/v1/tx/"+txHash, &wire)
		if err == nil {
			switch strings.ToLower(wire.Status) {
			case "confirmed":
				receipt := lifecycle.TxReceipt{
					TxHash:      txHash,
					BlockHeight: wire.BlockHeight,
					ConfirmedAt: time.Now(),
				}
				for _, ev := range wire.Events {
					receipt.Events = append(receipt.Events, lifecycle.TxEvent{
						Name:       ev.Name,
						Attributes: ev.Attributes,
					})
				}
				return receipt, nil
			case "reverted":
				return lifecycle.TxReceipt{}, fmt.Errorf("tx %s: %w", txHash, lifecycle.ErrTxReverted)
			}
		} else if !lifecycle.IsTransient(err) {
			// A transaction the indexer has not seen yet reports transient;
			// anything else is a hard failure.
			return lifecycle.TxReceipt{}, err
		}

		if time.Now().After(deadline) {
			return lifecycle.TxReceipt{}, fmt.Errorf("tx %s unconfirmed after %s: %w", txHash, timeout, lifecycle.ErrTxTimeout)
		}
		select {
		case <-ctx.Done():
			return lifecycle.TxReceipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postTx(ctx context.Context, path string, body map[string]interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("ledger %s: response missing tx_hash", path)
	}
	return out.TxHash, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("ledger %s: %w", req.URL.Path, lifecycle.ErrSubmissionNotFound)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		// The indexer is up but behind the head block or shedding load;
		// both are safe to retry.
		return fmt.Errorf("ledger %s: %s: %w", req.URL.Path, resp.Status, lifecycle.ErrTransient)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("ledger %s: %s: %s", req.URL.Path, resp.Status, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ledger %s: decode response: %w", req.URL.Path, err)
	}
	return nil
}
