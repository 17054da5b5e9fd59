package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decleanup-backend/core/dmrv"
	core "decleanup-backend/core/lifecycle"
	"decleanup-backend/services"
	"decleanup-backend/storage/advisory"
	"decleanup-backend/storage/cache"
)

const (
	testOwner  = "0xowner"
	testAPIKey = "test-api-key"
)

// fakeLedger is an in-memory ledger gateway with instant confirmations.
type fakeLedger struct {
	subs    map[uint64]core.Submission
	byOwner map[string][]uint64
	balance map[string]uint64
	level   map[string]int
	txSeq   int
	owners  []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		subs:    make(map[uint64]core.Submission),
		byOwner: make(map[string][]uint64),
		balance: make(map[string]uint64),
		level:   make(map[string]int),
	}
}

func (l *fakeLedger) addSubmission(sub core.Submission) {
	l.subs[sub.ID] = sub
	l.byOwner[sub.Owner] = append(l.byOwner[sub.Owner], sub.ID)
}

func (l *fakeLedger) GetSubmission(ctx context.Context, id uint64) (core.Submission, error) {
	sub, ok := l.subs[id]
	if !ok {
		return core.Submission{}, core.ErrSubmissionNotFound
	}
	return sub, nil
}

func (l *fakeLedger) ListSubmissionIDs(ctx context.Context, owner string) ([]uint64, error) {
	return l.byOwner[strings.ToLower(owner)], nil
}

func (l *fakeLedger) GetBalance(ctx context.Context, owner string) (uint64, error) {
	return l.balance[strings.ToLower(owner)], nil
}

func (l *fakeLedger) GetUserLevel(ctx context.Context, owner string) (int, error) {
	return l.level[strings.ToLower(owner)], nil
}

func (l *fakeLedger) nextTx(prefix string) string {
	l.txSeq++
	return fmt.Sprintf("0x%s-%d", prefix, l.txSeq)
}

func (l *fakeLedger) SubmitApprove(ctx context.Context, id uint64, level int) (string, error) {
	sub := l.subs[id]
	sub.Status = core.StatusApproved
	sub.ApprovedAt = time.Now()
	l.subs[id] = sub
	return l.nextTx("approve"), nil
}

func (l *fakeLedger) SubmitReject(ctx context.Context, id uint64) (string, error) {
	sub := l.subs[id]
	sub.Status = core.StatusRejected
	l.subs[id] = sub
	return l.nextTx("reject"), nil
}

func (l *fakeLedger) SubmitClaimBalance(ctx context.Context, owner string, amount uint64) (string, error) {
	l.balance[strings.ToLower(owner)] = 0
	return l.nextTx("claim"), nil
}

func (l *fakeLedger) SubmitMintOrUpgrade(ctx context.Context, owner string, level int) (string, error) {
	l.level[strings.ToLower(owner)] = level
	return l.nextTx("mint"), nil
}

func (l *fakeLedger) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (core.TxReceipt, error) {
	receipt := core.TxReceipt{TxHash: txHash, BlockHeight: 1, ConfirmedAt: time.Now()}
	if strings.HasPrefix(txHash, "0xclaim-") {
		receipt.Events = []core.TxEvent{{Name: core.EventRewardClaimed}}
	}
	return receipt, nil
}

func (l *fakeLedger) SearchOwners(ctx context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	for _, owner := range l.owners {
		if strings.HasPrefix(owner, prefix) {
			out = append(out, owner)
		}
	}
	return out, nil
}

// fakePhotos records pinned CIDs and mints deterministic ones on upload.
type fakePhotos struct {
	pinned []string
	added  int
}

func (f *fakePhotos) AddPhoto(ctx context.Context, name string, data []byte) (string, error) {
	f.added++
	return fmt.Sprintf("bafy-upload-%d", f.added), nil
}

func (f *fakePhotos) Pin(ctx context.Context, cid string) error {
	f.pinned = append(f.pinned, cid)
	return nil
}

type harness struct {
	ledger *fakeLedger
	store  *cache.MemoryStore
	photos *fakePhotos
	url    string
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ledger := newFakeLedger()
	store := cache.NewMemoryStore()
	advStore := advisory.NewMemoryStore()

	prefix := core.NewPreFixDetector(ledger, store, 0)
	resolver := core.NewResolver(ledger, store, prefix, core.RetryConfig{})
	coordinator := core.NewCoordinator(ledger, time.Second)

	cfg := dmrv.DefaultConfig()
	verification := services.NewVerificationService(cfg, dmrv.NewMockProvider(), advStore)
	verifier := services.NewVerifierService(ledger, advStore, time.Second)
	wallets := services.NewWalletService(ledger, 0)
	share := services.NewShareService("https://app.example.org")

	photos := &fakePhotos{}
	srv := NewServer(resolver, coordinator, store, verification, verifier, wallets, share, photos, testAPIKey)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &harness{ledger: ledger, store: store, photos: photos, url: ts.URL, client: ts.Client()}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := h.client.Get(h.url + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (h *harness) post(t *testing.T, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.url+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func approvedSubmission(id uint64) core.Submission {
	return core.Submission{
		ID:          id,
		Owner:       testOwner,
		Status:      core.StatusApproved,
		SubmittedAt: time.Now().Add(-2 * time.Hour),
		ApprovedAt:  time.Now().Add(-time.Hour),
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/api/lifecycle/status?address="+testOwner)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["actionable"], "no submissions yet")

	h.ledger.addSubmission(approvedSubmission(1))

	resp, body = h.get(t, "/api/lifecycle/status?address="+strings.ToUpper(testOwner))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["actionable"])
	status := body["status"].(map[string]interface{})
	assert.Equal(t, float64(1), status["submission_id"])
	assert.Equal(t, true, status["can_claim"])
	assert.Equal(t, false, status["claimed"])

	resp, _ = h.get(t, "/api/lifecycle/status")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClaimEndpoint(t *testing.T) {
	h := newHarness(t)
	h.ledger.addSubmission(approvedSubmission(1))
	h.ledger.balance[testOwner] = 120

	resp, body := h.post(t, "/api/lifecycle/claim", claimBody{Address: testOwner, SubmissionID: 1}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(120), result["balance_claimed"])
	assert.Equal(t, float64(1), result["minted_level"])

	claimed, err := h.store.IsClaimed(context.Background(), testOwner, 1)
	require.NoError(t, err)
	assert.True(t, claimed, "claim record must be written before the response")

	// The same submission cannot be claimed twice.
	resp, body = h.post(t, "/api/lifecycle/claim", claimBody{Address: testOwner, SubmissionID: 1}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "nothing actionable remains")
	assert.Equal(t, string(core.ClaimNotFound), body["code"])
}

func TestClaimEndpointStaleID(t *testing.T) {
	h := newHarness(t)
	h.ledger.addSubmission(approvedSubmission(3))

	resp, body := h.post(t, "/api/lifecycle/claim", claimBody{Address: testOwner, SubmissionID: 2}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(core.ClaimNotClaimable), body["code"])
}

func TestSubmissionIntake(t *testing.T) {
	h := newHarness(t)

	resp, body := h.post(t, "/api/submissions", submissionBody{
		SubmissionID: 9,
		Address:      testOwner,
		BeforeCID:    "bafy-before",
		AfterCID:     "bafy-after",
		Latitude:     52520000,
		Longitude:    13405000,
	}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	adv := body["advisory"].(map[string]interface{})
	assert.Equal(t, string(dmrv.AutoApproved), adv["decision"])

	loc, ok, err := h.store.Geolocation(context.Background(), testOwner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(52520000), loc.Latitude)
	assert.Equal(t, []string{"bafy-before", "bafy-after"}, h.photos.pinned)

	resp, _ = h.post(t, "/api/submissions", submissionBody{Address: testOwner}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvisoryEndpoints(t *testing.T) {
	h := newHarness(t)
	auth := map[string]string{"X-API-Key": testAPIKey}

	// Protected without a key.
	resp, _ := h.post(t, "/api/dmrv/verify", verifyBody{SubmissionID: 5, BeforeCID: "a", AfterCID: "b"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := h.post(t, "/api/dmrv/verify", verifyBody{SubmissionID: 5, BeforeCID: "a", AfterCID: "b"}, auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(dmrv.AutoApproved), body["decision"])

	req, err := http.NewRequest(http.MethodGet, h.url+"/api/dmrv/advisory/5", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	getResp, err := h.client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	decodeBody(t, getResp)

	req, err = http.NewRequest(http.MethodGet, h.url+"/api/dmrv/advisory/404", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	missResp, err := h.client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missResp.StatusCode)
	decodeBody(t, missResp)
}

func TestVerifierEndpoints(t *testing.T) {
	h := newHarness(t)
	h.ledger.addSubmission(core.Submission{ID: 7, Owner: testOwner, Status: core.StatusPending})
	headers := map[string]string{
		"X-API-Key":        testAPIKey,
		"X-Wallet-Address": "0xverifier",
	}

	resp, body := h.post(t, "/api/verifier/approve", decisionBody{SubmissionID: 7, Level: 1}, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["tx_hash"])
	assert.Equal(t, core.StatusApproved, h.ledger.subs[7].Status)

	// Double decision refused.
	resp, _ = h.post(t, "/api/verifier/reject", decisionBody{SubmissionID: 7}, headers)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing verifier identity.
	resp, _ = h.post(t, "/api/verifier/approve", decisionBody{SubmissionID: 7, Level: 1},
		map[string]string{"X-API-Key": testAPIKey})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.post(t, "/api/verifier/reject", decisionBody{SubmissionID: 404}, headers)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWalletSearchEndpoint(t *testing.T) {
	h := newHarness(t)
	h.ledger.owners = []string{"0xabcd1111", "0xabcd2222", "0xother"}

	resp, _ := h.get(t, "/api/wallets/search?q=0x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "query under the floor")

	resp, body := h.get(t, "/api/wallets/search?q=0xabcd")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])
}

func TestShareQREndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Get(h.url + "/api/share/qrcode?address=" + testOwner)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	badResp, badBody := h.get(t, "/api/share/qrcode?address="+testOwner+"&kind=banner")
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	assert.Contains(t, badBody["error"], "kind")
}

func TestPhotoUploadEndpoint(t *testing.T) {
	h := newHarness(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "before.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, h.url+"/api/photos", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "bafy-upload-1", body["cid"])
}

func TestDismissEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, body := h.post(t, "/api/notifications/dismiss", dismissBody{Address: testOwner, Note: "claim-reminder"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["dismissed"])

	dismissed, err := h.store.IsNotificationDismissed(context.Background(), testOwner, "claim-reminder")
	require.NoError(t, err)
	assert.True(t, dismissed)
}
