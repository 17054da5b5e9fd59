// Package lifecycle exposes the HTTP API: status resolution, claiming,
// submission intake, dMRV advisories, verifier decisions, wallet search,
// share links and notification dismissal.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	core "decleanup-backend/core/lifecycle"
	"decleanup-backend/metrics"
	"decleanup-backend/services"
	"decleanup-backend/storage/advisory"
	"decleanup-backend/storage/cache"
)

// PhotoStore pins cleanup photos so they survive until verifier review.
type PhotoStore interface {
	AddPhoto(ctx context.Context, name string, data []byte) (string, error)
	Pin(ctx context.Context, cid string) error
}

// CacheStore is the local persistence the HTTP layer needs: the wallet
// cache plus geolocation and notification state.
type CacheStore interface {
	core.WalletCache
	SetGeolocation(ctx context.Context, owner string, loc cache.Geolocation) error
	Geolocation(ctx context.Context, owner string) (cache.Geolocation, bool, error)
	DismissNotification(ctx context.Context, owner, note string) error
	IsNotificationDismissed(ctx context.Context, owner, note string) (bool, error)
}

// Server wires handlers for the lifecycle endpoints.
type Server struct {
	resolver     *core.Resolver
	coordinator  *core.Coordinator
	store        CacheStore
	verification *services.VerificationService
	verifier     *services.VerifierService
	wallets      *services.WalletService
	share        *services.ShareService
	photos       PhotoStore
	apiKey       string
}

// NewServer builds a Server. apiKey guards the verifier endpoints; empty
// disables the check (development only). photos may be nil when no IPFS
// node is configured.
func NewServer(
	resolver *core.Resolver,
	coordinator *core.Coordinator,
	store CacheStore,
	verification *services.VerificationService,
	verifier *services.VerifierService,
	wallets *services.WalletService,
	share *services.ShareService,
	photos PhotoStore,
	apiKey string,
) *Server {
	return &Server{
		resolver:     resolver,
		coordinator:  coordinator,
		store:        store,
		verification: verification,
		verifier:     verifier,
		wallets:      wallets,
		share:        share,
		photos:       photos,
		apiKey:       apiKey,
	}
}

// RegisterRoutes attaches handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/lifecycle/status", s.handleStatus)
	mux.HandleFunc("/api/lifecycle/claim", s.handleClaim)
	mux.HandleFunc("/api/submissions", s.handleSubmissions)
	mux.HandleFunc("/api/photos", s.handlePhotoUpload)
	mux.HandleFunc("/api/dmrv/verify", s.authWrap(s.handleVerify))
	mux.HandleFunc("/api/dmrv/advisory/", s.authWrap(s.handleAdvisory))
	mux.HandleFunc("/api/verifier/queue", s.authWrap(s.handleQueue))
	mux.HandleFunc("/api/verifier/approve", s.authWrap(s.handleApprove))
	mux.HandleFunc("/api/verifier/reject", s.authWrap(s.handleReject))
	mux.HandleFunc("/api/wallets/search", s.handleWalletSearch)
	mux.HandleFunc("/api/share/qrcode", s.handleShareQR)
	mux.HandleFunc("/api/notifications/dismiss", s.handleDismiss)
}

func (s *Server) authWrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			key := r.Header.Get("X-API-Key")
			if key == "" || key != s.apiKey {
				Error(w, http.StatusForbidden, "invalid api key")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus resolves the lifecycle view for a wallet.
// GET /api/lifecycle/status?address=0x...
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		Error(w, http.StatusBadRequest, "address is required")
		return
	}

	status, err := s.resolver.Resolve(r.Context(), address)
	if err != nil {
		metrics.StatusResolutions.WithLabelValues("error").Inc()
		log.Printf("http: status resolve for %s failed: %v", address, err)
		Error(w, http.StatusBadGateway, "status resolution failed")
		return
	}
	if status == nil {
		metrics.StatusResolutions.WithLabelValues("none").Inc()
		JSON(w, http.StatusOK, map[string]interface{}{"actionable": false})
		return
	}
	metrics.StatusResolutions.WithLabelValues("resolved").Inc()
	if status.PreFix {
		metrics.PreFixDetections.WithLabelValues("prefix").Inc()
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"actionable": true,
		"status":     status,
	})
}

type claimBody struct {
	Address      string `json:"address"`
	SubmissionID uint64 `json:"submission_id"`
}

// handleClaim runs the claim flow. The resolver is consulted immediately
// before the coordinator so a submission already claimed elsewhere is caught
// here instead of on the ledger.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body claimBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.Address == "" {
		Error(w, http.StatusBadRequest, "address is required")
		return
	}

	status, err := s.resolver.Resolve(r.Context(), body.Address)
	if err != nil {
		Error(w, http.StatusBadGateway, "status resolution failed")
		return
	}
	if status == nil {
		ErrorCoded(w, http.StatusNotFound, string(core.ClaimNotFound), "no actionable submission")
		return
	}
	if body.SubmissionID != 0 && body.SubmissionID != status.SubmissionID {
		ErrorCoded(w, http.StatusConflict, string(core.ClaimNotClaimable), "submission id is stale, re-resolve status")
		return
	}
	if !status.CanClaim {
		ErrorCoded(w, http.StatusConflict, string(core.ClaimNotClaimable), "submission is not claimable")
		return
	}

	result, err := s.coordinator.Claim(r.Context(), status.Owner, status.SubmissionID)
	if err != nil {
		s.writeClaimError(w, err)
		return
	}

	// Persist the claim record before answering; the next resolve must see
	// Claimed even if this response is lost.
	if err := s.store.AddClaimed(r.Context(), status.Owner, status.SubmissionID); err != nil {
		log.Printf("http: claim record write failed for %s/%d: %v", status.Owner, status.SubmissionID, err)
	}
	if err := s.store.ClearPendingSubmissionID(r.Context(), status.Owner); err != nil {
		log.Printf("http: pending clear failed for %s: %v", status.Owner, err)
	}

	if result.MintSkipped {
		metrics.Claims.WithLabelValues("mint_skipped").Inc()
	} else {
		metrics.Claims.WithLabelValues("success").Inc()
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"submission_id": status.SubmissionID,
		"result":        result,
	})
}

func (s *Server) writeClaimError(w http.ResponseWriter, err error) {
	kind := core.ClaimErrorKindOf(err)
	if errors.Is(err, core.ErrClaimInFlight) {
		metrics.Claims.WithLabelValues("in_flight").Inc()
		ErrorCoded(w, http.StatusConflict, "IN_FLIGHT", "claim already in progress")
		return
	}
	metrics.Claims.WithLabelValues(string(kind)).Inc()
	switch kind {
	case core.ClaimNotFound:
		ErrorCoded(w, http.StatusNotFound, string(kind), err.Error())
	case core.ClaimUnauthorized:
		ErrorCoded(w, http.StatusForbidden, string(kind), err.Error())
	case core.ClaimNotClaimable:
		ErrorCoded(w, http.StatusConflict, string(kind), err.Error())
	case core.ClaimTransactionTimeout:
		ErrorCoded(w, http.StatusGatewayTimeout, string(kind), err.Error())
	case core.ClaimSettlementMismatch, core.ClaimMintUpgradeFailed:
		ErrorCoded(w, http.StatusBadGateway, string(kind), err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

type submissionBody struct {
	SubmissionID uint64 `json:"submission_id"`
	Address      string `json:"address"`
	BeforeCID    string `json:"before_cid"`
	AfterCID     string `json:"after_cid"`
	Latitude     int64  `json:"latitude"`
	Longitude    int64  `json:"longitude"`
}

// handleSubmissions receives intake metadata for a freshly submitted
// cleanup: it stores the location locally and runs the dMRV pre-screen on
// the photo pair.
func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body submissionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.Address == "" || body.SubmissionID == 0 {
		Error(w, http.StatusBadRequest, "address and submission_id are required")
		return
	}
	if body.BeforeCID == "" || body.AfterCID == "" {
		Error(w, http.StatusBadRequest, "before_cid and after_cid are required")
		return
	}

	if err := s.store.SetGeolocation(r.Context(), body.Address, cache.Geolocation{
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
	}); err != nil {
		log.Printf("http: geolocation write failed for %s: %v", body.Address, err)
	}

	if s.photos != nil {
		// Best effort: a pin failure must not block intake, the pinning
		// service the client uploaded to still holds the photos.
		for _, cid := range []string{body.BeforeCID, body.AfterCID} {
			if err := s.photos.Pin(r.Context(), cid); err != nil {
				log.Printf("http: pin %s failed: %v", cid, err)
			}
		}
	}

	adv, err := s.verification.Verify(r.Context(), body.SubmissionID, body.BeforeCID, body.AfterCID)
	if err != nil {
		log.Printf("http: pre-screen failed for submission %d: %v", body.SubmissionID, err)
		Error(w, http.StatusBadGateway, "pre-screen failed")
		return
	}
	JSON(w, http.StatusAccepted, map[string]interface{}{
		"submission_id": body.SubmissionID,
		"advisory":      adv,
	})
}

// handlePhotoUpload accepts a multipart photo and stores it on IPFS.
// POST /api/photos with form field "file"; responds with the pinned CID.
func (s *Server) handlePhotoUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.photos == nil {
		Error(w, http.StatusServiceUnavailable, "photo storage not configured")
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read file")
		return
	}
	cid, err := s.photos.AddPhoto(r.Context(), header.Filename, data)
	if err != nil {
		log.Printf("http: photo upload failed: %v", err)
		Error(w, http.StatusBadGateway, "photo upload failed")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"cid": cid})
}

type verifyBody struct {
	SubmissionID uint64 `json:"submission_id"`
	BeforeCID    string `json:"before_cid"`
	AfterCID     string `json:"after_cid"`
}

// handleVerify re-runs the pre-screen on demand.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body verifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.SubmissionID == 0 || body.BeforeCID == "" || body.AfterCID == "" {
		Error(w, http.StatusBadRequest, "submission_id, before_cid and after_cid are required")
		return
	}

	adv, err := s.verification.Verify(r.Context(), body.SubmissionID, body.BeforeCID, body.AfterCID)
	if err != nil {
		Error(w, http.StatusBadGateway, "pre-screen failed")
		return
	}
	JSON(w, http.StatusOK, adv)
}

// handleAdvisory serves GET /api/dmrv/advisory/{id}.
func (s *Server) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/dmrv/advisory/"), "/")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		Error(w, http.StatusBadRequest, "invalid submission id")
		return
	}

	adv, err := s.verification.Advisory(r.Context(), id)
	if errors.Is(err, advisory.ErrAdvisoryNotFound) {
		Error(w, http.StatusNotFound, "no advisory for submission")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, adv)
}

// handleQueue lists advisories waiting on a human decision.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	pending, err := s.verification.PendingReview(r.Context(), limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"count":   len(pending),
	})
}

type decisionBody struct {
	SubmissionID uint64 `json:"submission_id"`
	Level        int    `json:"level"`
	Note         string `json:"note"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, advisory.ActionApprove)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, advisory.ActionReject)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, action string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	verifierAddr := strings.TrimSpace(r.Header.Get("X-Wallet-Address"))
	if verifierAddr == "" {
		Error(w, http.StatusBadRequest, "X-Wallet-Address header is required")
		return
	}
	var body decisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.SubmissionID == 0 {
		Error(w, http.StatusBadRequest, "submission_id is required")
		return
	}

	var (
		txHash string
		err    error
	)
	if action == advisory.ActionApprove {
		txHash, err = s.verifier.Approve(r.Context(), verifierAddr, body.SubmissionID, body.Level, body.Note)
	} else {
		txHash, err = s.verifier.Reject(r.Context(), verifierAddr, body.SubmissionID, body.Note)
	}
	switch {
	case errors.Is(err, advisory.ErrDuplicateDecision):
		Error(w, http.StatusConflict, "submission already decided")
		return
	case errors.Is(err, core.ErrSubmissionNotFound):
		Error(w, http.StatusNotFound, "submission not found")
		return
	case err != nil:
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"submission_id": body.SubmissionID,
		"action":        action,
		"tx_hash":       txHash,
	})
}

// handleWalletSearch serves GET /api/wallets/search?q=prefix.
func (s *Server) handleWalletSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	owners, err := s.wallets.Search(r.Context(), r.URL.Query().Get("q"))
	var tooShort services.ErrQueryTooShort
	if errors.As(err, &tooShort) {
		Error(w, http.StatusBadRequest, tooShort.Error())
		return
	}
	if err != nil {
		Error(w, http.StatusBadGateway, "wallet search failed")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"wallets": owners,
		"count":   len(owners),
	})
}

// handleShareQR serves GET /api/share/qrcode?address=0x..&kind=profile&size=256.
func (s *Server) handleShareQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		Error(w, http.StatusBadRequest, "address is required")
		return
	}

	var link string
	switch r.URL.Query().Get("kind") {
	case "", "profile":
		link = s.share.ProfileLink(address)
	case "referral":
		link = s.share.ReferralLink(address)
	default:
		Error(w, http.StatusBadRequest, "kind must be profile or referral")
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := s.share.QRCodePNG(link, size)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type dismissBody struct {
	Address string `json:"address"`
	Note    string `json:"note"`
}

// handleDismiss records that a client dismissed an in-app notification, so
// it stays hidden across devices sharing the cache.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body dismissBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.Address == "" || body.Note == "" {
		Error(w, http.StatusBadRequest, "address and note are required")
		return
	}
	if err := s.store.DismissNotification(r.Context(), body.Address, body.Note); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"dismissed": true})
}
