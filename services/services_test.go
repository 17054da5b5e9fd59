package services

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decleanup-backend/core/dmrv"
	"decleanup-backend/core/lifecycle"
	"decleanup-backend/storage/advisory"
)

// stubLedger serves canned submissions and records decision transactions.
type stubLedger struct {
	subs     map[uint64]lifecycle.Submission
	approves []uint64
	rejects  []uint64
	txSeq    int
}

func newStubLedger(subs ...lifecycle.Submission) *stubLedger {
	m := make(map[uint64]lifecycle.Submission, len(subs))
	for _, sub := range subs {
		m[sub.ID] = sub
	}
	return &stubLedger{subs: m}
}

func (l *stubLedger) GetSubmission(ctx context.Context, id uint64) (lifecycle.Submission, error) {
	sub, ok := l.subs[id]
	if !ok {
		return lifecycle.Submission{}, lifecycle.ErrSubmissionNotFound
	}
	return sub, nil
}

func (l *stubLedger) ListSubmissionIDs(ctx context.Context, owner string) ([]uint64, error) {
	return nil, nil
}

func (l *stubLedger) GetBalance(ctx context.Context, owner string) (uint64, error) { return 0, nil }
func (l *stubLedger) GetUserLevel(ctx context.Context, owner string) (int, error)  { return 0, nil }

func (l *stubLedger) SubmitApprove(ctx context.Context, id uint64, level int) (string, error) {
	l.approves = append(l.approves, id)
	l.txSeq++
	return fmt.Sprintf("0xapprove-%d", l.txSeq), nil
}

func (l *stubLedger) SubmitReject(ctx context.Context, id uint64) (string, error) {
	l.rejects = append(l.rejects, id)
	l.txSeq++
	return fmt.Sprintf("0xreject-%d", l.txSeq), nil
}

func (l *stubLedger) SubmitClaimBalance(ctx context.Context, owner string, amount uint64) (string, error) {
	return "", nil
}

func (l *stubLedger) SubmitMintOrUpgrade(ctx context.Context, owner string, level int) (string, error) {
	return "", nil
}

func (l *stubLedger) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (lifecycle.TxReceipt, error) {
	return lifecycle.TxReceipt{TxHash: txHash, BlockHeight: 1}, nil
}

func TestVerificationServiceAutoApprove(t *testing.T) {
	store := advisory.NewMemoryStore()
	svc := NewVerificationService(dmrv.DefaultConfig(), dmrv.NewMockProvider(), store)

	adv, err := svc.Verify(context.Background(), 7, "bafy-before", "bafy-after")
	require.NoError(t, err)
	assert.Equal(t, dmrv.AutoApproved, adv.Decision)

	stored, err := svc.Advisory(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, adv.ResultHash, stored.ResultHash)
}

func TestVerificationServiceDisabled(t *testing.T) {
	cfg := dmrv.DefaultConfig()
	cfg.Enabled = false
	store := advisory.NewMemoryStore()
	svc := NewVerificationService(cfg, dmrv.NewMockProvider(), store)

	adv, err := svc.Verify(context.Background(), 7, "bafy-before", "bafy-after")
	require.NoError(t, err)
	assert.Equal(t, dmrv.ManualReview, adv.Decision, "disabled pre-screen must not auto-approve anything")

	pending, err := svc.PendingReview(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestVerifierServiceApprove(t *testing.T) {
	ledger := newStubLedger(lifecycle.Submission{ID: 3, Owner: "0xowner", Status: lifecycle.StatusPending})
	store := advisory.NewMemoryStore()
	svc := NewVerifierService(ledger, store, time.Second)

	txHash, err := svc.Approve(context.Background(), "0xverifier", 3, 2, "looks clean")
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
	assert.Equal(t, []uint64{3}, ledger.approves)

	decs, err := svc.Decisions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, decs, 1)
	assert.Equal(t, advisory.ActionApprove, decs[0].Action)
	assert.Equal(t, 2, decs[0].Level)
	assert.Equal(t, txHash, decs[0].TxHash)

	// Second decision on the same submission is refused.
	_, err = svc.Reject(context.Background(), "0xother", 3, "")
	assert.ErrorIs(t, err, advisory.ErrDuplicateDecision)
	assert.Empty(t, ledger.rejects)
}

func TestVerifierServiceGuards(t *testing.T) {
	ledger := newStubLedger(
		lifecycle.Submission{ID: 1, Owner: "0xowner", Status: lifecycle.StatusPending},
		lifecycle.Submission{ID: 2, Owner: "0xowner", Status: lifecycle.StatusApproved},
	)
	svc := NewVerifierService(ledger, advisory.NewMemoryStore(), time.Second)

	_, err := svc.Approve(context.Background(), "0xverifier", 1, 0, "")
	assert.ErrorContains(t, err, "out of range")

	_, err = svc.Approve(context.Background(), "0xverifier", 1, lifecycle.MaxImpactLevel+1, "")
	assert.ErrorContains(t, err, "out of range")

	// Already decided on the ledger even with an empty local trail.
	_, err = svc.Approve(context.Background(), "0xverifier", 2, 1, "")
	assert.ErrorIs(t, err, advisory.ErrDuplicateDecision)

	_, err = svc.Reject(context.Background(), "0xverifier", 99, "")
	assert.ErrorIs(t, err, lifecycle.ErrSubmissionNotFound)
}

type stubIndex struct {
	gotPrefix string
	gotLimit  int
}

func (s *stubIndex) SearchOwners(ctx context.Context, prefix string, limit int) ([]string, error) {
	s.gotPrefix = prefix
	s.gotLimit = limit
	return []string{"0xabcd1234", "0xabcd9999"}, nil
}

func TestWalletServiceSearch(t *testing.T) {
	index := &stubIndex{}
	svc := NewWalletService(index, 0)

	_, err := svc.Search(context.Background(), "0xa")
	var tooShort ErrQueryTooShort
	require.ErrorAs(t, err, &tooShort)
	assert.Equal(t, DefaultSearchMinChars, tooShort.Min)

	owners, err := svc.Search(context.Background(), "  0xABCD  ")
	require.NoError(t, err)
	assert.Len(t, owners, 2)
	assert.Equal(t, "0xabcd", index.gotPrefix, "query is trimmed and lowercased")
	assert.Positive(t, index.gotLimit)

	custom := NewWalletService(index, 6)
	_, err = custom.Search(context.Background(), "0xabc")
	assert.Error(t, err)
}

func TestShareServiceQRCode(t *testing.T) {
	svc := NewShareService("https://app.example.org")

	link := svc.ProfileLink("0xOWNER")
	assert.Equal(t, "https://app.example.org/profile/0xowner", link)

	png, err := svc.QRCodePNG(link, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "must be a PNG")

	_, err = svc.QRCodePNG("https://evil.example.com/profile/x", 256)
	assert.ErrorContains(t, err, "outside share base")

	png, err = svc.QRCodePNG(svc.ReferralLink("0xowner"), -1)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
