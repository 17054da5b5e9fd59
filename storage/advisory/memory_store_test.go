package advisory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decleanup-backend/core/dmrv"
)

func testAdvisory(id uint64, decision dmrv.Decision, createdAt time.Time) dmrv.Advisory {
	return dmrv.Advisory{
		SubmissionID: id,
		Decision:     decision,
		Confidence:   0.72,
		Reasoning:    "test advisory",
		ModelHash:    "abc123",
		ResultHash:   "def456",
		CreatedAt:    createdAt,
	}
}

func TestMemoryStoreAdvisoryRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_, err := store.GetAdvisory(ctx, 1)
	assert.ErrorIs(t, err, ErrAdvisoryNotFound)

	require.NoError(t, store.SaveAdvisory(ctx, testAdvisory(1, dmrv.ManualReview, now)))

	adv, err := store.GetAdvisory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dmrv.ManualReview, adv.Decision)

	// Re-running the pre-screen replaces the stored advisory.
	require.NoError(t, store.SaveAdvisory(ctx, testAdvisory(1, dmrv.AutoApproved, now.Add(time.Minute))))
	adv, err = store.GetAdvisory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dmrv.AutoApproved, adv.Decision)
}

func TestMemoryStorePendingReview(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveAdvisory(ctx, testAdvisory(3, dmrv.ManualReview, now)))
	require.NoError(t, store.SaveAdvisory(ctx, testAdvisory(1, dmrv.ManualReview, now.Add(-time.Hour))))
	require.NoError(t, store.SaveAdvisory(ctx, testAdvisory(2, dmrv.AutoApproved, now.Add(-30*time.Minute))))

	pending, err := store.ListPendingReview(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2, "auto-approved advisories never queue for review")
	assert.Equal(t, uint64(1), pending[0].SubmissionID, "oldest first")
	assert.Equal(t, uint64(3), pending[1].SubmissionID)

	// A recorded decision removes the submission from the queue.
	require.NoError(t, store.RecordDecision(ctx, VerifierDecision{
		SubmissionID: 1,
		Verifier:     "0xverifier",
		Action:       ActionApprove,
		Level:        1,
		TxHash:       "0xtx",
		DecidedAt:    now,
	}))

	pending, err = store.ListPendingReview(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(3), pending[0].SubmissionID)

	pending, err = store.ListPendingReview(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMemoryStoreDecisionTrail(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	decs, err := store.ListDecisions(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, decs)

	require.NoError(t, store.RecordDecision(ctx, VerifierDecision{
		SubmissionID: 5, Verifier: "0xa", Action: ActionReject, TxHash: "0xt1", DecidedAt: now,
	}))
	require.NoError(t, store.RecordDecision(ctx, VerifierDecision{
		SubmissionID: 5, Verifier: "0xb", Action: ActionApprove, Level: 2, TxHash: "0xt2", DecidedAt: now.Add(time.Minute),
	}))

	decs, err = store.ListDecisions(ctx, 5)
	require.NoError(t, err)
	require.Len(t, decs, 2)
	assert.Equal(t, ActionReject, decs[0].Action)
	assert.Equal(t, ActionApprove, decs[1].Action)
}
