package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetscribe/internal/orchestrator"
	"meetscribe/internal/transcript"
)

func openTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func completedSession(meetingID, sessionID string, startedAt time.Time) orchestrator.Session {
	done := startedAt.Add(90 * time.Second)
	return orchestrator.Session{
		SessionID:   sessionID,
		MeetingID:   meetingID,
		URL:         "https://meet.google.com/abc-defg-hij",
		Status:      orchestrator.StatusCompleted,
		StartedAt:   startedAt,
		CompletedAt: &done,
		Segments: []transcript.Segment{
			{Speaker: "Alice", Text: "good morning everyone", Start: 1, End: 3, Index: 0},
			{Speaker: "Bob", Text: "morning", Start: 4, End: 5, Index: 1},
		},
	}
}

func TestSaveFinalRoundTrip(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	session := completedSession("meet-1", "s1", time.Now().Add(-2*time.Minute))
	require.NoError(t, store.SaveFinal(ctx, session, "meeting ended"))

	rec, err := store.LatestFor(ctx, "meet-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, "meeting ended", rec.Reason)
	assert.Equal(t, 2, rec.SegmentCount)
	assert.InDelta(t, 90.0, rec.Duration, 0.1)
	assert.Equal(t, "Alice: good morning everyone\nBob: morning", rec.Transcript)

	segs, err := store.SegmentsFor(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "Alice", segs[0].Speaker)
	assert.Equal(t, 1, segs[1].Index)
}

func TestSaveFinalIsIdempotent(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	session := completedSession("meet-1", "s1", time.Now())
	require.NoError(t, store.SaveFinal(ctx, session, "meeting ended"))
	require.NoError(t, store.SaveFinal(ctx, session, "meeting ended"))

	recs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	segs, err := store.SegmentsFor(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, segs, 2)
}

func TestRecentOrdering(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.SaveFinal(ctx, completedSession("meet-1", "s1", base), "x"))
	require.NoError(t, store.SaveFinal(ctx, completedSession("meet-2", "s2", base.Add(10*time.Minute)), "x"))
	require.NoError(t, store.SaveFinal(ctx, completedSession("meet-3", "s3", base.Add(20*time.Minute)), "x"))

	recs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s3", recs[0].SessionID)
	assert.Equal(t, "s2", recs[1].SessionID)
}

func TestRetentionPruning(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"s1", "s2", "s3"} {
		session := completedSession("meet-1", id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.SaveFinal(ctx, session, "x"))
	}

	recs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s3", recs[0].SessionID)
	assert.Equal(t, "s2", recs[1].SessionID)

	// Pruned session segments go with it.
	segs, err := store.SegmentsFor(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestLatestForUnknownMeeting(t *testing.T) {
	store := openTestStore(t, 0)
	_, err := store.LatestFor(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotArchived)
}
