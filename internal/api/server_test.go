package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetscribe/internal/archive"
	"meetscribe/internal/audio"
	"meetscribe/internal/config"
	"meetscribe/internal/orchestrator"
	"meetscribe/internal/registry"
	"meetscribe/internal/transcript"
)

type stubRunner struct {
	mu       sync.Mutex
	meeting  string
	status   orchestrator.Status
	segments []transcript.Segment
	done     chan struct{}
	doneOnce sync.Once
}

func (r *stubRunner) Run(ctx context.Context) {
	<-ctx.Done()
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *stubRunner) Stop(context.Context, string) {
	r.mu.Lock()
	r.status = orchestrator.StatusCompleted
	r.segments = []transcript.Segment{
		{Speaker: "Alice", Text: "hello", Index: 0},
		{Speaker: "Bob", Text: "goodbye", Index: 1},
	}
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *stubRunner) Snapshot() orchestrator.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	done := time.Now()
	session := orchestrator.Session{
		SessionID: "sess-" + r.meeting,
		MeetingID: r.meeting,
		Status:    r.status,
		Segments:  r.segments,
		StartedAt: done.Add(-time.Minute),
	}
	if r.status == orchestrator.StatusCompleted {
		session.CompletedAt = &done
	}
	return session
}

func (r *stubRunner) Done() <-chan struct{} { return r.done }

type nullBackend struct{}

func (nullBackend) NotifyStatus(orchestrator.Session)                  {}
func (nullBackend) NotifyCaption(string, transcript.Segment)           {}
func (nullBackend) NotifyEnded(orchestrator.Session, string)           {}
func (nullBackend) AppendSegments(context.Context, string, []transcript.Segment) error {
	return nil
}
func (nullBackend) Finalize(context.Context, string, []transcript.Segment, float64) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	factory := func(_ *config.Config, meetingID, _ string, _ orchestrator.Sink) registry.Runner {
		return &stubRunner{
			meeting: meetingID,
			status:  orchestrator.StatusPending,
			done:    make(chan struct{}),
		}
	}
	reg := registry.New(config.DefaultConfig(), nullBackend{}, nil, factory)
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })
	return NewServer(config.DefaultAPIConfig(), reg, nil, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStartSession(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/sessions", startRequest{
		MeetingID:  "meet-1",
		MeetingURL: "https://meet.google.com/abc-defg-hij",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-meet-1", resp.SessionID)
	assert.Equal(t, "pending", resp.Status)
}

func TestStartSessionValidation(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		req  startRequest
	}{
		{"missing meeting id", startRequest{MeetingURL: "https://meet.google.com/abc"}},
		{"missing url", startRequest{MeetingID: "m1"}},
		{"wrong provider", startRequest{MeetingID: "m1", MeetingURL: "https://example.com/meeting"}},
		{"not https", startRequest{MeetingID: "m1", MeetingURL: "http://meet.google.com/abc"}},
		{"not a url", startRequest{MeetingID: "m1", MeetingURL: "::not-a-url::"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, server.Handler(), http.MethodPost, "/api/sessions", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStopReturnsTranscript(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions", startRequest{
		MeetingID:  "meet-1",
		MeetingURL: "https://meet.google.com/abc-defg-hij",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/sessions/meet-1/stop", stopRequest{Reason: "done"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "Alice: hello\nBob: goodbye", resp.Transcript)
	assert.Equal(t, 2, resp.SegmentCount)
	assert.Greater(t, resp.Duration, 0.0)
}

func TestGetAndListSessions(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	for _, id := range []string{"m1", "m2"} {
		rec := doJSON(t, handler, http.MethodPost, "/api/sessions", startRequest{
			MeetingID:  id,
			MeetingURL: "https://meet.google.com/" + id,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/sessions/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Sessions []sessionResponse `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Sessions, 2)
}

func TestStopUnknownSession(t *testing.T) {
	server := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/sessions/nope/stop", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type discardSender struct{}

func (discardSender) SendAudioChunk(context.Context, audio.Chunk) error { return nil }

func TestAudioChunkIngest(t *testing.T) {
	factory := func(_ *config.Config, meetingID, _ string, _ orchestrator.Sink) registry.Runner {
		return &stubRunner{meeting: meetingID, status: orchestrator.StatusRecording, done: make(chan struct{})}
	}
	reg := registry.New(config.DefaultConfig(), nullBackend{}, nil, factory)
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })

	fwd := audio.NewForwarder(discardSender{}, 8, 10)
	server := NewServer(config.DefaultAPIConfig(), reg, nil, fwd)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions", startRequest{
		MeetingID:  "meet-1",
		MeetingURL: "https://meet.google.com/abc-defg-hij",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/sessions/meet-1/audio", audioChunkRequest{
		Seq:  0,
		Data: []byte("opus bytes"),
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, fwd.Pending())

	// Unknown meeting and empty payload are rejected.
	rec = doJSON(t, handler, http.MethodPost, "/api/sessions/nope/audio", audioChunkRequest{Data: []byte("x")})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/api/sessions/meet-1/audio", audioChunkRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveItemLookup(t *testing.T) {
	store, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	started := time.Now().Add(-5 * time.Minute)
	done := started.Add(90 * time.Second)
	session := orchestrator.Session{
		SessionID:   "sess-old",
		MeetingID:   "meet-1",
		URL:         "https://meet.google.com/abc-defg-hij",
		Status:      orchestrator.StatusCompleted,
		StartedAt:   started,
		CompletedAt: &done,
		Segments: []transcript.Segment{
			{Speaker: "Alice", Text: "good morning everyone", Start: 1, End: 3, Index: 0},
			{Speaker: "Bob", Text: "morning", Start: 4, End: 5, Index: 1},
		},
	}
	require.NoError(t, store.SaveFinal(context.Background(), session, "meeting ended"))

	factory := func(_ *config.Config, meetingID, _ string, _ orchestrator.Sink) registry.Runner {
		return &stubRunner{meeting: meetingID, done: make(chan struct{})}
	}
	reg := registry.New(config.DefaultConfig(), nullBackend{}, nil, factory)
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })
	server := NewServer(config.DefaultAPIConfig(), reg, store, nil)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/archive/meet-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Session  archive.Record       `json:"session"`
		Segments []transcript.Segment `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-old", resp.Session.SessionID)
	assert.Equal(t, "meeting ended", resp.Session.Reason)
	require.Len(t, resp.Segments, 2)
	assert.Equal(t, "good morning everyone", resp.Segments[0].Text)

	rec = doJSON(t, handler, http.MethodGet, "/api/archive/never-seen", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveItemWithoutStore(t *testing.T) {
	server := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/archive/meet-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodDelete, "/api/sessions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
