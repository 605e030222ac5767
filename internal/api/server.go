// Package api exposes the operator-facing HTTP surface: start a capture
// session, stop one, inspect live sessions and the local archive.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/archive"
	"meetscribe/internal/audio"
	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/orchestrator"
	"meetscribe/internal/registry"
)

// Server serves the operator API.
type Server struct {
	cfg     config.APIConfig
	log     *zap.SugaredLogger
	reg     *registry.Registry
	archive *archive.Store
	audio   *audio.Forwarder

	listener net.Listener
	server   *http.Server
}

// NewServer wires the API over a registry, an optional archive, and an
// optional audio forwarder for the capture-host side-channel.
func NewServer(cfg config.APIConfig, reg *registry.Registry, store *archive.Store, forwarder *audio.Forwarder) *Server {
	s := &Server{
		cfg:     cfg,
		log:     logging.Get(logging.CategoryAPI),
		reg:     reg,
		archive: store,
		audio:   forwarder,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionItem)
	mux.HandleFunc("/api/archive", s.handleArchive)
	mux.HandleFunc("/api/archive/", s.handleArchiveItem)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("api server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.log.Infow("api server listening", "address", listener.Addr().String())
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

type startRequest struct {
	MeetingID  string `json:"meeting_id"`
	MeetingURL string `json:"meeting_url"`
}

type stopRequest struct {
	Reason string `json:"reason"`
}

type sessionResponse struct {
	SessionID    string  `json:"session_id"`
	MeetingID    string  `json:"meeting_id"`
	Status       string  `json:"status"`
	SegmentCount int     `json:"segment_count"`
	Duration     float64 `json:"duration"`
	Error        string  `json:"error,omitempty"`
	Transcript   string  `json:"transcript,omitempty"`
}

func toResponse(session orchestrator.Session, withTranscript bool) sessionResponse {
	resp := sessionResponse{
		SessionID:    session.SessionID,
		MeetingID:    session.MeetingID,
		Status:       string(session.Status),
		SegmentCount: session.SegmentCount(),
		Duration:     session.Duration(),
		Error:        session.Error,
	}
	if withTranscript {
		resp.Transcript = session.Transcript()
	}
	return resp
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := s.reg.ListSessions()
		out := make([]sessionResponse, 0, len(sessions))
		for _, session := range sessions {
			out = append(out, toResponse(session, false))
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})

	case http.MethodPost:
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.MeetingID == "" || req.MeetingURL == "" {
			s.writeError(w, http.StatusBadRequest, "meeting_id and meeting_url are required")
			return
		}
		if err := s.validateMeetingURL(req.MeetingURL); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		session, err := s.reg.StartSession(r.Context(), req.MeetingID, req.MeetingURL)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, toResponse(session, false))

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	meetingID, action, _ := strings.Cut(rest, "/")
	if meetingID == "" {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		session, err := s.reg.GetSession(meetingID)
		if err != nil {
			if errors.Is(err, registry.ErrSessionNotFound) {
				s.writeError(w, http.StatusNotFound, "session not found")
				return
			}
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, toResponse(session, false))

	case action == "stop" && r.Method == http.MethodPost:
		var req stopRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		session, err := s.reg.StopSession(r.Context(), meetingID, req.Reason)
		if err != nil {
			if errors.Is(err, registry.ErrSessionNotFound) {
				s.writeError(w, http.StatusNotFound, "session not found")
				return
			}
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// The stop response carries the transcript so one call is enough
		// for operator tooling.
		s.writeJSON(w, http.StatusOK, toResponse(session, true))

	case action == "audio" && r.Method == http.MethodPost:
		s.handleAudioChunk(w, r, meetingID)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type audioChunkRequest struct {
	Seq             int       `json:"seq"`
	CapturedAt      time.Time `json:"captured_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Data            []byte    `json:"data"`
}

// handleAudioChunk ingests one encoded audio chunk from the capture
// host and queues it for forwarding. Accepted means queued, not
// delivered: the audio side-channel is best-effort.
func (s *Server) handleAudioChunk(w http.ResponseWriter, r *http.Request, meetingID string) {
	if s.audio == nil {
		s.writeError(w, http.StatusNotImplemented, "audio forwarding is not enabled")
		return
	}
	if _, err := s.reg.GetSession(meetingID); err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var req audioChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Data) == 0 {
		s.writeError(w, http.StatusBadRequest, "data is required")
		return
	}
	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	s.audio.Enqueue(audio.Chunk{
		MeetingID:       meetingID,
		Seq:             req.Seq,
		CapturedAt:      capturedAt,
		DurationSeconds: req.DurationSeconds,
		Data:            req.Data,
	})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.archive == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"sessions": []archive.Record{}})
		return
	}
	records, err := s.archive.Recent(r.Context(), 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// handleArchiveItem returns the newest archived session for one meeting,
// with its stored segments.
func (s *Server) handleArchiveItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	meetingID := strings.TrimPrefix(r.URL.Path, "/api/archive/")
	if meetingID == "" || strings.Contains(meetingID, "/") {
		s.writeError(w, http.StatusNotFound, "meeting not archived")
		return
	}
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, "meeting not archived")
		return
	}

	record, err := s.archive.LatestFor(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, archive.ErrNotArchived) {
			s.writeError(w, http.StatusNotFound, "meeting not archived")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	segments, err := s.archive.SegmentsFor(r.Context(), record.SessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":  record,
		"segments": segments,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateMeetingURL rejects join requests for anything but the
// supported provider hosts.
func (s *Server) validateMeetingURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("meeting_url is not a valid URL")
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("meeting_url must use https")
	}
	host := parsed.Hostname()
	for _, allowed := range s.cfg.AllowedMeetingHosts {
		if strings.EqualFold(host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("meeting host %q is not a supported provider", host)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warnw("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
