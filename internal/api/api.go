// Package api exposes the visualiser state over HTTP for browser and
// overlay renderers.
//
// Routes:
//
//   - GET /api/bars: the latest [viz.Snapshot] as JSON.
//   - GET /api/bars/stream: a websocket pushing each new snapshot, at most
//     once per frame interval.
//   - GET /api/transcript: transcript segments ordered by first-seen time.
//   - GET /api/agents: published agent states keyed by participant.
//   - GET /api/status: session and pipeline status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxbars/internal/agentstate"
	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/internal/transcript"
	"github.com/MrWong99/voxbars/pkg/viz"
)

// defaultFrameInterval is the stream cadence when none is configured.
const defaultFrameInterval = time.Second / 30

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// StateSource supplies the current bar state. The pipeline replaces its
// state when the bar count changes, so the state is looked up per request.
type StateSource interface {
	State() *viz.State
}

// Bars is the JSON body of /api/bars and of each stream message.
type Bars struct {
	viz.Snapshot
	MinAmplitude float32 `json:"min_amplitude"`
}

// Transcript is the JSON body of /api/transcript.
type Transcript struct {
	Version  uint64               `json:"version"`
	Segments []transcript.Segment `json:"segments"`
}

// Config holds the dependencies of a [Server]. Nil sources disable their
// routes with 404.
type Config struct {
	State      StateSource
	Transcript *transcript.Store
	Agents     *agentstate.Tracker

	// Status returns a JSON-serialisable description of the session.
	Status func() any

	// FrameInterval returns the stream cadence. It is read on every tick
	// so configuration reloads take effect on open streams.
	FrameInterval func() time.Duration
}

// Server serves the visualiser API.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/bars", s.handleBars)
	mux.HandleFunc("GET /api/bars/stream", s.handleStream)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/status", s.handleStatus)
}

func (s *Server) bars() (Bars, bool) {
	if s.cfg.State == nil {
		return Bars{}, false
	}
	st := s.cfg.State.State()
	if st == nil {
		return Bars{}, false
	}
	return Bars{Snapshot: st.Snapshot(), MinAmplitude: st.MinAmplitude()}, true
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bars()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleStream upgrades to a websocket and pushes a snapshot whenever its
// version moves. Messages from the client are discarded.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.State == nil {
		http.NotFound(w, r)
		return
	}
	log := observe.Logger(r.Context())
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("api: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	err = s.stream(ctx, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1:
		// Client went away.
	default:
		log.Debug("api: stream ended", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "stream failed")
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn) error {
	var last uint64
	sent := false
	for {
		if b, ok := s.bars(); ok && (!sent || b.Version != last) {
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, b)
			cancel()
			if err != nil {
				return err
			}
			last, sent = b.Version, true
		}

		t := time.NewTimer(s.frameInterval())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Server) frameInterval() time.Duration {
	if s.cfg.FrameInterval != nil {
		if d := s.cfg.FrameInterval(); d > 0 {
			return d
		}
	}
	return defaultFrameInterval
}

// handleTranscript returns the ordered transcript. With ?since=N it
// returns 304 when the store has not changed past version N.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Transcript == nil {
		http.NotFound(w, r)
		return
	}
	version := s.cfg.Transcript.Version()
	if q := r.URL.Query().Get("since"); q != "" {
		since, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			http.Error(w, "since must be an unsigned integer", http.StatusBadRequest)
			return
		}
		if since >= version {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	segs := s.cfg.Transcript.Ordered()
	if segs == nil {
		segs = []transcript.Segment{}
	}
	writeJSON(w, http.StatusOK, Transcript{Version: version, Segments: segs})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Agents == nil {
		http.NotFound(w, r)
		return
	}
	agents := s.cfg.Agents.All()
	if agents == nil {
		agents = map[string]agentstate.State{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: failed to write response", "err", err)
	}
}
