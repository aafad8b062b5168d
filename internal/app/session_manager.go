package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxbars/internal/agentstate"
	"github.com/MrWong99/voxbars/internal/config"
	"github.com/MrWong99/voxbars/internal/discord"
	"github.com/MrWong99/voxbars/internal/discord/commands"
	"github.com/MrWong99/voxbars/internal/discord/voicecmd"
	"github.com/MrWong99/voxbars/internal/observe"
	"github.com/MrWong99/voxbars/internal/pipeline"
	"github.com/MrWong99/voxbars/internal/session"
	"github.com/MrWong99/voxbars/internal/transcript"
	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/MrWong99/voxbars/pkg/provider/stt"
)

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("app: a session is already active")

	// ErrNoSession is returned by operations that need a running session.
	ErrNoSession = errors.New("app: no active session")
)

// voiceCommandTimeout bounds the action triggered by one spoken command.
const voiceCommandTimeout = 30 * time.Second

// keywordBoost is the recognition boost applied to configured keywords.
const keywordBoost = 2.0

// Compile-time interface assertions.
var (
	_ commands.Controller = (*SessionManager)(nil)
	_ voicecmd.Actions    = (*SessionManager)(nil)
)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// ChannelID is the voice channel the session is connected to.
	ChannelID string

	// StartedBy is the Discord user ID that started the session. Empty when
	// the session was started from configuration.
	StartedBy string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager owns the voice connection and decides which participant's
// track drives the bars. Only one session can be active at a time.
//
// Every input stream of the connection is wrapped in an [audio.StreamTrack]
// so that the visualiser and the transcriber can share the followed
// participant's audio while the other streams are pumped without sinks.
//
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu        sync.Mutex
	active    bool
	info      SessionInfo
	rc        *session.Reconnector
	conn      audio.Connection
	ctx       context.Context
	cancel    context.CancelFunc
	tracks    map[string]*audio.StreamTrack
	detectors map[string]*speakerDetector
	want      string // participant to follow; "" follows the first speaker
	stt       *sttRun
	lastErr   error

	// Settings changed at runtime.
	participant string
	keywords    []string

	// Dependencies injected at construction.
	platform      audio.Platform
	pipeline      *pipeline.Pipeline
	transcript    *transcript.Store
	corrector     *transcript.Corrector
	sttProvider   stt.Provider
	language      string
	agents        *agentstate.Tracker
	commands      *voicecmd.Filter
	operator      string
	metrics       *observe.Metrics
	reconnectTmpl session.ReconnectorConfig
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Platform dials voice channels. Required.
	Platform audio.Platform

	// Pipeline turns the followed track into bars. Required.
	Pipeline *pipeline.Pipeline

	// Transcript receives the followed participant's segments. Required when
	// STT is set.
	Transcript *transcript.Store

	// Corrector fixes misheard keywords in final segments. Optional.
	Corrector *transcript.Corrector

	// STT transcribes the followed participant. Nil disables transcription.
	STT stt.Provider

	// Language is the recognition language passed to STT.
	Language string

	// Keywords are boosted at recognition time.
	Keywords []string

	// Agents tracks published agent states. Optional.
	Agents *agentstate.Tracker

	// Commands is the spoken command filter. Optional.
	Commands *voicecmd.Filter

	// Operator is the configured voice command operator. When empty the user
	// that starts a session becomes the operator.
	Operator string

	// Participant is followed by sessions started without an explicit
	// target. Empty follows the first speaker.
	Participant string

	// Metrics records participant counts. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Reconnect tunes the redial loop. Platform, ChannelID and the callbacks
	// are filled in per session.
	Reconnect session.ReconnectorConfig
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		participant:   cfg.Participant,
		keywords:      slices.Clone(cfg.Keywords),
		platform:      cfg.Platform,
		pipeline:      cfg.Pipeline,
		transcript:    cfg.Transcript,
		corrector:     cfg.Corrector,
		sttProvider:   cfg.STT,
		language:      cfg.Language,
		agents:        cfg.Agents,
		commands:      cfg.Commands,
		operator:      cfg.Operator,
		metrics:       cfg.Metrics,
		reconnectTmpl: cfg.Reconnect,
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	return sm
}

// Start joins channelID and follows the configured participant, or the
// first speaker when none is configured.
//
// Returns [ErrSessionActive] if a session is already running.
func (sm *SessionManager) Start(ctx context.Context, channelID, startedBy string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}
	return sm.startLocked(ctx, channelID, startedBy, sm.participant)
}

// Follow implements [commands.Controller]. It moves the session to
// channelID when it is elsewhere, then follows userID.
func (sm *SessionManager) Follow(ctx context.Context, channelID, userID, requestedBy string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active && sm.info.ChannelID == channelID {
		sm.followLocked(userID)
		return nil
	}
	if sm.active {
		slog.Info("session: moving to another channel", "from", sm.info.ChannelID, "to", channelID)
		sm.stopLocked()
	}
	return sm.startLocked(ctx, channelID, requestedBy, userID)
}

// FollowParticipant implements [voicecmd.Actions]. An empty userID waits for
// the next participant to speak.
func (sm *SessionManager) FollowParticipant(_ context.Context, userID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return ErrNoSession
	}
	sm.followLocked(userID)
	return nil
}

// SetParticipant changes the default participant. A running session
// follows the new participant immediately.
func (sm *SessionManager) SetParticipant(userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.participant = userID
	if sm.active {
		sm.followLocked(userID)
	}
}

// SetMode implements [voicecmd.Actions].
func (sm *SessionManager) SetMode(_ context.Context, mode config.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("app: unknown visualiser mode %q", mode)
	}
	cfg := sm.pipeline.Config()
	cfg.Mode = mode
	sm.Reconfigure(cfg)
	return nil
}

// Reconfigure applies cfg to the pipeline and re-attaches the followed
// track so the change is visible at once.
func (sm *SessionManager) Reconfigure(cfg config.VisualizerConfig) {
	sm.pipeline.Reconfigure(cfg)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	id := sm.pipeline.Attached()
	t, ok := sm.tracks[id]
	if !sm.active || id == "" || !ok {
		return
	}
	if err := sm.pipeline.Attach(sm.ctx, id, t); err != nil {
		sm.lastErr = err
		slog.Error("session: re-attach after reconfigure failed", "participant", id, "err", err)
	}
}

// SetKeywords replaces the recognition keywords. The running transcription
// session picks them up when its backend supports it, otherwise the next
// session does.
func (sm *SessionManager) SetKeywords(keywords []string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.keywords = slices.Clone(keywords)
	if sm.corrector != nil {
		sm.corrector.SetKeywords(keywords)
	}
	if sm.stt == nil {
		return
	}
	err := sm.stt.sess.SetKeywords(keywordBoosts(keywords))
	switch {
	case errors.Is(err, stt.ErrNotSupported):
		slog.Info("session: keywords apply from the next transcription session")
	case err != nil:
		slog.Warn("session: update keywords failed", "err", err)
	}
}

// Stop implements [commands.Controller] and [voicecmd.Actions]. It detaches
// the visualiser and leaves the voice channel.
//
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(_ context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return ErrNoSession
	}
	sm.stopLocked()
	return nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Status implements [commands.Controller].
func (sm *SessionManager) Status() discord.Status {
	sm.mu.Lock()
	st := discord.Status{
		Active:      sm.active,
		SessionID:   sm.info.SessionID,
		ChannelID:   sm.info.ChannelID,
		StartedAt:   sm.info.StartedAt,
		Participant: sm.want,
	}
	lastErr := sm.lastErr
	sm.mu.Unlock()

	if id := sm.pipeline.Attached(); id != "" {
		st.Participant = id
	}
	st.Mode = string(sm.pipeline.Config().Mode)

	state := sm.pipeline.State()
	st.Bars = state.Snapshot().Bars
	st.MinAmplitude = state.MinAmplitude()

	if err := sm.pipeline.Err(); err != nil {
		st.Err = err.Error()
	} else if lastErr != nil {
		st.Err = lastErr.Error()
	}

	if sm.agents != nil {
		all := sm.agents.All()
		st.Agents = make(map[string]string, len(all))
		for id, s := range all {
			st.Agents[id] = s.String()
		}
	}
	if sm.transcript != nil {
		st.Segments = sm.transcript.Len()
	}
	return st
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func (sm *SessionManager) startLocked(ctx context.Context, channelID, startedBy, want string) error {
	rcfg := sm.reconnectTmpl
	rcfg.Platform = sm.platform
	rcfg.ChannelID = channelID
	var rc *session.Reconnector
	rcfg.OnReconnect = func(conn audio.Connection) { sm.adopt(rc, conn) }
	rcfg.OnGiveUp = func(err error) { sm.giveUp(rc, err) }
	rc = session.NewReconnector(rcfg)

	conn, err := rc.Connect(ctx)
	if err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	now := time.Now().UTC()
	sessCtx, cancel := context.WithCancel(context.Background())

	sm.active = true
	sm.rc = rc
	sm.ctx = sessCtx
	sm.cancel = cancel
	sm.tracks = make(map[string]*audio.StreamTrack)
	sm.detectors = make(map[string]*speakerDetector)
	sm.want = want
	sm.lastErr = nil
	sm.info = SessionInfo{
		SessionID: fmt.Sprintf("session-%s-%s", channelID, now.Format("20060102T1504Z")),
		ChannelID: channelID,
		StartedBy: startedBy,
		StartedAt: now,
	}

	sm.adoptLocked(conn)
	rc.Monitor(sessCtx)

	if sm.commands != nil && sm.operator == "" {
		sm.commands.SetOperator(startedBy)
	}

	slog.Info("session: started",
		"session_id", sm.info.SessionID,
		"channel_id", channelID,
		"started_by", startedBy,
		"participant", want,
	)
	return nil
}

func (sm *SessionManager) stopLocked() {
	sessionID := sm.info.SessionID
	started := sm.info.StartedAt

	sm.detachLocked()
	sm.dropTracksLocked()

	if err := sm.rc.Stop(); err != nil {
		slog.Warn("session: voice disconnect error", "session_id", sessionID, "err", err)
	}
	sm.cancel()

	sm.active = false
	sm.rc = nil
	sm.conn = nil
	sm.ctx = nil
	sm.cancel = nil
	sm.tracks = nil
	sm.detectors = nil
	sm.want = ""
	sm.info = SessionInfo{}

	slog.Info("session: stopped", "session_id", sessionID, "duration", time.Since(started).Round(time.Second))
}

// adopt installs a connection redialled by rc.
func (sm *SessionManager) adopt(rc *session.Reconnector, conn audio.Connection) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active || sm.rc != rc {
		_ = conn.Disconnect()
		return
	}
	slog.Info("session: voice connection restored",
		"session_id", sm.info.SessionID,
		"channel_id", rc.ChannelID(),
		"attempts", rc.Attempts(),
	)
	sm.lastErr = nil
	sm.adoptLocked(conn)
}

// giveUp ends the session once rc has exhausted its redials.
func (sm *SessionManager) giveUp(rc *session.Reconnector, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active || sm.rc != rc {
		return
	}
	slog.Error("session: voice connection lost",
		"session_id", sm.info.SessionID,
		"channel_id", rc.ChannelID(),
		"err", err,
	)
	sm.stopLocked()
	sm.lastErr = err
}

func (sm *SessionManager) adoptLocked(conn audio.Connection) {
	sm.conn = conn
	conn.OnParticipantChange(func(ev audio.Event) { sm.handleEvent(conn, ev) })
	sm.syncTracksLocked()
	sm.selectLocked()
}

func (sm *SessionManager) handleEvent(conn audio.Connection, ev audio.Event) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active || sm.conn != conn {
		return
	}
	if sm.agents != nil {
		sm.agents.Handle(ev)
	}

	switch ev.Type {
	case audio.EventJoin:
		sm.syncTracksLocked()
		sm.selectLocked()
	case audio.EventLeave:
		if _, ok := sm.tracks[ev.UserID]; !ok {
			return
		}
		if sm.pipeline.Attached() == ev.UserID {
			sm.detachLocked()
		}
		if p, ok := sm.detectors[ev.UserID]; ok {
			sm.tracks[ev.UserID].RemoveSink(p)
			delete(sm.detectors, ev.UserID)
		}
		delete(sm.tracks, ev.UserID)
		sm.metrics.ActiveParticipants.Add(sm.ctx, -1)
		slog.Info("session: participant left", "participant", ev.UserID)
		sm.selectLocked()
	case audio.EventDisconnect:
		slog.Warn("session: voice connection dropped, redialling", "channel_id", sm.info.ChannelID)
		sm.detachLocked()
		sm.dropTracksLocked()
		sm.conn = nil
		sm.rc.NotifyDisconnect()
	}
}

// syncTracksLocked wraps every new input stream of the connection in a
// track. Streams whose previous track has ended are replaced.
func (sm *SessionManager) syncTracksLocked() {
	streams := sm.conn.InputStreams()
	for _, id := range slices.Sorted(maps.Keys(streams)) {
		if t, ok := sm.tracks[id]; ok && !ended(t) {
			continue
		}
		ch := streams[id]
		if _, ok := sm.tracks[id]; !ok {
			sm.metrics.ActiveParticipants.Add(sm.ctx, 1)
		}
		sm.tracks[id] = audio.NewStreamTrack(id, ch)
		delete(sm.detectors, id)
		slog.Debug("session: participant stream opened", "participant", id)
	}
}

func (sm *SessionManager) dropTracksLocked() {
	sm.disarmDetectorsLocked()
	if n := len(sm.tracks); n > 0 {
		sm.metrics.ActiveParticipants.Add(sm.ctx, -int64(n))
	}
	clear(sm.tracks)
}

// ─── Following ──────────────────────────────────────────────────────────────

func (sm *SessionManager) followLocked(userID string) {
	sm.want = userID
	if userID == "" && sm.pipeline.Attached() != "" {
		sm.detachLocked()
	}
	sm.selectLocked()
}

// selectLocked attaches the wanted participant once its stream exists. With
// no wanted participant it watches every stream for the first speaker.
func (sm *SessionManager) selectLocked() {
	attached := sm.pipeline.Attached()
	if sm.want == "" {
		if attached == "" {
			sm.armDetectorsLocked()
		}
		return
	}
	if attached == sm.want {
		return
	}
	if attached != "" {
		sm.detachLocked()
	}
	if t, ok := sm.tracks[sm.want]; ok {
		sm.attachLocked(sm.want, t)
	}
}

// claim follows id after its detector heard speech.
func (sm *SessionManager) claim(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active || sm.want != "" || sm.pipeline.Attached() != "" {
		return
	}
	t, ok := sm.tracks[id]
	if !ok {
		return
	}
	slog.Info("session: first speaker found", "participant", id)
	sm.attachLocked(id, t)
}

func (sm *SessionManager) attachLocked(id string, t *audio.StreamTrack) {
	sm.disarmDetectorsLocked()

	// The span rides on the session context so the transcription stream
	// started below is recorded as its child.
	_, span := observe.StartSpan(sm.ctx, observe.SpanAttach, trace.WithAttributes(
		attribute.String("session_id", sm.info.SessionID),
		attribute.String("participant", id),
	))
	ctx := trace.ContextWithSpan(sm.ctx, span)
	log := observe.Logger(ctx)

	if err := sm.pipeline.Attach(sm.ctx, id, t); err != nil {
		sm.lastErr = err
		log.Error("session: attach failed", "participant", id, "err", err)
		observe.EndSpan(span, err)
		return
	}
	sm.lastErr = nil
	sm.startSTTLocked(ctx, id, t)
	log.Info("session: following participant", "session_id", sm.info.SessionID, "participant", id)
	observe.EndSpan(span, nil)
}

func (sm *SessionManager) detachLocked() {
	sm.stopSTTLocked()
	if err := sm.pipeline.Detach(); err != nil && !errors.Is(err, pipeline.ErrNotAttached) {
		slog.Warn("session: detach failed", "err", err)
	}
}

func (sm *SessionManager) armDetectorsLocked() {
	for id, t := range sm.tracks {
		if _, ok := sm.detectors[id]; ok {
			continue
		}
		p := &speakerDetector{id: id, fire: sm.claim}
		t.AddSink(p)
		sm.detectors[id] = p
	}
}

func (sm *SessionManager) disarmDetectorsLocked() {
	for id, p := range sm.detectors {
		if t, ok := sm.tracks[id]; ok {
			t.RemoveSink(p)
		}
	}
	clear(sm.detectors)
}

// ─── Transcription ──────────────────────────────────────────────────────────

type sttRun struct {
	track  audio.Track
	feed   *sttFeed
	sess   stt.SessionHandle
	cancel context.CancelFunc
	done   chan struct{}
}

// startSTTLocked opens a transcription stream for t. ctx must live as long
// as the session.
func (sm *SessionManager) startSTTLocked(ctx context.Context, id string, t audio.Track) {
	if sm.sttProvider == nil || sm.transcript == nil {
		return
	}
	ctx, span := observe.StartSpan(ctx, observe.SpanSTTStart, trace.WithAttributes(
		attribute.String("participant", id),
		attribute.String("language", sm.language),
		attribute.Int("keywords", len(sm.keywords)),
	))
	sess, err := sm.sttProvider.StartStream(ctx, stt.StreamConfig{
		SampleRate: sttSampleRate,
		Channels:   1,
		Language:   sm.language,
		Keywords:   keywordBoosts(sm.keywords),
	})
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Warn("session: transcription unavailable", "participant", id, "err", err)
		return
	}

	opts := []transcript.RecorderOption{
		transcript.WithMetrics(sm.metrics),
		transcript.WithOnFinal(sm.onFinal),
	}
	if sm.corrector != nil {
		opts = append(opts, transcript.WithCorrector(sm.corrector))
	}
	rec := transcript.NewRecorder(sm.transcript, id, opts...)

	rctx, cancel := context.WithCancel(sm.ctx)
	run := &sttRun{
		track:  t,
		feed:   newSTTFeed(sess, sttSampleRate),
		sess:   sess,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(run.done)
		if err := rec.Run(rctx, sess); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("session: transcript recorder stopped", "participant", id, "err", err)
		}
	}()
	t.AddSink(run.feed)
	sm.stt = run
}

func (sm *SessionManager) stopSTTLocked() {
	run := sm.stt
	if run == nil {
		return
	}
	sm.stt = nil

	run.track.RemoveSink(run.feed)
	run.feed.Close()
	if err := run.sess.Close(); err != nil {
		slog.Warn("session: close transcription session", "err", err)
	}
	run.cancel()
	<-run.done
}

// onFinal hands a closed segment to the voice command filter. The action
// runs on its own goroutine since it may stop the recorder that called it.
func (sm *SessionManager) onFinal(_ context.Context, seg transcript.Segment) {
	if sm.commands == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), voiceCommandTimeout)
		defer cancel()
		if _, err := sm.commands.Check(ctx, seg.Speaker, seg.Text, sm); err != nil {
			slog.Warn("session: voice command failed", "speaker", seg.Speaker, "err", err)
		}
	}()
}

func keywordBoosts(keywords []string) []stt.KeywordBoost {
	if len(keywords) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, len(keywords))
	for i, k := range keywords {
		out[i] = stt.KeywordBoost{Keyword: k, Boost: keywordBoost}
	}
	return out
}

func ended(t *audio.StreamTrack) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}
