// Package wsbridge adapts a browser WebSocket connection into the provider
// interfaces the lecture session consumes.
//
// The browser owns the actual speech machinery: it runs the recognition
// engine against the local microphone, shows the permission prompt, and
// plays synthesized audio. The bridge turns that remote machinery into
// [recognition.Provider] and [permission.Source] implementations, and into
// an audio sink for synthesis, all multiplexed over one connection.
//
// Outbound control frames (engine.start, engine.stop, permission.request)
// are JSON text messages; synthesized audio travels as binary frames. The
// connection's read loop lives in the server, which routes engine and
// permission replies back into the bridge via the Handle methods.
//
// The client keeps the session's accumulated transcript and sends it whole
// in every result frame. Browser engines reset their buffer per run, so
// this client-side accumulation is what makes the server's transparent
// restarts lossless (see [recognition.Snapshot]).
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mzajc/lektor/pkg/provider/permission"
	"github.com/mzajc/lektor/pkg/provider/recognition"
)

// Compile-time assertions that the bridge satisfies the provider contracts.
var (
	_ recognition.Provider = (*Bridge)(nil)
	_ permission.Source    = (*Bridge)(nil)
	_ recognition.Session  = (*Session)(nil)
)

// stopTimeout bounds the engine.stop frame write when the caller has no
// context of its own.
const stopTimeout = 5 * time.Second

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type engineStartMessage struct {
	Type           string `json:"type"` // "engine.start"
	Locale         string `json:"locale,omitempty"`
	InterimResults bool   `json:"interim_results"`
}

type engineStopMessage struct {
	Type string `json:"type"` // "engine.stop"
}

type permissionRequestMessage struct {
	Type string `json:"type"` // "permission.request"
}

// ── Bridge ────────────────────────────────────────────────────────────────────

// Bridge multiplexes one browser connection into the provider interfaces.
// All methods are safe for concurrent use.
type Bridge struct {
	conn *websocket.Conn

	// writeMu serialises frames; websocket.Conn allows only one concurrent
	// writer.
	writeMu sync.Mutex

	mu     sync.Mutex
	sess   *Session
	permCh chan bool
	closed bool
}

// New wraps an accepted WebSocket connection.
func New(conn *websocket.Conn) *Bridge {
	return &Bridge{conn: conn}
}

// Send marshals v and writes it as a text frame.
func (b *Bridge) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsbridge: marshal: %w", err)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.Write(ctx, websocket.MessageText, data)
}

// SendAudio writes synthesized audio as a binary frame. It satisfies the
// synthesis sink contract: the browser plays each frame as it arrives.
func (b *Bridge) SendAudio(ctx context.Context, data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.Write(ctx, websocket.MessageBinary, data)
}

// Start implements [recognition.Provider]: it asks the browser to start a
// recognition engine run and returns the session that will carry its
// snapshots and signals. Only one run may be active per connection.
func (b *Bridge) Start(ctx context.Context, cfg recognition.Config) (recognition.Session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("wsbridge: connection closed")
	}
	if b.sess != nil {
		b.mu.Unlock()
		return nil, errors.New("wsbridge: engine run already active")
	}
	sess := newSession(b)
	b.sess = sess
	b.mu.Unlock()

	if err := b.Send(ctx, engineStartMessage{
		Type:           "engine.start",
		Locale:         cfg.Locale,
		InterimResults: cfg.InterimResults,
	}); err != nil {
		b.detach(sess)
		return nil, fmt.Errorf("wsbridge: engine start: %w", err)
	}
	return sess, nil
}

// Request implements [permission.Source]: it shows the browser's microphone
// prompt and blocks until the user answers or ctx is cancelled.
func (b *Bridge) Request(ctx context.Context) (bool, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false, errors.New("wsbridge: connection closed")
	}
	if b.permCh != nil {
		b.mu.Unlock()
		return false, errors.New("wsbridge: permission prompt already pending")
	}
	ch := make(chan bool, 1)
	b.permCh = ch
	b.mu.Unlock()

	if err := b.Send(ctx, permissionRequestMessage{Type: "permission.request"}); err != nil {
		b.clearPermission(ch)
		return false, fmt.Errorf("wsbridge: permission request: %w", err)
	}

	select {
	case granted := <-ch:
		return granted, nil
	case <-ctx.Done():
		b.clearPermission(ch)
		return false, ctx.Err()
	}
}

// HandleResult routes a transcript snapshot from the browser into the
// active engine run. text is the client's accumulated session transcript,
// never a per-run fragment. Snapshots arriving with no active run are
// discarded.
func (b *Bridge) HandleResult(text string) {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	if sess != nil {
		sess.deliverSnapshot(text)
	}
}

// HandleEnded routes the browser's benign end-of-run signal. The run is
// detached first so a restart can begin a fresh one immediately.
func (b *Bridge) HandleEnded() {
	b.mu.Lock()
	sess := b.sess
	b.sess = nil
	b.mu.Unlock()
	if sess != nil {
		sess.finish(recognition.Signal{Kind: recognition.SignalEnded})
	}
}

// HandleEngineError routes a fatal engine error with its kind.
func (b *Bridge) HandleEngineError(kind string) {
	b.mu.Lock()
	sess := b.sess
	b.sess = nil
	b.mu.Unlock()
	if sess != nil {
		sess.finish(recognition.Signal{Kind: recognition.SignalFailed, ErrorKind: kind})
	}
}

// HandlePermission routes the user's answer to a pending permission prompt.
// Answers with no pending prompt are discarded.
func (b *Bridge) HandlePermission(granted bool) {
	b.mu.Lock()
	ch := b.permCh
	b.permCh = nil
	b.mu.Unlock()
	if ch != nil {
		ch <- granted
	}
}

// Close releases the bridge when the connection goes away: the active run
// ends as if the engine had failed, and later Start/Request calls are
// refused. It does not close the underlying connection; the server owns it.
func (b *Bridge) Close() {
	b.mu.Lock()
	sess := b.sess
	b.sess = nil
	ch := b.permCh
	b.permCh = nil
	b.closed = true
	b.mu.Unlock()

	if sess != nil {
		sess.finish(recognition.Signal{Kind: recognition.SignalFailed, ErrorKind: "connection-lost"})
	}
	if ch != nil {
		ch <- false
	}
}

// detach removes sess from the bridge if it is still the active run.
func (b *Bridge) detach(sess *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess == sess {
		b.sess = nil
	}
}

// clearPermission removes ch from the bridge if it is still pending. A
// concurrent HandlePermission may already have answered and replaced it.
func (b *Bridge) clearPermission(ch chan bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.permCh == ch {
		b.permCh = nil
	}
}

// ── Session ───────────────────────────────────────────────────────────────────

// Session is one engine run relayed from the browser.
type Session struct {
	bridge    *Bridge
	snapshots chan recognition.Snapshot
	signals   chan recognition.Signal

	mu   sync.Mutex
	done bool
}

func newSession(b *Bridge) *Session {
	return &Session{
		bridge:    b,
		snapshots: make(chan recognition.Snapshot, 16),
		signals:   make(chan recognition.Signal, 1),
	}
}

// Snapshots implements [recognition.Session].
func (s *Session) Snapshots() <-chan recognition.Snapshot {
	return s.snapshots
}

// Signals implements [recognition.Session].
func (s *Session) Signals() <-chan recognition.Signal {
	return s.signals
}

// Stop implements [recognition.Session]: it tells the browser to stop the
// engine and ends the run locally without emitting a signal, so the
// consumer never mistakes a user stop for a benign engine end.
func (s *Session) Stop() error {
	s.bridge.detach(s)

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	s.mu.Unlock()
	close(s.snapshots)
	close(s.signals)

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.bridge.Send(ctx, engineStopMessage{Type: "engine.stop"}); err != nil {
		return fmt.Errorf("wsbridge: engine stop: %w", err)
	}
	return nil
}

// deliverSnapshot forwards a snapshot without ever blocking the caller: the
// connection read loop must not wedge behind a stalled consumer, so excess
// snapshots are dropped (a later one supersedes them anyway).
func (s *Session) deliverSnapshot(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.snapshots <- recognition.Snapshot{Text: text}:
	default:
	}
}

// finish emits the terminating signal and closes the run's channels.
func (s *Session) finish(sig recognition.Signal) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.signals <- sig
	s.mu.Unlock()
	close(s.snapshots)
	close(s.signals)
}
