// Package mock provides test doubles for the recognition package interfaces.
//
// Use Provider to verify that the caller starts engine runs with the
// expected Config, and to hand out scripted Sessions. Use Session to feed
// controlled snapshots and lifecycle signals to the consumer.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	_, _ = driverUnderTest.Start(ctx)
//	sess.SnapshotsCh <- recognition.Snapshot{Text: "hello"}
package mock

import (
	"context"
	"sync"

	"github.com/mzajc/lektor/pkg/provider/recognition"
)

// StartCall records a single invocation of Provider.Start.
type StartCall struct {
	// Ctx is the context passed to Start.
	Ctx context.Context
	// Cfg is the Config passed to Start.
	Cfg recognition.Config
}

// Provider is a mock implementation of recognition.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out in order, one per Start call. When the list
	// is exhausted (or empty), Start returns a fresh default Session.
	Sessions []*Session

	// StartErr, if non-nil, is returned as the error from every Start call.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall
}

// Start records the call and returns the next scripted Session.
func (p *Provider) Start(ctx context.Context, cfg recognition.Config) (recognition.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, StartCall{Ctx: ctx, Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	idx := len(p.StartCalls) - 1
	if idx < len(p.Sessions) {
		return p.Sessions[idx], nil
	}
	return NewSession(), nil
}

// StartCallCount returns the number of Start calls. Thread-safe.
func (p *Provider) StartCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartCalls)
}

// Ensure Provider implements recognition.Provider at compile time.
var _ recognition.Provider = (*Provider)(nil)

// Session is a mock implementation of recognition.Session.
// Tests send to SnapshotsCh and SignalsCh to drive the consumer, and close
// them to end the run.
type Session struct {
	mu sync.Mutex

	// SnapshotsCh is the channel returned by Snapshots(). Tests own this
	// channel and are responsible for sending to and closing it.
	SnapshotsCh chan recognition.Snapshot

	// SignalsCh is the channel returned by Signals(). Tests own this channel.
	SignalsCh chan recognition.Signal

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StopCallCount is the number of times Stop was called.
	StopCallCount int
}

// NewSession returns a Session with buffered snapshot and signal channels.
func NewSession() *Session {
	return &Session{
		SnapshotsCh: make(chan recognition.Snapshot, 16),
		SignalsCh:   make(chan recognition.Signal, 16),
	}
}

// Snapshots returns SnapshotsCh.
func (s *Session) Snapshots() <-chan recognition.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SnapshotsCh
}

// Signals returns SignalsCh.
func (s *Session) Signals() <-chan recognition.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SignalsCh
}

// Stop records the call and returns StopErr.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCallCount++
	return s.StopErr
}

// StopCalls returns the number of Stop calls. Thread-safe.
func (s *Session) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCallCount
}

// End closes both channels, simulating the engine run going away.
func (s *Session) End() {
	close(s.SnapshotsCh)
	close(s.SignalsCh)
}

// Ensure Session implements recognition.Session at compile time.
var _ recognition.Session = (*Session)(nil)
