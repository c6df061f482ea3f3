package lecture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	permmock "github.com/mzajc/lektor/pkg/provider/permission/mock"
	"github.com/mzajc/lektor/pkg/provider/recognition"
	recmock "github.com/mzajc/lektor/pkg/provider/recognition/mock"
)

// eventually polls cond until it holds or the deadline expires.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// snapshotRecorder collects OnSnapshot texts thread-safely.
type snapshotRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *snapshotRecorder) record(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *snapshotRecorder) last() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return "", false
	}
	return r.texts[len(r.texts)-1], true
}

func TestDriver_Start(t *testing.T) {
	t.Run("permission denied", func(t *testing.T) {
		provider := &recmock.Provider{}
		d, err := NewDriver(DriverConfig{
			Provider:   provider,
			Permission: &permmock.Source{Granted: false},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := d.Start(context.Background()); !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
		if d.State() != StateIdle {
			t.Errorf("expected StateIdle, got %v", d.State())
		}
		if provider.StartCallCount() != 0 {
			t.Errorf("expected no engine start, got %d", provider.StartCallCount())
		}
	})

	t.Run("forwards snapshots while listening", func(t *testing.T) {
		sess := recmock.NewSession()
		provider := &recmock.Provider{Sessions: []*recmock.Session{sess}}
		rec := &snapshotRecorder{}

		d, err := NewDriver(DriverConfig{
			Provider:   provider,
			Permission: &permmock.Source{Granted: true},
			OnSnapshot: rec.record,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.State() != StateListening {
			t.Fatalf("expected StateListening, got %v", d.State())
		}

		sess.SnapshotsCh <- recognition.Snapshot{Text: "hello"}
		sess.SnapshotsCh <- recognition.Snapshot{Text: "hello world"}

		eventually(t, func() bool {
			last, ok := rec.last()
			return ok && last == "hello world"
		}, "expected both snapshots to be forwarded")

		if err := d.Stop(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("start while listening", func(t *testing.T) {
		d, err := NewDriver(DriverConfig{
			Provider:   &recmock.Provider{},
			Permission: &permmock.Source{Granted: true},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := d.Start(context.Background()); !errors.Is(err, ErrAlreadyListening) {
			t.Errorf("expected ErrAlreadyListening, got %v", err)
		}
		_ = d.Stop()
	})

	t.Run("missing config", func(t *testing.T) {
		if _, err := NewDriver(DriverConfig{}); err == nil {
			t.Fatal("expected error for empty config")
		}
	})
}

func TestDriver_RestartsAfterBenignEnd(t *testing.T) {
	sess1 := recmock.NewSession()
	sess2 := recmock.NewSession()
	provider := &recmock.Provider{Sessions: []*recmock.Session{sess1, sess2}}
	rec := &snapshotRecorder{}

	d, err := NewDriver(DriverConfig{
		Provider:   provider,
		Permission: &permmock.Source{Granted: true},
		OnSnapshot: rec.record,
		OnStopped: func(err error) {
			t.Errorf("unexpected OnStopped: %v", err)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Engine ends on its own; the driver must restart transparently and
	// keep consuming from the fresh run.
	sess1.SignalsCh <- recognition.Signal{Kind: recognition.SignalEnded}

	eventually(t, func() bool { return provider.StartCallCount() == 2 },
		"expected a second engine run")
	if d.State() != StateListening {
		t.Fatalf("expected StateListening across restart, got %v", d.State())
	}

	sess2.SnapshotsCh <- recognition.Snapshot{Text: "still going"}
	eventually(t, func() bool {
		last, ok := rec.last()
		return ok && last == "still going"
	}, "expected snapshots from the restarted run")

	// Repeated benign ends keep restarting.
	sess2.SignalsCh <- recognition.Signal{Kind: recognition.SignalEnded}
	eventually(t, func() bool { return provider.StartCallCount() == 3 },
		"expected a third engine run")
	if d.State() != StateListening {
		t.Errorf("expected StateListening, got %v", d.State())
	}

	_ = d.Stop()
}

func TestDriver_RestartLosesNoText(t *testing.T) {
	sess1 := recmock.NewSession()
	sess2 := recmock.NewSession()
	provider := &recmock.Provider{Sessions: []*recmock.Session{sess1, sess2}}
	rec := &snapshotRecorder{}

	d, err := NewDriver(DriverConfig{
		Provider:   provider,
		Permission: &permmock.Source{Granted: true},
		OnSnapshot: rec.record,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess1.SnapshotsCh <- recognition.Snapshot{Text: "danes bomo"}
	eventually(t, func() bool {
		last, ok := rec.last()
		return ok && last == "danes bomo"
	}, "expected the first run's snapshot")

	sess1.SignalsCh <- recognition.Signal{Kind: recognition.SignalEnded}
	eventually(t, func() bool { return provider.StartCallCount() == 2 },
		"expected a restarted engine run")

	// Snapshots are cumulative for the session, so the restarted run's first
	// snapshot already carries the pre-restart text. A consumer replacing
	// its buffer wholesale ends up with everything.
	sess2.SnapshotsCh <- recognition.Snapshot{Text: "danes bomo govorili o grafih"}
	eventually(t, func() bool {
		last, ok := rec.last()
		return ok && last == "danes bomo govorili o grafih"
	}, "expected the restarted run's snapshot to extend the first run's text")

	_ = d.Stop()
}

func TestDriver_StopSuppressesRestart(t *testing.T) {
	sess := recmock.NewSession()
	provider := &recmock.Provider{Sessions: []*recmock.Session{sess}}

	d, err := NewDriver(DriverConfig{
		Provider:   provider,
		Permission: &permmock.Source{Granted: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.State() != StateIdle {
		t.Fatalf("expected StateIdle after stop, got %v", d.State())
	}
	eventually(t, func() bool { return sess.StopCalls() == 1 },
		"expected the engine run to be stopped")

	// A trailing "ended" signal from the stopped run must not resurrect
	// the engine.
	sess.SignalsCh <- recognition.Signal{Kind: recognition.SignalEnded}
	time.Sleep(20 * time.Millisecond)
	if provider.StartCallCount() != 1 {
		t.Errorf("expected no restart after stop, got %d starts", provider.StartCallCount())
	}

	// Stopping an idle driver is a no-op.
	if err := d.Stop(); err != nil {
		t.Errorf("unexpected error on idle stop: %v", err)
	}
}

func TestDriver_FatalEngineError(t *testing.T) {
	sess := recmock.NewSession()
	provider := &recmock.Provider{Sessions: []*recmock.Session{sess}}

	var (
		mu      sync.Mutex
		stopped error
	)
	d, err := NewDriver(DriverConfig{
		Provider:   provider,
		Permission: &permmock.Source{Granted: true},
		OnStopped: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			stopped = err
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess.SignalsCh <- recognition.Signal{Kind: recognition.SignalFailed, ErrorKind: "network"}

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopped != nil
	}, "expected OnStopped after fatal error")

	mu.Lock()
	var engineErr *EngineError
	if !errors.As(stopped, &engineErr) {
		t.Fatalf("expected *EngineError, got %T", stopped)
	}
	if engineErr.Kind != "network" {
		t.Errorf("expected kind %q, got %q", "network", engineErr.Kind)
	}
	mu.Unlock()

	if d.State() != StateIdle {
		t.Errorf("expected StateIdle after fatal error, got %v", d.State())
	}
	// No automatic restart after a failure.
	time.Sleep(20 * time.Millisecond)
	if provider.StartCallCount() != 1 {
		t.Errorf("expected no restart, got %d starts", provider.StartCallCount())
	}
}

// failAfterFirst hands out one good session, then fails every later Start.
type failAfterFirst struct {
	mu    sync.Mutex
	sess  recognition.Session
	calls int
}

func (p *failAfterFirst) Start(_ context.Context, _ recognition.Config) (recognition.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == 1 {
		return p.sess, nil
	}
	return nil, errors.New("engine unavailable")
}

func TestDriver_RestartFailureGoesIdle(t *testing.T) {
	sess := recmock.NewSession()
	provider := &failAfterFirst{sess: sess}

	var (
		mu      sync.Mutex
		stopped error
	)
	d, err := NewDriver(DriverConfig{
		Provider:   provider,
		Permission: &permmock.Source{Granted: true},
		OnStopped: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			stopped = err
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess.SignalsCh <- recognition.Signal{Kind: recognition.SignalEnded}

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopped != nil
	}, "expected OnStopped after failed restart")
	if d.State() != StateIdle {
		t.Errorf("expected StateIdle after failed restart, got %v", d.State())
	}
}
