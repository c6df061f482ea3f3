package lecture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mzajc/lektor/internal/observe"
	"github.com/mzajc/lektor/pkg/provider/permission"
	"github.com/mzajc/lektor/pkg/provider/recognition"
)

// State is the recognition lifecycle state of a session.
type State int

const (
	// StateIdle means no recognition engine is running.
	StateIdle State = iota
	// StateListening means the engine is running and snapshots are flowing.
	StateListening
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DriverConfig configures a Driver. Provider and Permission are required.
type DriverConfig struct {
	// Provider starts recognition engine runs.
	Provider recognition.Provider
	// Permission answers microphone capability requests. Wrap the source in
	// [permission.Memoized] so the user is prompted at most once.
	Permission permission.Source
	// Recognition is passed through to every engine run, including
	// transparent restarts.
	Recognition recognition.Config
	// OnSnapshot receives every full-transcript snapshot while listening.
	OnSnapshot func(text string)
	// OnStopped is called when the engine fails fatally and the driver has
	// already returned to Idle. The error is an [*EngineError] for engine
	// faults, or a wrapped error when a restart attempt itself failed.
	// It is never called for user-initiated stops.
	OnStopped func(err error)
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *observe.Metrics
}

// Driver owns the Idle/Listening state machine around a recognition
// provider.
//
// Engines end runs on their own after silence or internal timeouts. The
// driver hides that: as long as the user has not stopped, a benign "ended"
// signal triggers a transparent restart of a fresh engine run, and the
// session stays Listening throughout. Only a fatal engine error, a failed
// restart, or an explicit Stop returns the driver to Idle.
//
// Restarts lose no text: snapshots are cumulative for the whole listening
// session (see [recognition.Snapshot]), so the first snapshot of a
// restarted run already contains everything recognised before the end.
type Driver struct {
	cfg DriverConfig
	log *slog.Logger

	mu    sync.Mutex
	state State
	gen   int // incremented on every Start and Stop, invalidates stale runs
	sess  recognition.Session
}

// NewDriver validates the configuration and returns a Driver in StateIdle.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	var errs []error
	if cfg.Provider == nil {
		errs = append(errs, errors.New("Provider must not be nil"))
	}
	if cfg.Permission == nil {
		errs = append(errs, errors.New("Permission must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid driver config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Driver{cfg: cfg, log: cfg.Logger}, nil
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start requests microphone permission and launches a recognition run.
// It returns [ErrPermissionDenied] when the capability is refused and
// [ErrAlreadyListening] when a run is active. ctx must outlive the
// listening run: it is reused for transparent restarts, and cancelling it
// silently stops the engine.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state == StateListening {
		d.mu.Unlock()
		return ErrAlreadyListening
	}
	d.mu.Unlock()

	granted, err := d.cfg.Permission.Request(ctx)
	if err != nil {
		return fmt.Errorf("request microphone permission: %w", err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	sess, err := d.cfg.Provider.Start(ctx, d.cfg.Recognition)
	if err != nil {
		return fmt.Errorf("start recognition engine: %w", err)
	}

	d.mu.Lock()
	if d.state == StateListening {
		// Lost a race against a concurrent Start.
		d.mu.Unlock()
		_ = sess.Stop()
		return ErrAlreadyListening
	}
	d.state = StateListening
	d.gen++
	gen := d.gen
	d.sess = sess
	d.mu.Unlock()

	d.log.Info("recognition started", "locale", d.cfg.Recognition.Locale)
	go d.run(ctx, gen, sess)
	return nil
}

// Stop ends the current run, if any. Stopping an idle driver is a no-op.
// A pending "ended" signal from the stopped run is discarded instead of
// triggering a restart.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if d.state != StateListening {
		d.mu.Unlock()
		return nil
	}
	d.state = StateIdle
	d.gen++
	sess := d.sess
	d.sess = nil
	d.mu.Unlock()

	d.log.Info("recognition stopped")
	if sess != nil {
		if err := sess.Stop(); err != nil {
			return fmt.Errorf("stop recognition engine: %w", err)
		}
	}
	return nil
}

// run consumes one engine run and its transparent successors until the
// driver leaves StateListening.
func (d *Driver) run(ctx context.Context, gen int, sess recognition.Session) {
	snaps, sigs := sess.Snapshots(), sess.Signals()
	for {
		select {
		case <-ctx.Done():
			d.halt(gen)
			return
		case snap, ok := <-snaps:
			if !ok {
				snaps = nil
				if sigs == nil {
					// Both channels closed without a signal: treat it
					// like a benign end of run.
					if sess = d.restart(ctx, gen); sess == nil {
						return
					}
					snaps, sigs = sess.Snapshots(), sess.Signals()
				}
				continue
			}
			if d.current(gen) && d.cfg.OnSnapshot != nil {
				d.cfg.OnSnapshot(snap.Text)
			}
		case sig, ok := <-sigs:
			if !ok {
				sigs = nil
				if snaps == nil {
					if sess = d.restart(ctx, gen); sess == nil {
						return
					}
					snaps, sigs = sess.Snapshots(), sess.Signals()
				}
				continue
			}
			switch sig.Kind {
			case recognition.SignalEnded:
				if sess = d.restart(ctx, gen); sess == nil {
					return
				}
				snaps, sigs = sess.Snapshots(), sess.Signals()
			case recognition.SignalFailed:
				d.fail(gen, &EngineError{Kind: sig.ErrorKind})
				return
			}
		}
	}
}

// current reports whether gen is still the live run.
func (d *Driver) current(gen int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen == gen && d.state == StateListening
}

// restart launches a fresh engine run after a benign end. It returns nil
// when the driver has meanwhile been stopped, or when the restart itself
// failed, in which case the driver is Idle and OnStopped has fired.
func (d *Driver) restart(ctx context.Context, gen int) recognition.Session {
	if !d.current(gen) {
		return nil
	}

	sess, err := d.cfg.Provider.Start(ctx, d.cfg.Recognition)
	if err != nil {
		d.fail(gen, fmt.Errorf("restart recognition engine: %w", err))
		return nil
	}

	d.mu.Lock()
	if d.gen != gen || d.state != StateListening {
		d.mu.Unlock()
		_ = sess.Stop()
		return nil
	}
	d.sess = sess
	d.mu.Unlock()

	d.log.Debug("recognition engine restarted")
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RecordEngineRestart(ctx)
	}
	return sess
}

// fail moves the driver to Idle and surfaces the error once.
func (d *Driver) fail(gen int, err error) {
	d.mu.Lock()
	if d.gen != gen || d.state != StateListening {
		d.mu.Unlock()
		return
	}
	d.state = StateIdle
	d.gen++
	d.sess = nil
	d.mu.Unlock()

	d.log.Error("recognition engine failed", "error", err)
	if d.cfg.Metrics != nil {
		var engineErr *EngineError
		kind := "restart"
		if errors.As(err, &engineErr) {
			kind = engineErr.Kind
		}
		d.cfg.Metrics.RecordEngineFailure(context.Background(), kind)
	}
	if d.cfg.OnStopped != nil {
		d.cfg.OnStopped(err)
	}
}

// halt silently stops the run when its context is cancelled.
func (d *Driver) halt(gen int) {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.state = StateIdle
	d.gen++
	sess := d.sess
	d.sess = nil
	d.mu.Unlock()

	if sess != nil {
		_ = sess.Stop()
	}
}
