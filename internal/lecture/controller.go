// Package lecture implements the live transcription and annotation session:
// a recognition [Driver] feeding a [Transcript], a [Cursor] and [Ledger] for
// position-anchored notes, a merge renderer producing the interleaved view,
// and a [Controller] that orchestrates the stop/export/persist lifecycle.
//
// One Controller corresponds to one user session. All mutating methods are
// safe for concurrent use, but a session is typically driven from a single
// connection loop.
package lecture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mzajc/lektor/internal/observe"
	"github.com/mzajc/lektor/pkg/persistence"
	"github.com/mzajc/lektor/pkg/provider/permission"
	"github.com/mzajc/lektor/pkg/provider/recognition"
	"github.com/mzajc/lektor/pkg/provider/synthesis"
)

// Fallback metadata used when no title or subject is supplied and no
// generator is configured, or the generator fails.
const (
	DefaultTitle   = "Untitled Document"
	DefaultSubject = "Uncategorized"
)

// MetadataGenerator proposes a title and subject for a finished lecture
// text. Implementations may consult an LLM; failures are non-fatal and
// fall back to the defaults above.
type MetadataGenerator interface {
	Propose(ctx context.Context, text string) (title, subject string, err error)
}

// TextCorrector post-processes the exported plain text, e.g. fixing
// misrecognized domain vocabulary. It runs only at save time so annotation
// offsets are never disturbed.
type TextCorrector interface {
	Correct(text string) string
}

// ControllerConfig configures a Controller. Recognition, Permission and
// Store are required; everything else is optional.
type ControllerConfig struct {
	// Recognition starts engine runs for the embedded Driver.
	Recognition recognition.Provider
	// Permission answers microphone capability requests.
	Permission permission.Source
	// Engine is the recognition configuration passed to every run.
	Engine recognition.Config
	// Store persists finished lectures.
	Store persistence.Store
	// Synthesis enables the Speak operation. Nil disables it.
	Synthesis synthesis.Provider
	// Metadata proposes a title and subject when the caller supplies none.
	Metadata MetadataGenerator
	// Corrector post-processes the exported text before persisting.
	Corrector TextCorrector
	// OnViewChanged is called with a fresh merged view after every
	// transcript update, note insertion, and successful save.
	OnViewChanged func(MergedView)
	// OnEngineStopped is called when the engine fails fatally. The session
	// is already Idle; the transcript and notes are intact.
	OnEngineStopped func(err error)
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *observe.Metrics
}

// Controller owns one lecture session end to end.
type Controller struct {
	cfg     ControllerConfig
	log     *slog.Logger
	driver  *Driver
	speaker *Speaker

	mu         sync.Mutex
	transcript Transcript
	cursor     Cursor
	ledger     Ledger
	saving     bool
}

// NewController validates the configuration and builds an idle session.
func NewController(cfg ControllerConfig) (*Controller, error) {
	var errs []error
	if cfg.Recognition == nil {
		errs = append(errs, errors.New("Recognition must not be nil"))
	}
	if cfg.Permission == nil {
		errs = append(errs, errors.New("Permission must not be nil"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("Store must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid controller config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{cfg: cfg, log: cfg.Logger}
	driver, err := NewDriver(DriverConfig{
		Provider:    cfg.Recognition,
		Permission:  permission.NewMemoized(cfg.Permission),
		Recognition: cfg.Engine,
		OnSnapshot:  c.handleSnapshot,
		OnStopped:   c.handleEngineStopped,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c.driver = driver
	if cfg.Synthesis != nil {
		c.speaker = NewSpeaker(cfg.Synthesis)
	}
	return c, nil
}

// State returns the recognition lifecycle state.
func (c *Controller) State() State {
	return c.driver.State()
}

// StartListening starts (or resumes) transcription. It returns [ErrBusy]
// while a synthesized utterance is playing, [ErrPermissionDenied] when the
// microphone capability is refused, and [ErrAlreadyListening] when already
// listening. Resuming appends to the existing transcript; nothing is
// cleared.
func (c *Controller) StartListening(ctx context.Context) error {
	if c.speaker != nil && c.speaker.Speaking() {
		return ErrBusy
	}
	return c.driver.Start(ctx)
}

// StopListening pauses transcription without exporting anything. The
// transcript, cursor and notes all stay in place for a later resume or
// save.
func (c *Controller) StopListening() error {
	return c.driver.Stop()
}

// InsertNote records a note at the current cursor offset. On success the
// cursor unfreezes and moves to the transcript end, so the next note
// defaults to append-at-end until the field is focused again.
func (c *Controller) InsertNote(text string) (Annotation, error) {
	c.mu.Lock()
	note, err := c.ledger.Insert(text, c.cursor.Offset(), c.transcript.Len())
	if err != nil {
		c.mu.Unlock()
		return Annotation{}, err
	}
	c.cursor.ResetToEnd(c.transcript.Len())
	view := Render(c.transcript.String(), c.ledger.Annotations())
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordNoteInserted(context.Background())
	}
	c.notifyView(view)
	return note, nil
}

// NoteFieldFocused freezes the cursor at the current transcript length.
func (c *Controller) NoteFieldFocused() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor.OnNoteFieldFocused(c.transcript.Len())
}

// NoteFieldBlurred releases the cursor freeze.
func (c *Controller) NoteFieldBlurred() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor.OnNoteFieldBlurred()
}

// View renders the current merged view.
func (c *Controller) View() MergedView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Render(c.transcript.String(), c.ledger.Annotations())
}

// Speak synthesizes text, cancelling any utterance still playing.
// It returns an error when no synthesis provider is configured.
func (c *Controller) Speak(ctx context.Context, text string) error {
	if c.speaker == nil {
		return errors.New("lecture: no synthesis provider configured")
	}
	return c.speaker.Speak(ctx, text)
}

// CancelSpeech stops the current utterance, if any.
func (c *Controller) CancelSpeech() {
	if c.speaker != nil {
		c.speaker.Cancel()
	}
}

// StopAndSave ends the session: it stops the engine, exports the merged
// view as plain text, fills in missing metadata, persists the lecture and
// resets the session to a pristine state.
//
// An empty export fails with [ErrEmptyTranscript] before any persistence
// call. A persistence failure is returned to the caller with the
// transcript and notes fully intact, so the user can retry. A concurrent
// save fails with [ErrSaveInFlight].
func (c *Controller) StopAndSave(ctx context.Context, title, subject string) (persistence.Lecture, error) {
	if err := c.driver.Stop(); err != nil {
		return persistence.Lecture{}, err
	}

	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return persistence.Lecture{}, ErrSaveInFlight
	}
	view := Render(c.transcript.String(), c.ledger.Annotations())
	text := view.PlainText()
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return persistence.Lecture{}, ErrEmptyTranscript
	}
	c.saving = true
	c.mu.Unlock()

	if c.cfg.Corrector != nil {
		text = c.cfg.Corrector.Correct(text)
	}
	title, subject = c.fillMetadata(ctx, text, title, subject)

	lec := persistence.Lecture{Text: text, Title: title, Subject: subject}
	start := time.Now()
	err := c.cfg.Store.Save(ctx, lec)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordSave(ctx, time.Since(start), err)
	}

	c.mu.Lock()
	c.saving = false
	if err != nil {
		c.mu.Unlock()
		return persistence.Lecture{}, fmt.Errorf("save lecture: %w", err)
	}
	c.transcript.Reset()
	c.cursor.Reset()
	c.ledger.Reset()
	c.mu.Unlock()

	c.log.Info("lecture saved", "title", title, "subject", subject, "bytes", len(lec.Text))
	c.notifyView(MergedView{})
	return lec, nil
}

// fillMetadata fills empty title/subject fields, consulting the generator
// when one is configured. Generator failures are logged and fall back to
// the defaults; they never block a save.
func (c *Controller) fillMetadata(ctx context.Context, text, title, subject string) (string, string) {
	if title != "" && subject != "" {
		return title, subject
	}
	if c.cfg.Metadata != nil {
		genTitle, genSubject, err := c.cfg.Metadata.Propose(ctx, text)
		if err != nil {
			c.log.Warn("metadata generation failed, using defaults", "error", err)
		} else {
			if title == "" {
				title = genTitle
			}
			if subject == "" {
				subject = genSubject
			}
		}
	}
	if title == "" {
		title = DefaultTitle
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return title, subject
}

// handleSnapshot is the Driver's OnSnapshot hook.
func (c *Controller) handleSnapshot(text string) {
	c.mu.Lock()
	c.transcript.ApplySnapshot(text)
	c.cursor.OnTranscriptUpdated(c.transcript.Len())
	view := Render(c.transcript.String(), c.ledger.Annotations())
	c.mu.Unlock()

	c.notifyView(view)
}

// handleEngineStopped is the Driver's OnStopped hook. The driver is
// already Idle; the session data is untouched.
func (c *Controller) handleEngineStopped(err error) {
	c.log.Warn("listening stopped by engine failure", "error", err)
	if c.cfg.OnEngineStopped != nil {
		c.cfg.OnEngineStopped(err)
	}
}

func (c *Controller) notifyView(view MergedView) {
	if view.Dropped > 0 && c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordNotesDropped(context.Background(), view.Dropped)
	}
	if c.cfg.OnViewChanged != nil {
		c.cfg.OnViewChanged(view)
	}
}
