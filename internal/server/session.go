package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/mzajc/lektor/internal/lecture"
	"github.com/mzajc/lektor/internal/observe"
	"github.com/mzajc/lektor/pkg/provider/recognition/wsbridge"
)

// writeTimeout bounds a single outbound frame write. A client that stops
// draining its socket loses frames instead of wedging the session.
const writeTimeout = 5 * time.Second

// maxFrameSize is the read limit for inbound frames. Engine result frames
// carry the full transcript snapshot, so the default 32 KiB limit is far
// too small for a long lecture.
const maxFrameSize = 1 << 20

// session binds one WebSocket connection to one lecture controller. The
// bridge turns the connection into the recognition and permission
// providers; the session routes the remaining client events to the
// controller and streams state, view and error events back.
type session struct {
	conn    *websocket.Conn
	bridge  *wsbridge.Bridge
	ctrl    *lecture.Controller
	log     *slog.Logger
	metrics *observe.Metrics

	// ctx scopes writes triggered by controller callbacks, which carry no
	// context of their own. Set once in run.
	ctx context.Context
}

// newSession wires a controller around the accepted connection.
func (s *Server) newSession(conn *websocket.Conn) (*session, error) {
	conn.SetReadLimit(maxFrameSize)
	bridge := wsbridge.New(conn)

	sess := &session{
		conn:    conn,
		bridge:  bridge,
		log:     s.log,
		metrics: s.metrics,
	}

	cfg := lecture.ControllerConfig{
		Recognition:     bridge,
		Permission:      bridge,
		Engine:          s.cfg.Recognition,
		Store:           s.cfg.Store,
		Metadata:        s.cfg.Metadata,
		Corrector:       s.cfg.Corrector,
		OnViewChanged:   sess.sendView,
		OnEngineStopped: sess.engineStopped,
		Logger:          s.log,
		Metrics:         s.metrics,
	}
	if s.cfg.NewSynthesis != nil {
		p, err := s.cfg.NewSynthesis(bridge.SendAudio)
		if err != nil {
			return nil, err
		}
		cfg.Synthesis = p
	}

	ctrl, err := lecture.NewController(cfg)
	if err != nil {
		return nil, err
	}
	sess.ctrl = ctrl
	return sess, nil
}

// run services the connection until it closes or ctx is cancelled. On
// return the bridge is released: an active engine run fails with
// "connection-lost" and pending permission prompts are denied.
func (s *session) run(ctx context.Context) {
	s.ctx = ctx
	defer s.bridge.Close()
	defer s.ctrl.CancelSpeech()

	s.sendState()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				s.log.Debug("connection closed", "status", status)
			} else {
				s.log.Warn("connection read failed", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			// Clients never send binary frames; audio flows the other way.
			continue
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.sendError("bad-frame", "frame is not a valid event")
			continue
		}
		s.dispatch(ctx, ev)
	}
}

// dispatch routes one client event. Engine and permission relays feed the
// bridge; commands drive the controller. Commands that block, such as
// starting (the permission prompt may stay open for a while), saving and
// speaking, run on their own goroutine so the read loop stays responsive
// and can deliver the very replies those commands wait for.
func (s *session) dispatch(ctx context.Context, ev clientEvent) {
	switch ev.Type {
	case evtEngineResult:
		s.bridge.HandleResult(ev.Text)
	case evtEngineEnded:
		s.bridge.HandleEnded()
	case evtEngineError:
		s.bridge.HandleEngineError(ev.Kind)
	case evtPermissionResult:
		s.bridge.HandlePermission(ev.Granted)

	case evtSessionStart:
		go s.startListening(ctx)
	case evtSessionStop:
		if err := s.ctrl.StopListening(); err != nil {
			s.sendError(errorCode(err), err.Error())
			return
		}
		s.sendState()
	case evtSessionSave:
		go s.save(ctx, ev.Title, ev.Subject)

	case evtNoteFocus:
		s.ctrl.NoteFieldFocused()
	case evtNoteBlur:
		s.ctrl.NoteFieldBlurred()
	case evtNoteInsert:
		if _, err := s.ctrl.InsertNote(ev.Text); err != nil {
			s.sendError(errorCode(err), err.Error())
		}

	case evtSpeak:
		go s.speak(ctx, ev.Text)
	case evtSpeakCancel:
		s.ctrl.CancelSpeech()

	default:
		s.sendError("unknown-event", "unknown event type "+ev.Type)
	}
}

func (s *session) startListening(ctx context.Context) {
	if err := s.ctrl.StartListening(ctx); err != nil {
		s.sendError(errorCode(err), err.Error())
		return
	}
	s.sendState()
}

func (s *session) save(ctx context.Context, title, subject string) {
	lec, err := s.ctrl.StopAndSave(ctx, title, subject)
	if err != nil {
		s.sendError(errorCode(err), err.Error())
		return
	}
	s.send(savedEvent{Type: "saved", Title: lec.Title, Subject: lec.Subject})
	s.sendState()
}

func (s *session) speak(ctx context.Context, text string) {
	start := time.Now()
	if err := s.ctrl.Speak(ctx, text); err != nil {
		s.sendError("synthesis-failed", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSpeak(ctx, time.Since(start))
	}
}

// engineStopped is the controller's fatal-failure hook. The session is
// already idle with the transcript intact; the client learns why listening
// ended and can offer a resume.
func (s *session) engineStopped(err error) {
	s.sendError(errorCode(err), err.Error())
	s.sendState()
}

// ── Outbound events ───────────────────────────────────────────────────────────

// send writes one event, sharing the bridge's frame ordering with the
// engine control frames. Write failures are logged and swallowed: the read
// loop notices a dead connection on its own.
func (s *session) send(v any) {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	if err := s.bridge.Send(ctx, v); err != nil {
		s.log.Debug("dropped outbound event", "error", err)
	}
}

func (s *session) sendState() {
	s.send(stateEvent{Type: "state", State: s.ctrl.State().String()})
}

func (s *session) sendError(code, message string) {
	s.send(errorEvent{Type: "error", Code: code, Message: message})
}

func (s *session) sendView(view lecture.MergedView) {
	items := make([]viewItem, 0, len(view.Items))
	for _, it := range view.Items {
		if it.IsNote() {
			items = append(items, viewItem{
				Kind:     "note",
				Text:     it.Note.Text,
				Offset:   it.Note.AnchorOffset,
				Sequence: it.Note.Sequence,
			})
		} else {
			items = append(items, viewItem{Kind: "segment", Text: it.Segment})
		}
	}
	s.send(viewEvent{Type: "view", Items: items, Dropped: view.Dropped})
}

// errorCode maps the lecture sentinels to stable protocol codes.
func errorCode(err error) string {
	var engineErr *lecture.EngineError
	switch {
	case errors.Is(err, lecture.ErrPermissionDenied):
		return "permission-denied"
	case errors.Is(err, lecture.ErrBusy):
		return "busy"
	case errors.Is(err, lecture.ErrAlreadyListening):
		return "already-listening"
	case errors.Is(err, lecture.ErrEmptyNote):
		return "empty-note"
	case errors.Is(err, lecture.ErrEmptyTranscript):
		return "empty-transcript"
	case errors.Is(err, lecture.ErrSaveInFlight):
		return "save-in-flight"
	case errors.As(err, &engineErr):
		return "engine-failure"
	default:
		return "internal"
	}
}
