package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mzajc/lektor/pkg/persistence/mock"
	"github.com/mzajc/lektor/pkg/provider/recognition"
	"github.com/mzajc/lektor/pkg/provider/synthesis"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// newTestServer starts the full handler over httptest and dials the
// WebSocket endpoint, returning the client side and the mock store behind
// the server.
func newTestServer(t *testing.T, mutate func(*Config)) (*websocket.Conn, *mock.Store) {
	t.Helper()

	store := &mock.Store{}
	cfg := Config{
		Store:       store,
		Recognition: recognition.Config{Locale: "sl-SI", InterimResults: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.CloseNow() })
	return client, store
}

// send writes one client event as a text frame.
func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

// awaitEvent reads frames until one of the given type arrives and returns
// its decoded payload. Unrelated frames in between are skipped, so tests do
// not depend on the exact interleaving of state, view and control frames.
func awaitEvent(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	for range 20 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", eventType, err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if msg["type"] == eventType {
			return msg
		}
	}
	t.Fatalf("no %q event within 20 frames", eventType)
	return nil
}

// awaitBinary reads frames until a binary one arrives.
func awaitBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	for range 20 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read while waiting for binary frame: %v", err)
		}
		if typ == websocket.MessageBinary {
			return data
		}
	}
	t.Fatal("no binary frame within 20 frames")
	return nil
}

// startListening walks the client through the start handshake: command,
// permission prompt, engine start.
func startListening(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, map[string]any{"type": "session.start"})
	awaitEvent(t, conn, "permission.request")
	send(t, conn, map[string]any{"type": "permission.result", "granted": true})
	awaitEvent(t, conn, "engine.start")
	state := awaitEvent(t, conn, "state")
	if state["state"] != "listening" {
		t.Fatalf("expected listening state, got %v", state["state"])
	}
}

// viewText flattens a view event's segment items.
func viewText(view map[string]any) string {
	var b strings.Builder
	items, _ := view["items"].([]any)
	for _, raw := range items {
		item, _ := raw.(map[string]any)
		if item["kind"] == "segment" {
			b.WriteString(item["text"].(string))
		}
	}
	return b.String()
}

// sinkSpeaker is a synthesis provider that writes one audio frame per
// utterance straight to the connection sink.
type sinkSpeaker struct {
	sink AudioSink
}

func (s *sinkSpeaker) Speak(ctx context.Context, text string) error {
	return s.sink(ctx, []byte("audio:"+text))
}

var _ synthesis.Provider = (*sinkSpeaker)(nil)

// ── Routes ────────────────────────────────────────────────────────────────────

func TestServer_OperationalRoutes(t *testing.T) {
	srv, err := New(Config{Store: &mock.Store{}})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			if err != nil {
				t.Fatalf("get %s: %v", path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
		})
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing store")
	}
}

// ── Session lifecycle over the wire ───────────────────────────────────────────

func TestSession_InitialState(t *testing.T) {
	client, _ := newTestServer(t, nil)

	state := awaitEvent(t, client, "state")
	if state["state"] != "idle" {
		t.Errorf("expected idle state on connect, got %v", state["state"])
	}
}

func TestSession_FullLifecycle(t *testing.T) {
	client, store := newTestServer(t, nil)
	startListening(t, client)

	// Snapshots replace the transcript wholesale.
	send(t, client, map[string]any{"type": "engine.result", "text": "danes"})
	awaitEvent(t, client, "view")
	send(t, client, map[string]any{"type": "engine.result", "text": "danes bomo govorili"})
	view := awaitEvent(t, client, "view")
	if got := viewText(view); got != "danes bomo govorili" {
		t.Errorf("view text = %q", got)
	}

	// A note anchored mid-transcript by the focus/insert dance.
	send(t, client, map[string]any{"type": "note.focus"})
	send(t, client, map[string]any{"type": "engine.result", "text": "danes bomo govorili o celicah"})
	awaitEvent(t, client, "view")
	send(t, client, map[string]any{"type": "note.insert", "text": "pomembno!"})
	view = awaitEvent(t, client, "view")
	items, _ := view["items"].([]any)
	var noteCount int
	for _, raw := range items {
		if item, _ := raw.(map[string]any); item["kind"] == "note" {
			noteCount++
			if item["text"] != "pomembno!" {
				t.Errorf("note text = %v", item["text"])
			}
		}
	}
	if noteCount != 1 {
		t.Fatalf("expected one note in view, got %d", noteCount)
	}

	// Save with explicit metadata.
	send(t, client, map[string]any{
		"type": "session.save", "title": "Celice", "subject": "Biologija",
	})
	awaitEvent(t, client, "engine.stop")

	// After the save the session is pristine and idle again. The fresh view
	// goes out before the save confirmation.
	view = awaitEvent(t, client, "view")
	if items, _ := view["items"].([]any); len(items) != 0 {
		t.Errorf("expected empty view after save, got %v", view["items"])
	}
	saved := awaitEvent(t, client, "saved")
	if saved["title"] != "Celice" || saved["subject"] != "Biologija" {
		t.Errorf("unexpected saved metadata %v", saved)
	}

	if store.SaveCallCount() != 1 {
		t.Fatalf("expected one save, got %d", store.SaveCallCount())
	}
	lec := store.SaveCalls[0]
	if lec.Text != "danes bomo govorili o celicah" {
		t.Errorf("saved text = %q", lec.Text)
	}
	if lec.Title != "Celice" || lec.Subject != "Biologija" {
		t.Errorf("saved metadata = %q / %q", lec.Title, lec.Subject)
	}

	state := awaitEvent(t, client, "state")
	if state["state"] != "idle" {
		t.Errorf("expected idle after save, got %v", state["state"])
	}
}

func TestSession_SaveWithoutMetadataUsesDefaults(t *testing.T) {
	client, store := newTestServer(t, nil)
	startListening(t, client)

	send(t, client, map[string]any{"type": "engine.result", "text": "nekaj besed"})
	awaitEvent(t, client, "view")
	send(t, client, map[string]any{"type": "session.save"})

	saved := awaitEvent(t, client, "saved")
	if saved["title"] != "Untitled Document" || saved["subject"] != "Uncategorized" {
		t.Errorf("unexpected default metadata %v", saved)
	}
	if store.SaveCallCount() != 1 {
		t.Fatalf("expected one save, got %d", store.SaveCallCount())
	}
}

func TestSession_EmptySaveIsRefused(t *testing.T) {
	client, store := newTestServer(t, nil)
	awaitEvent(t, client, "state")

	send(t, client, map[string]any{"type": "session.save"})
	ev := awaitEvent(t, client, "error")
	if ev["code"] != "empty-transcript" {
		t.Errorf("error code = %v, want empty-transcript", ev["code"])
	}
	if store.SaveCallCount() != 0 {
		t.Errorf("expected no save calls, got %d", store.SaveCallCount())
	}
}

func TestSession_PermissionDenied(t *testing.T) {
	client, _ := newTestServer(t, nil)
	awaitEvent(t, client, "state")

	send(t, client, map[string]any{"type": "session.start"})
	awaitEvent(t, client, "permission.request")
	send(t, client, map[string]any{"type": "permission.result", "granted": false})

	ev := awaitEvent(t, client, "error")
	if ev["code"] != "permission-denied" {
		t.Errorf("error code = %v, want permission-denied", ev["code"])
	}
}

func TestSession_EmptyNoteIsRefused(t *testing.T) {
	client, _ := newTestServer(t, nil)
	awaitEvent(t, client, "state")

	send(t, client, map[string]any{"type": "note.insert", "text": "   "})
	ev := awaitEvent(t, client, "error")
	if ev["code"] != "empty-note" {
		t.Errorf("error code = %v, want empty-note", ev["code"])
	}
}

func TestSession_EngineFailureKeepsTranscript(t *testing.T) {
	client, _ := newTestServer(t, nil)
	startListening(t, client)

	send(t, client, map[string]any{"type": "engine.result", "text": "prvi del"})
	awaitEvent(t, client, "view")

	send(t, client, map[string]any{"type": "engine.error", "kind": "network"})
	ev := awaitEvent(t, client, "error")
	if ev["code"] != "engine-failure" {
		t.Errorf("error code = %v, want engine-failure", ev["code"])
	}
	if msg, _ := ev["message"].(string); !strings.Contains(msg, "network") {
		t.Errorf("expected engine kind in message, got %q", msg)
	}
	state := awaitEvent(t, client, "state")
	if state["state"] != "idle" {
		t.Errorf("expected idle after engine failure, got %v", state["state"])
	}

	// The transcript survived the failure and can still be saved.
	send(t, client, map[string]any{"type": "session.save"})
	awaitEvent(t, client, "saved")
}

func TestSession_SpeakStreamsAudio(t *testing.T) {
	client, _ := newTestServer(t, func(cfg *Config) {
		cfg.NewSynthesis = func(sink AudioSink) (synthesis.Provider, error) {
			return &sinkSpeaker{sink: sink}, nil
		}
	})
	awaitEvent(t, client, "state")

	send(t, client, map[string]any{"type": "speak", "text": "pozdravljeni"})
	audio := awaitBinary(t, client)
	if string(audio) != "audio:pozdravljeni" {
		t.Errorf("audio frame = %q", audio)
	}
}

func TestSession_SpeakWithoutProviderFails(t *testing.T) {
	client, _ := newTestServer(t, nil)
	awaitEvent(t, client, "state")

	send(t, client, map[string]any{"type": "speak", "text": "zdravo"})
	ev := awaitEvent(t, client, "error")
	if ev["code"] != "synthesis-failed" {
		t.Errorf("error code = %v, want synthesis-failed", ev["code"])
	}
}

func TestSession_UnknownEvent(t *testing.T) {
	client, _ := newTestServer(t, nil)
	awaitEvent(t, client, "state")

	send(t, client, map[string]any{"type": "telepathy"})
	ev := awaitEvent(t, client, "error")
	if ev["code"] != "unknown-event" {
		t.Errorf("error code = %v, want unknown-event", ev["code"])
	}
}

func TestSession_MalformedFrame(t *testing.T) {
	client, _ := newTestServer(t, nil)
	awaitEvent(t, client, "state")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	ev := awaitEvent(t, client, "error")
	if ev["code"] != "bad-frame" {
		t.Errorf("error code = %v, want bad-frame", ev["code"])
	}
}

func TestSession_StopPausesWithoutSaving(t *testing.T) {
	client, store := newTestServer(t, nil)
	startListening(t, client)

	send(t, client, map[string]any{"type": "engine.result", "text": "prvi del"})
	awaitEvent(t, client, "view")

	send(t, client, map[string]any{"type": "session.stop"})
	awaitEvent(t, client, "engine.stop")
	state := awaitEvent(t, client, "state")
	if state["state"] != "idle" {
		t.Fatalf("expected idle after stop, got %v", state["state"])
	}
	if store.SaveCallCount() != 0 {
		t.Errorf("pause must not persist anything, got %d saves", store.SaveCallCount())
	}

	// Resuming appends to the same transcript. The permission answer is
	// memoized, so no second prompt appears.
	send(t, client, map[string]any{"type": "session.start"})
	awaitEvent(t, client, "engine.start")
	state = awaitEvent(t, client, "state")
	if state["state"] != "listening" {
		t.Fatalf("expected listening after resume, got %v", state["state"])
	}
	send(t, client, map[string]any{"type": "engine.result", "text": "prvi del in nadaljevanje"})
	view := awaitEvent(t, client, "view")
	if got := viewText(view); got != "prvi del in nadaljevanje" {
		t.Errorf("view text after resume = %q", got)
	}
}

func TestSession_ManyConnections(t *testing.T) {
	store := &mock.Store{}
	srv, err := New(Config{Store: store})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// Sessions are independent: each connection gets its own controller.
	for i := range 3 {
		t.Run(fmt.Sprintf("conn-%d", i), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer client.CloseNow()
			state := awaitEvent(t, client, "state")
			if state["state"] != "idle" {
				t.Errorf("expected idle, got %v", state["state"])
			}
		})
	}
}
