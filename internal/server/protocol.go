package server

// The client protocol rides on the same WebSocket the bridge uses for its
// engine.start / engine.stop / permission.request control frames. Every
// text frame in either direction is a JSON object with a "type" field;
// binary frames carry synthesized audio and flow server to client only.

// clientEvent is the decoded form of every client-to-server text frame.
// Only the fields relevant to the given type are populated.
type clientEvent struct {
	Type string `json:"type"`

	// engine.result carries the client's accumulated session transcript,
	// not a per-run delta; see the wsbridge package doc. Text doubles as
	// the payload of note.insert and speak.
	Text string `json:"text,omitempty"`

	// engine.error
	Kind string `json:"kind,omitempty"`

	// permission.result
	Granted bool `json:"granted,omitempty"`

	// session.save
	Title   string `json:"title,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Client-to-server event types.
const (
	// Engine relay: the browser reports on the recognition run the server
	// asked it to start.
	evtEngineResult = "engine.result"
	evtEngineEnded  = "engine.ended"
	evtEngineError  = "engine.error"

	// Permission relay: the user's answer to a permission.request frame.
	evtPermissionResult = "permission.result"

	// Session commands.
	evtSessionStart = "session.start"
	evtSessionStop  = "session.stop"
	evtSessionSave  = "session.save"

	// Note-taking commands.
	evtNoteFocus  = "note.focus"
	evtNoteBlur   = "note.blur"
	evtNoteInsert = "note.insert"

	// Synthesis commands.
	evtSpeak       = "speak"
	evtSpeakCancel = "speak.cancel"
)

// stateEvent reports the recognition lifecycle state ("idle" or
// "listening"). Sent on connect and after every state change.
type stateEvent struct {
	Type  string `json:"type"` // "state"
	State string `json:"state"`
}

// viewEvent carries the merged transcript-and-notes view. Sent after every
// transcript update, note insertion, and successful save.
type viewEvent struct {
	Type    string     `json:"type"` // "view"
	Items   []viewItem `json:"items"`
	Dropped int        `json:"dropped,omitempty"`
}

// viewItem is one run of transcript text or one interleaved note.
type viewItem struct {
	Kind     string `json:"kind"` // "segment" or "note"
	Text     string `json:"text"`
	Offset   int    `json:"offset,omitempty"`
	Sequence int    `json:"sequence,omitempty"`
}

// savedEvent confirms a successful save with the metadata that was
// persisted, including any generated title or subject.
type savedEvent struct {
	Type    string `json:"type"` // "saved"
	Title   string `json:"title"`
	Subject string `json:"subject"`
}

// errorEvent reports a failed command. Code is a stable machine-readable
// identifier; Message is for display.
type errorEvent struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}
