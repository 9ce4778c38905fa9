package termhost

import "pkt.systems/termspace/schema"

// Wire types for the host HTTP API. Terminal output and input travel as
// base64: PTY bytes are arbitrary and would not survive a JSON string.

type attachRequest struct {
	Key  schema.TerminalKey `json:"key"`
	Cols int                `json:"cols"`
	Rows int                `json:"rows"`
}

type attachResponse struct {
	Session       schema.SessionID `json:"session"`
	IsNew         bool             `json:"is_new"`
	ScrollbackB64 string           `json:"scrollback_b64,omitempty"`
	WasRecovered  bool             `json:"was_recovered"`
}

type writeRequest struct {
	DataB64 string `json:"data_b64"`
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type sessionsResponse struct {
	Sessions []schema.SessionSnapshot `json:"sessions"`
}

type scrollbackResponse struct {
	ScrollbackB64 string `json:"scrollback_b64"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// streamEvent is one SSE payload on the per-session output stream.
type streamEvent struct {
	DataB64 string `json:"data_b64,omitempty"`
	Exit    *Exit  `json:"exit,omitempty"`
}
