package websocket

import "github.com/examhall/examhall-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionComplete Action = "complete"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest carries one answer batch over the socket. It goes
// through the same reconciler as the HTTP auto-save endpoint.
type AutosaveRequest struct {
	Action    Action               `json:"action"`
	Responses []model.AnswerUpdate `json:"responses"`
}

// CompleteRequest finishes the session over the socket.
type CompleteRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError          Event = "error"
	EventAutosaveResult Event = "autosave_result"
	EventCompleted      Event = "completed"
	EventPong           Event = "pong"
)

type AutosaveResult struct {
	Event   Event                  `json:"event"`
	Success bool                   `json:"success"`
	Result  *model.AutoSaveOutcome `json:"result"`
}

type CompletedResponse struct {
	Event  Event                  `json:"event"`
	Result model.FinalizedSession `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
	// Recoverable mirrors the HTTP completion contract: true means the
	// answers are intact and the client may retry.
	Recoverable *bool `json:"recoverable,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
