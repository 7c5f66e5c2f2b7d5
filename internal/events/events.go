// Package events implements the client-observable event stream: a
// monotonically indexed, append-only log of everything a conversation
// produces, distinct from the model-facing conversation history.
package events

// Kind identifies the type of an Event.
type Kind string

const (
	KindSessionConfigured  Kind = "session_configured"
	KindTurnStarted        Kind = "turn_started"
	KindAgentMessage       Kind = "agent_message"
	KindAgentMessageDelta  Kind = "agent_message_delta"
	KindExecApprovalNeeded Kind = "exec_approval_request"
	KindToolCallBegin      Kind = "tool_call_begin"
	KindToolCallEnd        Kind = "tool_call_end"
	KindTurnComplete       Kind = "turn_complete"
	KindTurnAborted        Kind = "turn_aborted"
	KindError              Kind = "error"
	KindShutdown           Kind = "shutdown"
)

// Event is a single observation emitted by the workflow. Payload carries
// kind-specific fields and is always JSON-serializable (it crosses the
// query boundary to poll-based clients).
type Event struct {
	Kind    Kind        `json:"kind"`
	TurnID  string      `json:"turn_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// IndexedEvent pairs an Event with the monotonic index the sink assigned it.
type IndexedEvent struct {
	Index int64 `json:"index"`
	Event Event `json:"event"`
}

// SessionConfiguredPayload is the payload of a KindSessionConfigured event.
type SessionConfiguredPayload struct {
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
}

// AgentMessagePayload is the payload of KindAgentMessage / KindAgentMessageDelta.
type AgentMessagePayload struct {
	Content string `json:"content"`
}

// ExecApprovalRequestPayload is the payload of a KindExecApprovalNeeded event.
type ExecApprovalRequestPayload struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Command  string `json:"command,omitempty"`
	Cwd      string `json:"cwd,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ToolCallBeginPayload is the payload of a KindToolCallBegin event.
type ToolCallBeginPayload struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
}

// ToolCallEndPayload is the payload of a KindToolCallEnd event.
type ToolCallEndPayload struct {
	CallID  string `json:"call_id"`
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
}

// TurnCompletePayload is the payload of a KindTurnComplete event.
type TurnCompletePayload struct {
	Iterations  int    `json:"iterations"`
	LastMessage string `json:"last_message,omitempty"`
}

// TurnAbortedPayload is the payload of a KindTurnAborted event: a turn that
// ended early because of a cancel or shutdown request rather than running
// to completion.
type TurnAbortedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is the payload of a KindError event.
type ErrorPayload struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// ShutdownPayload is the payload of a KindShutdown event.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Sink is the event-producing half of the state machine's observable
// contract: every state transition emits through it, and it alone decides
// index assignment and retention.
type Sink interface {
	// Emit appends event and returns the index assigned to it.
	Emit(event Event) int64

	// EventsSince returns events with index > from, plus a flag telling the
	// caller whether the requested range was compacted away (in which case
	// the returned events start from whatever the sink currently retains,
	// and the caller must treat this as a resync rather than a gap-free
	// continuation).
	EventsSince(from int64) (events []IndexedEvent, compacted bool)

	// LatestIndex returns the index of the most recently emitted event, or
	// -1 if the sink is empty.
	LatestIndex() int64
}
