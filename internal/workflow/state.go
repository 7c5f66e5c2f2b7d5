// Package workflow contains Temporal workflow definitions.
//
// state.go manages workflow state, separated from workflow logic.
package workflow

import (
	"fmt"

	"github.com/mfateev/agentharness/internal/events"
	"github.com/mfateev/agentharness/internal/history"
	"github.com/mfateev/agentharness/internal/models"
	"github.com/mfateev/agentharness/internal/tools"
)

// Handler name constants for Temporal signal and query handlers. Names
// match the external protocol exactly: a client never sees the internal
// field names below this line.
const (
	// SignalReceiveUserTurn delivers a new user message to the workflow.
	SignalReceiveUserTurn = "receive_user_turn"

	// SignalReceiveApproval delivers the user's tool-approval decision.
	SignalReceiveApproval = "receive_approval"

	// SignalRequestShutdown asks the workflow to end the session.
	SignalRequestShutdown = "request_shutdown"

	// SignalRequestCancel aborts the current turn without ending the
	// session; the workflow returns to Idle and awaits the next user turn.
	SignalRequestCancel = "request_cancel"

	// QueryGetEventsSince returns events appended after a given index.
	QueryGetEventsSince = "get_events_since"

	// QueryGetState returns the workflow's current phase and stats.
	QueryGetState = "get_state"
)

// TurnPhase indicates the current phase of the workflow turn, exposed via
// the get_state query.
type TurnPhase string

const (
	PhaseWaitingForInput TurnPhase = "waiting_for_input"
	PhaseLLMCalling      TurnPhase = "llm_calling"
	PhaseToolExecuting   TurnPhase = "tool_executing"
	PhaseApprovalPending TurnPhase = "approval_pending"
	PhaseCompacting      TurnPhase = "compacting"
)

// GetStateResponse is the response from the get_state query.
type GetStateResponse struct {
	Phase             TurnPhase         `json:"phase"`
	CurrentTurnID     string            `json:"current_turn_id"`
	ToolsInFlight     []string          `json:"tools_in_flight,omitempty"`
	PendingApprovals  []PendingApproval `json:"pending_approvals,omitempty"`
	IterationCount    int               `json:"iteration_count"`
	TotalTokens       int               `json:"total_tokens"`
	TotalCachedTokens int               `json:"total_cached_tokens"`
	LatestEventIndex  int64             `json:"latest_event_index"`
}

// WorkflowInput is the initial input to start a conversation.
type WorkflowInput struct {
	ConversationID string                      `json:"conversation_id"`
	UserMessage    string                      `json:"user_message"`
	Config         models.SessionConfiguration `json:"config"`
}

// UserTurn is the payload for the receive_user_turn signal.
type UserTurn struct {
	Content string `json:"content"`
}

// ShutdownRequest is the payload for the request_shutdown signal.
type ShutdownRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelRequest is the payload for the request_cancel signal.
type CancelRequest struct{}

// PendingApproval describes a tool call awaiting user approval.
type PendingApproval struct {
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"` // Raw JSON string of arguments
	Reason    string `json:"reason,omitempty"`
}

// ApprovalResponse is the user's decision on pending tool approvals,
// delivered via the receive_approval signal.
type ApprovalResponse struct {
	Approved []string `json:"approved"` // CallIDs the user approved
	Denied   []string `json:"denied"`   // CallIDs the user denied
}

// GetEventsSinceRequest is the payload for the get_events_since query.
type GetEventsSinceRequest struct {
	Since int64 `json:"since"`
}

// GetEventsSinceResponse is the response from the get_events_since query.
type GetEventsSinceResponse struct {
	Events    []events.IndexedEvent `json:"events"`
	Compacted bool                  `json:"compacted"`
}

// SessionState is passed through ContinueAsNew. All Temporal coordination
// state (phase, response slots, pending-input flags) lives in LoopControl,
// which is constructed fresh each workflow run; SessionState holds only
// what must survive a ContinueAsNew: history, the event sink, config, tool
// specs, the approval cache, and cumulative stats.
type SessionState struct {
	ConversationID  string                      `json:"conversation_id"`
	History         history.ContextManager      `json:"-"`
	HistoryItems    []models.ConversationItem   `json:"history_items"`
	Sink            *events.InMemorySink        `json:"sink"`
	ToolSpecs       []tools.ToolSpec            `json:"tool_specs"`
	Config          models.SessionConfiguration `json:"config"`
	ResolvedProfile models.ResolvedProfile      `json:"resolved_profile"`

	// ApprovalCache records tool calls already approved by the user,
	// keyed by approvalCacheKey. Survives turns and ContinueAsNew so an
	// identical future call skips the prompt.
	ApprovalCache map[string]bool `json:"approval_cache"`

	IterationCount int `json:"iteration_count"`

	// TotalIterationsForCAN counts iterations across all turns, persisting
	// across ContinueAsNew; used to trigger the next ContinueAsNew once
	// history grows large enough.
	TotalIterationsForCAN int `json:"total_iterations_for_can"`

	// LastResponseID chains OpenAI Responses API calls for incremental
	// sends; persists across ContinueAsNew.
	LastResponseID string `json:"last_response_id,omitempty"`

	// lastSentHistoryLen tracks how many history items were sent in the
	// last LLM call, enabling incremental sends. Reset on history
	// modification (compaction, DropOldestUserTurns).
	lastSentHistoryLen int `json:"-"`

	CompactionCount   int  `json:"compaction_count"`
	compactedThisTurn bool `json:"-"`

	TotalTokens       int      `json:"total_tokens"`
	TotalCachedTokens int      `json:"total_cached_tokens"`
	ToolCallsExecuted []string `json:"tool_calls_executed"`

	// TurnCounter assigns sequential turn IDs; persists across ContinueAsNew
	// so IDs stay unique for the life of the conversation.
	TurnCounter int `json:"turn_counter"`
}

// nextTurnID returns the next sequential turn ID for this conversation.
func (s *SessionState) nextTurnID() string {
	s.TurnCounter++
	return fmt.Sprintf("%s-turn-%d", s.ConversationID, s.TurnCounter)
}

// WorkflowResult is the final result of the workflow.
type WorkflowResult struct {
	ConversationID    string   `json:"conversation_id"`
	TotalIterations   int      `json:"total_iterations"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCachedTokens int      `json:"total_cached_tokens"`
	ToolCallsExecuted []string `json:"tool_calls_executed"`
	EndReason         string   `json:"end_reason,omitempty"` // "shutdown", "error"
	FinalMessage      string   `json:"final_message,omitempty"`
}

// initHistory initializes the History field from HistoryItems. Called
// after deserialization (ContinueAsNew) to restore the interface.
func (s *SessionState) initHistory() {
	h := history.NewInMemoryHistory()
	for _, item := range s.HistoryItems {
		h.AddItem(item)
	}
	s.History = h
}

// syncHistoryItems copies history to HistoryItems for serialization.
// Called before ContinueAsNew to persist state.
func (s *SessionState) syncHistoryItems() {
	items, _ := s.History.GetRawItems()
	s.HistoryItems = items
}
