// Package workflow contains Temporal workflow definitions.
//
// control.go defines LoopControl, which separates Temporal coordination
// concerns from SessionState. LoopControl owns all synchronization between
// signal handlers and the agentic loop: the approval response slot and
// phase/lifecycle tracking.
//
// LoopControl is constructed fresh each workflow run; it is never
// serialized through ContinueAsNew.
package workflow

import (
	"fmt"

	"go.temporal.io/sdk/workflow"
)

// ResponseSlot holds a single awaitable response of type T.
type ResponseSlot[T any] struct {
	received bool
	value    *T
}

// Deliver stores a response and marks the slot as ready.
func (s *ResponseSlot[T]) Deliver(v T) {
	s.value = &v
	s.received = true
}

// Ready returns true if a response has been delivered.
func (s *ResponseSlot[T]) Ready() bool { return s.received }

// Take retrieves the response and resets the slot to empty. Returns nil if not ready.
func (s *ResponseSlot[T]) Take() *T {
	v := s.value
	s.received = false
	s.value = nil
	return v
}

func (s *ResponseSlot[T]) clear() {
	s.received = false
	s.value = nil
}

// LoopControl owns all Temporal coordination state for the agentic workflow.
type LoopControl struct {
	pendingUserInput  bool
	shutdownRequested bool
	shutdownReason    string
	interrupted       bool
	currentTurnID     string

	phase            TurnPhase
	toolsInFlight    []string
	pendingApprovals []PendingApproval

	approvalSlot ResponseSlot[ApprovalResponse]
}

// DeliverApproval stores an approval response and clears visible pending
// state. Called by the receive_approval signal handler.
func (ctrl *LoopControl) DeliverApproval(resp ApprovalResponse) {
	ctrl.approvalSlot.Deliver(resp)
	ctrl.pendingApprovals = nil
}

// SetPendingUserInput records a new user-input turn with the given ID.
func (ctrl *LoopControl) SetPendingUserInput(turnID string) {
	ctrl.currentTurnID = turnID
	ctrl.pendingUserInput = true
}

// SetInterrupted marks the current turn as interrupted.
func (ctrl *LoopControl) SetInterrupted() { ctrl.interrupted = true }

// SetShutdown marks the session as shut down and interrupts the current
// turn. The Shutdown event itself is emitted by the loop once the turn has
// actually settled, not here — see runSessionLoop.
func (ctrl *LoopControl) SetShutdown(reason string) {
	ctrl.shutdownRequested = true
	ctrl.shutdownReason = reason
	ctrl.interrupted = true
}

// ShutdownReason returns the reason given with the request_shutdown signal.
func (ctrl *LoopControl) ShutdownReason() string { return ctrl.shutdownReason }

// SetPhase updates the current turn phase (visible via the get_state query).
func (ctrl *LoopControl) SetPhase(p TurnPhase) { ctrl.phase = p }

// Phase returns the current turn phase.
func (ctrl *LoopControl) Phase() TurnPhase { return ctrl.phase }

// SetToolsInFlight records the names of currently executing tools.
func (ctrl *LoopControl) SetToolsInFlight(names []string) { ctrl.toolsInFlight = names }

// ClearToolsInFlight clears the in-flight tool list.
func (ctrl *LoopControl) ClearToolsInFlight() { ctrl.toolsInFlight = nil }

// CurrentTurnID returns the active turn ID.
func (ctrl *LoopControl) CurrentTurnID() string { return ctrl.currentTurnID }

// ToolsInFlight returns the currently in-flight tool names.
func (ctrl *LoopControl) ToolsInFlight() []string { return ctrl.toolsInFlight }

// PendingApprovals returns the current pending approval list.
func (ctrl *LoopControl) PendingApprovals() []PendingApproval { return ctrl.pendingApprovals }

// HasPendingWork returns true if the loop has work to do without waiting.
func (ctrl *LoopControl) HasPendingWork() bool {
	return ctrl.pendingUserInput || ctrl.shutdownRequested
}

// IsShutdown returns true if a shutdown has been requested.
func (ctrl *LoopControl) IsShutdown() bool { return ctrl.shutdownRequested }

// IsInterrupted returns true if the current turn has been interrupted.
func (ctrl *LoopControl) IsInterrupted() bool { return ctrl.interrupted }

// StartTurn resets per-turn flags. Called at the start of each agentic turn.
func (ctrl *LoopControl) StartTurn() {
	ctrl.pendingUserInput = false
	ctrl.interrupted = false
}

// WaitForInput blocks until a user turn or shutdown is signaled.
func (ctrl *LoopControl) WaitForInput(ctx workflow.Context) error {
	return workflow.Await(ctx, func() bool {
		return ctrl.pendingUserInput || ctrl.shutdownRequested
	})
}

// AwaitApproval sets approval-pending state, blocks until a response arrives
// or the turn is interrupted, then returns the response. Returns nil if
// interrupted or shutdown before a response arrived.
func (ctrl *LoopControl) AwaitApproval(ctx workflow.Context, needsApproval []PendingApproval) (*ApprovalResponse, error) {
	logger := workflow.GetLogger(ctx)

	ctrl.phase = PhaseApprovalPending
	ctrl.pendingApprovals = needsApproval
	ctrl.approvalSlot.clear()

	logger.Info("Waiting for tool approval", "count", len(needsApproval))

	err := workflow.Await(ctx, func() bool {
		return ctrl.approvalSlot.Ready() || ctrl.interrupted || ctrl.shutdownRequested
	})
	if err != nil {
		return nil, fmt.Errorf("approval await failed: %w", err)
	}

	ctrl.pendingApprovals = nil

	if ctrl.interrupted || ctrl.shutdownRequested {
		logger.Info("Approval wait interrupted")
		return nil, nil
	}
	return ctrl.approvalSlot.Take(), nil
}
