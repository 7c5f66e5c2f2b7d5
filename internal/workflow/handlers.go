// Package workflow contains Temporal workflow definitions.
//
// handlers.go registers the workflow's external protocol: four signals
// (receive_user_turn, receive_approval, request_shutdown, request_cancel)
// and two queries (get_events_since, get_state). Signals are drained by
// dedicated goroutines so delivery is asynchronous with respect to the main
// loop; no handler mutates LoopControl fields directly — they call typed
// methods (DeliverApproval, SetPendingUserInput, SetShutdown, SetInterrupted).
package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/mfateev/agentharness/internal/events"
	"github.com/mfateev/agentharness/internal/models"
)

// buildGetStateResponse constructs a GetStateResponse from the current
// session and control state.
func (s *SessionState) buildGetStateResponse(ctrl *LoopControl) GetStateResponse {
	return GetStateResponse{
		Phase:             ctrl.Phase(),
		CurrentTurnID:     ctrl.CurrentTurnID(),
		ToolsInFlight:     ctrl.ToolsInFlight(),
		PendingApprovals:  ctrl.PendingApprovals(),
		IterationCount:    s.IterationCount,
		TotalTokens:       s.TotalTokens,
		TotalCachedTokens: s.TotalCachedTokens,
		LatestEventIndex:  s.Sink.LatestIndex(),
	}
}

// registerHandlers wires the workflow's signal and query handlers.
func (s *SessionState) registerHandlers(ctx workflow.Context, ctrl *LoopControl) {
	logger := workflow.GetLogger(ctx)

	if err := workflow.SetQueryHandler(ctx, QueryGetEventsSince, func(req GetEventsSinceRequest) (GetEventsSinceResponse, error) {
		evs, compacted := s.Sink.EventsSince(req.Since)
		return GetEventsSinceResponse{Events: evs, Compacted: compacted}, nil
	}); err != nil {
		logger.Error("Failed to register get_events_since query handler", "error", err)
	}

	if err := workflow.SetQueryHandler(ctx, QueryGetState, func() (GetStateResponse, error) {
		return s.buildGetStateResponse(ctrl), nil
	}); err != nil {
		logger.Error("Failed to register get_state query handler", "error", err)
	}

	userTurnCh := workflow.GetSignalChannel(ctx, SignalReceiveUserTurn)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var turn UserTurn
			if !userTurnCh.Receive(gCtx, &turn) {
				return
			}
			if turn.Content == "" || ctrl.IsShutdown() {
				continue
			}

			turnID := s.nextTurnID()
			if err := s.History.AddItem(models.ConversationItem{
				Type:   models.ItemTypeTurnStarted,
				TurnID: turnID,
			}); err != nil {
				logger.Error("Failed to record turn start", "error", err)
				continue
			}
			s.Sink.Emit(events.Event{Kind: events.KindTurnStarted, TurnID: turnID})

			if err := s.History.AddItem(models.ConversationItem{
				Type:    models.ItemTypeUserMessage,
				Content: turn.Content,
				TurnID:  turnID,
			}); err != nil {
				logger.Error("Failed to record user message", "error", err)
				continue
			}

			ctrl.SetPendingUserInput(turnID)
		}
	})

	approvalCh := workflow.GetSignalChannel(ctx, SignalReceiveApproval)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var resp ApprovalResponse
			if !approvalCh.Receive(gCtx, &resp) {
				return
			}
			if ctrl.Phase() != PhaseApprovalPending {
				logger.Warn("Received approval response with no approval pending")
				continue
			}
			ctrl.DeliverApproval(resp)
		}
	})

	shutdownCh := workflow.GetSignalChannel(ctx, SignalRequestShutdown)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var req ShutdownRequest
		if !shutdownCh.Receive(gCtx, &req) {
			return
		}
		// Only mark the request here; the Shutdown event is emitted by the
		// loop after the current turn settles, so it never interleaves
		// ahead of that turn's own TurnComplete/TurnAborted event.
		ctrl.SetShutdown(req.Reason)
	})

	cancelCh := workflow.GetSignalChannel(ctx, SignalRequestCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var req CancelRequest
			if !cancelCh.Receive(gCtx, &req) {
				return
			}
			ctrl.SetInterrupted()
		}
	})
}
