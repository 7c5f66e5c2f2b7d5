// Package workflow contains Temporal workflow definitions.
//
// workflow.go is the durable-execution entry point: it owns SessionState
// for the life of one conversation and drives Idle -> Running -> Idle until
// a shutdown is requested or accumulated history warrants a ContinueAsNew.
package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/mfateev/agentharness/internal/events"
	"github.com/mfateev/agentharness/internal/models"
	"github.com/mfateev/agentharness/internal/tools"
	"github.com/mfateev/agentharness/internal/tools/handlers"
)

// continueAsNewIterationThreshold bounds total iterations accumulated
// across turns within a single workflow run; once crossed, the run hands
// off to a fresh one via ContinueAsNew so Temporal history doesn't grow
// without bound over a long-lived conversation.
const continueAsNewIterationThreshold = 200

// newToolRegistry builds the registry of built-in tool handlers used inside
// the workflow for approval classification (IsMutating). Handlers only run
// for real inside the tool_exec activity on a worker — the workflow never
// calls Handle directly, so this registry exists purely for the pure,
// deterministic parts of ToolHandler.
func newToolRegistry() *tools.ToolRegistry {
	registry := tools.NewToolRegistry()
	registry.Register(handlers.NewShellTool())
	registry.Register(handlers.NewReadFileTool())
	return registry
}

// AgenticWorkflow is the workflow entry point for a brand-new conversation.
func AgenticWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	s := &SessionState{
		ConversationID: input.ConversationID,
		Config:         input.Config,
		ApprovalCache:  make(map[string]bool),
		Sink:           events.NewInMemorySink(),
	}
	return runSessionLoop(ctx, s, input.UserMessage)
}

// AgenticWorkflowContinued is the ContinueAsNew re-entry point: state is
// the carried-over SessionState from the previous run, already idle (no
// in-flight tool execution or pending approval survives a ContinueAsNew).
func AgenticWorkflowContinued(ctx workflow.Context, state SessionState) (WorkflowResult, error) {
	return runSessionLoop(ctx, &state, "")
}

// runSessionLoop is the core loop shared by both entry points: register the
// protocol handlers, seed the first turn if one is already known, then wait
// for user turns and run them until shutdown or ContinueAsNew.
func runSessionLoop(ctx workflow.Context, s *SessionState, initialUserMessage string) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	if s.Sink == nil {
		s.Sink = events.NewInMemorySink()
	}
	if s.ApprovalCache == nil {
		s.ApprovalCache = make(map[string]bool)
	}
	s.initHistory()
	s.resolveProfile()
	s.ToolSpecs = buildToolSpecs(s.Config.Tools, s.ResolvedProfile)

	registry := newToolRegistry()
	ctrl := &LoopControl{}
	s.registerHandlers(ctx, ctrl)

	s.Sink.Emit(events.Event{
		Kind: events.KindSessionConfigured,
		Payload: events.SessionConfiguredPayload{
			ConversationID: s.ConversationID,
			Model:          s.Config.Model.Model,
		},
	})

	if initialUserMessage != "" {
		turnID := s.nextTurnID()
		if err := s.History.AddItem(models.ConversationItem{Type: models.ItemTypeTurnStarted, TurnID: turnID}); err != nil {
			return WorkflowResult{}, err
		}
		s.Sink.Emit(events.Event{Kind: events.KindTurnStarted, TurnID: turnID})
		if err := s.History.AddItem(models.ConversationItem{Type: models.ItemTypeUserMessage, Content: initialUserMessage, TurnID: turnID}); err != nil {
			return WorkflowResult{}, err
		}
		ctrl.SetPendingUserInput(turnID)
	}

	for {
		if !ctrl.HasPendingWork() {
			if err := ctrl.WaitForInput(ctx); err != nil {
				return WorkflowResult{}, err
			}
		}

		if ctrl.IsShutdown() {
			break
		}

		ctrl.StartTurn()
		if err := s.runAgenticTurn(ctx, ctrl, registry); err != nil {
			return WorkflowResult{}, err
		}

		if s.shouldContinueAsNew() {
			logger.Info("continuing as new",
				"total_iterations", s.TotalIterationsForCAN,
				"compaction_count", s.CompactionCount)
			s.syncHistoryItems()
			_ = workflow.Await(ctx, func() bool { return workflow.AllHandlersFinished(ctx) })
			return WorkflowResult{}, workflow.NewContinueAsNewError(ctx, AgenticWorkflowContinued, *s)
		}
	}

	s.Sink.Emit(events.Event{Kind: events.KindShutdown, Payload: events.ShutdownPayload{Reason: ctrl.ShutdownReason()}})

	_ = workflow.Await(ctx, func() bool { return workflow.AllHandlersFinished(ctx) })

	return WorkflowResult{
		ConversationID:    s.ConversationID,
		TotalIterations:   s.TotalIterationsForCAN,
		TotalTokens:       s.TotalTokens,
		TotalCachedTokens: s.TotalCachedTokens,
		ToolCallsExecuted: s.ToolCallsExecuted,
		EndReason:         "shutdown",
	}, nil
}

// shouldContinueAsNew reports whether enough work has accumulated in this
// run that a fresh run (with a fresh, small Temporal history) is warranted.
func (s *SessionState) shouldContinueAsNew() bool {
	if s.TotalIterationsForCAN >= continueAsNewIterationThreshold {
		return true
	}
	limit := s.effectiveAutoCompactLimit()
	if limit <= 0 {
		return false
	}
	estimated, err := s.History.EstimateTokenCount()
	if err != nil {
		return false
	}
	// A history that keeps re-growing past several compactions in a row is
	// costing more in compaction activity calls than a ContinueAsNew would.
	return s.CompactionCount >= 3 && estimated >= limit
}
