// Package workflow contains Temporal workflow definitions.
//
// turn.go implements the single-turn agentic loop: call the model, emit its
// message, gate and execute any tool calls it requested, and repeat until
// the model returns a message with no outstanding tool calls. Everything
// here runs inside the workflow goroutine — no background goroutines, no
// direct I/O — so the loop replays deterministically from activity results
// recorded in workflow history.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/mfateev/agentharness/internal/activities"
	"github.com/mfateev/agentharness/internal/events"
	"github.com/mfateev/agentharness/internal/models"
	"github.com/mfateev/agentharness/internal/tools"
)

// maxRepeatToolCalls bounds how many consecutive iterations may request the
// exact same batch of tool calls before the turn is ended as a safety
// valve against a runaway loop.
const maxRepeatToolCalls = 4

// outputExcerptLen caps how much of a tool's output is echoed into the
// ToolCallEnd event; the full content still goes into history for the
// model to see.
const outputExcerptLen = 200

// runAgenticTurn drives one turn to completion: repeated model_call / tool
// rounds until the model emits no tool calls, the turn is cancelled, or the
// per-turn iteration cap is hit. It never returns a non-nil error for
// ordinary model/tool failures — those are recorded as Error events — only
// for conditions that should abort the workflow run itself.
func (s *SessionState) runAgenticTurn(ctx workflow.Context, ctrl *LoopControl, registry *tools.ToolRegistry) error {
	logger := workflow.GetLogger(ctx)
	s.compactedThisTurn = false
	s.IterationCount = 0

	turnID := ctrl.CurrentTurnID()
	gate := NewApprovalGate(s.Config.ApprovalMode, s.Config.ExecPolicyRules, registry, s.ApprovalCache)
	executor := NewToolExecutor(s.ToolSpecs, s.Config.Cwd, s.Config.SessionTaskQueue, s.ConversationID)

	maxIterations := s.Config.MaxIterationsPerTurn
	if maxIterations <= 0 {
		maxIterations = 50
	}

	var lastToolKey string
	var repeatCount int

	for ; s.IterationCount < maxIterations; s.IterationCount++ {
		s.TotalIterationsForCAN++
		if ctrl.IsInterrupted() {
			s.abortTurn(turnID, "cancelled")
			return nil
		}

		s.maybeCompactBeforeLLM(ctx, ctrl)

		ctrl.SetPhase(PhaseLLMCalling)
		llmResult, err := s.callLLM(ctx)
		if err != nil {
			retry, fatalErr := s.handleLLMError(ctx, ctrl, turnID, err)
			if fatalErr != nil {
				return fatalErr
			}
			if retry {
				continue
			}
			return nil
		}

		if ctrl.IsInterrupted() {
			s.abortTurn(turnID, "cancelled")
			return nil
		}

		s.recordLLMResponse(ctx, llmResult)
		s.emitAgentMessages(turnID, llmResult.Items)

		calls := extractFunctionCalls(llmResult.Items)
		if len(calls) == 0 {
			s.Sink.Emit(events.Event{
				Kind:   events.KindTurnComplete,
				TurnID: turnID,
				Payload: events.TurnCompletePayload{
					Iterations:  s.IterationCount + 1,
					LastMessage: lastAssistantMessage(llmResult.Items),
				},
			})
			ctrl.SetPhase(PhaseWaitingForInput)
			return nil
		}

		key := toolCallsKey(calls)
		if key == lastToolKey {
			repeatCount++
		} else {
			lastToolKey = key
			repeatCount = 1
		}
		if repeatCount >= maxRepeatToolCalls {
			logger.Warn("detected repeated identical tool calls, ending turn", "repeat_count", repeatCount)
			msg := "[Turn ended: detected repeated identical tool calls. Please try a different approach.]"
			_ = s.History.AddItem(models.ConversationItem{Type: models.ItemTypeAssistantMessage, Content: msg, TurnID: turnID})
			s.Sink.Emit(events.Event{
				Kind:    events.KindTurnComplete,
				TurnID:  turnID,
				Payload: events.TurnCompletePayload{Iterations: s.IterationCount + 1, LastMessage: msg},
			})
			ctrl.SetPhase(PhaseWaitingForInput)
			return nil
		}

		aborted, err := s.approveAndExecuteTools(ctx, ctrl, gate, executor, turnID, calls)
		if err != nil {
			return err
		}
		if aborted {
			s.abortTurn(turnID, "cancelled")
			return nil
		}
	}

	logger.Warn("max iterations per turn reached", "iterations", s.IterationCount)
	msg := fmt.Sprintf("[Turn ended: reached maximum of %d iterations without completing. The task may need to be broken into smaller steps.]", maxIterations)
	_ = s.History.AddItem(models.ConversationItem{Type: models.ItemTypeAssistantMessage, Content: msg, TurnID: turnID})
	s.Sink.Emit(events.Event{
		Kind:    events.KindTurnComplete,
		TurnID:  turnID,
		Payload: events.TurnCompletePayload{Iterations: s.IterationCount, LastMessage: msg},
	})
	ctrl.SetPhase(PhaseWaitingForInput)
	return nil
}

// abortTurn records a TurnAborted event and returns the workflow to Idle.
// Used when a turn ends early because of a cancel or shutdown request
// rather than running to completion.
func (s *SessionState) abortTurn(turnID, reason string) {
	s.Sink.Emit(events.Event{
		Kind:    events.KindTurnAborted,
		TurnID:  turnID,
		Payload: events.TurnAbortedPayload{Reason: reason},
	})
}

// emitAgentMessages emits an AgentMessage event for every assistant message
// item in a model response.
func (s *SessionState) emitAgentMessages(turnID string, items []models.ConversationItem) {
	for _, item := range items {
		if item.Type == models.ItemTypeAssistantMessage && item.Content != "" {
			s.Sink.Emit(events.Event{
				Kind:    events.KindAgentMessage,
				TurnID:  turnID,
				Payload: events.AgentMessagePayload{Content: item.Content},
			})
		}
	}
}

// effectiveAutoCompactLimit returns the auto-compact token limit, clamped to
// 90% of the context window so a configured limit can never exceed the
// model's actual capacity (relevant after a model switch to a smaller
// context window).
func (s *SessionState) effectiveAutoCompactLimit() int {
	configured := s.Config.AutoCompactTokenLimit
	if configured <= 0 {
		return 0
	}
	contextLimit := s.Config.Model.ContextWindow * 9 / 10
	if contextLimit > 0 && contextLimit < configured {
		return contextLimit
	}
	return configured
}

// maybeCompactBeforeLLM proactively compacts history when its estimated
// token count has crossed the effective limit, so a turn rarely has to
// recover from a context-overflow error reactively.
func (s *SessionState) maybeCompactBeforeLLM(ctx workflow.Context, ctrl *LoopControl) {
	if s.compactedThisTurn {
		return
	}
	limit := s.effectiveAutoCompactLimit()
	if limit <= 0 {
		return
	}

	logger := workflow.GetLogger(ctx)
	estimated, _ := s.History.EstimateTokenCount()
	if estimated < limit {
		return
	}

	logger.Info("proactive compaction triggered", "estimated_tokens", estimated, "limit", limit)
	ctrl.SetPhase(PhaseCompacting)
	if err := s.performCompaction(ctx); err != nil {
		logger.Warn("proactive compaction failed, continuing without", "error", err)
	}
	ctrl.SetPhase(PhaseLLMCalling)
}

// performCompaction summarizes the conversation so far via the ExecuteCompact
// activity and replaces history with the summary, keeping the event sink's
// retention in lockstep so polling clients are told to resync.
func (s *SessionState) performCompaction(ctx workflow.Context) error {
	items, err := s.History.GetForPrompt()
	if err != nil {
		return fmt.Errorf("failed to read history for compaction: %w", err)
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    2,
		},
	}
	cctx := workflow.WithActivityOptions(ctx, actOpts)

	input := activities.CompactActivityInput{
		Provider: s.Config.Model.Provider,
		Model:    s.Config.Model.Model,
		Input:    items,
	}

	var out activities.CompactActivityOutput
	if err := workflow.ExecuteActivity(cctx, "ExecuteCompact", input).Get(ctx, &out); err != nil {
		return err
	}

	if err := s.History.ReplaceAll(out.Items); err != nil {
		return fmt.Errorf("failed to install compacted history: %w", err)
	}

	s.CompactionCount++
	s.compactedThisTurn = true
	s.TotalTokens += out.TokenUsage.TotalTokens
	s.LastResponseID = ""
	s.lastSentHistoryLen = 0

	// Keep a short tail of recent events; everything older is no longer
	// reconstructable from history, so a client watching from before the
	// compaction must resync.
	s.Sink.Compact(20)

	return nil
}

// callLLM prepares the (possibly incremental) history slice and executes
// the model_call activity.
func (s *SessionState) callLLM(ctx workflow.Context) (*activities.LLMActivityOutput, error) {
	historyItems, err := s.History.GetForPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var inputItems []models.ConversationItem
	var previousResponseID string
	if s.LastResponseID != "" && s.lastSentHistoryLen > 0 && s.lastSentHistoryLen <= len(historyItems) {
		inputItems = historyItems[s.lastSentHistoryLen:]
		previousResponseID = s.LastResponseID
	} else {
		inputItems = historyItems
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	llmCtx := workflow.WithActivityOptions(ctx, actOpts)

	input := activities.LLMActivityInput{
		History:               inputItems,
		ModelConfig:           s.Config.Model,
		ToolSpecs:             s.ToolSpecs,
		BaseInstructions:      s.Config.BaseInstructions,
		DeveloperInstructions: s.Config.DeveloperInstructions,
		UserInstructions:      s.Config.UserInstructions,
		PreviousResponseID:    previousResponseID,
	}

	var result activities.LLMActivityOutput
	if err := workflow.ExecuteActivity(llmCtx, "model_call", input).Get(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// handleLLMError classifies a failed model_call activity. Context-overflow
// and rate-limit errors are recoverable in place (compact-and-retry,
// sleep-and-retry); anything else is recorded as a non-recoverable-to-retry
// Error event and ends the turn. Returns (retry, fatalErr); fatalErr is only
// non-nil for a condition that should abort the whole workflow run, which
// ordinary activity failures never are.
func (s *SessionState) handleLLMError(ctx workflow.Context, ctrl *LoopControl, turnID string, err error) (retry bool, fatalErr error) {
	logger := workflow.GetLogger(ctx)

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case models.ErrorTypeContextOverflow.String():
			logger.Warn("context overflow, compacting and retrying", "error", err)
			if cErr := s.performCompaction(ctx); cErr != nil {
				logger.Warn("compaction failed, falling back to dropping oldest turns", "error", cErr)
				turnCount, _ := s.History.GetTurnCount()
				keep := turnCount / 2
				if keep < 1 {
					keep = 1
				}
				_, _ = s.History.DropOldestUserTurns(keep)
				s.LastResponseID = ""
				s.lastSentHistoryLen = 0
			}
			return true, nil

		case models.ErrorTypeAPILimit.String():
			logger.Warn("rate limited, sleeping before retry", "error", err)
			workflow.Sleep(ctx, time.Minute)
			return true, nil
		}

		logger.Error("model_call failed, ending turn", "error_type", appErr.Type(), "error", err)
		s.recordTurnError(ctrl, turnID, appErr.Type(), appErr.Message())
		return false, nil
	}

	logger.Error("model_call failed with unclassified error, ending turn", "error", err)
	s.recordTurnError(ctrl, turnID, "Unknown", err.Error())
	return false, nil
}

// recordTurnError records a recoverable Error event and an explanatory
// assistant message, then returns the workflow to Idle without a
// TurnComplete — the turn was aborted by a failure, not completed.
func (s *SessionState) recordTurnError(ctrl *LoopControl, turnID, errType, message string) {
	s.Sink.Emit(events.Event{
		Kind:    events.KindError,
		TurnID:  turnID,
		Payload: events.ErrorPayload{Type: errType, Message: message, Recoverable: true},
	})
	_ = s.History.AddItem(models.ConversationItem{
		Type:    models.ItemTypeAssistantMessage,
		Content: fmt.Sprintf("[Error: %s]", message),
		TurnID:  turnID,
	})
	ctrl.SetPhase(PhaseWaitingForInput)
}

// recordLLMResponse appends the model's response items to history and
// tracks token usage and the response-chaining cursor.
func (s *SessionState) recordLLMResponse(ctx workflow.Context, result *activities.LLMActivityOutput) {
	logger := workflow.GetLogger(ctx)

	s.TotalTokens += result.TokenUsage.TotalTokens
	s.TotalCachedTokens += result.TokenUsage.CachedTokens
	logger.Info("model_call completed",
		"tokens", result.TokenUsage.TotalTokens,
		"finish_reason", result.FinishReason,
		"items", len(result.Items))

	for _, item := range result.Items {
		_ = s.History.AddItem(item)
	}
	if result.ResponseID != "" {
		s.LastResponseID = result.ResponseID
		allItems, _ := s.History.GetForPrompt()
		s.lastSentHistoryLen = len(allItems)
	}
}

// approveAndExecuteTools runs one batch of tool calls through the approval
// gate and, for everything that clears it, through the tool_exec activity.
// Returns aborted=true if the turn was cancelled or the workflow was asked
// to shut down while waiting for an approval decision.
func (s *SessionState) approveAndExecuteTools(
	ctx workflow.Context,
	ctrl *LoopControl,
	gate *ApprovalGate,
	executor *ToolExecutor,
	turnID string,
	calls []models.ConversationItem,
) (aborted bool, err error) {
	logger := workflow.GetLogger(ctx)

	needsApproval, forbidden := gate.Classify(calls)
	for _, fr := range forbidden {
		_ = s.History.AddItem(fr)
	}
	calls = filterByCallID(calls, forbidden)
	if len(calls) == 0 {
		return false, nil
	}

	if len(needsApproval) > 0 {
		for _, pa := range needsApproval {
			s.Sink.Emit(events.Event{
				Kind:   events.KindExecApprovalNeeded,
				TurnID: turnID,
				Payload: events.ExecApprovalRequestPayload{
					CallID:   pa.CallID,
					ToolName: pa.ToolName,
					Command:  approvalCommand(pa),
					Cwd:      s.Config.Cwd,
				},
			})
		}

		resp, err := ctrl.AwaitApproval(ctx, needsApproval)
		if err != nil {
			return false, err
		}
		if resp == nil {
			// Cancelled or shutting down while awaiting a decision: every
			// call in this batch — not just the ones that triggered the
			// approval prompt — needs a synthesised denial so history
			// never carries a FunctionCall with no matching
			// FunctionCallOutput into the next model_call.
			for _, c := range calls {
				_ = s.History.AddItem(deniedOutput(c.CallID, "denied"))
			}
			return true, nil
		}

		var deniedResults []models.ConversationItem
		calls, deniedResults = gate.ApplyDecision(calls, resp)
		for _, dr := range deniedResults {
			_ = s.History.AddItem(dr)
		}
	}

	if len(calls) == 0 {
		ctrl.SetPhase(PhaseLLMCalling)
		return false, nil
	}

	ctrl.SetPhase(PhaseToolExecuting)
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	ctrl.SetToolsInFlight(names)

	for _, c := range calls {
		s.Sink.Emit(events.Event{
			Kind:    events.KindToolCallBegin,
			TurnID:  turnID,
			Payload: events.ToolCallBeginPayload{CallID: c.CallID, ToolName: c.Name},
		})
	}

	logger.Info("executing tools", "count", len(calls))
	results, _ := executor.ExecuteParallel(ctx, calls)
	ctrl.ClearToolsInFlight()

	for i, c := range calls {
		var result activities.ToolActivityOutput
		if i < len(results) {
			result = results[i]
		} else {
			result = activities.ToolActivityOutput{CallID: c.CallID, Content: "no result", Success: false}
		}

		s.ToolCallsExecuted = append(s.ToolCallsExecuted, c.Name)
		success := result.Success
		_ = s.History.AddItem(models.ConversationItem{
			Type:   models.ItemTypeFunctionCallOutput,
			CallID: result.CallID,
			Output: &models.FunctionCallOutputPayload{Content: result.Content, Success: &success},
			TurnID: turnID,
		})
		s.Sink.Emit(events.Event{
			Kind:   events.KindToolCallEnd,
			TurnID: turnID,
			Payload: events.ToolCallEndPayload{
				CallID:  result.CallID,
				Success: result.Success,
				Summary: excerpt(result.Content, outputExcerptLen),
			},
		})
	}

	ctrl.SetPhase(PhaseLLMCalling)
	return false, nil
}

// extractFunctionCalls filters a model response down to its function-call
// items, in order.
func extractFunctionCalls(items []models.ConversationItem) []models.ConversationItem {
	var calls []models.ConversationItem
	for _, item := range items {
		if item.Type == models.ItemTypeFunctionCall {
			calls = append(calls, item)
		}
	}
	return calls
}

// lastAssistantMessage returns the content of the last assistant message in
// items, or "" if there is none.
func lastAssistantMessage(items []models.ConversationItem) string {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Type == models.ItemTypeAssistantMessage {
			return items[i].Content
		}
	}
	return ""
}

// toolCallsKey canonicalizes a batch of tool calls for repeated-loop
// detection: names and arguments, in call order.
func toolCallsKey(calls []models.ConversationItem) string {
	var b strings.Builder
	for _, c := range calls {
		b.WriteString(c.Name)
		b.WriteByte('\x00')
		b.WriteString(c.Arguments)
		b.WriteByte('\x1f')
	}
	return b.String()
}

// filterByCallID returns calls with any CallID found in exclude removed.
func filterByCallID(calls, exclude []models.ConversationItem) []models.ConversationItem {
	if len(exclude) == 0 {
		return calls
	}
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e.CallID] = true
	}
	var remaining []models.ConversationItem
	for _, c := range calls {
		if !excluded[c.CallID] {
			remaining = append(remaining, c)
		}
	}
	return remaining
}

// approvalCommand derives a human-readable command string for an
// ExecApprovalRequest event: the shell command argument for the shell tool,
// or the tool name plus raw arguments for anything else.
func approvalCommand(pa PendingApproval) string {
	if pa.ToolName == "shell" {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(pa.Arguments), &args); err == nil {
			if cmd, ok := args["command"].(string); ok && cmd != "" {
				return cmd
			}
		}
	}
	return fmt.Sprintf("%s %s", pa.ToolName, pa.Arguments)
}

// excerpt truncates s to at most n bytes, appending an ellipsis marker if
// truncated.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
