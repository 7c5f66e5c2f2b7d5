package activities

import (
	"context"

	"github.com/mfateev/agentharness/internal/models"
	"github.com/mfateev/agentharness/internal/storage"
	"github.com/mfateev/agentharness/internal/tools"
)

// ToolActivityInput is the input for tool execution.
type ToolActivityInput struct {
	CallID         string                 `json:"call_id"`
	ToolName       string                 `json:"tool_name"`
	Arguments      map[string]interface{} `json:"arguments"`
	Cwd            string                 `json:"cwd,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

// ToolActivityOutput is the output from tool execution.
type ToolActivityOutput struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	Success bool   `json:"success"`
}

// ToolActivities contains tool-related activities.
type ToolActivities struct {
	registry *tools.ToolRegistry
	store    *storage.Store
}

// NewToolActivities creates a new ToolActivities instance. store holds
// per-conversation state (e.g. the shell tool's working directory) that
// must survive across activity calls within one conversation but not
// across worker restarts; pass nil to run without it.
func NewToolActivities(registry *tools.ToolRegistry, store *storage.Store) *ToolActivities {
	return &ToolActivities{registry: registry, store: store}
}

// ExecuteTool dispatches a single tool call to its registered handler.
//
// A missing handler or a validation failure is returned as a non-retryable
// ApplicationError carrying models.ToolErrorDetails, so the workflow can
// surface the reason to the LLM as a failed tool result instead of Temporal
// retrying a deterministically-failing call. Other errors (e.g. a transient
// exec failure) propagate for Temporal's normal activity retry policy.
func (a *ToolActivities) ExecuteTool(ctx context.Context, input ToolActivityInput) (ToolActivityOutput, error) {
	handler, err := a.registry.GetHandler(input.ToolName)
	if err != nil {
		return ToolActivityOutput{}, models.NewToolErrorApplicationError("tool not found: " + input.ToolName)
	}

	invocation := &tools.ToolInvocation{
		CallID:    input.CallID,
		ToolName:  input.ToolName,
		Arguments: input.Arguments,
		Cwd:       input.Cwd,
		Heartbeat: func(details ...interface{}) {},
	}
	if a.store != nil && input.ConversationID != "" {
		invocation.Store = a.store.GetOrCreate(input.ConversationID)
	}

	output, err := handler.Handle(ctx, invocation)
	if err != nil {
		if tools.IsValidationError(err) {
			return ToolActivityOutput{}, models.NewToolErrorApplicationError(err.Error())
		}
		return ToolActivityOutput{}, err
	}

	success := true
	if output.Success != nil {
		success = *output.Success
	}

	return ToolActivityOutput{
		CallID:  input.CallID,
		Content: output.Content,
		Success: success,
	}, nil
}
