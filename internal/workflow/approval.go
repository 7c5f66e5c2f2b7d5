// Package workflow contains Temporal workflow definitions.
//
// approval.go implements the tool-call approval gate: which function calls
// from a model turn must wait for the user before they run, grounded on the
// execpolicy Starlark rule engine plus the command_safety heuristic it falls
// back to.
package workflow

import (
	"encoding/json"

	"github.com/mfateev/agentharness/internal/execpolicy"
	"github.com/mfateev/agentharness/internal/models"
	"github.com/mfateev/agentharness/internal/tools"
)

// ApprovalGate classifies function calls against the session's approval
// policy and applies the user's approve/deny decision.
//
// ApprovalModeNever never requires approval. ApprovalModeAlways requires it
// for every call not already in the approval cache. ApprovalModeOnRequest
// skips non-mutating calls, then consults the Starlark rule
// policy first (pre-authorized command prefixes) and falls back to
// command_safety's heuristic for anything the rules don't cover.
type ApprovalGate struct {
	mode     models.ApprovalMode
	policy   *execpolicy.ExecPolicyManager
	registry *tools.ToolRegistry
	cache    map[string]bool
}

// NewApprovalGate builds a gate from the session's approval mode and raw
// Starlark rules source. cache is the session's approval cache (survives
// across turns and ContinueAsNew) — the gate mutates it in place as calls
// get approved so identical future calls skip the prompt.
func NewApprovalGate(mode models.ApprovalMode, execPolicyRules string, registry *tools.ToolRegistry, cache map[string]bool) *ApprovalGate {
	policy, err := execpolicy.LoadExecPolicyFromSource(execPolicyRules)
	if err != nil {
		policy = execpolicy.NewExecPolicyManager(execpolicy.NewPolicy())
	}
	return &ApprovalGate{mode: mode, policy: policy, registry: registry, cache: cache}
}

// approvalCacheKey canonicalizes a tool call's identity for caching:
// tool_name + NUL + the arguments object re-marshaled (encoding/json sorts
// map keys on marshal, so this is stable regardless of the model's argument
// ordering).
func approvalCacheKey(name, argsJSON string) string {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return name + "\x00" + argsJSON
	}
	canonical, err := json.Marshal(args)
	if err != nil {
		return name + "\x00" + argsJSON
	}
	return name + "\x00" + string(canonical)
}

func deniedOutput(callID, reason string) models.ConversationItem {
	success := false
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: &models.FunctionCallOutputPayload{
			Content: reason,
			Success: &success,
		},
	}
}

// evaluate resolves a single call to an approval requirement.
func (g *ApprovalGate) evaluate(fc models.ConversationItem) tools.ExecApprovalRequirement {
	if g.cache[approvalCacheKey(fc.Name, fc.Arguments)] {
		return tools.ApprovalSkip
	}

	if g.mode == models.ApprovalModeAlways {
		return tools.ApprovalNeeded
	}

	var args map[string]interface{}
	_ = json.Unmarshal([]byte(fc.Arguments), &args)

	if handler, err := g.registry.GetHandler(fc.Name); err == nil {
		invocation := &tools.ToolInvocation{ToolName: fc.Name, Arguments: args}
		if !handler.IsMutating(invocation) {
			return tools.ApprovalSkip
		}
	}

	switch g.mode {
	case models.ApprovalModeNever:
		return tools.ApprovalSkip
	default: // ApprovalModeOnRequest
		if fc.Name == "shell" {
			command, _ := args["command"].(string)
			return g.policy.EvaluateShellCommand(command, "on_request")
		}
		return tools.ApprovalNeeded
	}
}

// Classify splits a batch of function calls into those needing approval and
// those the policy forbids outright. Calls not returned in either list may
// execute immediately.
func (g *ApprovalGate) Classify(calls []models.ConversationItem) (needsApproval []PendingApproval, forbiddenResults []models.ConversationItem) {
	for _, fc := range calls {
		switch g.evaluate(fc) {
		case tools.ApprovalForbidden:
			forbiddenResults = append(forbiddenResults, deniedOutput(fc.CallID, "this command is forbidden by exec policy"))
		case tools.ApprovalNeeded:
			needsApproval = append(needsApproval, PendingApproval{
				CallID:    fc.CallID,
				ToolName:  fc.Name,
				Arguments: fc.Arguments,
			})
		case tools.ApprovalSkip:
			// runs without approval
		}
	}
	return needsApproval, forbiddenResults
}

// ApplyDecision partitions calls by the user's approval response, recording
// approved calls in the cache so identical future calls skip the prompt.
func (g *ApprovalGate) ApplyDecision(calls []models.ConversationItem, response *ApprovalResponse) (approved []models.ConversationItem, deniedResults []models.ConversationItem) {
	approvedIDs := make(map[string]bool)
	if response != nil {
		for _, id := range response.Approved {
			approvedIDs[id] = true
		}
	}

	for _, fc := range calls {
		if approvedIDs[fc.CallID] {
			g.cache[approvalCacheKey(fc.Name, fc.Arguments)] = true
			approved = append(approved, fc)
		} else {
			deniedResults = append(deniedResults, deniedOutput(fc.CallID, "denied by user"))
		}
	}
	return approved, deniedResults
}
