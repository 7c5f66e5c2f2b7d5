// Package handlers contains built-in tool handler implementations.
//
// Corresponds to: codex-rs/core/src/tools/handlers/
package handlers

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/mfateev/agentharness/internal/command_safety"
	execlimit "github.com/mfateev/agentharness/internal/exec"
	"github.com/mfateev/agentharness/internal/tools"
)

// cwdStoreKey is the per-conversation KV key the shell tool uses to carry
// its working directory across calls — each invocation spawns a fresh
// bash process, so a bare `cd` inside one call has no effect on the next
// unless the resulting directory is captured and replayed as the start
// directory for subsequent calls.
const cwdStoreKey = "shell.cwd"

// cwdMarker delimits the trailing $PWD line the wrapped command prints so
// Handle can recover the post-command directory and strip the marker
// before returning output to the model.
const cwdMarker = "__agentharness_cwd__:"

// ShellTool executes shell commands.
//
// Maps to: codex-rs/core/src/tools/handlers/shell.rs
type ShellTool struct{}

// NewShellTool creates a new shell tool handler.
func NewShellTool() *ShellTool {
	return &ShellTool{}
}

// Name returns the tool's name.
func (t *ShellTool) Name() string {
	return "shell"
}

// Kind returns ToolKindFunction.
func (t *ShellTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating reports whether the command might modify the environment.
// Known read-only commands (ls, cat, grep, git status, ...) are classified
// as non-mutating so several can run concurrently within one turn.
func (t *ShellTool) IsMutating(invocation *tools.ToolInvocation) bool {
	command, ok := invocation.Arguments["command"].(string)
	if !ok || command == "" {
		return true
	}
	return !command_safety.IsKnownSafeCommand([]string{"bash", "-c", command})
}

// Handle executes a shell command. Timeout is managed by Temporal's
// StartToCloseTimeout on the activity options — the context is cancelled
// when the timeout fires, and Temporal retries per the RetryPolicy.
//
// Maps to: codex-rs/core/src/tools/handlers/shell.rs handle
func (t *ShellTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	commandArg, ok := invocation.Arguments["command"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: command")
	}

	command, ok := commandArg.(string)
	if !ok {
		return nil, tools.NewValidationError("command must be a string")
	}

	if command == "" {
		return nil, tools.NewValidationError("command cannot be empty")
	}

	startDir := invocation.Cwd
	if invocation.Store != nil {
		if v, ok := invocation.Store.Get(cwdStoreKey); ok {
			if stored, ok := v.(string); ok && stored != "" {
				startDir = stored
			}
		}
	}

	// Append a trailing marker line so the post-command $PWD survives this
	// process exit and can seed the next invocation's start directory.
	wrapped := command + "\nprintf '\\n" + cwdMarker + "%s\\n' \"$PWD\""

	cmd := exec.CommandContext(ctx, "bash", "-c", wrapped)
	if startDir != "" {
		cmd.Dir = startDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	stdoutBytes, endCwd := extractCwdMarker(stdout.Bytes())
	if invocation.Store != nil && endCwd != "" {
		invocation.Store.Put(cwdStoreKey, endCwd)
	}

	aggregated := execlimit.AggregateOutput(stdoutBytes, stderr.Bytes())
	content := string(aggregated)
	if len(aggregated) >= execlimit.ExecOutputMaxBytes {
		content += "\n[output truncated at 1 MiB]"
	}

	if err != nil {
		if ctx.Err() != nil {
			// Context cancelled or deadline exceeded — let Temporal handle retry.
			return nil, ctx.Err()
		}
		// Command failed but produced output - return as tool result with Success=false
		success := false
		return &tools.ToolOutput{
			Content: content,
			Success: &success,
		}, nil
	}

	success := true
	return &tools.ToolOutput{
		Content: content,
		Success: &success,
	}, nil
}

// extractCwdMarker strips the trailing cwdMarker line appended by Handle
// and returns the remaining stdout along with the directory it reported,
// if any.
func extractCwdMarker(stdout []byte) ([]byte, string) {
	trimmed := strings.TrimRight(string(stdout), "\n")
	idx := strings.LastIndex(trimmed, "\n"+cwdMarker)
	if idx == -1 {
		if strings.HasPrefix(trimmed, cwdMarker) {
			return []byte{}, strings.TrimPrefix(trimmed, cwdMarker)
		}
		return stdout, ""
	}
	dir := trimmed[idx+1+len(cwdMarker):]
	return []byte(trimmed[:idx]), dir
}
