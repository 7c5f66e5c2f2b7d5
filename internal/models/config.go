package models

// WebSearchMode names a native web_search tool mode. Empty string means
// disabled. It is carried on llm.LLMRequest, but no provider client reads
// it, so setting it does not add a web_search tool.
type WebSearchMode string

const (
	WebSearchModeOff  WebSearchMode = ""
	WebSearchModeAuto WebSearchMode = "auto"
)

// ModelConfig configures the LLM model parameters for one conversation.
type ModelConfig struct {
	Provider      string  `json:"provider"` // "anthropic" or "openai"
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	ContextWindow int     `json:"context_window"`
}

// DefaultModelConfig returns a sensible default configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:      "anthropic",
		Model:         "claude-sonnet-4.5",
		Temperature:   0.7,
		MaxTokens:     4096,
		ContextWindow: 200000,
	}
}

// ToolsConfig configures which built-in tools are exposed to the model.
type ToolsConfig struct {
	EnableShell    bool `json:"enable_shell"`
	EnableReadFile bool `json:"enable_read_file"`
}

// DefaultToolsConfig returns the default tools configuration.
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		EnableShell:    true,
		EnableReadFile: true,
	}
}

// ApprovalMode selects when a tool call must wait for user approval before
// it runs.
type ApprovalMode string

const (
	ApprovalModeNever     ApprovalMode = "never"
	ApprovalModeOnRequest ApprovalMode = "on_request"
	ApprovalModeAlways    ApprovalMode = "always"
)

// SessionConfiguration is the full set of parameters a conversation is
// started with: model selection, tool set, approval policy, and the
// per-worker routing knobs needed to run tool activities in the right
// place. It arrives pre-assembled on the workflow input and is carried
// through ContinueAsNew; the only change the workflow makes is letting the
// resolved model profile override Model.Temperature, MaxTokens and
// ContextWindow at the start of each run.
type SessionConfiguration struct {
	Model ModelConfig `json:"model"`
	Tools ToolsConfig `json:"tools"`

	ApprovalMode ApprovalMode `json:"approval_mode"`

	// Cwd is the working directory tool activities execute in.
	Cwd string `json:"cwd,omitempty"`

	// BaseInstructions is the system prompt.
	BaseInstructions string `json:"base_instructions,omitempty"`
	// DeveloperInstructions are additional operator-supplied instructions.
	DeveloperInstructions string `json:"developer_instructions,omitempty"`
	// UserInstructions are free-form per-session instructions supplied by
	// the end user (e.g. project-specific conventions).
	UserInstructions string `json:"user_instructions,omitempty"`

	// ExecPolicyRules is the raw Starlark source for the on_request
	// approval-policy rule set. Empty means no pre-authorized commands.
	ExecPolicyRules string `json:"exec_policy_rules,omitempty"`

	// SessionTaskQueue, if set, routes this session's tool activities to a
	// dedicated task queue (per-session worker affinity in multi-host mode).
	SessionTaskQueue string `json:"session_task_queue,omitempty"`

	// AutoCompactTokenLimit triggers compaction once estimated history
	// tokens reach it (and ContinueAsNew when history is still at or above
	// it after three or more compactions). Zero disables auto-compaction.
	AutoCompactTokenLimit int `json:"auto_compact_token_limit,omitempty"`

	// MaxIterationsPerTurn bounds the model-call/tool-call loop within a
	// single turn, guarding against a runaway tool-call loop.
	MaxIterationsPerTurn int `json:"max_iterations_per_turn,omitempty"`
}

// DefaultSessionConfiguration returns a default configuration.
func DefaultSessionConfiguration() SessionConfiguration {
	return SessionConfiguration{
		Model:                 DefaultModelConfig(),
		Tools:                 DefaultToolsConfig(),
		ApprovalMode:          ApprovalModeOnRequest,
		AutoCompactTokenLimit: 150000,
		MaxIterationsPerTurn:  50,
	}
}
