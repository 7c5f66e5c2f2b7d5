// Package history provides conversation history management interfaces and implementations.
//
// Corresponds to: codex-rs/core/src/state/session.rs (ContextManager)
package history

import "github.com/mfateev/agentharness/internal/models"

// ContextManager is the interface for managing conversation history.
//
// Corresponds to: codex-rs/core/src/state/session.rs ContextManager
//
// Implementations:
// - InMemoryHistory: Simple in-memory storage (default)
type ContextManager interface {
	// Core operations

	// AddItem adds a new conversation item to history
	AddItem(item models.ConversationItem) error

	// GetForPrompt returns conversation items formatted for LLM prompt
	// Maps to: codex-rs clone_history().for_prompt()
	GetForPrompt() ([]models.ConversationItem, error)

	// EstimateTokenCount estimates the total token count of the history
	// Maps to: codex-rs clone_history().estimate_token_count()
	EstimateTokenCount() (int, error)

	// Admin operations

	// GetRawItems returns raw conversation items for analysis
	// Maps to: codex-rs clone_history().raw_items()
	GetRawItems() ([]models.ConversationItem, error)

	// DropOldestUserTurns keeps only the last keepN user turns, returning the
	// number of items dropped. Used by turn compaction.
	DropOldestUserTurns(keepN int) (int, error)

	// ReplaceAll replaces history wholesale, re-assigning Seq from 0. Used to
	// install a compacted summary produced by the model.
	ReplaceAll(items []models.ConversationItem) error

	// Query operations

	// GetTurnCount returns the number of user turns
	GetTurnCount() (int, error)
}
