// Package workflow contains Temporal workflow definitions.
//
// init.go handles one-time session initialization: resolving the model
// profile against the profile registry. Instructions and exec policy
// rules arrive pre-assembled on SessionConfiguration (the caller starting
// the workflow is responsible for loading them), so no activity round
// trip is needed before the first turn.
package workflow

import (
	"github.com/mfateev/agentharness/internal/models"
)

// resolveProfile resolves the model profile from the registry. Pure
// computation — no activity needed. Must be called before buildToolSpecs.
func (s *SessionState) resolveProfile() {
	registry := models.NewDefaultRegistry()
	s.ResolvedProfile = registry.Resolve(s.Config.Model.Provider, s.Config.Model.Model)

	if s.ResolvedProfile.Temperature != nil {
		s.Config.Model.Temperature = *s.ResolvedProfile.Temperature
	}
	if s.ResolvedProfile.MaxTokens != nil {
		s.Config.Model.MaxTokens = *s.ResolvedProfile.MaxTokens
	}
	if s.ResolvedProfile.ContextWindow != nil {
		s.Config.Model.ContextWindow = *s.ResolvedProfile.ContextWindow
	}
}
