// Package model holds the pieces shared by every model variant: the ranked
// prediction type, the loaded-state tracker and staged on-disk persistence.
package model

import (
	"sync"

	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// StateManager tracks whether a model holds trained state, in a thread-safe
// manner. Models embed it by composition.
type StateManager struct {
	mu     sync.RWMutex
	name   string
	loaded bool

	nFeatures int
	nLabels   int
}

// NewStateManager creates a StateManager for the named model variant.
func NewStateManager(name string) *StateManager {
	return &StateManager{name: name}
}

// Name returns the model variant name.
func (s *StateManager) Name() string { return s.name }

// IsLoaded reports whether the model has been trained or loaded.
func (s *StateManager) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// SetLoaded marks the model as usable and records its dimensions.
func (s *StateManager) SetLoaded(nFeatures, nLabels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.nFeatures = nFeatures
	s.nLabels = nLabels
}

// Reset resets the loaded state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.nFeatures = 0
	s.nLabels = 0
}

// Dimensions returns the feature and label space sizes seen at training.
func (s *StateManager) Dimensions() (nFeatures, nLabels int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nLabels
}

// RequireLoaded returns a NotFittedError naming method when the model holds
// no trained state.
func (s *StateManager) RequireLoaded(method string) error {
	if !s.IsLoaded() {
		return errors.NewNotFittedError(s.name, method)
	}
	return nil
}
