package common

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused (wrapped with the module name) when any of
// the views reports module as paused.
func Guard(module string, views ...PauseView) error {
	if module == "" {
		return nil
	}
	for _, p := range views {
		if p == nil {
			continue
		}
		if p.IsPaused(module) {
			return fmt.Errorf("%s: %w", module, ErrModulePaused)
		}
	}
	return nil
}

// PauseSet is an in-memory PauseView that operators can flip at runtime,
// independent of any pause flag kept in ledger state.
type PauseSet struct {
	mu      sync.RWMutex
	modules map[string]bool
}

// NewPauseSet returns a PauseSet with the listed modules paused.
func NewPauseSet(paused ...string) *PauseSet {
	set := &PauseSet{modules: make(map[string]bool)}
	for _, module := range paused {
		set.Set(module, true)
	}
	return set
}

// Set pauses or resumes module.
func (s *PauseSet) Set(module string, paused bool) {
	if s == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(module))
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.modules[key] = true
		return
	}
	delete(s.modules, key)
}

// IsPaused implements PauseView.
func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules[strings.ToLower(strings.TrimSpace(module))]
}
