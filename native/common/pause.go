package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switch is an in-memory PauseView toggled by operators.
type Switch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewSwitch() *Switch {
	return &Switch{paused: make(map[string]bool)}
}

func (s *Switch) IsPaused(module string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Set pauses or resumes module and reports whether the state changed.
func (s *Switch) Set(module string, paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused[module] == paused {
		return false
	}
	if paused {
		s.paused[module] = true
	} else {
		delete(s.paused, module)
	}
	return true
}

// Paused lists the currently paused modules.
func (s *Switch) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for module := range s.paused {
		out = append(out, module)
	}
	return out
}
