package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSwitchGuard(t *testing.T) {
	s := NewSwitch()
	if err := Guard(s, "lending"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Set("lending", true) {
		t.Fatalf("expected state change")
	}
	if s.Set("lending", true) {
		t.Fatalf("expected no change on repeated pause")
	}
	if err := Guard(s, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(s, "other"); err != nil {
		t.Fatalf("other module should not be paused: %v", err)
	}
	if got := s.Paused(); len(got) != 1 || got[0] != "lending" {
		t.Fatalf("unexpected paused list: %v", got)
	}
	s.Set("lending", false)
	if err := Guard(s, "lending"); err != nil {
		t.Fatalf("unexpected error after resume: %v", err)
	}
}
