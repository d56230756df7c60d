package common

import (
	"errors"
	"testing"
)

func TestGuardChecksEveryView(t *testing.T) {
	ops := NewPauseSet()
	if err := Guard("rebase", nil, ops); err != nil {
		t.Fatalf("expected no pause, got %v", err)
	}
	ops.Set("REBASE", true)
	err := Guard("rebase", nil, ops)
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	ops.Set("rebase", false)
	if err := Guard("rebase", ops); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
}

func TestGuardIgnoresEmptyModule(t *testing.T) {
	if err := Guard("", NewPauseSet("")); err != nil {
		t.Fatalf("expected nil for empty module, got %v", err)
	}
}
