package state

import (
	"errors"
	"testing"
)

func TestLifecycle_AllowedTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{Waiting, InProgress},
		{InProgress, Suspended},
		{Suspended, InProgress},
		{InProgress, Finished},
	}
	for _, tc := range allowed {
		if err := Lifecycle.Check(tc.from, tc.to); err != nil {
			t.Errorf("Expected %s -> %s to be allowed, got: %v", tc.from, tc.to, err)
		}
	}
}

func TestLifecycle_BlockedTransitions(t *testing.T) {
	blocked := []struct{ from, to Status }{
		{Waiting, Suspended},
		{Waiting, Finished},
		{Suspended, Finished},
		{InProgress, Waiting},
		{Finished, InProgress},
		{Finished, Waiting},
		{InProgress, InProgress},
	}
	for _, tc := range blocked {
		err := Lifecycle.Check(tc.from, tc.to)
		if !errors.Is(err, ErrTransitionNotAllowed) {
			t.Errorf("Expected ErrTransitionNotAllowed for %s -> %s, got: %v", tc.from, tc.to, err)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if !Finished.Terminal() {
		t.Error("FINISHED should be terminal")
	}
	for _, s := range []Status{Waiting, InProgress, Suspended} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("")
	if err != nil || s != Waiting {
		t.Errorf("Expected empty name to parse as WAITING, got %s, %v", s, err)
	}

	s, err = Parse("SUSPENDED")
	if err != nil || s != Suspended {
		t.Errorf("Expected SUSPENDED, got %s, %v", s, err)
	}

	if _, err := Parse("PAUSED"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("Expected ErrUnknownStatus, got %v", err)
	}
}
