package common

import (
	"errors"
	"testing"
)

func TestOpErrorKinds(t *testing.T) {
	err := NewOpError("SetFullLive", DeadlineExhausted, "3 nodes still down")

	if !IsKind(err, DeadlineExhausted) {
		t.Fatalf("expected DeadlineExhausted, got %v", err)
	}

	if IsKind(err, ProtocolViolation) {
		t.Fatalf("kind should not match ProtocolViolation: %v", err)
	}

	if IsKind(errors.New("plain"), DeadlineExhausted) {
		t.Fatal("plain errors should never match a kind")
	}
}

func TestOpErrorMessage(t *testing.T) {
	err := NewOpErrorf("reconcile", ProtocolViolation, "epoch went from %d to %d", 7, 5)

	want := "reconcile, Protocol Violation, epoch went from 7 to 5"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestOpErrorHelpers(t *testing.T) {
	cases := []struct {
		kind  ErrKind
		check func(error) bool
	}{
		{Transient, IsTransient},
		{ActionFailed, IsActionFailed},
		{ProtocolViolation, IsProtocolViolation},
		{UsageError, IsUsageError},
	}

	for _, c := range cases {
		err := NewOpError("op", c.kind, "detail")
		if !c.check(err) {
			t.Fatalf("helper for kind %d did not match %v", c.kind, err)
		}
	}
}
