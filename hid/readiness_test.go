package hid

import (
	"errors"
	"testing"
	"time"

	"github.com/khadas/scriptbridge/core/fault"
)

func TestReadinessStartsUnready(t *testing.T) {
	r := NewReadiness()
	if r.Ready() {
		t.Fatal("fresh gate reports ready")
	}
}

func TestWaitReturnsImmediatelyWhenReady(t *testing.T) {
	r := NewReadiness()
	r.Set(true)
	if err := r.Wait(time.Millisecond); err != nil {
		t.Fatal(err)
	}
}

func TestWaitTimesOutWithNotReady(t *testing.T) {
	r := NewReadiness()
	err := r.Wait(10 * time.Millisecond)
	if !errors.Is(err, fault.ErrNotReady) {
		t.Fatalf("Wait error = %v, want NotReady", err)
	}
}

func TestWaitReleasedBySet(t *testing.T) {
	r := NewReadiness()
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Set(true)
	}()
	if err := r.Wait(2 * time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestGateRearmsOnUnready(t *testing.T) {
	r := NewReadiness()
	r.Set(true)
	r.Set(false)
	if r.Ready() {
		t.Fatal("gate still ready after reset")
	}
	if err := r.Wait(10 * time.Millisecond); !errors.Is(err, fault.ErrNotReady) {
		t.Fatalf("Wait after re-arm = %v, want NotReady", err)
	}
}

func TestRedundantSetIsNoOp(t *testing.T) {
	r := NewReadiness()
	r.Set(true)
	r.Set(true) // must not close the gate twice
	if !r.Ready() {
		t.Fatal("gate lost readiness")
	}
}
