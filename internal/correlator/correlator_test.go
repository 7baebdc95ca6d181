package correlator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterBeforeSendRace(t *testing.T) {
	c := New(nil)
	future, err := c.Register("7.--0", false, 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Simulate the reply arriving before the "send" call below even
	// returns -- Deliver must still resolve the already-registered
	// waiter exactly once.
	delivered := c.Deliver("7.--0", map[string]any{"status": 200.0})
	if !delivered {
		t.Fatal("Deliver returned false for a registered tag")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := future.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got, ok := msg.(map[string]any)
	if !ok || got["status"] != 200.0 {
		t.Fatalf("msg = %#v", msg)
	}

	if delivered2 := c.Deliver("7.--0", map[string]any{"status": 200.0}); delivered2 {
		t.Fatal("second Deliver for the same tag should report false, waiter already removed")
	}
}

func TestDuplicateTagRejected(t *testing.T) {
	c := New(nil)
	if _, err := c.Register("1.--0", false, 0); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := c.Register("1.--0", false, 0)
	if !errors.Is(err, ErrDuplicateTag) {
		t.Fatalf("err = %v, want ErrDuplicateTag", err)
	}
}

func TestDeliverToUnknownTagReportsFalse(t *testing.T) {
	c := New(nil)
	if c.Deliver("nope", "x") {
		t.Fatal("expected false for an unregistered tag")
	}
}

func TestFailAllRejectsEveryWaiterAndClearsRegistry(t *testing.T) {
	c := New(nil)
	f1, _ := c.Register("a", false, 0)
	f2, _ := c.Register("b", false, 0)

	reason := errors.New("socket closed")
	c.FailAll(reason)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, f := range []*Future{f1, f2} {
		if _, err := f.Wait(ctx); !errors.Is(err, reason) {
			t.Fatalf("err = %v, want %v", err, reason)
		}
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after FailAll", c.Len())
	}
}

func TestCancelResolvesWithErrCancelled(t *testing.T) {
	c := New(nil)
	f, _ := c.Register("x", false, 0)
	c.Cancel("x")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Cancel", c.Len())
	}
}

func TestRegisterTimeout(t *testing.T) {
	c := New(nil)
	f, _ := c.Register("t", false, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after timeout", c.Len())
	}
}

func TestHasPhoneWaiter(t *testing.T) {
	c := New(nil)
	if c.HasPhoneWaiter() {
		t.Fatal("expected false with no waiters registered")
	}
	f, _ := c.Register("p", true, 0)
	if !c.HasPhoneWaiter() {
		t.Fatal("expected true once a requiresPhone waiter is registered")
	}
	c.Cancel("p")
	if c.HasPhoneWaiter() {
		t.Fatal("expected false once the requiresPhone waiter is removed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.Wait(ctx)
}
