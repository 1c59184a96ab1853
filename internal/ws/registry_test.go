package ws

import (
	"sync"
	"testing"
)

func TestRegistry_OnlineIffRegistered(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient("user-a")

	if reg.IsOnline("user-a") {
		t.Error("IsOnline() = true before any registration")
	}

	first := reg.Register("user-a", c)
	if !first {
		t.Error("Register() first = false, want true for the first handle")
	}
	if !reg.IsOnline("user-a") {
		t.Error("IsOnline() = false after registration")
	}

	last := reg.Unregister("user-a", c)
	if !last {
		t.Error("Unregister() last = false, want true for the final handle")
	}
	if reg.IsOnline("user-a") {
		t.Error("IsOnline() = true after the last handle was removed")
	}
}

func TestRegistry_MultiDevice(t *testing.T) {
	reg := NewRegistry()
	c1 := newTestClient("user-a")
	c2 := newTestClient("user-a")

	if first := reg.Register("user-a", c1); !first {
		t.Error("first Register() should report first = true")
	}
	if first := reg.Register("user-a", c2); first {
		t.Error("second Register() should report first = false")
	}

	if got := len(reg.ConnectionsFor("user-a")); got != 2 {
		t.Errorf("ConnectionsFor() returned %d handles, want 2", got)
	}

	if last := reg.Unregister("user-a", c1); last {
		t.Error("Unregister() of first handle should not report last")
	}
	if !reg.IsOnline("user-a") {
		t.Error("IsOnline() = false while one handle remains")
	}
	if last := reg.Unregister("user-a", c2); !last {
		t.Error("Unregister() of final handle should report last")
	}
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient("user-a")
	reg.Register("user-a", c)
	reg.Register("user-a", c)

	if got := len(reg.ConnectionsFor("user-a")); got != 1 {
		t.Errorf("ConnectionsFor() returned %d handles after double register, want 1", got)
	}
}

func TestRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient("user-a")

	if last := reg.Unregister("user-a", c); last {
		t.Error("Unregister() of an unknown handle must not report last")
	}

	other := newTestClient("user-a")
	reg.Register("user-a", other)
	if last := reg.Unregister("user-a", c); last {
		t.Error("Unregister() of a foreign handle must not affect the user")
	}
	if !reg.IsOnline("user-a") {
		t.Error("IsOnline() = false after a no-op unregister")
	}
}

func TestRegistry_ConnectionsForFlattensAndSkipsUnknown(t *testing.T) {
	reg := NewRegistry()
	a1, a2 := newTestClient("user-a"), newTestClient("user-a")
	b := newTestClient("user-b")
	reg.Register("user-a", a1)
	reg.Register("user-a", a2)
	reg.Register("user-b", b)

	conns := reg.ConnectionsFor("user-a", "user-b", "user-nobody")
	if len(conns) != 3 {
		t.Errorf("ConnectionsFor() returned %d handles, want 3", len(conns))
	}

	if got := reg.ConnectionsFor("user-nobody"); len(got) != 0 {
		t.Errorf("ConnectionsFor(unknown) returned %d handles, want 0", len(got))
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	const users = 8
	const perUser = 10

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(uid string) {
				defer wg.Done()
				c := newTestClient(uid)
				reg.Register(uid, c)
				_ = reg.ConnectionsFor(uid)
				reg.Unregister(uid, c)
			}(string(rune('a' + u)))
		}
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		uid := string(rune('a' + u))
		if reg.IsOnline(uid) {
			t.Errorf("IsOnline(%q) = true after all handles were removed", uid)
		}
	}
}
