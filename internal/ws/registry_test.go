package ws

import "testing"

func TestRegisterFirstSessionBringsUserOnline(t *testing.T) {
	registry := NewSessionRegistry()
	first := NewSession("user-1", nil)
	second := NewSession("user-1", nil)

	if !registry.Register(first) {
		t.Fatalf("expected first session to bring user online")
	}
	if registry.Register(second) {
		t.Fatalf("second session must not report user coming online again")
	}
	if !registry.Online("user-1") {
		t.Fatalf("expected user to be online")
	}
	if got := len(registry.SessionsFor("user-1")); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}
}

func TestUnregisterLastSessionTakesUserOffline(t *testing.T) {
	registry := NewSessionRegistry()
	first := NewSession("user-1", nil)
	second := NewSession("user-1", nil)
	registry.Register(first)
	registry.Register(second)

	if registry.Unregister(first) {
		t.Fatalf("user still has a session, must not go offline")
	}
	if !registry.Unregister(second) {
		t.Fatalf("expected last unregister to take user offline")
	}
	if registry.Online("user-1") {
		t.Fatalf("expected user to be offline")
	}
}

func TestUnregisterUnknownSessionIsNoop(t *testing.T) {
	registry := NewSessionRegistry()
	stray := NewSession("user-1", nil)

	if registry.Unregister(stray) {
		t.Fatalf("unregistering an unknown session must not report offline")
	}
}

func TestAllSnapshotsEverySession(t *testing.T) {
	registry := NewSessionRegistry()
	registry.Register(NewSession("user-1", nil))
	registry.Register(NewSession("user-1", nil))
	registry.Register(NewSession("user-2", nil))

	if got := len(registry.All()); got != 3 {
		t.Fatalf("expected 3 sessions, got %d", got)
	}
}
