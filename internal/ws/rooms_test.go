package ws

import "testing"

func TestJoinIsIdempotent(t *testing.T) {
	tracker := NewRoomTracker()
	s := NewSession("user-1", nil)

	tracker.Join("conv-1", s)
	tracker.Join("conv-1", s)

	if got := len(tracker.Members("conv-1")); got != 1 {
		t.Fatalf("expected 1 member after double join, got %d", got)
	}
}

func TestLeaveRemovesMembership(t *testing.T) {
	tracker := NewRoomTracker()
	s := NewSession("user-1", nil)
	tracker.Join("conv-1", s)

	tracker.Leave("conv-1", s)
	tracker.Leave("conv-1", s)

	if got := len(tracker.Members("conv-1")); got != 0 {
		t.Fatalf("expected empty room, got %d members", got)
	}
}

func TestLeaveAllClearsEveryRoom(t *testing.T) {
	tracker := NewRoomTracker()
	s := NewSession("user-1", nil)
	other := NewSession("user-2", nil)
	tracker.Join("conv-1", s)
	tracker.Join("conv-2", s)
	tracker.Join("conv-1", other)

	left := tracker.LeaveAll(s)

	if len(left) != 2 {
		t.Fatalf("expected to leave 2 rooms, left %d", len(left))
	}
	if got := len(tracker.Members("conv-1")); got != 1 {
		t.Fatalf("expected other session to remain, got %d members", got)
	}
	if got := len(tracker.Members("conv-2")); got != 0 {
		t.Fatalf("expected conv-2 empty, got %d members", got)
	}
}
