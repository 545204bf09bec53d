package course

import (
	"testing"
	"time"
)

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.After("late", 2*time.Second, func() { order = append(order, "late") })
	s.After("early", time.Second, func() { order = append(order, "early") })
	s.After("tie", time.Second, func() { order = append(order, "tie") })

	if n := s.Advance(500 * time.Millisecond); n != 0 {
		t.Fatalf("expected nothing to fire yet, fired %d", n)
	}
	if n := s.Advance(2 * time.Second); n != 3 {
		t.Fatalf("expected 3 timers fired, got %d", n)
	}
	want := []string{"early", "tie", "late"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}
}

func TestSchedulerReplaceAndCancel(t *testing.T) {
	s := NewScheduler()
	fired := 0
	s.After("x", time.Second, func() { fired++ })
	s.After("x", 3*time.Second, func() { fired += 10 })

	s.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("replaced timer fired: %d", fired)
	}
	if !s.Pending("x") {
		t.Fatal("expected x pending")
	}
	if !s.Cancel("x") {
		t.Fatal("expected cancel to find x")
	}
	if s.Cancel("x") {
		t.Error("second cancel should report nothing pending")
	}
	s.Advance(5 * time.Second)
	if fired != 0 {
		t.Errorf("cancelled timer fired: %d", fired)
	}
}

func TestSchedulerChainedTimers(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.After("a", time.Second, func() {
		order = append(order, "a")
		s.After("b", 0, func() { order = append(order, "b") })
	})
	s.Advance(time.Second)
	if len(order) != 2 || order[1] != "b" {
		t.Errorf("expected chained timer to fire in the same advance, got %v", order)
	}
}
