package course

import (
	"sort"
	"time"
)

type timer struct {
	name     string
	deadline time.Duration
	seq      int
	fn       func()
}

// Scheduler runs named one-shot timers against a clock that only moves when
// Advance is called. Scheduling a name that is already pending replaces it.
type Scheduler struct {
	now    time.Duration
	seq    int
	timers map[string]*timer
}

// NewScheduler creates a scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*timer)}
}

// After schedules fn to run once delay has elapsed on the scheduler clock.
func (s *Scheduler) After(name string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	s.timers[name] = &timer{name: name, deadline: s.now + delay, seq: s.seq, fn: fn}
}

// Pending reports whether a timer with name is waiting to fire.
func (s *Scheduler) Pending(name string) bool {
	_, ok := s.timers[name]
	return ok
}

// Cancel removes a pending timer. It returns false if none was pending.
func (s *Scheduler) Cancel(name string) bool {
	if _, ok := s.timers[name]; !ok {
		return false
	}
	delete(s.timers, name)
	return true
}

// Advance moves the clock forward by dt and fires every due timer in
// deadline order, ties broken by scheduling order. Callbacks may schedule
// new timers; those fire in the same call if already due.
func (s *Scheduler) Advance(dt time.Duration) int {
	if dt > 0 {
		s.now += dt
	}
	fired := 0
	for {
		due := s.due()
		if len(due) == 0 {
			return fired
		}
		for _, t := range due {
			cur, ok := s.timers[t.name]
			if !ok || cur != t {
				continue
			}
			delete(s.timers, t.name)
			t.fn()
			fired++
		}
	}
}

func (s *Scheduler) due() []*timer {
	var out []*timer
	for _, t := range s.timers {
		if t.deadline <= s.now {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].deadline != out[j].deadline {
			return out[i].deadline < out[j].deadline
		}
		return out[i].seq < out[j].seq
	})
	return out
}
