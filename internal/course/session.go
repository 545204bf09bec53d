package course

import "time"

// Session is the mutable per-run state: elapsed time, restarts, the ended
// latch and the collected sets. Once ended, nothing in it changes.
type Session struct {
	elapsed  time.Duration
	restarts int
	ended    bool
	plates   map[string]struct{}
	captured map[string]struct{}
}

// NewSession creates a session at time zero.
func NewSession() *Session {
	return &Session{
		plates:   make(map[string]struct{}),
		captured: make(map[string]struct{}),
	}
}

// IncrementRestarts counts a restart unless the session has ended.
func (s *Session) IncrementRestarts() bool {
	if s.ended {
		return false
	}
	s.restarts++
	return true
}

// Restarts returns the restart count.
func (s *Session) Restarts() int { return s.restarts }

// Elapsed returns the accrued play time.
func (s *Session) Elapsed() time.Duration { return s.elapsed }

// Ended reports whether the end latch is set.
func (s *Session) Ended() bool { return s.ended }

// Accrue adds dt to the elapsed time unless the session has ended.
func (s *Session) Accrue(dt time.Duration) {
	if s.ended || dt <= 0 {
		return
	}
	s.elapsed += dt
}

// End sets the latch. It returns false if it was already set.
func (s *Session) End() bool {
	if s.ended {
		return false
	}
	s.ended = true
	return true
}

// AddPlate records an activated plate. It returns false for repeats or
// after the session ended.
func (s *Session) AddPlate(id string) bool {
	return s.add(s.plates, id)
}

// AddCapture records a captured photo target.
func (s *Session) AddCapture(id string) bool {
	return s.add(s.captured, id)
}

// Plates returns the number of activated plates.
func (s *Session) Plates() int { return len(s.plates) }

// Captures returns the number of captured photo targets.
func (s *Session) Captures() int { return len(s.captured) }

func (s *Session) add(set map[string]struct{}, id string) bool {
	if s.ended {
		return false
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}
