package course

import (
	"time"

	"github.com/AaronLay10/JackalCourse/internal/storage/postgres"
)

// DefaultRestoreLimit is the default number of events to load for restore.
const DefaultRestoreLimit = 5000

// EventQuerier reads a session's persisted events in insertion order.
type EventQuerier interface {
	QuerySession(sessionID string, limit int) ([]postgres.EventRow, error)
}

// RestoredState is the session state reconstructed from the event log.
type RestoredState struct {
	SessionID        string
	Started          bool
	Ended            bool
	ElapsedSeconds   float64
	Restarts         int
	Plates           []string
	Captures         []string
	Reached          []int
	LastCheckpoint   int
	CheckpointPose   Pose
	HasCheckpointHit bool
}

// RestoreFromEvents loads a session's events and replays them.
// Returns nil if the querier is nil or the session has no events.
func RestoreFromEvents(q EventQuerier, sessionID string, limit int) (*RestoredState, int, error) {
	if q == nil || sessionID == "" {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	rows, err := q.QuerySession(sessionID, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}
	return ReplayEvents(sessionID, rows), len(rows), nil
}

// ReplayEvents folds events in order into a RestoredState.
func ReplayEvents(sessionID string, rows []postgres.EventRow) *RestoredState {
	state := &RestoredState{SessionID: sessionID}
	plates := make(map[string]bool)
	captures := make(map[string]bool)
	reached := make(map[int]bool)

	for _, row := range rows {
		if v, ok := floatField(row.Fields, "elapsed_seconds"); ok && v > state.ElapsedSeconds {
			state.ElapsedSeconds = v
		}

		switch row.Event {
		case "game.started":
			state.Started = true

		case "checkpoint.reached":
			idx, ok := floatField(row.Fields, "index")
			if !ok {
				continue
			}
			i := int(idx)
			if !reached[i] {
				reached[i] = true
				state.Reached = append(state.Reached, i)
			}
			state.LastCheckpoint = i
			state.HasCheckpointHit = true
			if p, ok := row.Fields["pose"].(map[string]interface{}); ok {
				state.CheckpointPose = poseFromFields(p)
			}

		case "plate.activated":
			if id, ok := row.Fields["member_id"].(string); ok && !plates[id] {
				plates[id] = true
				state.Plates = append(state.Plates, id)
			}

		case "photo.captured":
			if id, ok := row.Fields["target_id"].(string); ok && !captures[id] {
				captures[id] = true
				state.Captures = append(state.Captures, id)
			}

		case "player.reset":
			if n, ok := floatField(row.Fields, "restart_count"); ok && int(n) > state.Restarts {
				state.Restarts = int(n)
			}

		case "game.ended":
			state.Ended = true
		}
	}
	return state
}

// ApplyRestored loads restored state into a fresh game without emitting
// events or producing cues. Gates already earned are marked opened. A game
// that has already handled a call returns ErrSessionInProgress.
func (g *Game) ApplyRestored(state *RestoredState) error {
	if state == nil || !state.Started {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accepted {
		return ErrSessionInProgress
	}
	g.accepted = true

	g.session.Accrue(time.Duration(state.ElapsedSeconds * float64(time.Second)))
	g.clockMark = g.session.Elapsed()
	for i := 0; i < state.Restarts; i++ {
		g.session.IncrementRestarts()
	}
	for _, id := range state.Plates {
		if g.progress.Activate(id) {
			g.session.AddPlate(id)
		}
	}
	for _, id := range state.Captures {
		if _, ok := g.targets[id]; ok {
			g.session.AddCapture(id)
		}
	}
	if state.HasCheckpointHit {
		g.checkpoints.restore(state.Reached, state.LastCheckpoint, state.CheckpointPose)
		g.resets.RecordCheckpoint(state.CheckpointPose)
	}

	for key := range g.groups {
		if g.progress.IsGroupComplete(key.Level, key.GroupID) {
			g.markOpened(groupGateKey(key))
		}
	}
	for level := range g.levels {
		if g.progress.IsLevelComplete(level) {
			g.markOpened(levelGateKey(level))
		}
	}
	if g.progress.IsAllComplete() {
		g.markOpened(finalGateKey)
	}

	if state.Ended {
		g.session.End()
		g.summary = g.policy.Score(g.stats())
	}
	return nil
}

func floatField(fields map[string]interface{}, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func poseFromFields(f map[string]interface{}) Pose {
	get := func(k string) float64 {
		v, _ := floatField(f, k)
		return v
	}
	return Pose{
		Position: Vec3{X: get("px"), Y: get("py"), Z: get("pz")},
		Rotation: Quat{X: get("rx"), Y: get("ry"), Z: get("rz"), W: get("rw")},
	}
}
