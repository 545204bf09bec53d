package course

// CheckpointDef is the static definition of one checkpoint marker.
type CheckpointDef struct {
	ID      string `yaml:"id"`
	Pose    Pose   `yaml:"pose"`
	Message string `yaml:"message"`
	Music   string `yaml:"music"`
}

// CheckpointResult carries the side-effect signals of a SetCheckpoint call.
// The simulation client applies them; the registry only computes them.
type CheckpointResult struct {
	Accepted         bool   `json:"accepted"`
	Index            int    `json:"index"`
	PlayCue          bool   `json:"play_cue"`
	DeactivatePortal int    `json:"deactivate_portal"`
	ActivatePortal   int    `json:"activate_portal"`
	Message          string `json:"message,omitempty"`
	Music            string `json:"music,omitempty"`
}

// CheckpointRegistry tracks the ordered checkpoint list and which one was
// reached last. Checkpoint 0 is reached and its portal active from the start.
type CheckpointRegistry struct {
	defs         []CheckpointDef
	lastReached  int
	lastPose     Pose
	activePortal int
	reached      map[int]struct{}
	music        string
	emitter      Emitter
}

// NewCheckpointRegistry creates a registry over defs in traversal order.
func NewCheckpointRegistry(defs []CheckpointDef, emitter Emitter) *CheckpointRegistry {
	r := &CheckpointRegistry{
		defs:         append([]CheckpointDef(nil), defs...),
		activePortal: -1,
		reached:      make(map[int]struct{}),
		emitter:      emitterOrNop(emitter),
	}
	if len(r.defs) > 0 {
		r.activePortal = 0
		r.lastPose = r.defs[0].Pose
	}
	return r
}

// Begin announces checkpoint 0 at session start: its banner, its music and
// its portal. It reports false for an empty registry.
func (r *CheckpointRegistry) Begin() (CheckpointResult, bool) {
	if len(r.defs) == 0 {
		return CheckpointResult{}, false
	}
	res := CheckpointResult{
		Accepted:         true,
		DeactivatePortal: -1,
		ActivatePortal:   0,
		Message:          r.defs[0].Message,
	}
	r.activePortal = 0
	if m := r.defs[0].Music; m != "" && m != r.music {
		r.music = m
		res.Music = m
	}
	return res, true
}

// Len returns the number of registered checkpoints.
func (r *CheckpointRegistry) Len() int {
	return len(r.defs)
}

// SetCheckpoint records index as the last reached checkpoint.
// Out-of-range indexes and empty registries are logged and ignored.
func (r *CheckpointRegistry) SetCheckpoint(pose Pose, index int) CheckpointResult {
	if len(r.defs) == 0 {
		r.emitter.Emit("warning", "checkpoint.rejected", "no checkpoints configured", map[string]interface{}{
			"index": index,
		})
		return CheckpointResult{Index: index, DeactivatePortal: -1, ActivatePortal: -1}
	}
	if index < 0 || index >= len(r.defs) {
		r.emitter.Emit("warning", "checkpoint.rejected", "checkpoint index out of range", map[string]interface{}{
			"index": index,
			"count": len(r.defs),
		})
		return CheckpointResult{Index: index, DeactivatePortal: -1, ActivatePortal: -1}
	}

	_, seen := r.reached[index]
	res := CheckpointResult{
		Accepted:         true,
		Index:            index,
		PlayCue:          index != 0 && !seen,
		DeactivatePortal: r.activePortal,
		ActivatePortal:   -1,
		Message:          r.defs[index].Message,
	}
	r.reached[index] = struct{}{}

	r.lastReached = index
	r.lastPose = pose

	if next := index + 1; next < len(r.defs) {
		res.ActivatePortal = next
	}
	r.activePortal = res.ActivatePortal

	if m := r.defs[index].Music; m != "" && m != r.music {
		r.music = m
		res.Music = m
	}

	return res
}

// LastReachedIndex returns the index of the last checkpoint reached.
func (r *CheckpointRegistry) LastReachedIndex() int {
	return r.lastReached
}

// LastPose returns the pose recorded with the last reached checkpoint.
func (r *CheckpointRegistry) LastPose() Pose {
	return r.lastPose
}

// IsReached reports whether index is at or before the last reached checkpoint.
func (r *CheckpointRegistry) IsReached(index int) bool {
	return index >= 0 && index < len(r.defs) && index <= r.lastReached
}

// ActivePortal returns the checkpoint index whose portal effect is on, or -1.
func (r *CheckpointRegistry) ActivePortal() int {
	return r.activePortal
}

// Message returns the banner text for index, or "" if none is set.
func (r *CheckpointRegistry) Message(index int) string {
	if index < 0 || index >= len(r.defs) {
		return ""
	}
	return r.defs[index].Message
}

// restore sets the reached set and last index without producing side effects.
func (r *CheckpointRegistry) restore(reached []int, index int, pose Pose) {
	if index < 0 || index >= len(r.defs) {
		return
	}
	for _, i := range reached {
		if i >= 0 && i < len(r.defs) {
			r.reached[i] = struct{}{}
		}
	}
	r.reached[index] = struct{}{}
	r.lastReached = index
	r.lastPose = pose
	r.activePortal = -1
	if index+1 < len(r.defs) {
		r.activePortal = index + 1
	}
	if m := r.defs[index].Music; m != "" {
		r.music = m
	}
}
