package course

// RestartCounter counts restarts for the session. IncrementRestarts returns
// false when the count is frozen.
type RestartCounter interface {
	IncrementRestarts() bool
	Restarts() int
}

// ResetResult describes where to put the player and the auxiliary objects.
type ResetResult struct {
	PlayerPose   Pose         `json:"player_pose"`
	Objects      []ObjectPose `json:"objects"`
	RestartCount int          `json:"restart_count"`
	Counted      bool         `json:"counted"`
}

// ResetController restores the player to the last checkpoint pose and the
// auxiliary objects to the poses they had when the session started.
type ResetController struct {
	lastCheckpoint Pose
	original       []ObjectPose
	counter        RestartCounter
	emitter        Emitter
}

// NewResetController captures spawn as the implicit checkpoint-0 pose and
// objects as the original auxiliary poses.
func NewResetController(spawn Pose, objects []ObjectPose, counter RestartCounter, emitter Emitter) *ResetController {
	return &ResetController{
		lastCheckpoint: spawn,
		original:       append([]ObjectPose(nil), objects...),
		counter:        counter,
		emitter:        emitterOrNop(emitter),
	}
}

// RecordCheckpoint stores pose as the player's restore target.
func (c *ResetController) RecordCheckpoint(pose Pose) {
	c.lastCheckpoint = pose
}

// LastCheckpointPose returns the current restore target.
func (c *ResetController) LastCheckpointPose() Pose {
	return c.lastCheckpoint
}

// RequestReset counts a restart and returns the restore targets. The
// returned object slice is a copy of the original poses.
func (c *ResetController) RequestReset() ResetResult {
	res := ResetResult{
		PlayerPose: c.lastCheckpoint,
		Objects:    append([]ObjectPose(nil), c.original...),
	}
	if c.counter == nil {
		c.emitter.Emit("warning", "player.reset", "no restart counter configured", nil)
		return res
	}
	res.Counted = c.counter.IncrementRestarts()
	res.RestartCount = c.counter.Restarts()
	return res
}
