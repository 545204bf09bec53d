package course

// GroupStatus is the progress of one plate group.
type GroupStatus struct {
	Level     int     `json:"level"`
	GroupID   int     `json:"group_id"`
	Ratio     float64 `json:"ratio"`
	Complete  bool    `json:"complete"`
	Activated int     `json:"activated"`
	Members   int     `json:"members"`
}

// Status is a point-in-time snapshot of a game for dashboards.
type Status struct {
	CourseID        string        `json:"course_id"`
	SessionID       string        `json:"session_id,omitempty"`
	ElapsedSeconds  float64       `json:"elapsed_seconds"`
	Restarts        int           `json:"restarts"`
	Ended           bool          `json:"ended"`
	LastCheckpoint  int           `json:"last_checkpoint"`
	Checkpoints     int           `json:"checkpoints"`
	ActivePortal    int           `json:"active_portal"`
	RespawnPose     Pose          `json:"respawn_pose"`
	PlatesActivated int           `json:"plates_activated"`
	PlatesTotal     int           `json:"plates_total"`
	PhotosCaptured  int           `json:"photos_captured"`
	PhotosTotal     int           `json:"photos_total"`
	Groups          []GroupStatus `json:"groups"`
	LevelsComplete  []int         `json:"levels_complete"`
	FinalGateOpen   bool          `json:"final_gate_open"`
	Score           Summary       `json:"score"`
}

// Status returns a snapshot of the game. Score is final once ended and
// projected otherwise.
func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{
		CourseID:        g.def.Course.ID,
		SessionID:       g.sessionID,
		ElapsedSeconds:  g.session.Elapsed().Seconds(),
		Restarts:        g.session.Restarts(),
		Ended:           g.session.Ended(),
		LastCheckpoint:  g.checkpoints.LastReachedIndex(),
		Checkpoints:     g.checkpoints.Len(),
		ActivePortal:    g.checkpoints.ActivePortal(),
		RespawnPose:     g.resets.LastCheckpointPose(),
		PlatesActivated: g.progress.ActivatedCount(),
		PlatesTotal:     g.progress.MemberCount(),
		PhotosCaptured:  g.session.Captures(),
		PhotosTotal:     len(g.targets),
		Groups:          []GroupStatus{},
		LevelsComplete:  []int{},
		FinalGateOpen:   g.progress.IsAllComplete(),
	}
	for _, level := range g.progress.Levels() {
		for _, key := range g.progress.Groups(level) {
			members := g.progress.Members(key.Level, key.GroupID)
			activated := 0
			for _, m := range members {
				if g.progress.IsActivated(m) {
					activated++
				}
			}
			st.Groups = append(st.Groups, GroupStatus{
				Level:     key.Level,
				GroupID:   key.GroupID,
				Ratio:     g.progress.GroupCompletionRatio(key.Level, key.GroupID),
				Complete:  g.progress.IsGroupComplete(key.Level, key.GroupID),
				Activated: activated,
				Members:   len(members),
			})
		}
		if g.progress.IsLevelComplete(level) {
			st.LevelsComplete = append(st.LevelsComplete, level)
		}
	}
	if st.Ended {
		st.Score = g.summary
	} else {
		st.Score = g.policy.Score(g.stats())
	}
	return st
}
