package course

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionInProgress is returned when restoring into a game that has
// already handled calls.
var ErrSessionInProgress = errors.New("game already in progress")

// Gate kinds reported in Cues.
const (
	GateDoor   = "door"
	GateUnlock = "unlock"
	GateFinal  = "final_gate"
)

// GateEvent reports the first time a gated object should open or enable.
type GateEvent struct {
	Kind    string `json:"kind"`
	Target  string `json:"target,omitempty"`
	Level   int    `json:"level"`
	GroupID int    `json:"group_id,omitempty"`
}

// Cues are the signals the simulation client applies after an inbound call.
type Cues struct {
	Checkpoint   *CheckpointResult `json:"checkpoint,omitempty"`
	Plate        string            `json:"plate,omitempty"`
	Photo        string            `json:"photo,omitempty"`
	Gates        []GateEvent       `json:"gates,omitempty"`
	HazardEffect string            `json:"hazard_effect,omitempty"`
	Reset        *ResetResult      `json:"reset,omitempty"`
	HideBanner   bool              `json:"hide_banner,omitempty"`
	GameOver     *Summary          `json:"game_over,omitempty"`
	DisableInput bool              `json:"disable_input,omitempty"`
}

// Empty reports whether the cues carry no signal.
func (c Cues) Empty() bool {
	return c.Checkpoint == nil && c.Plate == "" && c.Photo == "" && len(c.Gates) == 0 &&
		c.HazardEffect == "" && c.Reset == nil && !c.HideBanner && c.GameOver == nil && !c.DisableInput
}

const (
	bannerTimer = "checkpoint.banner"

	// clockInterval is how much play time passes between game.clock events.
	clockInterval = 5 * time.Second
)

// Game is one play session over a course. Inbound calls are serialized in
// arrival order and their effects are visible to the next read.
type Game struct {
	mu sync.Mutex

	def       *Definition
	sessionID string
	policy    Policy
	emitter   Emitter

	checkpoints *CheckpointRegistry
	progress    *ProgressTracker
	resets      *ResetController
	scheduler   *Scheduler
	session     *Session

	targets map[string]struct{}
	hazards map[string]HazardDef
	groups  map[GroupKey]GroupDef
	levels  map[int]LevelDef
	opened  map[string]struct{}

	summary   Summary
	cur       *Cues
	accepted  bool
	clockMark time.Duration
}

// Option configures a Game.
type Option func(*Game)

// WithEmitter sets the event sink.
func WithEmitter(e Emitter) Option {
	return func(g *Game) { g.emitter = e }
}

// WithSessionID tags emitted events with a session id.
func WithSessionID(id string) Option {
	return func(g *Game) { g.sessionID = id }
}

// NewGame builds a session from def. Plates register into their groups and
// the auxiliary object poses are captured as the reset originals.
func NewGame(def *Definition, opts ...Option) (*Game, error) {
	if def == nil {
		return nil, fmt.Errorf("nil course definition")
	}
	policy, err := def.Scoring.Build()
	if err != nil {
		return nil, err
	}

	g := &Game{
		def:     def,
		policy:  policy,
		session: NewSession(),
		targets: make(map[string]struct{}),
		hazards: make(map[string]HazardDef),
		groups:  make(map[GroupKey]GroupDef),
		levels:  make(map[int]LevelDef),
		opened:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.emitter = emitterOrNop(g.emitter)

	g.checkpoints = NewCheckpointRegistry(def.Checkpoints, g.emitter)
	g.progress = NewProgressTracker(g.emitter)
	for _, l := range def.Levels {
		g.levels[l.Level] = l
		for _, gr := range l.Groups {
			g.groups[GroupKey{Level: l.Level, GroupID: gr.GroupID}] = gr
			for _, id := range gr.Plates {
				g.progress.RegisterMember(l.Level, gr.GroupID, id)
			}
		}
	}
	for _, id := range def.PhotoTargets {
		g.targets[id] = struct{}{}
	}
	for _, h := range def.Hazards {
		g.hazards[h.ID] = h
	}

	g.resets = NewResetController(g.spawnPose(), def.Objects, g.session, g.emitter)
	g.scheduler = NewScheduler()
	return g, nil
}

// spawnPose makes the checkpoint-0 pose explicit: the course spawn if set,
// else the first checkpoint's pose.
func (g *Game) spawnPose() Pose {
	if g.def.Spawn != (Pose{}) {
		return g.def.Spawn
	}
	if len(g.def.Checkpoints) > 0 {
		return g.def.Checkpoints[0].Pose
	}
	return IdentityPose
}

// Start emits game.started and announces checkpoint 0.
func (g *Game) Start() Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	g.emit("info", "game.started", "", map[string]interface{}{
		"course_id":   g.def.Course.ID,
		"policy":      g.policy.Name(),
		"checkpoints": g.checkpoints.Len(),
		"plates":      g.progress.MemberCount(),
		"photos":      len(g.targets),
	})
	if res, ok := g.checkpoints.Begin(); ok {
		c.Checkpoint = &res
		if res.Message != "" {
			g.scheduleBanner()
		}
	}
	return *c
}

// OnCheckpointTriggered handles the player entering checkpoint index.
func (g *Game) OnCheckpointTriggered(index int, pose Pose) Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	if g.session.Ended() {
		return *c
	}
	res := g.checkpoints.SetCheckpoint(pose, index)
	if !res.Accepted {
		return *c
	}
	g.resets.RecordCheckpoint(pose)
	c.Checkpoint = &res

	g.emit("info", "checkpoint.reached", res.Message, map[string]interface{}{
		"index":    index,
		"play_cue": res.PlayCue,
		"pose":     poseFields(pose),
	})
	if res.Message != "" {
		g.scheduleBanner()
	}
	return *c
}

// OnPlateTriggered handles a plate press. Plates fire once.
func (g *Game) OnPlateTriggered(memberID string) Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	if g.session.Ended() {
		return *c
	}
	if !g.progress.Activate(memberID) {
		return *c
	}
	g.session.AddPlate(memberID)
	c.Plate = memberID

	key, _ := g.progress.GroupOf(memberID)
	g.emit("info", "plate.activated", "", map[string]interface{}{
		"member_id": memberID,
		"level":     key.Level,
		"group_id":  key.GroupID,
		"ratio":     g.progress.GroupCompletionRatio(key.Level, key.GroupID),
	})

	if g.progress.IsGroupComplete(key.Level, key.GroupID) && g.markOpened(groupGateKey(key)) {
		g.emit("info", "group.completed", "", map[string]interface{}{
			"level":    key.Level,
			"group_id": key.GroupID,
		})
		if door := g.groups[key].Door; door != "" {
			g.openGate(GateEvent{Kind: GateDoor, Target: door, Level: key.Level, GroupID: key.GroupID})
		}
	}

	if g.progress.IsLevelComplete(key.Level) && g.markOpened(levelGateKey(key.Level)) {
		g.emit("info", "level.completed", "", map[string]interface{}{
			"level": key.Level,
		})
		for _, obj := range g.levels[key.Level].Unlocks {
			g.openGate(GateEvent{Kind: GateUnlock, Target: obj, Level: key.Level})
		}
	}

	if g.progress.IsAllComplete() && g.markOpened(finalGateKey) {
		g.openGate(GateEvent{Kind: GateFinal, Target: g.def.FinalGate})
	}
	return *c
}

// OnPhotoCaptured records a photo of a listed target. Unlisted targets do
// not count.
func (g *Game) OnPhotoCaptured(targetID string) Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	if g.session.Ended() {
		return *c
	}
	if _, ok := g.targets[targetID]; !ok {
		g.emit("warning", "photo.rejected", "unknown photo target", map[string]interface{}{
			"target_id": targetID,
		})
		return *c
	}
	if !g.session.AddCapture(targetID) {
		return *c
	}
	c.Photo = targetID
	g.emit("info", "photo.captured", "", map[string]interface{}{
		"target_id": targetID,
		"captured":  g.session.Captures(),
		"total":     len(g.targets),
	})
	return *c
}

// OnResetRequested handles a player-initiated reset.
func (g *Game) OnResetRequested() Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	if g.session.Ended() {
		return *c
	}
	g.reset("player")
	return *c
}

// OnHazardTriggered plays the hazard effect and resets the player once the
// hazard delay elapses. Triggers while a reset is pending are ignored.
func (g *Game) OnHazardTriggered(hazardID string) Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	if g.session.Ended() {
		return *c
	}
	h, ok := g.hazards[hazardID]
	if !ok {
		g.emit("warning", "hazard.rejected", "unknown hazard", map[string]interface{}{
			"hazard_id": hazardID,
		})
		return *c
	}
	name := "hazard." + hazardID
	if g.scheduler.Pending(name) {
		return *c
	}

	c.HazardEffect = hazardID
	g.emit("info", "hazard.triggered", "", map[string]interface{}{
		"hazard_id":     hazardID,
		"delay_seconds": h.DelaySeconds,
	})
	if h.Delay() <= 0 {
		g.reset("hazard:" + hazardID)
		return *c
	}
	g.emit("info", "timer.started", "", map[string]interface{}{
		"timer":         name,
		"delay_seconds": h.DelaySeconds,
	})
	g.scheduler.After(name, h.Delay(), func() {
		if g.session.Ended() {
			return
		}
		g.emit("info", "timer.expired", "", map[string]interface{}{"timer": name})
		g.reset("hazard:" + hazardID)
	})
	return *c
}

// OnFinishTriggered ends the game.
func (g *Game) OnFinishTriggered() Cues {
	return g.EndGame()
}

// EndGame latches the session, freezes its counters and computes the final
// score. Later calls return empty cues.
func (g *Game) EndGame() Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	if !g.session.End() {
		return *c
	}
	g.cancelHazards()
	g.summary = g.policy.Score(g.stats())
	s := g.summary
	c.GameOver = &s
	c.DisableInput = true

	g.emit("info", "game.ended", "", map[string]interface{}{
		"policy":          s.Policy,
		"metric":          s.Metric,
		"stars":           s.Stars,
		"restart_count":   s.RestartCount,
		"elapsed_seconds": s.ElapsedSeconds,
		"plates":          s.Plates,
		"photos":          s.Photos,
	})
	return *c
}

// OnTick accrues play time and fires due timers. Every clockInterval of
// play a game.clock event records the elapsed time.
func (g *Game) OnTick(dt time.Duration) Cues {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.begin()
	defer g.finish()

	g.session.Accrue(dt)
	if !g.session.Ended() && g.session.Elapsed()-g.clockMark >= clockInterval {
		g.clockMark = g.session.Elapsed()
		g.emit("debug", "game.clock", "", nil)
	}
	g.scheduler.Advance(dt)
	return *c
}

// CurrentCheckpointPose returns the pose the player would respawn at.
func (g *Game) CurrentCheckpointPose() Pose {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resets.LastCheckpointPose()
}

// LastReachedIndex returns the last checkpoint index reached.
func (g *Game) LastReachedIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkpoints.LastReachedIndex()
}

// GroupCompletionRatio returns the activated share of a plate group.
func (g *Game) GroupCompletionRatio(level, groupID int) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress.GroupCompletionRatio(level, groupID)
}

// IsGroupComplete reports whether a plate group is complete.
func (g *Game) IsGroupComplete(level, groupID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress.IsGroupComplete(level, groupID)
}

// IsLevelComplete reports whether every group in level is complete.
func (g *Game) IsLevelComplete(level int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress.IsLevelComplete(level)
}

// ShouldOpenFinalGate reports whether every level is complete.
func (g *Game) ShouldOpenFinalGate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress.IsAllComplete()
}

// FinalScoreSummary returns the frozen score once the game has ended.
func (g *Game) FinalScoreSummary() (Summary, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.session.Ended() {
		return Summary{}, false
	}
	return g.summary, true
}

// LiveScore scores the session as if it ended now.
func (g *Game) LiveScore() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session.Ended() {
		return g.summary
	}
	return g.policy.Score(g.stats())
}

// Ended reports whether the game has ended.
func (g *Game) Ended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Ended()
}

// Restarts returns the restart count.
func (g *Game) Restarts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Restarts()
}

// Elapsed returns the accrued play time.
func (g *Game) Elapsed() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Elapsed()
}

// SessionID returns the session id events are tagged with.
func (g *Game) SessionID() string {
	return g.sessionID
}

// CourseID returns the course id.
func (g *Game) CourseID() string {
	return g.def.Course.ID
}

func (g *Game) begin() *Cues {
	g.accepted = true
	g.cur = &Cues{}
	return g.cur
}

func (g *Game) finish() {
	g.cur = nil
}

func (g *Game) reset(reason string) {
	res := g.resets.RequestReset()
	if g.cur != nil {
		g.cur.Reset = &res
	}
	g.emit("info", "player.reset", "", map[string]interface{}{
		"reason":        reason,
		"restart_count": res.RestartCount,
		"counted":       res.Counted,
		"checkpoint":    g.checkpoints.LastReachedIndex(),
	})
}

// cancelHazards drops pending hazard resets.
func (g *Game) cancelHazards() {
	for id := range g.hazards {
		name := "hazard." + id
		if g.scheduler.Cancel(name) {
			g.emit("info", "timer.cancelled", "", map[string]interface{}{"timer": name})
		}
	}
}

func (g *Game) scheduleBanner() {
	if g.def.BannerSeconds <= 0 {
		return
	}
	g.scheduler.After(bannerTimer, seconds(g.def.BannerSeconds), func() {
		if g.cur != nil {
			g.cur.HideBanner = true
		}
	})
}

func (g *Game) openGate(ev GateEvent) {
	if g.cur != nil {
		g.cur.Gates = append(g.cur.Gates, ev)
	}
	g.emit("info", "gate.opened", "", map[string]interface{}{
		"kind":     ev.Kind,
		"target":   ev.Target,
		"level":    ev.Level,
		"group_id": ev.GroupID,
	})
}

const finalGateKey = "final"

func groupGateKey(k GroupKey) string {
	return fmt.Sprintf("group:%d:%d", k.Level, k.GroupID)
}

func levelGateKey(level int) string {
	return fmt.Sprintf("level:%d", level)
}

func (g *Game) markOpened(key string) bool {
	if _, ok := g.opened[key]; ok {
		return false
	}
	g.opened[key] = struct{}{}
	return true
}

func (g *Game) stats() Stats {
	return Stats{
		ElapsedSeconds:  g.session.Elapsed().Seconds(),
		Restarts:        g.session.Restarts(),
		PlatesActivated: g.session.Plates(),
		PlatesTotal:     g.progress.MemberCount(),
		PhotosCaptured:  g.session.Captures(),
		PhotosTotal:     len(g.targets),
	}
}

func (g *Game) emit(level, name, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if g.sessionID != "" {
		fields["session_id"] = g.sessionID
	}
	if _, ok := fields["elapsed_seconds"]; !ok {
		fields["elapsed_seconds"] = g.session.Elapsed().Seconds()
	}
	g.emitter.Emit(level, name, msg, fields)
}

func poseFields(p Pose) map[string]interface{} {
	return map[string]interface{}{
		"px": p.Position.X, "py": p.Position.Y, "pz": p.Position.Z,
		"rx": p.Rotation.X, "ry": p.Rotation.Y, "rz": p.Rotation.Z, "rw": p.Rotation.W,
	}
}
