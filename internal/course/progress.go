package course

import "sort"

// GroupKey addresses a plate group within a level.
type GroupKey struct {
	Level   int `json:"level"`
	GroupID int `json:"group_id"`
}

type group struct {
	key       GroupKey
	members   []string
	activated map[string]struct{}
}

func (g *group) complete() bool {
	return len(g.members) > 0 && len(g.activated) == len(g.members)
}

// ProgressTracker holds hierarchical plate groups per level. Membership is
// fixed at registration; the activated set only grows.
type ProgressTracker struct {
	groups    map[GroupKey]*group
	levels    map[int][]GroupKey
	memberOf  map[string]GroupKey
	activated map[string]struct{}
	emitter   Emitter
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker(emitter Emitter) *ProgressTracker {
	return &ProgressTracker{
		groups:    make(map[GroupKey]*group),
		levels:    make(map[int][]GroupKey),
		memberOf:  make(map[string]GroupKey),
		activated: make(map[string]struct{}),
		emitter:   emitterOrNop(emitter),
	}
}

// RegisterMember adds memberID to the (level, groupID) bucket, creating it
// on first use. Duplicate registration is a no-op; registering a member
// under a second group is rejected.
func (p *ProgressTracker) RegisterMember(level, groupID int, memberID string) {
	key := GroupKey{Level: level, GroupID: groupID}
	if existing, ok := p.memberOf[memberID]; ok {
		if existing != key {
			p.emitter.Emit("warning", "plate.rejected", "member already registered in another group", map[string]interface{}{
				"member_id": memberID,
				"level":     existing.Level,
				"group_id":  existing.GroupID,
			})
		}
		return
	}

	g, ok := p.groups[key]
	if !ok {
		g = &group{key: key, activated: make(map[string]struct{})}
		p.groups[key] = g
		p.levels[level] = append(p.levels[level], key)
	}
	g.members = append(g.members, memberID)
	p.memberOf[memberID] = key
}

// Activate marks memberID activated. It returns true only when this call
// caused a new activation; repeats and unknown members return false.
func (p *ProgressTracker) Activate(memberID string) bool {
	key, ok := p.memberOf[memberID]
	if !ok {
		p.emitter.Emit("warning", "plate.rejected", "unknown member", map[string]interface{}{
			"member_id": memberID,
		})
		return false
	}
	if _, done := p.activated[memberID]; done {
		return false
	}
	p.activated[memberID] = struct{}{}
	p.groups[key].activated[memberID] = struct{}{}
	return true
}

// IsActivated reports whether memberID has been activated.
func (p *ProgressTracker) IsActivated(memberID string) bool {
	_, ok := p.activated[memberID]
	return ok
}

// GroupOf returns the group memberID is registered in.
func (p *ProgressTracker) GroupOf(memberID string) (GroupKey, bool) {
	key, ok := p.memberOf[memberID]
	return key, ok
}

// IsGroupComplete reports whether every member of the group is activated.
// Unknown groups are never complete.
func (p *ProgressTracker) IsGroupComplete(level, groupID int) bool {
	g, ok := p.groups[GroupKey{Level: level, GroupID: groupID}]
	return ok && g.complete()
}

// IsLevelComplete reports whether every group in level is complete.
// A level with no groups is not complete.
func (p *ProgressTracker) IsLevelComplete(level int) bool {
	keys := p.levels[level]
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !p.groups[k].complete() {
			return false
		}
	}
	return true
}

// IsAllComplete reports whether every registered level is complete. It gates
// the terminal objective and is false for an empty tracker.
func (p *ProgressTracker) IsAllComplete() bool {
	if len(p.levels) == 0 {
		return false
	}
	for level := range p.levels {
		if !p.IsLevelComplete(level) {
			return false
		}
	}
	return true
}

// GroupCompletionRatio returns activated/members for the group, or 0 when
// the group is unknown.
func (p *ProgressTracker) GroupCompletionRatio(level, groupID int) float64 {
	g, ok := p.groups[GroupKey{Level: level, GroupID: groupID}]
	if !ok || len(g.members) == 0 {
		return 0
	}
	return float64(len(g.activated)) / float64(len(g.members))
}

// ActivatedCount returns the number of activated members.
func (p *ProgressTracker) ActivatedCount() int {
	return len(p.activated)
}

// MemberCount returns the number of registered members.
func (p *ProgressTracker) MemberCount() int {
	return len(p.memberOf)
}

// Levels returns the registered level ids in ascending order.
func (p *ProgressTracker) Levels() []int {
	out := make([]int, 0, len(p.levels))
	for l := range p.levels {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Groups returns the group keys of level ordered by group id.
func (p *ProgressTracker) Groups(level int) []GroupKey {
	out := append([]GroupKey(nil), p.levels[level]...)
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// Members returns the member ids of a group in registration order.
func (p *ProgressTracker) Members(level, groupID int) []string {
	g, ok := p.groups[GroupKey{Level: level, GroupID: groupID}]
	if !ok {
		return nil
	}
	return append([]string(nil), g.members...)
}
