package course

import "testing"

func TestProgressEndToEnd(t *testing.T) {
	p := NewProgressTracker(nil)
	p.RegisterMember(1, 1, "A")
	p.RegisterMember(1, 1, "B")
	p.RegisterMember(1, 2, "C")

	p.Activate("A")
	p.Activate("B")

	if !p.IsGroupComplete(1, 1) {
		t.Error("expected group (1,1) complete")
	}
	if p.IsGroupComplete(1, 2) {
		t.Error("expected group (1,2) incomplete")
	}
	if p.IsLevelComplete(1) {
		t.Error("expected level 1 incomplete")
	}

	p.Activate("C")
	if !p.IsLevelComplete(1) {
		t.Error("expected level 1 complete")
	}
	if !p.IsAllComplete() {
		t.Error("expected all complete")
	}
}

func TestProgressActivateIsSingleFire(t *testing.T) {
	p := NewProgressTracker(nil)
	p.RegisterMember(1, 1, "A")
	p.RegisterMember(1, 1, "B")

	if !p.Activate("A") {
		t.Error("first activation should report a new activation")
	}
	ratio := p.GroupCompletionRatio(1, 1)
	count := p.ActivatedCount()

	if p.Activate("A") {
		t.Error("second activation should be a no-op")
	}
	if p.GroupCompletionRatio(1, 1) != ratio || p.ActivatedCount() != count {
		t.Error("second activation changed state")
	}
}

func TestProgressRegisterIdempotent(t *testing.T) {
	em := &recordingEmitter{}
	p := NewProgressTracker(em)
	p.RegisterMember(1, 1, "A")
	p.RegisterMember(1, 1, "A")
	p.RegisterMember(2, 5, "A")

	if p.MemberCount() != 1 {
		t.Errorf("expected 1 member, got %d", p.MemberCount())
	}
	if got := p.Members(1, 1); len(got) != 1 {
		t.Errorf("expected no duplicate entries, got %v", got)
	}
	if p.Members(2, 5) != nil {
		t.Error("member must not be added to a second group")
	}
	if em.count("plate.rejected") != 1 {
		t.Errorf("expected one warning for the cross-group registration, got %d", em.count("plate.rejected"))
	}
}

func TestProgressUnknownMember(t *testing.T) {
	em := &recordingEmitter{}
	p := NewProgressTracker(em)
	p.RegisterMember(1, 1, "A")

	if p.Activate("ghost") {
		t.Error("unknown member must not activate")
	}
	if p.ActivatedCount() != 0 {
		t.Errorf("expected no activations, got %d", p.ActivatedCount())
	}
	if em.count("plate.rejected") != 1 {
		t.Error("expected unknown member warning")
	}
}

func TestProgressMonotonicCompletion(t *testing.T) {
	p := NewProgressTracker(nil)
	p.RegisterMember(1, 1, "A")
	p.RegisterMember(2, 1, "B")

	p.Activate("A")
	seq := []string{"A", "ghost", "B", "A", "B"}
	for _, id := range seq {
		p.Activate(id)
		if !p.IsGroupComplete(1, 1) {
			t.Fatalf("group (1,1) regressed after activating %s", id)
		}
	}
}

func TestProgressAllImpliesEveryGroup(t *testing.T) {
	p := NewProgressTracker(nil)
	layout := map[GroupKey][]string{
		{Level: 1, GroupID: 1}: {"a", "b"},
		{Level: 1, GroupID: 2}: {"c"},
		{Level: 2, GroupID: 1}: {"d", "e", "f"},
	}
	var all []string
	for k, ids := range layout {
		for _, id := range ids {
			p.RegisterMember(k.Level, k.GroupID, id)
			all = append(all, id)
		}
	}

	for _, id := range all {
		p.Activate(id)
		if p.IsAllComplete() {
			for k := range layout {
				if !p.IsGroupComplete(k.Level, k.GroupID) {
					t.Fatalf("IsAllComplete true but group %+v incomplete", k)
				}
			}
		}
	}
	if !p.IsAllComplete() {
		t.Error("expected all complete after activating every member")
	}
}

func TestProgressEmptyAndUnknown(t *testing.T) {
	p := NewProgressTracker(nil)
	if p.IsAllComplete() {
		t.Error("empty tracker must not be complete")
	}
	if p.IsLevelComplete(7) {
		t.Error("unknown level must not be complete")
	}
	if p.IsGroupComplete(7, 1) {
		t.Error("unknown group must not be complete")
	}
	if p.GroupCompletionRatio(7, 1) != 0 {
		t.Error("unknown group ratio should be 0")
	}
}

func TestProgressRatioAndOrdering(t *testing.T) {
	p := NewProgressTracker(nil)
	p.RegisterMember(3, 2, "x")
	p.RegisterMember(3, 1, "y")
	p.RegisterMember(1, 1, "z")
	p.RegisterMember(3, 2, "w")

	p.Activate("x")
	if got := p.GroupCompletionRatio(3, 2); got != 0.5 {
		t.Errorf("expected ratio 0.5, got %v", got)
	}

	levels := p.Levels()
	if len(levels) != 2 || levels[0] != 1 || levels[1] != 3 {
		t.Errorf("unexpected level order %v", levels)
	}
	groups := p.Groups(3)
	if len(groups) != 2 || groups[0].GroupID != 1 || groups[1].GroupID != 2 {
		t.Errorf("unexpected group order %v", groups)
	}
	if key, ok := p.GroupOf("w"); !ok || key != (GroupKey{Level: 3, GroupID: 2}) {
		t.Errorf("unexpected group for w: %+v", key)
	}
}
