package course

import "testing"

func TestResetRestoresLastCheckpointAndOriginalObjects(t *testing.T) {
	session := NewSession()
	objects := []ObjectPose{
		{ID: "flag", Pose: poseAt(5)},
		{ID: "crate", Pose: poseAt(7)},
	}
	c := NewResetController(poseAt(0), objects, session, nil)

	res := c.RequestReset()
	if res.PlayerPose != poseAt(0) {
		t.Errorf("expected spawn pose before any checkpoint, got %+v", res.PlayerPose)
	}

	c.RecordCheckpoint(poseAt(42))
	res = c.RequestReset()
	if res.PlayerPose != poseAt(42) {
		t.Errorf("expected last checkpoint pose, got %+v", res.PlayerPose)
	}
	if len(res.Objects) != 2 || res.Objects[0].Pose != poseAt(5) || res.Objects[1].Pose != poseAt(7) {
		t.Errorf("objects should return to original poses, got %+v", res.Objects)
	}

	// Callers may not alter the stored originals through the result.
	res.Objects[0].Pose = poseAt(999)
	if again := c.RequestReset(); again.Objects[0].Pose != poseAt(5) {
		t.Error("original object poses were mutated through a result")
	}
}

func TestResetCountsRestarts(t *testing.T) {
	session := NewSession()
	c := NewResetController(poseAt(0), nil, session, nil)

	for i := 1; i <= 4; i++ {
		res := c.RequestReset()
		if !res.Counted || res.RestartCount != i {
			t.Fatalf("reset %d: counted=%v count=%d", i, res.Counted, res.RestartCount)
		}
	}

	session.End()
	res := c.RequestReset()
	if res.Counted {
		t.Error("reset after end should not be counted")
	}
	if session.Restarts() != 4 {
		t.Errorf("expected restarts frozen at 4, got %d", session.Restarts())
	}
}

func TestResetWithoutCounter(t *testing.T) {
	em := &recordingEmitter{}
	c := NewResetController(poseAt(3), nil, nil, em)
	res := c.RequestReset()
	if res.Counted {
		t.Error("reset without counter should not count")
	}
	if res.PlayerPose != poseAt(3) {
		t.Errorf("unexpected pose %+v", res.PlayerPose)
	}
	if em.count("player.reset") != 1 {
		t.Error("expected warning for missing counter")
	}
}
