package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/JackalCourse/internal/course"
)

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// mockTransport records subscriptions and publishes.
type mockTransport struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	subscribes    int
	published     []published
	publishErr    error
	// gate, when set, holds every Publish until it is closed.
	gate chan struct{}
}

type published struct {
	topic   string
	payload []byte
}

func newMockTransport() *mockTransport {
	return &mockTransport{subscriptions: make(map[string]paho.MessageHandler)}
}

func (m *mockTransport) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	m.subscribes++
	return nil
}

func (m *mockTransport) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{topic: topic, payload: payload})
	return nil
}

// simulate delivers a message through the handler subscribed on pattern.
func (m *mockTransport) simulate(pattern, topic string, payload string) {
	m.mu.Lock()
	handler, ok := m.subscriptions[pattern]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: []byte(payload)})
	}
}

func (m *mockTransport) lastCues(t *testing.T) course.Cues {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		t.Fatal("nothing published")
	}
	var c course.Cues
	if err := json.Unmarshal(m.published[len(m.published)-1].payload, &c); err != nil {
		t.Fatalf("bad cue payload: %v", err)
	}
	return c
}

type recordingEmitter struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingEmitter) Emit(level, name, msg string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

func (r *recordingEmitter) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

const bridgeCourse = `version: 1
course:
  id: bay
checkpoints:
  - id: start
    pose: {position: {x: 0}, rotation: {w: 1}}
  - id: ridge
    pose: {position: {x: 10}, rotation: {w: 1}}
levels:
  - level: 1
    groups:
      - group_id: 1
        door: door_a
        plates: [A]
final_gate: exit
photo_targets: [rock]
hazards:
  - id: ocean
    delay_seconds: 0.5
`

var testTopics = Topics{Root: "course", Room: "bay1"}

func newBridge(t *testing.T) (*TriggerBridge, *mockTransport, *course.Game, *recordingEmitter) {
	t.Helper()
	def, err := course.ParseCourse([]byte(bridgeCourse))
	if err != nil {
		t.Fatalf("bad course: %v", err)
	}
	em := &recordingEmitter{}
	game, err := course.NewGame(def, course.WithEmitter(em))
	if err != nil {
		t.Fatal(err)
	}
	tr := newMockTransport()
	b := NewTriggerBridge(tr, game, testTopics, NewMonitor(em, 2), em)
	if err := b.Subscribe(); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return b, tr, game, em
}

func TestBridgeSubscribeIdempotent(t *testing.T) {
	b, tr, _, _ := newBridge(t)

	for _, topic := range []string{"course/bay1/trigger/+", "course/bay1/tick", "course/bay1/heartbeat"} {
		if !b.IsSubscribed(topic) {
			t.Errorf("expected subscription to %s", topic)
		}
	}
	if err := b.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if tr.subscribes != 3 {
		t.Errorf("expected 3 subscribe calls, got %d", tr.subscribes)
	}

	b.ClearSubscriptions()
	if b.IsSubscribed("course/bay1/tick") {
		t.Error("expected subscriptions cleared")
	}
	b.Subscribe()
	if tr.subscribes != 6 {
		t.Errorf("expected resubscribe after clear, got %d calls", tr.subscribes)
	}
}

func TestBridgePlateOpensDoorAndFinalGate(t *testing.T) {
	_, tr, game, _ := newBridge(t)

	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/plate", `{"member_id":"A"}`)

	c := tr.lastCues(t)
	if c.Plate != "A" {
		t.Errorf("expected plate cue, got %+v", c)
	}
	if len(c.Gates) != 2 || c.Gates[0].Target != "door_a" || c.Gates[1].Kind != course.GateFinal {
		t.Errorf("unexpected gates %+v", c.Gates)
	}
	if !game.ShouldOpenFinalGate() {
		t.Error("final gate should be open")
	}
	if tr.published[0].topic != "course/bay1/cue" {
		t.Errorf("unexpected cue topic %s", tr.published[0].topic)
	}
}

func TestBridgeCheckpointAndReset(t *testing.T) {
	_, tr, game, _ := newBridge(t)

	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/checkpoint",
		`{"index":1,"pose":{"position":{"x":10,"y":1,"z":2},"rotation":{"w":1}}}`)
	c := tr.lastCues(t)
	if c.Checkpoint == nil || !c.Checkpoint.PlayCue {
		t.Fatalf("expected checkpoint cue, got %+v", c)
	}

	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/reset", ``)
	c = tr.lastCues(t)
	if c.Reset == nil || c.Reset.PlayerPose.Position.Z != 2 {
		t.Errorf("expected reset to checkpoint pose, got %+v", c.Reset)
	}
	if game.Restarts() != 1 {
		t.Errorf("expected 1 restart, got %d", game.Restarts())
	}
}

func TestBridgeHazardResetsOnTick(t *testing.T) {
	_, tr, game, _ := newBridge(t)

	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/hazard", `{"hazard_id":"ocean"}`)
	if c := tr.lastCues(t); c.HazardEffect != "ocean" {
		t.Errorf("expected hazard effect, got %+v", c)
	}

	tr.simulate(testTopics.Tick(), testTopics.Tick(), `{"dt":0.25}`)
	if len(tr.published) != 1 {
		t.Errorf("tick without signal should not publish, got %d", len(tr.published))
	}
	tr.simulate(testTopics.Tick(), testTopics.Tick(), `{"dt":0.25}`)
	if c := tr.lastCues(t); c.Reset == nil {
		t.Errorf("expected hazard reset after 0.5s, got %+v", c)
	}
	if game.Elapsed() != 500*time.Millisecond {
		t.Errorf("unexpected elapsed %v", game.Elapsed())
	}
}

func TestBridgeTickIsClamped(t *testing.T) {
	_, tr, game, _ := newBridge(t)
	tr.simulate(testTopics.Tick(), testTopics.Tick(), `{"dt":30}`)
	if game.Elapsed() != maxTick {
		t.Errorf("expected clamped tick %v, got %v", maxTick, game.Elapsed())
	}
}

func TestBridgeFinishPublishesGameOver(t *testing.T) {
	_, tr, game, _ := newBridge(t)
	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/finish", `{}`)

	c := tr.lastCues(t)
	if c.GameOver == nil || !c.DisableInput {
		t.Errorf("expected game over cue, got %+v", c)
	}
	if !game.Ended() {
		t.Error("game should have ended")
	}
}

func TestBridgeBadPayloads(t *testing.T) {
	b, tr, _, em := newBridge(t)

	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/plate", `{not json`)
	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/checkpoint", `{"pose":{}}`)
	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/teleport", `{}`)
	tr.simulate(testTopics.Tick(), testTopics.Tick(), `{"dt":-1}`)

	if em.count("device.error") != 4 {
		t.Errorf("expected 4 device.error events, got %d", em.count("device.error"))
	}
	if len(tr.published) != 0 {
		t.Errorf("bad payloads should publish nothing, got %d", len(tr.published))
	}
	if err := b.Dispatch("elsewhere/topic", nil); err == nil {
		t.Error("expected error for foreign topic")
	}
}

func TestBridgePublishFailureIsReported(t *testing.T) {
	_, tr, _, em := newBridge(t)
	tr.publishErr = errors.New("broker gone")

	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/plate", `{"member_id":"A"}`)
	if em.count("device.error") != 1 {
		t.Errorf("expected publish failure event, got %d", em.count("device.error"))
	}
}

func TestBridgeStartedHandlersDoNotWaitOnPublish(t *testing.T) {
	b, tr, _, _ := newBridge(t)
	tr.gate = make(chan struct{})
	b.Start()

	done := make(chan struct{})
	go func() {
		tr.simulate(testTopics.Triggers(), "course/bay1/trigger/plate", `{"member_id":"A"}`)
		tr.simulate(testTopics.Triggers(), "course/bay1/trigger/checkpoint", `{"index":1}`)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message handler blocked on a stalled publish")
	}

	close(tr.gate)
	b.Stop()

	if len(tr.published) != 2 {
		t.Fatalf("expected 2 queued cues flushed on stop, got %d", len(tr.published))
	}
	var first, second course.Cues
	json.Unmarshal(tr.published[0].payload, &first)
	json.Unmarshal(tr.published[1].payload, &second)
	if first.Plate != "A" || second.Checkpoint == nil {
		t.Errorf("cues published out of order: %+v then %+v", first, second)
	}
}

func TestBridgeStopWithoutStart(t *testing.T) {
	b, tr, _, _ := newBridge(t)
	b.Stop()
	b.Start()
	b.Start()
	b.Stop()
	b.Stop()

	// Stopped again, cues publish inline.
	tr.simulate(testTopics.Triggers(), "course/bay1/trigger/plate", `{"member_id":"A"}`)
	if c := tr.lastCues(t); c.Plate != "A" {
		t.Errorf("expected inline publish after stop, got %+v", c)
	}
}

func TestBridgeHeartbeat(t *testing.T) {
	b, tr, _, em := newBridge(t)
	tr.simulate(testTopics.Heartbeat(), testTopics.Heartbeat(), `{"client_id":"rover-sim","heartbeat_sec":2}`)

	if got := b.monitor.ConnectedClients(); len(got) != 1 || got[0] != "rover-sim" {
		t.Errorf("expected connected client, got %v", got)
	}
	if em.count("device.connected") != 1 {
		t.Errorf("expected device.connected, got %d", em.count("device.connected"))
	}
}

func TestTopics(t *testing.T) {
	if got := testTopics.Trigger(TriggerPlate); got != "course/bay1/trigger/plate" {
		t.Errorf("unexpected trigger topic %s", got)
	}
	tests := []struct {
		topic string
		kind  string
		ok    bool
	}{
		{"course/bay1/trigger/hazard", "hazard", true},
		{"course/bay1/trigger/", "", false},
		{"course/bay1/trigger/a/b", "", false},
		{"course/bay2/trigger/plate", "", false},
	}
	for _, tt := range tests {
		kind, ok := testTopics.TriggerKind(tt.topic)
		if kind != tt.kind || ok != tt.ok {
			t.Errorf("TriggerKind(%q) = %q, %v; want %q, %v", tt.topic, kind, ok, tt.kind, tt.ok)
		}
	}
}
