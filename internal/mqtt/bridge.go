package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/JackalCourse/internal/course"
)

// Transport is the subset of Client the bridge needs.
type Transport interface {
	Publisher
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Game receives decoded triggers. *course.Game satisfies it.
type Game interface {
	OnCheckpointTriggered(index int, pose course.Pose) course.Cues
	OnPlateTriggered(memberID string) course.Cues
	OnPhotoCaptured(targetID string) course.Cues
	OnResetRequested() course.Cues
	OnHazardTriggered(hazardID string) course.Cues
	OnFinishTriggered() course.Cues
	OnTick(dt time.Duration) course.Cues
}

type checkpointPayload struct {
	Index *int        `json:"index"`
	Pose  course.Pose `json:"pose"`
}

type platePayload struct {
	MemberID string `json:"member_id"`
}

type photoPayload struct {
	TargetID string `json:"target_id"`
}

type hazardPayload struct {
	HazardID string `json:"hazard_id"`
}

type tickPayload struct {
	DT float64 `json:"dt"`
}

const (
	// maxTick bounds a single tick so a stalled client cannot jump the clock.
	maxTick = time.Second

	cueQueueSize = 256
)

// TriggerBridge feeds simulation-client triggers into a Game and publishes
// the resulting cues. Subscriptions are idempotent across reconnects.
//
// Paho delivers messages in order on a single goroutine, so triggers reach
// the game in arrival order. After Start, cues go out through a queue
// drained by its own goroutine and message handlers never wait on a
// publish.
type TriggerBridge struct {
	mu         sync.RWMutex
	transport  Transport
	game       Game
	topics     Topics
	cues       *CuePublisher
	monitor    *Monitor
	emitter    course.Emitter
	subscribed map[string]bool
	queue      chan course.Cues
	drained    chan struct{}
}

// NewTriggerBridge wires game to transport. monitor may be nil.
func NewTriggerBridge(transport Transport, game Game, topics Topics, monitor *Monitor, emitter course.Emitter) *TriggerBridge {
	return &TriggerBridge{
		transport:  transport,
		game:       game,
		topics:     topics,
		cues:       NewCuePublisher(transport, topics),
		monitor:    monitor,
		emitter:    emitter,
		subscribed: make(map[string]bool),
	}
}

// Subscribe subscribes to the trigger, tick and heartbeat topics. Topics
// already subscribed are skipped.
func (b *TriggerBridge) Subscribe() error {
	topics := []string{b.topics.Triggers(), b.topics.Tick()}
	if b.monitor != nil {
		topics = append(topics, b.topics.Heartbeat())
	}
	for _, topic := range topics {
		if b.IsSubscribed(topic) {
			continue
		}
		if err := b.transport.Subscribe(topic, b.handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		b.mu.Lock()
		b.subscribed[topic] = true
		b.mu.Unlock()
	}
	return nil
}

// Start begins publishing cues from a background goroutine. Until Start is
// called cues are published inline.
func (b *TriggerBridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue != nil {
		return
	}
	b.queue = make(chan course.Cues, cueQueueSize)
	b.drained = make(chan struct{})
	go b.drain(b.queue, b.drained)
}

// Stop flushes queued cues and stops the publishing goroutine.
func (b *TriggerBridge) Stop() {
	b.mu.Lock()
	queue, drained := b.queue, b.drained
	b.queue, b.drained = nil, nil
	if queue != nil {
		close(queue)
	}
	b.mu.Unlock()
	if drained != nil {
		<-drained
	}
}

func (b *TriggerBridge) drain(queue <-chan course.Cues, drained chan<- struct{}) {
	defer close(drained)
	for c := range queue {
		b.send(c)
	}
}

// IsSubscribed returns true if the topic is already subscribed.
func (b *TriggerBridge) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribed[topic]
}

// ClearSubscriptions forgets subscriptions so the next Subscribe renews
// them. Call it when the connection drops.
func (b *TriggerBridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}

func (b *TriggerBridge) handle(_ paho.Client, msg paho.Message) {
	if err := b.Dispatch(msg.Topic(), msg.Payload()); err != nil {
		b.emit("warning", "device.error", "bad trigger payload", map[string]interface{}{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
	}
}

// Dispatch decodes one message, applies it to the game and publishes the
// cues it produced.
func (b *TriggerBridge) Dispatch(topic string, payload []byte) error {
	switch topic {
	case b.topics.Tick():
		var p tickPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		if p.DT < 0 {
			return fmt.Errorf("negative tick: %v", p.DT)
		}
		dt := time.Duration(p.DT * float64(time.Second))
		if dt > maxTick {
			dt = maxTick
		}
		return b.publish(b.game.OnTick(dt))

	case b.topics.Heartbeat():
		if b.monitor == nil {
			return nil
		}
		var hb Heartbeat
		if err := decode(payload, &hb); err != nil {
			return err
		}
		return b.monitor.HandleHeartbeat(hb)
	}

	kind, ok := b.topics.TriggerKind(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %s", topic)
	}

	var cues course.Cues
	switch kind {
	case TriggerCheckpoint:
		var p checkpointPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		if p.Index == nil {
			return fmt.Errorf("checkpoint trigger without index")
		}
		cues = b.game.OnCheckpointTriggered(*p.Index, p.Pose)

	case TriggerPlate:
		var p platePayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		cues = b.game.OnPlateTriggered(p.MemberID)

	case TriggerPhoto:
		var p photoPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		cues = b.game.OnPhotoCaptured(p.TargetID)

	case TriggerHazard:
		var p hazardPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		cues = b.game.OnHazardTriggered(p.HazardID)

	case TriggerReset:
		cues = b.game.OnResetRequested()

	case TriggerFinish:
		cues = b.game.OnFinishTriggered()

	default:
		return fmt.Errorf("unknown trigger kind %s", kind)
	}
	return b.publish(cues)
}

// publish queues c when the bridge is started, else sends it inline. A full
// queue drops the cues and reports a device.error.
func (b *TriggerBridge) publish(c course.Cues) error {
	if c.Empty() {
		return nil
	}
	b.mu.RLock()
	if b.queue == nil {
		b.mu.RUnlock()
		b.send(c)
		return nil
	}
	select {
	case b.queue <- c:
		b.mu.RUnlock()
	default:
		b.mu.RUnlock()
		b.emit("error", "device.error", "cue queue full, cues dropped", map[string]interface{}{
			"topic": b.topics.Cue(),
		})
	}
	return nil
}

func (b *TriggerBridge) send(c course.Cues) {
	if err := b.cues.Publish(c); err != nil {
		b.emit("error", "device.error", "cue publish failed", map[string]interface{}{
			"topic": b.topics.Cue(),
			"error": err.Error(),
		})
	}
}

func (b *TriggerBridge) emit(level, name, msg string, fields map[string]interface{}) {
	if b.emitter != nil {
		b.emitter.Emit(level, name, msg, fields)
	}
}

// decode accepts an empty payload as an empty object.
func decode(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
