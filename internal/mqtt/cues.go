package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/JackalCourse/internal/course"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// CuePublisher sends game cues to the simulation client.
type CuePublisher struct {
	pub   Publisher
	topic string
}

// NewCuePublisher publishes cues on topics.Cue().
func NewCuePublisher(pub Publisher, topics Topics) *CuePublisher {
	return &CuePublisher{pub: pub, topic: topics.Cue()}
}

// Publish sends c unless it carries no signal.
func (p *CuePublisher) Publish(c course.Cues) error {
	if p == nil || p.pub == nil || c.Empty() {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cues: %w", err)
	}
	if err := p.pub.Publish(p.topic, b); err != nil {
		return fmt.Errorf("failed to publish cues: %w", err)
	}
	return nil
}
