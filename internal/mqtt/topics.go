package mqtt

import "strings"

// Trigger kinds published by the simulation client under trigger/<kind>.
const (
	TriggerCheckpoint = "checkpoint"
	TriggerPlate      = "plate"
	TriggerPhoto      = "photo"
	TriggerReset      = "reset"
	TriggerHazard     = "hazard"
	TriggerFinish     = "finish"
)

// Topics builds the topic names for one room: <root>/<room>/...
type Topics struct {
	Root string
	Room string
}

func (t Topics) prefix() string {
	return t.Root + "/" + t.Room
}

// Trigger returns the topic for a trigger kind.
func (t Topics) Trigger(kind string) string {
	return t.prefix() + "/trigger/" + kind
}

// Triggers is the wildcard subscription for every trigger kind.
func (t Topics) Triggers() string {
	return t.prefix() + "/trigger/+"
}

// Tick carries frame deltas from the simulation client.
func (t Topics) Tick() string {
	return t.prefix() + "/tick"
}

// Heartbeat carries client presence.
func (t Topics) Heartbeat() string {
	return t.prefix() + "/heartbeat"
}

// Cue is where the service publishes cues for the simulation client.
func (t Topics) Cue() string {
	return t.prefix() + "/cue"
}

// TriggerKind extracts the kind from a trigger topic.
func (t Topics) TriggerKind(topic string) (string, bool) {
	kind, ok := strings.CutPrefix(topic, t.prefix()+"/trigger/")
	if !ok || kind == "" || strings.Contains(kind, "/") {
		return "", false
	}
	return kind, true
}
