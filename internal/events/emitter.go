package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the number of recent events kept in memory.
const DefaultBufferSize = 256

// Store persists events. The Postgres client satisfies it.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// JSON encodes the event the way it is streamed to clients.
func (e Event) JSON() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// Log is the course event log. Every accepted event is buffered, written to
// the structured logger, broadcast to subscribers and, when a store is set,
// persisted.
type Log struct {
	buffer *RingBuffer
	subs   *Broadcaster
	logger zerolog.Logger

	mu             sync.RWMutex
	store          Store
	storeErrLogged bool
}

// NewLog creates an event log keeping size recent events.
func NewLog(logger zerolog.Logger, size int) *Log {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Log{
		buffer: NewRingBuffer(size),
		subs:   NewBroadcaster(),
		logger: logger,
	}
}

// SetStore sets the persistence backend. nil disables persistence.
func (l *Log) SetStore(s Store) {
	l.mu.Lock()
	l.store = s
	l.storeErrLogged = false
	l.mu.Unlock()
}

// Emit records an event. Names outside the allow-list are rejected.
func (l *Log) Emit(level, name, msg string, fields map[string]interface{}) error {
	if err := Validate(name); err != nil {
		return err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	l.buffer.Add(e)
	l.write(e)
	l.subs.broadcast(e)

	l.mu.RLock()
	store := l.store
	l.mu.RUnlock()
	if store == nil {
		return nil
	}

	sessionID, _ := fields["session_id"].(string)
	if err := store.Append(ts, level, name, msg, fields, sessionID); err != nil {
		l.storeFailed(err)
	}
	return nil
}

// storeFailed reports the first persistence failure only. The report goes to
// the buffer and logger directly so a failing store cannot recurse.
func (l *Log) storeFailed(err error) {
	l.mu.Lock()
	if l.storeErrLogged {
		l.mu.Unlock()
		return
	}
	l.storeErrLogged = true
	l.mu.Unlock()

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "postgres append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	}
	l.buffer.Add(e)
	l.write(e)
	l.subs.broadcast(e)
}

func (l *Log) write(e Event) {
	ev := l.logger.WithLevel(zerologLevel(e.Level)).Str("event", e.Name)
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg(e.Message)
}

func zerologLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Snapshot returns the buffered events, oldest first.
func (l *Log) Snapshot() []Event {
	return l.buffer.Snapshot()
}

// Recent returns the last n buffered events. n <= 0 returns all of them.
func (l *Log) Recent(n int) []Event {
	all := l.buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// TotalCount returns the number of events emitted since start.
func (l *Log) TotalCount() int64 {
	return l.buffer.Total()
}

// Subscribe registers a live subscriber.
func (l *Log) Subscribe() Subscriber {
	return l.subs.Subscribe()
}

// Unsubscribe removes a subscriber and closes its channel.
func (l *Log) Unsubscribe(sub Subscriber) {
	l.subs.Unsubscribe(sub)
}

// CloseAllSubscribers closes every subscriber, used at shutdown.
func (l *Log) CloseAllSubscribers() {
	l.subs.CloseAll()
}

// SubscriberCount returns the number of live subscribers.
func (l *Log) SubscriberCount() int {
	return l.subs.Count()
}
