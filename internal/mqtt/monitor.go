package mqtt

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/JackalCourse/internal/course"
)

const defaultHeartbeatSec = 5

// Heartbeat is the presence message a simulation client publishes.
type Heartbeat struct {
	ClientID     string `json:"client_id"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// ClientState tracks one simulation client's presence.
type ClientState struct {
	ClientID     string
	LastSeen     time.Time
	HeartbeatSec int
	Connected    bool
}

// Monitor tracks simulation client heartbeats and reports connects and
// timeouts as device events.
type Monitor struct {
	mu        sync.RWMutex
	clients   map[string]*ClientState
	tolerance float64 // heartbeat multiplier before a client counts as gone
	emitter   course.Emitter
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor. tolerance <= 1 defaults to 2 (one missed
// heartbeat).
func NewMonitor(emitter course.Emitter, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0
	}
	return &Monitor{
		clients:   make(map[string]*ClientState),
		tolerance: tolerance,
		emitter:   emitter,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// HandleHeartbeat records a heartbeat. The first heartbeat of a client, and
// the first after a timeout, emits device.connected.
func (m *Monitor) HandleHeartbeat(hb Heartbeat) error {
	if hb.ClientID == "" {
		return fmt.Errorf("heartbeat without client_id")
	}
	if hb.HeartbeatSec <= 0 {
		hb.HeartbeatSec = defaultHeartbeatSec
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, known := m.clients[hb.ClientID]
	wasConnected := known && existing.Connected
	m.clients[hb.ClientID] = &ClientState{
		ClientID:     hb.ClientID,
		LastSeen:     m.now(),
		HeartbeatSec: hb.HeartbeatSec,
		Connected:    true,
	}

	if !wasConnected {
		m.emit("info", "device.connected", "", map[string]interface{}{
			"client_id": hb.ClientID,
			"reconnect": known,
		})
	}
	return nil
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) checkHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, state := range m.clients {
		if !state.Connected {
			continue
		}
		timeout := time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(state.LastSeen) <= timeout {
			continue
		}
		state.Connected = false
		m.emit("warning", "device.disconnected", "heartbeat timeout", map[string]interface{}{
			"client_id":   id,
			"last_seen":   state.LastSeen.Format(time.RFC3339),
			"timeout_sec": timeout.Seconds(),
		})
	}
}

// ClientState returns a copy of a client's state, or nil if unknown.
func (m *Monitor) ClientState(clientID string) *ClientState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.clients[clientID]; ok {
		cpy := *state
		return &cpy
	}
	return nil
}

// ConnectedClients returns the ids of connected clients, sorted.
func (m *Monitor) ConnectedClients() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := []string{}
	for id, state := range m.clients {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Monitor) emit(level, name, msg string, fields map[string]interface{}) {
	if m.emitter != nil {
		m.emitter.Emit(level, name, msg, fields)
	}
}
