package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/JackalCourse/internal/course"
	"github.com/AaronLay10/JackalCourse/internal/events"
)

// Game is the session surface the API reads and drives. *course.Game
// satisfies it.
type Game interface {
	Status() course.Status
	FinalScoreSummary() (course.Summary, bool)
	LiveScore() course.Summary
	OnResetRequested() course.Cues
	EndGame() course.Cues
}

// CuePublisher forwards operator-triggered cues to the simulation client.
type CuePublisher interface {
	Publish(c course.Cues) error
}

// Options configures a Server.
type Options struct {
	Room   string
	Game   Game
	Events *events.Log
	Cues   CuePublisher
	Auth   *Auth
	TLS    *TLSConfig
	Logger zerolog.Logger

	// Readiness is shared with the code that owns the dependencies. nil
	// creates a private one.
	Readiness *Readiness
}

// Server is the course HTTP API.
type Server struct {
	room   string
	game   Game
	events *events.Log
	cues   CuePublisher
	auth   *Auth
	tls    *TLSConfig
	logger zerolog.Logger

	ready   *Readiness
	started time.Time
}

// NewServer builds a server. A nil Auth disables authentication.
func NewServer(o Options) *Server {
	ready := o.Readiness
	if ready == nil {
		ready = &Readiness{}
	}
	return &Server{
		room:    o.Room,
		game:    o.Game,
		events:  o.Events,
		cues:    o.Cues,
		auth:    o.Auth,
		tls:     o.TLS,
		logger:  o.Logger,
		ready:   ready,
		started: time.Now(),
	}
}

// Readiness returns the dependency state reported by /ready.
func (s *Server) Readiness() *Readiness {
	return s.ready
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.HandleFunc("/events", s.auth.RequireAnyRole(s.eventsHandler))
	mux.HandleFunc("/ws/events", s.auth.RequireAnyRole(s.wsEventsHandler))
	mux.HandleFunc("/status", s.auth.RequireAnyRole(s.statusHandler))
	mux.HandleFunc("/score", s.auth.RequireAnyRole(s.scoreHandler))
	mux.HandleFunc("/operator/reset", s.auth.RequireAnyRole(s.operatorResetHandler))
	mux.HandleFunc("/operator/end", s.auth.RequireAdmin(s.operatorEndHandler))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Bool("tls", tlsCfg != nil).Msg("api listening")
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.events != nil {
			s.events.CloseAllSubscribers()
		}
		return srv.Shutdown(shutdownCtx)
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "coursed",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Readiness tracks the game and its dependencies. Optional dependencies do
// not block readiness when unavailable.
type Readiness struct {
	mu                sync.RWMutex
	gameReady         bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// SetGame marks the game loaded (and restored, if applicable).
func (r *Readiness) SetGame(ready bool) {
	r.mu.Lock()
	r.gameReady = ready
	r.mu.Unlock()
}

// SetMQTT records broker state.
func (r *Readiness) SetMQTT(connected, optional bool) {
	r.mu.Lock()
	r.mqttConnected = connected
	r.mqttOptional = optional
	r.mu.Unlock()
}

// SetPostgres records database state.
func (r *Readiness) SetPostgres(connected, optional bool) {
	r.mu.Lock()
	r.postgresConnected = connected
	r.postgresOptional = optional
	r.mu.Unlock()
}

func (r *Readiness) snapshot() (game, mqtt, mqttOpt, pg, pgOpt bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gameReady, r.mqttConnected, r.mqttOptional, r.postgresConnected, r.postgresOptional
}

type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	game, mqtt, mqttOpt, pg, pgOpt := s.ready.snapshot()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckStatus)}
	var failing []string

	check := func(name string, ok, optional bool) {
		switch {
		case ok:
			resp.Checks[name] = CheckStatus{Status: "ok", Optional: optional}
		case optional:
			resp.Checks[name] = CheckStatus{Status: "unavailable", Optional: true}
		default:
			resp.Checks[name] = CheckStatus{Status: "not_ready"}
			resp.Ready = false
			failing = append(failing, name)
		}
	}
	check("game", game, false)
	check("mqtt", mqtt, mqttOpt)
	check("postgres", pg, pgOpt)

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
		resp.NotReadyMsg = "not ready: " + strings.Join(failing, ", ")
	}
	writeJSON(w, status, resp)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	writeJSON(w, http.StatusOK, s.events.Snapshot())
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if s.game == nil {
		writeJSON(w, http.StatusServiceUnavailable, OperatorResponse{Error: "no game loaded"})
		return
	}
	writeJSON(w, http.StatusOK, s.game.Status())
}

type ScoreResponse struct {
	Final   bool           `json:"final"`
	Summary course.Summary `json:"summary"`
}

func (s *Server) scoreHandler(w http.ResponseWriter, r *http.Request) {
	if s.game == nil {
		writeJSON(w, http.StatusServiceUnavailable, OperatorResponse{Error: "no game loaded"})
		return
	}
	if summary, ok := s.game.FinalScoreSummary(); ok {
		writeJSON(w, http.StatusOK, ScoreResponse{Final: true, Summary: summary})
		return
	}
	writeJSON(w, http.StatusOK, ScoreResponse{Summary: s.game.LiveScore()})
}

type OperatorResponse struct {
	OK    bool        `json:"ok"`
	Cues  course.Cues `json:"cues"`
	Error string      `json:"error,omitempty"`
}

func (s *Server) operatorResetHandler(w http.ResponseWriter, r *http.Request) {
	s.operatorAction(w, r, "operator.reset", func() course.Cues { return s.game.OnResetRequested() })
}

func (s *Server) operatorEndHandler(w http.ResponseWriter, r *http.Request) {
	s.operatorAction(w, r, "operator.end", func() course.Cues { return s.game.EndGame() })
}

// operatorAction runs an operator command against the game, records who did
// it and forwards the cues to the simulation client.
func (s *Server) operatorAction(w http.ResponseWriter, r *http.Request, event string, action func() course.Cues) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, OperatorResponse{Error: "method not allowed"})
		return
	}
	if s.game == nil {
		writeJSON(w, http.StatusServiceUnavailable, OperatorResponse{Error: "no game loaded"})
		return
	}

	if s.events != nil {
		s.events.Emit("info", event, "", map[string]interface{}{
			"role": string(s.auth.roleOf(r)),
		})
	}

	cues := action()
	if s.cues != nil {
		if err := s.cues.Publish(cues); err != nil {
			s.logger.Warn().Err(err).Str("event", event).Msg("operator cues not delivered")
		}
	}
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Cues: cues})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
