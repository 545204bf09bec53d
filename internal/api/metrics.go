package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/JackalCourse/internal/version"
)

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	gameReady, mqttConnected, _, pgConnected, _ := s.ready.snapshot()

	var eventsTotal int64
	var wsClients int
	if s.events != nil {
		eventsTotal = s.events.TotalCount()
		wsClients = s.events.SubscriberCount()
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`room="%s",instance="%s",version="%s"`, s.room, hostname, version.Version)

	writeMetric("course_uptime_seconds", "gauge",
		"Number of seconds since the service started", time.Since(s.started).Seconds(), labels)
	writeMetric("course_game_ready", "gauge",
		"Whether a game is loaded (1) or not (0)", boolGauge(gameReady), labels)
	writeMetric("course_events_total", "counter",
		"Total number of events emitted since startup", eventsTotal, labels)
	writeMetric("course_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("course_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(pgConnected), labels)
	writeMetric("course_ws_clients", "gauge",
		"Number of active WebSocket client connections", wsClients, labels)

	if s.game == nil {
		return
	}
	st := s.game.Status()
	writeMetric("course_elapsed_seconds", "gauge",
		"Play time accrued by the current session", st.ElapsedSeconds, labels)
	writeMetric("course_restarts", "gauge",
		"Restarts counted in the current session", st.Restarts, labels)
	writeMetric("course_plates_activated", "gauge",
		"Pressure plates activated", st.PlatesActivated, labels)
	writeMetric("course_photos_captured", "gauge",
		"Photo targets captured", st.PhotosCaptured, labels)
	writeMetric("course_last_checkpoint", "gauge",
		"Index of the last checkpoint reached", st.LastCheckpoint, labels)
	writeMetric("course_ended", "gauge",
		"Whether the session has ended (1) or not (0)", boolGauge(st.Ended), labels)
	writeMetric("course_score_stars", "gauge",
		"Star rating, final once ended", st.Score.Stars, labels)
}
