// Package coursed parses coursed flags and runs the course service.
package coursed

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/JackalCourse/internal/api"
	"github.com/AaronLay10/JackalCourse/internal/config"
	"github.com/AaronLay10/JackalCourse/internal/course"
	"github.com/AaronLay10/JackalCourse/internal/events"
	"github.com/AaronLay10/JackalCourse/internal/mqtt"
	"github.com/AaronLay10/JackalCourse/internal/storage/postgres"
	"github.com/AaronLay10/JackalCourse/internal/version"
)

const (
	defaultConfigPath  = "configs/coursed.yaml"
	heartbeatCheck     = time.Second
	postgresCheckEvery = 15 * time.Second
)

// Config holds coursed command configuration.
type Config struct {
	ConfigPath string
	CoursePath string
	LogLevel   string
	Env        *config.Env
}

// ParseConfig parses environment and flags into a Config. Flags win over
// the environment.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{ConfigPath: defaultConfigPath, LogLevel: env.LogLevel, Env: env}

	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to the service config file")
	fs.StringVar(&cfg.CoursePath, "course", "", "Course file (overrides the config and COURSE_FILE)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger writing JSON lines to stdout.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "coursed").Logger()
}

// service is everything Run wires together.
type service struct {
	cfg    *config.ServiceConfig
	logger zerolog.Logger
	events *events.Log
	store  *postgres.Client
	game   *course.Game
	mqtt   *mqtt.Client
	bridge *mqtt.TriggerBridge
	cues   *mqtt.CuePublisher
	api    *api.Server
	ready  *api.Readiness
}

// Run loads configuration, restores or starts a session and serves until
// ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	logger := NewLogger(cfg.LogLevel)

	svcCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	svcCfg.Apply(cfg.Env)
	if cfg.CoursePath != "" {
		svcCfg.Course.Path = cfg.CoursePath
	}

	def, err := course.LoadCourse(svcCfg.Course.Path)
	if err != nil {
		return err
	}

	s := &service{
		cfg:    svcCfg,
		logger: logger,
		events: events.NewLog(logger, svcCfg.BufferSize()),
		ready:  &api.Readiness{},
	}
	defer s.close()

	hostname, _ := os.Hostname()
	s.events.Emit("info", "system.startup", "coursed starting", map[string]interface{}{
		"service":  "coursed",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"room":     svcCfg.Room.ID,
		"course":   def.Course.ID,
	})

	auth, err := api.LoadAuth()
	if err != nil {
		return err
	}

	s.openStore(cfg.Env, def.Course.ID)

	sessionID, restored, err := s.resume()
	if err != nil {
		s.events.Emit("error", "system.error", "session restore failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.game, err = course.NewGame(def, course.WithEmitter(s.events), course.WithSessionID(sessionID))
	if err != nil {
		return err
	}

	// The game reaches its starting state before any trigger can arrive.
	var startCues course.Cues
	if restored != nil {
		if err := s.game.ApplyRestored(restored); err != nil {
			return err
		}
		s.events.Emit("info", "system.startup_restore", "session restored", map[string]interface{}{
			"session_id":      sessionID,
			"elapsed_seconds": restored.ElapsedSeconds,
			"restarts":        restored.Restarts,
			"plates":          len(restored.Plates),
			"last_checkpoint": restored.LastCheckpoint,
		})
	} else {
		startCues = s.game.Start()
	}

	monitor := mqtt.NewMonitor(s.events, 2)
	s.connectMQTT(monitor)
	s.publish(startCues)

	s.api = api.NewServer(api.Options{
		Room:      svcCfg.Room.ID,
		Game:      s.game,
		Events:    s.events,
		Cues:      s.cues,
		Auth:      auth,
		TLS:       api.TLSFromEnv(),
		Readiness: s.ready,
		Logger:    logger,
	})
	if s.mqtt == nil {
		s.ready.SetMQTT(false, true)
	}
	s.ready.SetPostgres(s.store != nil, true)
	s.ready.SetGame(true)

	monitor.Start(heartbeatCheck)
	defer monitor.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.api.ListenAndServe(gctx, svcCfg.HTTPPort())
	})
	if svcCfg.Tick.RateHz > 0 {
		g.Go(func() error {
			return s.runClock(gctx, svcCfg.Tick.RateHz)
		})
	}
	if s.store != nil {
		g.Go(func() error {
			s.watchStore(gctx)
			return nil
		})
	}

	err = g.Wait()
	s.events.Emit("info", "system.shutdown", "coursed stopping", map[string]interface{}{
		"session_id": sessionID,
	})
	return err
}

// openStore connects Postgres when PGHOST is set. Persistence is optional;
// failures leave the service running on the in-memory log.
func (s *service) openStore(env *config.Env, courseID string) {
	if env == nil || env.Postgres.Host == "" {
		return
	}
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		s.logger.Warn().Err(err).Msg("postgres password unavailable")
		return
	}
	store, err := postgres.New(postgres.Options{
		Host:     env.Postgres.Host,
		Port:     env.Postgres.Port,
		User:     env.Postgres.User,
		Password: password,
		Database: env.Postgres.Database,
		SSLMode:  env.Postgres.SSLMode,
	}, courseID)
	if err != nil {
		s.events.Emit("error", "system.error", "postgres unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.store = store
	s.events.SetStore(store)
}

// resume finds the latest session for the course. A session that has not
// ended is resumed; an ended one is left alone and a new session starts.
func (s *service) resume() (string, *course.RestoredState, error) {
	if s.store == nil {
		return "", nil, nil
	}
	latest, err := s.store.LatestSession()
	if err != nil || latest == "" {
		return "", nil, err
	}
	state, n, err := course.RestoreFromEvents(s.store, latest, s.cfg.Events.RestoreLimit)
	if err != nil {
		return "", nil, err
	}
	if state == nil || state.Ended {
		return "", nil, nil
	}
	s.logger.Info().Str("session_id", latest).Int("events", n).Msg("resuming session")
	return latest, state, nil
}

// connectMQTT starts the broker client and the trigger bridge when a broker
// is configured. A broker that is down at startup is retried in the
// background and the bridge subscribes once it connects.
func (s *service) connectMQTT(monitor *mqtt.Monitor) {
	url := s.cfg.Network.MQTTURL
	if url == "" {
		s.logger.Info().Msg("no mqtt broker configured, trigger bridge disabled")
		return
	}
	topics := mqtt.Topics{Root: s.cfg.TopicRoot(), Room: s.cfg.Room.ID}

	var bridge *mqtt.TriggerBridge
	client := mqtt.NewClient(mqtt.ClientOptions{
		BrokerURL: url,
		ClientID:  "coursed-" + s.cfg.Room.ID,
		Logger:    s.logger,
		OnConnect: func() {
			bridge.ClearSubscriptions()
			if err := bridge.Subscribe(); err != nil {
				s.events.Emit("error", "device.error", "trigger subscription failed", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
			s.ready.SetMQTT(true, false)
			s.logger.Info().Str("broker", url).Msg("mqtt connected and subscribed")
		},
		OnConnectionLost: func(err error) {
			s.ready.SetMQTT(false, false)
			s.events.Emit("warning", "device.disconnected", "mqtt connection lost", map[string]interface{}{
				"broker": url,
				"error":  err.Error(),
			})
		},
	})
	bridge = mqtt.NewTriggerBridge(client, s.game, topics, monitor, s.events)
	bridge.Start()

	s.mqtt = client
	s.bridge = bridge
	s.cues = mqtt.NewCuePublisher(client, topics)

	if err := client.Connect(); err != nil {
		s.logger.Warn().Err(err).Str("broker", url).Msg("mqtt not connected yet, retrying in background")
	}
}

// runClock advances the game by wall time at rateHz.
func (s *service) runClock(ctx context.Context, rateHz float64) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.publish(s.game.OnTick(now.Sub(last)))
			last = now
		}
	}
}

func (s *service) watchStore(ctx context.Context) {
	ticker := time.NewTicker(postgresCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ready.SetPostgres(s.store.Ping() == nil, true)
		}
	}
}

func (s *service) publish(c course.Cues) {
	if err := s.cues.Publish(c); err != nil {
		s.logger.Warn().Err(err).Msg("cue publish failed")
	}
}

func (s *service) close() {
	if s.bridge != nil {
		s.bridge.Stop()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.store != nil {
		s.store.Close()
	}
	s.events.CloseAllSubscribers()
}
