package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPPort   = 8080
	defaultBufferSize = 256
	defaultTopicRoot  = "course"
)

// ServiceConfig is the coursed service file.
type ServiceConfig struct {
	Version int `yaml:"version"`
	Room    struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"room"`
	Course struct {
		Path string `yaml:"path"`
	} `yaml:"course"`
	Network struct {
		HTTPPort  int    `yaml:"http_port"`
		MQTTURL   string `yaml:"mqtt_url"`
		TopicRoot string `yaml:"topic_root"`
	} `yaml:"network"`
	Tick struct {
		// RateHz drives the game clock from wall time. Zero leaves ticks to
		// the simulation client.
		RateHz float64 `yaml:"rate_hz"`
	} `yaml:"tick"`
	Events struct {
		BufferSize   int `yaml:"buffer_size"`
		RestoreLimit int `yaml:"restore_limit"`
	} `yaml:"events"`
}

// HTTPPort returns the configured API port, defaulting to 8080 if not set.
func (c *ServiceConfig) HTTPPort() int {
	if c.Network.HTTPPort == 0 {
		return defaultHTTPPort
	}
	return c.Network.HTTPPort
}

// TopicRoot returns the MQTT topic root, defaulting to "course".
func (c *ServiceConfig) TopicRoot() string {
	if c.Network.TopicRoot == "" {
		return defaultTopicRoot
	}
	return c.Network.TopicRoot
}

// BufferSize returns the in-memory event buffer size.
func (c *ServiceConfig) BufferSize() int {
	if c.Events.BufferSize <= 0 {
		return defaultBufferSize
	}
	return c.Events.BufferSize
}

// Load reads and validates a service file.
func Load(path string) (*ServiceConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service config: %w", err)
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse service config: %w", err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported service config version: %d", cfg.Version)
	}
	if cfg.Room.ID == "" {
		return nil, fmt.Errorf("service config: room.id is required")
	}
	if cfg.Tick.RateHz < 0 {
		return nil, fmt.Errorf("service config: negative tick rate")
	}

	return &cfg, nil
}

// Apply overlays environment values onto the file configuration. Only
// values that are set in the environment win.
func (c *ServiceConfig) Apply(e *Env) {
	if e == nil {
		return
	}
	if e.RoomID != "" {
		c.Room.ID = e.RoomID
	}
	if e.CoursePath != "" {
		c.Course.Path = e.CoursePath
	}
	if e.HTTPPort != 0 {
		c.Network.HTTPPort = e.HTTPPort
	}
	if e.MQTTURL != "" {
		c.Network.MQTTURL = e.MQTTURL
	}
}
