package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the environment overrides for coursed.
type Env struct {
	RoomID     string `env:"COURSE_ROOM_ID"`
	CoursePath string `env:"COURSE_FILE"`
	HTTPPort   int    `env:"COURSE_HTTP_PORT"`
	MQTTURL    string `env:"COURSE_MQTT_URL"`
	LogLevel   string `env:"COURSE_LOG_LEVEL" envDefault:"info"`

	Postgres PostgresEnv
}

// PostgresEnv uses the libpq variable names. An empty host disables
// persistence.
type PostgresEnv struct {
	Host     string `env:"PGHOST"`
	Port     int    `env:"PGPORT" envDefault:"5432"`
	User     string `env:"PGUSER" envDefault:"course"`
	Database string `env:"PGDATABASE" envDefault:"course"`
	SSLMode  string `env:"PGSSLMODE" envDefault:"disable"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (*Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
