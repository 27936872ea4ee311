package app

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// CORS allowlist for the browser clients
	CORSAllow []string `envconfig:"CORS_ALLOW" default:"http://localhost:5173"`

	// Reaper cadence + how long a room may sit without activity
	ReapInterval time.Duration `envconfig:"REAP_INTERVAL" default:"1m"`
	RoomTTL      time.Duration `envconfig:"ROOM_TTL" default:"30m"`

	// Room-creation rate limit (requests per window, per IP)
	CreateRate       int           `envconfig:"CREATE_RATE" default:"30"`
	CreateRateWindow time.Duration `envconfig:"CREATE_RATE_WINDOW" default:"1m"`
}

// LoadConfig reads config from the environment with dev defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
