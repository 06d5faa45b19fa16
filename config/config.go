// Package config loads the realtime client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HOSTEL_RT_"

// Config contains all runtime configuration for the realtime client.
type Config struct {
	URL      string `env:"URL" envDefault:"ws://127.0.0.1:5000/updates"`
	PollURL  string `env:"POLL_URL" envDefault:"http://127.0.0.1:5000/updates"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Transports is the preference list tried on every connection attempt.
	Transports      []string      `env:"TRANSPORTS" envSeparator:"," envDefault:"websocket,polling"`
	RememberUpgrade bool          `env:"REMEMBER_UPGRADE" envDefault:"true"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"20s"`

	Reconnection         bool          `env:"RECONNECTION" envDefault:"true"`
	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`
	ReconnectDelayMax    time.Duration `env:"RECONNECT_DELAY_MAX" envDefault:"5s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	// TransportAttempts bounds the transport's own retries; 0 retries forever.
	TransportAttempts int `env:"TRANSPORT_ATTEMPTS" envDefault:"0"`

	HealthInterval time.Duration `env:"HEALTH_INTERVAL" envDefault:"30s"`
	QueueCapacity  int           `env:"QUEUE_CAPACITY" envDefault:"1000"`
	QueuePolicy    string        `env:"QUEUE_POLICY" envDefault:"drop-oldest"`

	// Page is the path of the page the client is serving, used for scoped refreshes.
	Page         string        `env:"PAGE" envDefault:"/dashboard"`
	RefreshDelay time.Duration `env:"REFRESH_DELAY" envDefault:"1s"`
	HostelID     int           `env:"HOSTEL_ID" envDefault:"0"`

	// ReloadDelay and IdleThreshold control table reloads after data changes.
	ReloadDelay   time.Duration `env:"RELOAD_DELAY" envDefault:"500ms"`
	IdleThreshold time.Duration `env:"IDLE_THRESHOLD" envDefault:"5s"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`
	Desktop     bool   `env:"DESKTOP_NOTIFICATIONS" envDefault:"false"`
}

// Load parses Config from the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses Config from the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would leave the client unable to connect.
func (c Config) Validate() error {
	if len(c.Transports) == 0 {
		return fmt.Errorf("config: at least one transport is required")
	}
	for _, t := range c.Transports {
		switch t {
		case "websocket", "polling":
		default:
			return fmt.Errorf("config: unknown transport %q", t)
		}
	}
	if c.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("config: max reconnect attempts must be positive, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectDelayMax < c.ReconnectDelay {
		return fmt.Errorf("config: reconnect delay max %s is below reconnect delay %s", c.ReconnectDelayMax, c.ReconnectDelay)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("config: queue capacity must not be negative")
	}
	switch c.QueuePolicy {
	case "drop-oldest", "drop-newest", "reject":
	default:
		return fmt.Errorf("config: unknown queue policy %q", c.QueuePolicy)
	}
	return nil
}
