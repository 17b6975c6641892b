package gateway

import "time"

const defaultMaxPlayers = 6

type Config struct {
	BindAddr   string
	PublicAddr string

	// Admission control.
	MaxConnections  int
	MaxConnsPerUser int
	MaxFrameBytes   int64

	// Liveness.
	HeartbeatWindow time.Duration
	SweepInterval   time.Duration

	// Game flow. Zero disables the per-turn deadline.
	TurnTimeout time.Duration

	// External collaborators. An empty rules address selects the
	// passthrough adjudicator.
	RulesEngineAddr string

	CORSAllowedOrigins []string
	Version            string
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:           "localhost:8780",
		PublicAddr:         "http://localhost:8780",
		MaxConnections:     2000,
		MaxConnsPerUser:    4,
		MaxFrameBytes:      64 * 1024,
		HeartbeatWindow:    90 * time.Second,
		SweepInterval:      30 * time.Second,
		TurnTimeout:        0,
		CORSAllowedOrigins: []string{"*"},
		Version:            "dev",
	}
}

type Option func(*Config) error

func WithBindAddr(bindAddr, publicAddr string) Option {
	return func(c *Config) error {
		c.BindAddr = bindAddr
		c.PublicAddr = publicAddr
		return nil
	}
}

func WithCapacity(maxConnections, maxConnsPerUser int) Option {
	return func(c *Config) error {
		c.MaxConnections = maxConnections
		c.MaxConnsPerUser = maxConnsPerUser
		return nil
	}
}

func WithFrameLimit(maxFrameBytes int64) Option {
	return func(c *Config) error {
		c.MaxFrameBytes = maxFrameBytes
		return nil
	}
}

func WithHeartbeat(window, sweepInterval time.Duration) Option {
	return func(c *Config) error {
		c.HeartbeatWindow = window
		c.SweepInterval = sweepInterval
		return nil
	}
}

func WithTurnTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.TurnTimeout = timeout
		return nil
	}
}

func WithRulesEngine(addr string) Option {
	return func(c *Config) error {
		c.RulesEngineAddr = addr
		return nil
	}
}

func WithCORSAllowedOrigins(allowedOrigins []string) Option {
	return func(c *Config) error {
		c.CORSAllowedOrigins = allowedOrigins
		return nil
	}
}

func WithVersion(version string) Option {
	return func(c *Config) error {
		c.Version = version
		return nil
	}
}
