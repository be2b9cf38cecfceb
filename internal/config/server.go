package config

import (
	"fmt"
	"time"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

const (
	EnvServerHost              = "MANIFEST_SERVER_HOST"
	EnvServerPort              = "MANIFEST_SERVER_PORT"
	EnvServerReadTimeout       = "MANIFEST_SERVER_READ_TIMEOUT"
	EnvServerReadHeaderTimeout = "MANIFEST_SERVER_READ_HEADER_TIMEOUT"
	EnvServerWriteTimeout      = "MANIFEST_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout       = "MANIFEST_SERVER_IDLE_TIMEOUT"
	EnvServerShutdownTimeout   = "MANIFEST_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP server parameters. WriteTimeout defaults long
// because synchronous classification of a multi-page invoice waits on OCR
// and the LLM before responding.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration       { return duration(c.ReadTimeout) }
func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration { return duration(c.ReadHeaderTimeout) }
func (c *ServerConfig) WriteTimeoutDuration() time.Duration      { return duration(c.WriteTimeout) }
func (c *ServerConfig) IdleTimeoutDuration() time.Duration       { return duration(c.IdleTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration   { return duration(c.ShutdownTimeout) }

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for _, f := range c.timeouts() {
		if v := *f.pick(overlay); v != "" {
			*f.pick(c) = v
		}
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	for _, f := range c.timeouts() {
		if p := f.pick(c); *p == "" {
			*p = f.def
		}
	}
}

func (c *ServerConfig) loadEnv() {
	envvar.String(&c.Host, EnvServerHost)
	envvar.Int(&c.Port, EnvServerPort)
	for _, f := range c.timeouts() {
		envvar.String(f.pick(c), f.env)
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, f := range c.timeouts() {
		if _, err := time.ParseDuration(*f.pick(c)); err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	return nil
}

type timeoutField struct {
	name string
	env  string
	def  string
	pick func(*ServerConfig) *string
}

func (c *ServerConfig) timeouts() []timeoutField {
	return []timeoutField{
		{"read_timeout", EnvServerReadTimeout, "1m", func(s *ServerConfig) *string { return &s.ReadTimeout }},
		{"read_header_timeout", EnvServerReadHeaderTimeout, "10s", func(s *ServerConfig) *string { return &s.ReadHeaderTimeout }},
		{"write_timeout", EnvServerWriteTimeout, "15m", func(s *ServerConfig) *string { return &s.WriteTimeout }},
		{"idle_timeout", EnvServerIdleTimeout, "2m", func(s *ServerConfig) *string { return &s.IdleTimeout }},
		{"shutdown_timeout", EnvServerShutdownTimeout, "30s", func(s *ServerConfig) *string { return &s.ShutdownTimeout }},
	}
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
