package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FieldComponent is the log field naming the emitting component
const FieldComponent = "component"

// Config contains logging configuration.
type Config struct {
	Level   string `mapstructure:"log_level"`
	Format  string `mapstructure:"log_format"`
	Output  string `mapstructure:"log_output"`
	NoColor bool   `mapstructure:"no_color"`
}

// ApplyDefaults applies default values to logging configuration.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates logging configuration.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil || c.Level == "" {
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error (got: %s)", c.Level)
	}
	switch c.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json (got: %s)", c.Format)
	}
	return nil
}

// New builds a logger writing to the configured output
func New(cfg Config) (zerolog.Logger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), err
	}
	return NewWithWriter(cfg, outputWriter(cfg.Output)), nil
}

// NewWithWriter builds a logger writing to w
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a component name
func WithComponent(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str(FieldComponent, name).Logger()
}

func outputWriter(output string) io.Writer {
	switch output {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}
