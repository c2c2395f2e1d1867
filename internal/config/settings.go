package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/brunopistone/sm-iot-end-to-end/internal/logging"
)

// EnvPrefix prefixes every environment variable read into Settings
const EnvPrefix = "EDGEFLOW"

// Engines
const (
	EngineLocal     = "local"
	EngineSageMaker = "sagemaker"
)

// Keys
const (
	KeyConfigDir    = "config-dir"
	KeyEngine       = "engine"
	KeyRegion       = "region"
	KeyProfile      = "profile"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyPollInterval = "poll-interval"
	KeyMaxWait      = "max-wait"
	KeyStorageDir   = "storage-dir"
)

// Settings are the runtime settings shared by every command
type Settings struct {
	ConfigDir    string
	Engine       string
	Region       string
	Profile      string
	PollInterval time.Duration
	MaxWait      time.Duration
	StorageDir   string
	Logging      logging.Config
}

// New returns a viper instance with defaults and EDGEFLOW_* environment binding
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyConfigDir, "configs")
	v.SetDefault(KeyEngine, EngineLocal)
	v.SetDefault(KeyRegion, "")
	v.SetDefault(KeyProfile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyPollInterval, 30*time.Second)
	v.SetDefault(KeyMaxWait, 8*time.Minute)
	v.SetDefault(KeyStorageDir, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds a command's flags so that explicit flags win over the environment
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	return nil
}

// Load reads Settings from v and validates them
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		ConfigDir:    v.GetString(KeyConfigDir),
		Engine:       strings.ToLower(v.GetString(KeyEngine)),
		Region:       v.GetString(KeyRegion),
		Profile:      v.GetString(KeyProfile),
		PollInterval: v.GetDuration(KeyPollInterval),
		MaxWait:      v.GetDuration(KeyMaxWait),
		StorageDir:   v.GetString(KeyStorageDir),
		Logging: logging.Config{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings
func (s Settings) Validate() error {
	switch s.Engine {
	case EngineLocal, EngineSageMaker:
	default:
		return fmt.Errorf("engine must be %s or %s (got: %s)", EngineLocal, EngineSageMaker, s.Engine)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive (got: %s)", s.PollInterval)
	}
	if s.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative (got: %s)", s.MaxWait)
	}
	if s.ConfigDir == "" {
		return fmt.Errorf("config dir must be set")
	}
	cfg := s.Logging
	cfg.ApplyDefaults()
	return cfg.Validate()
}
