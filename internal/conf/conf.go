// Package conf loads and validates engine configuration from YAML files and
// environment variables.
package conf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the root configuration for the engagement engine.
type Settings struct {
	LogLevel   string             `mapstructure:"loglevel" yaml:"loglevel"`
	Server     ServerSettings     `mapstructure:"server" yaml:"server"`
	Database   DatabaseSettings   `mapstructure:"database" yaml:"database"`
	Engine     EngineSettings     `mapstructure:"engine" yaml:"engine"`
	Dispatch   DispatchSettings   `mapstructure:"dispatch" yaml:"dispatch"`
	Channel    ChannelSettings    `mapstructure:"channel" yaml:"channel"`
	Generation GenerationSettings `mapstructure:"generation" yaml:"generation"`
	Retention  RetentionSettings  `mapstructure:"retention" yaml:"retention"`
}

// ServerSettings configures the HTTP API listener.
type ServerSettings struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DatabaseSettings selects and configures the datastore.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "mysql"
	Path   string `mapstructure:"path" yaml:"path"`     // sqlite file path
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // mysql DSN
}

// EngineSettings configures matching and admission.
type EngineSettings struct {
	EventBusBuffer int `mapstructure:"eventbusbuffer" yaml:"eventbusbuffer"`
}

// DispatchSettings configures the dispatch worker pool.
type DispatchSettings struct {
	Workers        int      `mapstructure:"workers" yaml:"workers"`
	PollInterval   Duration `mapstructure:"pollinterval" yaml:"pollinterval"`
	ClaimLease     Duration `mapstructure:"claimlease" yaml:"claimlease"`
	BatchSize      int      `mapstructure:"batchsize" yaml:"batchsize"`
	MaxAttempts    int      `mapstructure:"maxattempts" yaml:"maxattempts"`
	InitialBackoff Duration `mapstructure:"initialbackoff" yaml:"initialbackoff"`
	MaxBackoff     Duration `mapstructure:"maxbackoff" yaml:"maxbackoff"`
}

// ChannelSettings configures the platform gateway client.
type ChannelSettings struct {
	GatewayURL string   `mapstructure:"gatewayurl" yaml:"gatewayurl"`
	Token      string   `mapstructure:"token" yaml:"token"`
	Timeout    Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GenerationSettings configures the AI text generation client.
type GenerationSettings struct {
	Endpoint string   `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string   `mapstructure:"apikey" yaml:"apikey"`
	Model    string   `mapstructure:"model" yaml:"model"`
	Timeout  Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RetentionSettings configures the periodic cleanup of finished work.
type RetentionSettings struct {
	RecordDays int      `mapstructure:"recorddays" yaml:"recorddays"`
	EventDays  int      `mapstructure:"eventdays" yaml:"eventdays"`
	Interval   Duration `mapstructure:"interval" yaml:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "engage.db")
	v.SetDefault("engine.eventbusbuffer", 1000)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.pollinterval", "1s")
	v.SetDefault("dispatch.claimlease", "2m")
	v.SetDefault("dispatch.batchsize", 10)
	v.SetDefault("dispatch.maxattempts", 4)
	v.SetDefault("dispatch.initialbackoff", "500ms")
	v.SetDefault("dispatch.maxbackoff", "30s")
	v.SetDefault("channel.timeout", "10s")
	v.SetDefault("generation.timeout", "8s")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("retention.recorddays", 90)
	v.SetDefault("retention.eventdays", 30)
	v.SetDefault("retention.interval", "1h")
}

// Load reads settings from the given config file (optional) and ENGAGE_*
// environment variables, applying defaults for anything unset.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("engage")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks settings for values the engine cannot run with.
func (s *Settings) Validate() error {
	switch s.Database.Driver {
	case "sqlite":
		if s.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case "mysql":
		if s.Database.DSN == "" {
			return errors.New("database.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", s.Database.Driver)
	}
	if s.Dispatch.Workers < 1 {
		return errors.New("dispatch.workers must be at least 1")
	}
	if s.Dispatch.MaxAttempts < 1 {
		return errors.New("dispatch.maxattempts must be at least 1")
	}
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", s.Server.Port)
	}
	return nil
}
