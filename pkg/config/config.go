package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultDir is where LoadHeartbeat looks for an optional config file.
const DefaultDir = "./configs"

// HeartbeatConfig captures runtime settings for the heartbeat daemon.
type HeartbeatConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	SilenceThreshold time.Duration `mapstructure:"silence_threshold"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	LogLevel         string        `mapstructure:"log_level"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	ServiceName      string        `mapstructure:"service_name"`
}

// LoadHeartbeat loads daemon configuration from defaults, an optional file in
// dir, and HEARTBEAT_* env vars.
func LoadHeartbeat(dir string) (HeartbeatConfig, error) {
	if dir == "" {
		dir = DefaultDir
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("HEARTBEAT")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", "localhost:12211")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("silence_threshold", 30*time.Second)
	v.SetDefault("sweep_interval", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("service_name", "heartbeatd")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return HeartbeatConfig{}, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg HeartbeatConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return HeartbeatConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return HeartbeatConfig{}, err
	}

	return cfg, nil
}

func (c HeartbeatConfig) validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("silence_threshold must be positive, got %s", c.SilenceThreshold)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	return nil
}
