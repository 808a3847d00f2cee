package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Transport TransportConfig `mapstructure:"transport"`
	Session   SessionConfig   `mapstructure:"session"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Status    StatusConfig    `mapstructure:"status"`
	Log       LogConfig       `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type TransportConfig struct {
	URL                     string `mapstructure:"url"`
	Reconnect               bool   `mapstructure:"reconnect"`
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds"`
}

func (c TransportConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

type SessionConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

type SyncConfig struct {
	RepullIntervalSeconds int     `mapstructure:"repull_interval_seconds"`
	TypingPerSecond       float64 `mapstructure:"typing_per_second"`
}

func (c SyncConfig) RepullInterval() time.Duration {
	return time.Duration(c.RepullIntervalSeconds) * time.Second
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("CAMPUS_SYNC")
	viper.AutomaticEnv()

	viper.SetDefault("api.base_url", "http://localhost:8000/api")
	viper.SetDefault("api.timeout_seconds", 15)
	viper.SetDefault("transport.url", "ws://localhost:8000/ws")
	viper.SetDefault("transport.reconnect", true)
	viper.SetDefault("transport.handshake_timeout_seconds", 10)
	viper.SetDefault("session.token_file", ".campus-sync/token")
	viper.SetDefault("sync.repull_interval_seconds", 60)
	viper.SetDefault("sync.typing_per_second", 1.0)
	viper.SetDefault("status.addr", "127.0.0.1:9180")
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus environment are enough to run; only a broken
		// file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
