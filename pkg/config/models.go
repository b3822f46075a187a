package config

import "time"

type Config struct {
	Log       LogConfig
	Server    ServerConfig
	Transport TransportConfig
	Client    ClientConfig
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Address         string
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
	// Sessions idle longer than this are eligible for pruning. Zero disables.
	SessionIdleTimeout time.Duration `mapstructure:"sessionIdleTimeout"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int `mapstructure:"maxPerIP"`
}

type TransportConfig struct {
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	MaxMessageBytes int64         `mapstructure:"maxMessageBytes"`
}

// ClientConfig drives the session sync engine side: where to dial and how
// stubborn to be about getting back in after a drop.
type ClientConfig struct {
	ServerURL            string        `mapstructure:"serverURL"`
	ReconnectDelay       time.Duration `mapstructure:"reconnectDelay"`
	MaxReconnectAttempts int           `mapstructure:"maxReconnectAttempts"`
}
