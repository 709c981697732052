package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quizwire/quizwire/internal/quiz/gateway"
	"github.com/quizwire/quizwire/internal/quiz/mirror"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WebSocket struct {
		WriteTimeoutSec int    `yaml:"write_timeout_sec"`
		ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
		PingIntervalSec int    `yaml:"ping_interval_sec"`
		MaxMessageSize  int64  `yaml:"max_message_size"`
		SendBuffer      int    `yaml:"send_buffer"`
		DefaultRoom     string `yaml:"default_room"`
	} `yaml:"websocket"`

	Mirror struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"mirror"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = getEnv("PORT", "8080")

	ws := gateway.DefaultConfig()
	cfg.WebSocket.WriteTimeoutSec = getEnvAsInt("WS_WRITE_TIMEOUT_SEC", int(ws.WriteTimeout/time.Second))
	cfg.WebSocket.ReadTimeoutSec = getEnvAsInt("WS_READ_TIMEOUT_SEC", int(ws.ReadTimeout/time.Second))
	cfg.WebSocket.PingIntervalSec = getEnvAsInt("WS_PING_INTERVAL_SEC", int(ws.PingInterval/time.Second))
	cfg.WebSocket.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(ws.MaxMessageSize)))
	cfg.WebSocket.SendBuffer = getEnvAsInt("WS_SEND_BUFFER", ws.SendBuffer)
	cfg.WebSocket.DefaultRoom = getEnv("DEFAULT_ROOM", ws.DefaultRoom)

	m := mirror.DefaultConfig()
	cfg.Mirror.Enabled = getEnv("MIRROR_ENABLED", "") == "true"
	cfg.Mirror.URL = getEnv("NATS_URL", m.URL)
	cfg.Mirror.SubjectPrefix = m.SubjectPrefix
	return cfg
}

// loadConfig reads the yaml config file. A missing file is not an
// error; env-backed defaults apply.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) gatewayConfig() gateway.Config {
	ws := gateway.DefaultConfig()
	ws.WriteTimeout = time.Duration(c.WebSocket.WriteTimeoutSec) * time.Second
	ws.ReadTimeout = time.Duration(c.WebSocket.ReadTimeoutSec) * time.Second
	ws.PingInterval = time.Duration(c.WebSocket.PingIntervalSec) * time.Second
	ws.MaxMessageSize = c.WebSocket.MaxMessageSize
	ws.SendBuffer = c.WebSocket.SendBuffer
	ws.DefaultRoom = c.WebSocket.DefaultRoom
	return ws
}

func (c *Config) mirrorConfig() mirror.Config {
	m := mirror.DefaultConfig()
	m.URL = c.Mirror.URL
	if c.Mirror.SubjectPrefix != "" {
		m.SubjectPrefix = c.Mirror.SubjectPrefix
	}
	return m
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
