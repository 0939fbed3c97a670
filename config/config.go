package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Languages map[string]Language `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport          string `mapstructure:"transport"`
	HTTPPort           int    `mapstructure:"http_port"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
	MaxBodyBytes       int64  `mapstructure:"max_body_bytes"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend           string `mapstructure:"backend"`
	Host              string `mapstructure:"host"`
	WorkspaceRoot     string `mapstructure:"workspace_root"`
	HostWorkspaceRoot string `mapstructure:"host_workspace_root"`
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
	MaxOutputKB       int    `mapstructure:"max_output_kb"`
	SweepOnStart      bool   `mapstructure:"sweep_on_start"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Language is the execution recipe of one language as read from configuration.
type Language struct {
	Image      string `mapstructure:"image"`
	SourceFile string `mapstructure:"source_file"`
	CompileCmd string `mapstructure:"compile_cmd"`
	RunCmd     string `mapstructure:"run_cmd"`
}

// Transports and backends accepted by validate.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"

	BackendDocker = "docker"
	BackendPodman = "podman"
)

// DefaultConfigName is the file name (without extension) searched for when no explicit path is given.
const DefaultConfigName = "coderunner"

// Load reads the configuration from path, or from the default search paths when path is empty,
// applies CODERUNNER_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODERUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", TransportHTTP)
	v.SetDefault("server.http_port", 3001)
	v.SetDefault("server.shutdown_timeout_sec", 10)
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("sandbox.backend", BackendDocker)
	v.SetDefault("sandbox.host", "")
	v.SetDefault("sandbox.workspace_root", filepath.Join(os.TempDir(), "coderunner"))
	v.SetDefault("sandbox.host_workspace_root", "")
	v.SetDefault("sandbox.max_concurrent", 0)
	v.SetDefault("sandbox.max_output_kb", 1024)
	v.SetDefault("sandbox.sweep_on_start", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	// C++ defaults
	v.SetDefault("languages.cpp.image", "gcc:13")
	v.SetDefault("languages.cpp.source_file", "main.cpp")
	v.SetDefault("languages.cpp.compile_cmd", "g++ -o program main.cpp")
	v.SetDefault("languages.cpp.run_cmd", "./program")

	// Python defaults
	v.SetDefault("languages.python.image", "python:3.12-slim")
	v.SetDefault("languages.python.source_file", "main.py")
	v.SetDefault("languages.python.compile_cmd", "")
	v.SetDefault("languages.python.run_cmd", "python main.py")

	// Java defaults
	v.SetDefault("languages.java.image", "eclipse-temurin:21-jdk")
	v.SetDefault("languages.java.source_file", "Main.java")
	v.SetDefault("languages.java.compile_cmd", "javac Main.java")
	v.SetDefault("languages.java.run_cmd", "java Main")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != TransportHTTP && c.Server.Transport != TransportStdio {
		return fmt.Errorf("invalid server.transport: %s, must be 'http' or 'stdio'", c.Server.Transport)
	}

	if c.Server.Transport == TransportHTTP && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got: %d", c.Server.MaxBodyBytes)
	}

	if c.Sandbox.Backend != BackendDocker && c.Sandbox.Backend != BackendPodman {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.WorkspaceRoot == "" {
		return errors.New("sandbox.workspace_root must not be empty")
	}

	if c.Sandbox.MaxConcurrent < 0 {
		return fmt.Errorf("sandbox.max_concurrent must not be negative, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	switch c.Logging.Mode {
	case "production", "development":
	default:
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if len(c.Languages) == 0 {
		return errors.New("at least one language must be configured")
	}

	for id, lang := range c.Languages {
		if lang.Image == "" || lang.SourceFile == "" || lang.RunCmd == "" {
			return fmt.Errorf("languages.%s: image, source_file and run_cmd are required", id)
		}
	}

	return nil
}

// ShutdownTimeout returns the graceful shutdown budget of the HTTP listener.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// MaxOutputBytes returns the output cap in bytes.
func (c *Config) MaxOutputBytes() int {
	return c.Sandbox.MaxOutputKB * 1024
}
