package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.stockbridge/stockbridge.yaml"
)

type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	RPCSocket string `yaml:"rpc_socket"`
}

type DatabaseConfig struct {
	Path     string `yaml:"path"`
	LogLevel string `yaml:"log_level,omitempty"` // silent, error, warn, info
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file. A missing file at the default path is not
// an error; a missing explicit path is. Variables from a .env file next to
// the config are loaded first so that ${ENV:NAME} references can use them.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	path = ExpandHome(path)

	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}
	if err := cfg.resolveEnv(); err != nil {
		return nil, fmt.Errorf("resolving values: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	path = ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RPCSocket == "" {
		c.Server.RPCSocket = "./stockbridge.sock"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./stockbridge.db"
	}
	c.Database.Path = ExpandHome(c.Database.Path)
	c.Server.RPCSocket = ExpandHome(c.Server.RPCSocket)
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "silent"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

var envPattern = regexp.MustCompile(`\$\{ENV:([^}]+)\}`)

func (c *Config) resolveEnv() error {
	fields := []*string{&c.Server.Addr, &c.Server.RPCSocket, &c.Database.Path, &c.Database.LogLevel, &c.Logging.Level}
	for _, field := range fields {
		v, err := ResolveValue(*field)
		if err != nil {
			return err
		}
		*field = v
	}
	return nil
}

// ResolveValue replaces ${ENV:NAME} references with the named variable.
func ResolveValue(val string) (string, error) {
	var missing []string
	out := envPattern.ReplaceAllStringFunc(val, func(ref string) string {
		name := envPattern.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s not set", strings.Join(missing, ", "))
	}
	return out, nil
}

func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
