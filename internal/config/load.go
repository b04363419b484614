package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "STREAMVIEW_"

// ParseError describes a malformed configuration file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing config %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads configuration from path (YAML or TOML, chosen by
// extension), starting from defaults and applying environment
// overrides last. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".toml":
				if err := toml.Unmarshal(data, &cfg); err != nil {
					return cfg, &ParseError{Path: path, Message: err.Error(), Err: err}
				}
			case ".yaml", ".yml":
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return cfg, &ParseError{Path: path, Message: err.Error(), Err: err}
				}
			default:
				return cfg, &ParseError{Path: path, Message: "unsupported config format"}
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays STREAMVIEW_* environment variables onto cfg.
// Unparseable values are ignored; the environment is a convenience
// layer, not a schema.
func applyEnv(cfg *Config) {
	if v, ok := envUint(envPrefix + "CHUNK_SIZE"); ok {
		cfg.Engine.ChunkSize = v
	}
	if v, ok := envInt(envPrefix + "CACHE_CAPACITY"); ok {
		cfg.Engine.CacheCapacity = v
	}
	if v, ok := envUint(envPrefix + "STREAMING_THRESHOLD"); ok {
		cfg.Analyzer.StreamingThreshold = v
	}
	if v, ok := envUint(envPrefix + "SAFETY_THRESHOLD"); ok {
		cfg.Analyzer.SafetyThreshold = v
	}
	if v, ok := envInt(envPrefix + "MAX_ATTEMPTS"); ok && v > 0 {
		cfg.Recovery.MaxAttempts = uint32(v)
	}
	if v, ok := envInt(envPrefix + "BASE_DELAY_MS"); ok && v > 0 {
		cfg.Recovery.BaseDelayMS = v
	}
	if v, ok := envInt(envPrefix + "MAX_DELAY_MS"); ok && v > 0 {
		cfg.Recovery.MaxDelayMS = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envUint(key string) (uint64, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
