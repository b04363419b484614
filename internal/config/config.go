// Package config holds the engine configuration and its loaders.
//
// Configuration can come from a YAML or TOML file (chosen by
// extension), with STREAMVIEW_* environment variables applied on top.
package config

import (
	"fmt"
	"time"
)

// Config is the full engine configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine" toml:"engine"`
	Analyzer AnalyzerConfig `yaml:"analyzer" toml:"analyzer"`
	Recovery RecoveryConfig `yaml:"recovery" toml:"recovery"`
	Writer   WriterConfig   `yaml:"writer" toml:"writer"`
	LogLevel string         `yaml:"log_level" toml:"log_level"`
}

// EngineConfig configures the streaming engine.
type EngineConfig struct {
	// ChunkSize is the fixed read size in bytes.
	ChunkSize uint64 `yaml:"chunk_size" toml:"chunk_size"`

	// CacheCapacity is the maximum number of cached segments.
	CacheCapacity int `yaml:"cache_capacity" toml:"cache_capacity"`
}

// AnalyzerConfig configures file analysis.
type AnalyzerConfig struct {
	// StreamingThreshold is the size in bytes above which files are
	// streamed.
	StreamingThreshold uint64 `yaml:"streaming_threshold" toml:"streaming_threshold"`

	// SafetyThreshold is the size in bytes above which full loads are
	// flagged as risky.
	SafetyThreshold uint64 `yaml:"safety_threshold" toml:"safety_threshold"`

	// SampleSize is the head sample size for line estimation.
	SampleSize uint64 `yaml:"sample_size" toml:"sample_size"`
}

// RecoveryConfig configures the retry policy.
type RecoveryConfig struct {
	MaxAttempts uint32 `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelayMS int    `yaml:"base_delay_ms" toml:"base_delay_ms"`
	MaxDelayMS  int    `yaml:"max_delay_ms" toml:"max_delay_ms"`
}

// BaseDelay returns the base backoff delay as a duration.
func (c RecoveryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff ceiling as a duration.
func (c RecoveryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// WriterConfig configures the atomic writer.
type WriterConfig struct {
	// FlushEveryLines bounds buffered memory during chunked writes.
	FlushEveryLines int `yaml:"flush_every_lines" toml:"flush_every_lines"`

	// LineTerminator is written after each line ("\n" or "\r\n").
	LineTerminator string `yaml:"line_terminator" toml:"line_terminator"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			ChunkSize:     8 * 1024,
			CacheCapacity: 10,
		},
		Analyzer: AnalyzerConfig{
			StreamingThreshold: 50 * 1024 * 1024,
			SafetyThreshold:    500 * 1024 * 1024,
			SampleSize:         8 * 1024,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 100,
			MaxDelayMS:  2000,
		},
		Writer: WriterConfig{
			FlushEveryLines: 1000,
			LineTerminator:  "\n",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the engine cannot run
// with.
func (c *Config) Validate() error {
	if c.Engine.ChunkSize == 0 {
		return fmt.Errorf("engine.chunk_size must be positive")
	}
	if c.Engine.CacheCapacity < 1 {
		return fmt.Errorf("engine.cache_capacity must be at least 1")
	}
	if c.Analyzer.StreamingThreshold == 0 {
		return fmt.Errorf("analyzer.streaming_threshold must be positive")
	}
	if c.Analyzer.SafetyThreshold < c.Analyzer.StreamingThreshold {
		return fmt.Errorf("analyzer.safety_threshold must be at least the streaming threshold")
	}
	if c.Analyzer.SampleSize == 0 {
		return fmt.Errorf("analyzer.sample_size must be positive")
	}
	if c.Recovery.MaxAttempts == 0 {
		return fmt.Errorf("recovery.max_attempts must be at least 1")
	}
	if c.Recovery.BaseDelayMS <= 0 || c.Recovery.MaxDelayMS < c.Recovery.BaseDelayMS {
		return fmt.Errorf("recovery delays must satisfy 0 < base_delay_ms <= max_delay_ms")
	}
	if c.Writer.FlushEveryLines < 1 {
		return fmt.Errorf("writer.flush_every_lines must be at least 1")
	}
	if t := c.Writer.LineTerminator; t != "\n" && t != "\r\n" {
		return fmt.Errorf("writer.line_terminator must be \\n or \\r\\n")
	}
	return nil
}
