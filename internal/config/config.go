// Package config provides configuration management for the VibeCut daemon.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort        = 7777
	DefaultLogLevel    = "info"
	DefaultDataDir     = ".vibecut"
	DefaultAnalysisURL = "http://127.0.0.1:8001"

	// Environment variable names
	EnvPort        = "VIBECUT_PORT"
	EnvLogLevel    = "VIBECUT_LOG_LEVEL"
	EnvDataDir     = "VIBECUT_DATA_DIR"
	EnvAnalysisURL = "VIBECUT_ANALYSIS_URL"
	EnvWatchDir    = "VIBECUT_WATCH_DIR"
	EnvHeadless    = "VIBECUT_HEADLESS"

	// LLM reply provider (optional; template fallback when unset)
	EnvLLMAPIKey  = "VIBECUT_LLM_API_KEY"
	EnvLLMBaseURL = "VIBECUT_LLM_BASE_URL"
	EnvLLMModel   = "VIBECUT_LLM_MODEL"

	// Pipeline tuning
	EnvPollInterval = "VIBECUT_POLL_INTERVAL_MS"
	EnvWorkerCount  = "VIBECUT_WORKER_COUNT"

	// Database filename
	DBFilename = "vibecut.db"

	// Keyword index directory name under the data dir
	IndexDirname = "segments.bleve"

	// Pipeline defaults
	DefaultPollIntervalMs     = 1500
	DefaultWorkerCount        = 2
	DefaultAnalysisTimeoutSec = 600
	DefaultLLMModel           = "gpt-4.1-mini"
)

// Config defines the daemon configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	IndexPath() string
	AnalysisURL() string
	AnalysisTimeout() time.Duration
	WatchDir() string
	Headless() bool
	PollInterval() time.Duration
	WorkerCount() int
	LLMAPIKey() string
	LLMBaseURL() string
	LLMModel() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	dataDir      string
	analysisURL  string
	watchDir     string
	headless     bool
	pollInterval time.Duration
	workerCount  int

	llmAPIKey  string
	llmBaseURL string
	llmModel   string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		analysisURL:  DefaultAnalysisURL,
		pollInterval: DefaultPollIntervalMs * time.Millisecond,
		workerCount:  DefaultWorkerCount,
		llmModel:     DefaultLLMModel,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if u := os.Getenv(EnvAnalysisURL); u != "" {
		cfg.analysisURL = u
	}

	cfg.watchDir = os.Getenv(EnvWatchDir)
	cfg.headless = os.Getenv(EnvHeadless) == "1" || os.Getenv(EnvHeadless) == "true"

	if pi := os.Getenv(EnvPollInterval); pi != "" {
		ms, err := strconv.Atoi(pi)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive millisecond count", EnvPollInterval)
		}
		cfg.pollInterval = time.Duration(ms) * time.Millisecond
	}

	if wc := os.Getenv(EnvWorkerCount); wc != "" {
		n, err := strconv.Atoi(wc)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvWorkerCount)
		}
		cfg.workerCount = n
	}

	cfg.llmAPIKey = os.Getenv(EnvLLMAPIKey)
	cfg.llmBaseURL = os.Getenv(EnvLLMBaseURL)
	if m := os.Getenv(EnvLLMModel); m != "" {
		cfg.llmModel = m
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// IndexPath returns the full path to the keyword search index
func (c *EnvConfig) IndexPath() string {
	return filepath.Join(c.dataDir, IndexDirname)
}

// AnalysisURL returns the base URL of the analysis sidecar
func (c *EnvConfig) AnalysisURL() string {
	return c.analysisURL
}

// AnalysisTimeout returns the per-call timeout for analysis requests.
// Transcription of long footage dominates, so this is generous.
func (c *EnvConfig) AnalysisTimeout() time.Duration {
	return DefaultAnalysisTimeoutSec * time.Second
}

// WatchDir returns the optional auto-import watch directory ("" = disabled)
func (c *EnvConfig) WatchDir() string {
	return c.watchDir
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// PollInterval returns the job runner poll cadence
func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// WorkerCount returns the number of concurrent job handler slots
func (c *EnvConfig) WorkerCount() int {
	return c.workerCount
}

func (c *EnvConfig) LLMAPIKey() string {
	return c.llmAPIKey
}

func (c *EnvConfig) LLMBaseURL() string {
	return c.llmBaseURL
}

func (c *EnvConfig) LLMModel() string {
	return c.llmModel
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
