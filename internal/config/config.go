// Package config loads and validates scenecraft configuration.
// Configuration comes from .scenecraft/config.yaml with environment
// variable overrides for credentials and deployment-specific settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scenecraft configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM collaborator configuration
	LLM LLMConfig `yaml:"llm"`

	// Scene store and verifier configuration
	Scene SceneConfig `yaml:"scene"`

	// Workflow engine configuration
	Workflow WorkflowConfig `yaml:"workflow"`

	// Turn ledger configuration
	Ledger LedgerConfig `yaml:"ledger"`

	// HTTP/WS server configuration
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM-backed collaborators.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, stub
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"` // per collaborator call
}

// SceneConfig configures the scene store, persistence, and verifier.
type SceneConfig struct {
	// Path to the authoritative scene snapshot shared with the WebXR front end
	DataPath string `yaml:"data_path"`

	// Path to the asset catalog used by the local resolver
	CatalogPath string `yaml:"catalog_path"`

	// Watch the scene file for external front-end edits
	WatchFile bool `yaml:"watch_file"`

	// Vertical scene bounds; the front end keeps the floor at y=-1
	FloorY   float64 `yaml:"floor_y"`
	CeilingY float64 `yaml:"ceiling_y"`

	// Allowed per-axis interpenetration before two boxes count as colliding.
	// Non-zero so flush-contact placements ("on top of") pass.
	CollisionTolerance float64 `yaml:"collision_tolerance"`

	// Half-extent fallback footprint for objects without a bounding box
	DefaultFootprint float64 `yaml:"default_footprint"`
}

// WorkflowConfig configures the command-processing engine.
type WorkflowConfig struct {
	// Maximum Plan attempts per turn before a collision becomes terminal
	MaxIterations int `yaml:"max_iterations"`

	// How many recent turns are handed to the classifier as context
	ContextTurns int `yaml:"context_turns"`
}

// LedgerConfig configures the turn ledger.
type LedgerConfig struct {
	// In-memory turns kept per session; older turns stay in the archive only
	MaxTurnsPerSession int `yaml:"max_turns_per_session"`

	// SQLite archive path; empty disables the archive
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP/WS surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "scenecraft",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash-lite",
			Timeout:  "60s",
		},

		Scene: SceneConfig{
			DataPath:           "data/sceneData.json",
			CatalogPath:        "data/catalog.yaml",
			WatchFile:          true,
			FloorY:             -1.0,
			CeilingY:           3.0,
			CollisionTolerance: 0.02,
			DefaultFootprint:   0.25,
		},

		Workflow: WorkflowConfig{
			MaxIterations: 3,
			ContextTurns:  5,
		},

		Ledger: LedgerConfig{
			MaxTurnsPerSession: 200,
			DatabasePath:       "data/ledger.db",
		},

		Server: ServerConfig{
			Addr: ":8000",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("SCENECRAFT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("SCENECRAFT_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("SCENECRAFT_SCENE_PATH"); path != "" {
		c.Scene.DataPath = path
	}
	if addr := os.Getenv("SCENECRAFT_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if iters := os.Getenv("SCENECRAFT_MAX_ITERATIONS"); iters != "" {
		if n, err := strconv.Atoi(iters); err == nil && n > 0 {
			c.Workflow.MaxIterations = n
		}
	}
	if v := os.Getenv("SCENECRAFT_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Workflow.MaxIterations < 1 {
		return fmt.Errorf("workflow.max_iterations must be >= 1, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.ContextTurns < 0 {
		return fmt.Errorf("workflow.context_turns must be >= 0, got %d", c.Workflow.ContextTurns)
	}
	if c.Scene.CeilingY <= c.Scene.FloorY {
		return fmt.Errorf("scene.ceiling_y (%v) must be above scene.floor_y (%v)", c.Scene.CeilingY, c.Scene.FloorY)
	}
	if c.Scene.CollisionTolerance < 0 {
		return fmt.Errorf("scene.collision_tolerance must be >= 0, got %v", c.Scene.CollisionTolerance)
	}
	if c.Scene.DefaultFootprint <= 0 {
		return fmt.Errorf("scene.default_footprint must be > 0, got %v", c.Scene.DefaultFootprint)
	}
	if c.Ledger.MaxTurnsPerSession < 1 {
		return fmt.Errorf("ledger.max_turns_per_session must be >= 1, got %d", c.Ledger.MaxTurnsPerSession)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return err
	}
	return nil
}

// LLMTimeout parses the per-call collaborator timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	if c.LLM.Timeout == "" {
		return 60 * time.Second, nil
	}
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid llm.timeout %q: %w", c.LLM.Timeout, err)
	}
	return d, nil
}
