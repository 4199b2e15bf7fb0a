// Package config loads and validates the project-local config.json that
// tunes capture, retrieval, and the LLM/embedder backends.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/joho/godotenv"
)

// Settings groups the capture/retrieval knobs.
type Settings struct {
	ThreadMode         model.ThreadMode `json:"thread_mode"`
	ActiveThreadsLimit int              `json:"active_threads_limit"`
	AutoCapture        bool             `json:"auto_capture"`
	TokenLimits        TokenLimits      `json:"token_limits"`
}

// TokenLimits are advisory budgets consulted by the retriever/injector.
type TokenLimits struct {
	Recall    int `json:"recall"`
	Injection int `json:"injection"`
}

// LLMConfig selects the extraction model, embedder, and CLI fallback.
type LLMConfig struct {
	ExtractionModel   string `json:"extraction_model"`
	EmbeddingModel    string `json:"embedding_model"`
	EmbeddingEndpoint string `json:"embedding_endpoint"`
	ClaudeCLIPath     string `json:"claude_cli_path"`
}

// GuardcodeConfig holds advisory reminders surfaced in injection.
type GuardcodeConfig struct {
	EnforcePlanMode    bool `json:"enforce_plan_mode"`
	WarnQuickSolutions bool `json:"warn_quick_solutions"`
	RequireAllChoices  bool `json:"require_all_choices"`
}

// Tuning overrides the decay constants that the original source disagreed
// on across versions (see the design ledger). The half-lives are read by
// the maintenance loop; ContinueThreshold is validated but not read by the
// classifier, which always uses a CONTINUE floor of 0.35.
type Tuning struct {
	HalfLifeBridgeDays float64 `json:"half_life_bridge_days"`
	HalfLifeThreadDays float64 `json:"half_life_thread_days"`
	ContinueThreshold  float64 `json:"continue_threshold"`
}

// Config is the root of config.json.
type Config struct {
	ProjectName string          `json:"project_name"`
	Language    string          `json:"language"`
	Settings    Settings        `json:"settings"`
	LLM         LLMConfig       `json:"llm"`
	Guardcode   GuardcodeConfig `json:"guardcode"`
	Tuning      Tuning          `json:"tuning"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		ProjectName: "",
		Language:    "en",
		Settings: Settings{
			ThreadMode:         model.ModeNormal,
			ActiveThreadsLimit: 0,
			AutoCapture:        true,
			TokenLimits: TokenLimits{
				Recall:    2000,
				Injection: 4000,
			},
		},
		LLM: LLMConfig{
			ExtractionModel:   "",
			EmbeddingModel:    "local-hash",
			EmbeddingEndpoint: "",
			ClaudeCLIPath:     "",
		},
		Guardcode: GuardcodeConfig{
			EnforcePlanMode:    true,
			WarnQuickSolutions: true,
			RequireAllChoices:  true,
		},
		Tuning: Tuning{
			HalfLifeBridgeDays: 1.0,
			HalfLifeThreadDays: 1.5,
			ContinueThreshold:  0.35,
		},
	}
}

// Load first loads a sibling .env (if present) into the process
// environment, then reads config.json at path, overlaying it onto
// Default() so an omitted field keeps its default.
func Load(path string) (*Config, error) {
	cfg := Default()
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configuration that would make the rest of the system
// misbehave silently.
func (c *Config) Validate() error {
	switch c.Language {
	case "en", "fr", "es":
	default:
		return fmt.Errorf("unsupported language %q", c.Language)
	}
	switch c.Settings.ThreadMode {
	case model.ModeLight, model.ModeNormal, model.ModeHeavy, model.ModeMax:
	default:
		return fmt.Errorf("unsupported thread_mode %q", c.Settings.ThreadMode)
	}
	if c.Settings.ActiveThreadsLimit < 0 {
		return fmt.Errorf("active_threads_limit must be >= 0, got %d", c.Settings.ActiveThreadsLimit)
	}
	if c.Tuning.HalfLifeBridgeDays <= 0 {
		return fmt.Errorf("tuning.half_life_bridge_days must be > 0")
	}
	if c.Tuning.HalfLifeThreadDays <= 0 {
		return fmt.Errorf("tuning.half_life_thread_days must be > 0")
	}
	if c.Tuning.ContinueThreshold < 0 || c.Tuning.ContinueThreshold > 1 {
		return fmt.Errorf("tuning.continue_threshold must be in [0,1]")
	}
	return nil
}

// Quota returns the effective active-thread quota: the explicit override
// if set, otherwise the mode's default.
func (c *Config) Quota() int {
	if c.Settings.ActiveThreadsLimit > 0 {
		return c.Settings.ActiveThreadsLimit
	}
	return c.Settings.ThreadMode.Quota()
}
