package config

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// #endregion

// #region types

// PID holds the feedback controller gains.
type PID struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// Provider describes one AI backend in priority order.
type Provider struct {
	ID      string   `json:"id"`
	Enabled bool     `json:"enabled"`
	BaseURL string   `json:"base_url,omitempty"`
	Model   string   `json:"model"`
	APIKeys []string `json:"-"`
}

// Config is the full runtime configuration. Invalid or missing keys fall
// back to defaults at load time, never at use time.
type Config struct {
	BotName              string        `json:"bot_name"`
	OwnerNumbers         []string      `json:"-"`
	Prefixes             string        `json:"prefixes"`
	PreferredLogin       string        `json:"preferred_login"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `json:"-"`
	HealthTickInterval   time.Duration `json:"-"`
	SessionTimeout       time.Duration `json:"-"`
	FlushInterval        time.Duration `json:"-"`
	MaxTextLength        int           `json:"max_text_length"`
	DefaultCooldown      time.Duration `json:"-"`
	SuggestThreshold     float64       `json:"suggest_threshold"`
	DataDir              string        `json:"data_dir"`
	SessionDir           string        `json:"session_dir"`
	AuditDBPath          string        `json:"audit_db_path"`
	PID                  PID           `json:"pid"`
	MaxIntegral          float64       `json:"max_integral"`
	Providers            []Provider    `json:"providers"`

	// Raw millisecond fields used only for JSON round-tripping.
	ReconnectBaseDelayMs int `json:"reconnect_base_delay_ms"`
	HealthTickIntervalMs int `json:"health_tick_interval_ms"`
	SessionTimeoutMs     int `json:"session_timeout_ms"`
	FlushIntervalMs      int `json:"flush_interval_ms"`
	DefaultCooldownMs    int `json:"default_cooldown_ms"`
}

// #endregion

// #region defaults

// Default returns the baseline configuration used when no file is present.
func Default() Config {
	return Config{
		BotName:              "Prometheus Prime",
		Prefixes:             "!.#/",
		PreferredLogin:       "qr",
		MaxReconnectAttempts: 6,
		ReconnectBaseDelay:   2 * time.Second,
		HealthTickInterval:   30 * time.Second,
		SessionTimeout:       60 * time.Second,
		FlushInterval:        5 * time.Minute,
		MaxTextLength:        4096,
		DefaultCooldown:      3 * time.Second,
		SuggestThreshold:     0.6,
		DataDir:              "data",
		SessionDir:           "session",
		AuditDBPath:          filepath.Join("data", "audit.db"),
		PID:                  PID{Kp: 0.4, Ki: 0.05, Kd: 0.2},
		MaxIntegral:          50,
		Providers: []Provider{
			{ID: "openai", Enabled: true, Model: "gpt-4o-mini"},
			{ID: "groq", Enabled: true, BaseURL: "https://api.groq.com/openai/v1", Model: "llama3-8b-8192"},
			{ID: "ollama", Enabled: true, BaseURL: "http://localhost:11434", Model: "llama3:latest"},
		},
	}
}

// #endregion

// #region load

// Load reads .env (if present), merges bot.config.json from sessionDir over
// the defaults, validates every key, and injects env-provided secrets.
// A malformed file degrades to defaults rather than failing startup.
func Load(sessionDir string) (Config, []string) {
	_ = godotenv.Load()

	cfg := Default()
	if sessionDir != "" {
		cfg.SessionDir = sessionDir
	}

	var warnings []string
	path := filepath.Join(cfg.SessionDir, "bot.config.json")
	if raw, err := os.ReadFile(path); err == nil {
		var loaded Config
		if err := json.Unmarshal(raw, &loaded); err != nil {
			warnings = append(warnings, fmt.Sprintf("parse %s: %v", path, err))
		} else {
			cfg = merge(cfg, loaded)
		}
	}

	warnings = append(warnings, validate(&cfg)...)

	cfg.OwnerNumbers = splitEnv("OWNER_NUMBERS")
	for i := range cfg.Providers {
		switch cfg.Providers[i].ID {
		case "openai":
			cfg.Providers[i].APIKeys = splitEnv("OPENAI_API_KEY")
		case "groq":
			cfg.Providers[i].APIKeys = splitEnv("GROQ_API_KEY")
		}
	}
	return cfg, warnings
}

// Save writes the JSON-serializable portion of the config back to sessionDir.
func Save(cfg Config) error {
	cfg.ReconnectBaseDelayMs = int(cfg.ReconnectBaseDelay / time.Millisecond)
	cfg.HealthTickIntervalMs = int(cfg.HealthTickInterval / time.Millisecond)
	cfg.SessionTimeoutMs = int(cfg.SessionTimeout / time.Millisecond)
	cfg.FlushIntervalMs = int(cfg.FlushInterval / time.Millisecond)
	cfg.DefaultCooldownMs = int(cfg.DefaultCooldown / time.Millisecond)

	if err := os.MkdirAll(cfg.SessionDir, 0o755); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(cfg.SessionDir, "bot.config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// #endregion

// #region merge-validate

func merge(base, loaded Config) Config {
	out := base
	if loaded.BotName != "" {
		out.BotName = loaded.BotName
	}
	if loaded.Prefixes != "" {
		out.Prefixes = loaded.Prefixes
	}
	if loaded.PreferredLogin != "" {
		out.PreferredLogin = loaded.PreferredLogin
	}
	if loaded.MaxReconnectAttempts != 0 {
		out.MaxReconnectAttempts = loaded.MaxReconnectAttempts
	}
	if loaded.ReconnectBaseDelayMs > 0 {
		out.ReconnectBaseDelay = time.Duration(loaded.ReconnectBaseDelayMs) * time.Millisecond
	}
	if loaded.HealthTickIntervalMs > 0 {
		out.HealthTickInterval = time.Duration(loaded.HealthTickIntervalMs) * time.Millisecond
	}
	if loaded.SessionTimeoutMs > 0 {
		out.SessionTimeout = time.Duration(loaded.SessionTimeoutMs) * time.Millisecond
	}
	if loaded.FlushIntervalMs > 0 {
		out.FlushInterval = time.Duration(loaded.FlushIntervalMs) * time.Millisecond
	}
	if loaded.DefaultCooldownMs > 0 {
		out.DefaultCooldown = time.Duration(loaded.DefaultCooldownMs) * time.Millisecond
	}
	if loaded.MaxTextLength != 0 {
		out.MaxTextLength = loaded.MaxTextLength
	}
	if loaded.SuggestThreshold != 0 {
		out.SuggestThreshold = loaded.SuggestThreshold
	}
	if loaded.DataDir != "" {
		out.DataDir = loaded.DataDir
	}
	if loaded.AuditDBPath != "" {
		out.AuditDBPath = loaded.AuditDBPath
	}
	if loaded.PID.Kp != 0 || loaded.PID.Ki != 0 || loaded.PID.Kd != 0 {
		out.PID = loaded.PID
	}
	if loaded.MaxIntegral != 0 {
		out.MaxIntegral = loaded.MaxIntegral
	}
	if len(loaded.Providers) > 0 {
		out.Providers = loaded.Providers
	}
	return out
}

// validate repairs out-of-range values in place and reports what it touched.
func validate(cfg *Config) []string {
	def := Default()
	var warnings []string

	repair := func(name string, bad bool, fix func()) {
		if bad {
			warnings = append(warnings, fmt.Sprintf("config key %q invalid, using default", name))
			fix()
		}
	}

	repair("preferred_login", cfg.PreferredLogin != "qr" && cfg.PreferredLogin != "pair",
		func() { cfg.PreferredLogin = def.PreferredLogin })
	repair("max_reconnect_attempts", cfg.MaxReconnectAttempts < 0,
		func() { cfg.MaxReconnectAttempts = def.MaxReconnectAttempts })
	repair("reconnect_base_delay_ms", cfg.ReconnectBaseDelay <= 0,
		func() { cfg.ReconnectBaseDelay = def.ReconnectBaseDelay })
	repair("health_tick_interval_ms", cfg.HealthTickInterval < 5*time.Second,
		func() { cfg.HealthTickInterval = def.HealthTickInterval })
	repair("session_timeout_ms", cfg.SessionTimeout <= 0,
		func() { cfg.SessionTimeout = def.SessionTimeout })
	repair("max_text_length", cfg.MaxTextLength <= 0,
		func() { cfg.MaxTextLength = def.MaxTextLength })
	repair("suggest_threshold", cfg.SuggestThreshold <= 0 || cfg.SuggestThreshold > 1,
		func() { cfg.SuggestThreshold = def.SuggestThreshold })
	repair("max_integral", cfg.MaxIntegral <= 0,
		func() { cfg.MaxIntegral = def.MaxIntegral })

	return warnings
}

// #endregion

// #region helpers

func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// #endregion
