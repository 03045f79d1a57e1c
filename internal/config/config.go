package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Audio      AudioConfig      `yaml:"audio"`
	Listen     ListenConfig     `yaml:"listen"`
	Permission PermissionConfig `yaml:"permission"`
	Host       HostConfig       `yaml:"host"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Inject     InjectConfig     `yaml:"inject"`
	LogLevel   string           `yaml:"log_level"`
}

// RecognizerConfig selects and configures the speech recognizer backend.
type RecognizerConfig struct {
	Backend        string   `yaml:"backend"` // "deepgram"
	APIKey         string   `yaml:"api_key,omitempty"`
	Model          string   `yaml:"model"`
	Languages      []string `yaml:"languages,omitempty"` // overrides the backend's built-in table
	UtteranceEndMS int      `yaml:"utterance_end_ms"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
	RecordDir  string `yaml:"record_dir"` // empty disables voice recordings
}

// ListenConfig holds defaults for recognition sessions.
type ListenConfig struct {
	DefaultLanguage    string        `yaml:"default_language"`
	MaxMatches         int           `yaml:"max_matches"`
	StopOnUtteranceEnd bool          `yaml:"stop_on_utterance_end"`
	FlushTimeout       time.Duration `yaml:"flush_timeout"`
}

// PermissionConfig holds microphone consent settings.
type PermissionConfig struct {
	StorePath string `yaml:"store_path"`
	Prompt    string `yaml:"prompt"` // "terminal", "grant" or "deny"
}

// HostConfig holds the command channel server settings.
type HostConfig struct {
	Addr           string   `yaml:"addr"`
	AuthToken      string   `yaml:"auth_token,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// HotkeyConfig holds push-to-talk settings for dictation mode.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
	Mode string   `yaml:"mode"` // "hold" or "toggle"
}

// InjectConfig holds text injection settings for dictation mode.
type InjectConfig struct {
	Method string `yaml:"method"` // "type", "paste" or "print"
}

// secrets are read from the environment and override file values.
type secrets struct {
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	AuthToken      string `envconfig:"SPEECHBRIDGE_AUTH_TOKEN"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "speechbridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory for recordings and other runtime data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "speechbridge")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Recognizer: RecognizerConfig{
			Backend:        "deepgram",
			Model:          "nova-2",
			UtteranceEndMS: 1000,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			RecordDir:  filepath.Join(DefaultDataDir(), "recordings"),
		},
		Listen: ListenConfig{
			MaxMatches:   5,
			FlushTimeout: 2 * time.Second,
		},
		Permission: PermissionConfig{
			StorePath: filepath.Join(DefaultConfigDir(), "permission.yaml"),
			Prompt:    "terminal",
		},
		Host: HostConfig{
			Addr: "127.0.0.1:7412",
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "r"},
			Mode: "hold",
		},
		Inject: InjectConfig{
			Method: "type",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Audio.RecordDir = expandTilde(cfg.Audio.RecordDir)
	cfg.Permission.StorePath = expandTilde(cfg.Permission.StorePath)

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets with values from the environment.
func (c *Config) ApplyEnv() error {
	var s secrets
	if err := envconfig.Process("", &s); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if s.DeepgramAPIKey != "" {
		c.Recognizer.APIKey = s.DeepgramAPIKey
	}
	if s.AuthToken != "" {
		c.Host.AuthToken = s.AuthToken
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Recognizer.Backend {
	case "deepgram":
	default:
		return fmt.Errorf("recognizer.backend must be \"deepgram\", got %q", c.Recognizer.Backend)
	}

	if c.Recognizer.Model == "" {
		return fmt.Errorf("recognizer.model must not be empty")
	}

	if c.Recognizer.UtteranceEndMS < 0 {
		return fmt.Errorf("recognizer.utterance_end_ms must be >= 0")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}

	if c.Listen.MaxMatches <= 0 {
		return fmt.Errorf("listen.max_matches must be > 0")
	}

	if c.Listen.FlushTimeout <= 0 {
		return fmt.Errorf("listen.flush_timeout must be > 0")
	}

	switch c.Permission.Prompt {
	case "terminal", "grant", "deny":
	default:
		return fmt.Errorf("permission.prompt must be terminal, grant, or deny, got %q", c.Permission.Prompt)
	}

	if c.Host.Addr == "" {
		return fmt.Errorf("host.addr must not be empty")
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	switch c.Inject.Method {
	case "type", "paste", "print":
	default:
		return fmt.Errorf("inject.method must be type, paste, or print, got %q", c.Inject.Method)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# speechbridge configuration
# Secrets can also be supplied through DEEPGRAM_API_KEY and SPEECHBRIDGE_AUTH_TOKEN.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
