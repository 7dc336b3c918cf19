package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL          = "http://localhost:5000/api"
	DefaultWSURL           = "ws://localhost:5000/ws"
	DefaultRequestTimeout  = 10 * time.Second
	DefaultSearchDebounce  = 500 * time.Millisecond
	DefaultScrollThreshold = 3
)

// MinSearchDebounce is the shortest quiet period accepted for user search.
const MinSearchDebounce = 500 * time.Millisecond

// Config represents the global ~/.pawchat/config.toml.
type Config struct {
	DefaultProfile  string   `toml:"default_profile"`
	APIURL          string   `toml:"api_url"`
	WSURL           string   `toml:"ws_url"`
	RequestTimeout  Duration `toml:"request_timeout"`
	SearchDebounce  Duration `toml:"search_debounce"`
	LogLevel        string   `toml:"log_level"`
	ScrollThreshold int      `toml:"scroll_threshold"`
}

// Duration is a time.Duration written as "10s" in TOML.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a config with every field populated.
func Default() *Config {
	return &Config{
		APIURL:          DefaultAPIURL,
		WSURL:           DefaultWSURL,
		RequestTimeout:  Duration{DefaultRequestTimeout},
		SearchDebounce:  Duration{DefaultSearchDebounce},
		LogLevel:        "info",
		ScrollThreshold: DefaultScrollThreshold,
	}
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads the config file if present, fills unset fields with
// defaults, then applies .env and PAWCHAT_* environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	// A missing .env is the normal case outside development.
	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.APIURL == "" {
		c.APIURL = def.APIURL
	}
	if c.WSURL == "" {
		c.WSURL = def.WSURL
	}
	if c.RequestTimeout.Duration <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.SearchDebounce.Duration < MinSearchDebounce {
		c.SearchDebounce = Duration{MinSearchDebounce}
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ScrollThreshold <= 0 {
		c.ScrollThreshold = def.ScrollThreshold
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PAWCHAT_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("PAWCHAT_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("PAWCHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// EnvToken returns the bearer token supplied through PAWCHAT_TOKEN, if any.
func EnvToken() string {
	return os.Getenv("PAWCHAT_TOKEN")
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
