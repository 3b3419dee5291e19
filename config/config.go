package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once in main and
// passed by reference to every constructor.
type Config struct {
	LLM       LLM       `mapstructure:"llm"`
	Prompts   Prompts   `mapstructure:"prompts"`
	Site      Site      `mapstructure:"site"`
	WordPress WordPress `mapstructure:"wordpress"`
	Storage   Storage   `mapstructure:"storage"`
	Server    Server    `mapstructure:"server"`
	Log       Log       `mapstructure:"log"`
}

// LLM holds model provider configuration.
type LLM struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Models         Models        `mapstructure:"models"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// Models names the model used for each client role.
type Models struct {
	Blog   string `mapstructure:"blog"`
	Image  string `mapstructure:"image"`
	Social string `mapstructure:"social"`
}

// Prompts points at an optional prompt catalog overriding the embedded one.
type Prompts struct {
	Path string `mapstructure:"path"`
}

// Site holds publication-specific naming.
type Site struct {
	ImagePrefix string `mapstructure:"image_prefix"`
	GraphicsDir string `mapstructure:"graphics_dir"`
}

// WordPress holds CMS credentials and fixed taxonomy ids.
type WordPress struct {
	URL          string        `mapstructure:"url"`
	Username     string        `mapstructure:"username"`
	AppPassword  string        `mapstructure:"app_password"`
	CategoryID   int           `mapstructure:"category_id"`
	DefaultTagID int           `mapstructure:"default_tag_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Storage selects the artifact persistence backend.
type Storage struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	User        string `mapstructure:"user"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PantryID    string `mapstructure:"pantry_id"`
}

// Server holds HTTP listen configuration.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Log holds logger configuration.
type Log struct {
	Mode string `mapstructure:"mode"`
}

// legacyEnv maps config keys to the environment variable names the
// deployment already uses.
var legacyEnv = map[string][]string{
	"llm.api_key":            {"LLM_API_KEY"},
	"wordpress.url":          {"WP_URL"},
	"wordpress.username":     {"WP_USERNAME"},
	"wordpress.app_password": {"WP_APP_PASSWORD"},
	"storage.pantry_id":      {"PANTRY_ID"},
	"storage.redis_addr":     {"REDIS_ADDR"},
}

// providerKeyEnv lists the provider specific key variables, checked in order
// only when llm.api_key is still empty after file and env.
var providerKeyEnv = map[string][]string{
	"openai":   {"OPENAI_API_KEY"},
	"deepseek": {"DEEPSEEK_API_KEY", "OPENAI_API_KEY"},
	"avalai":   {"GOOGLE_API_KEY", "AVALAI_API_KEY"},
	"gemini":   {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.models.blog", "gpt-4.1")
	v.SetDefault("llm.models.image", "gpt-4.1")
	v.SetDefault("llm.models.social", "gpt-4.1-mini")
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.max_concurrency", 3)
	v.SetDefault("prompts.path", "")
	v.SetDefault("site.image_prefix", "example.com")
	v.SetDefault("site.graphics_dir", "graphic")
	v.SetDefault("wordpress.url", "")
	v.SetDefault("wordpress.username", "")
	v.SetDefault("wordpress.app_password", "")
	v.SetDefault("wordpress.category_id", 0)
	v.SetDefault("wordpress.default_tag_id", 0)
	v.SetDefault("wordpress.timeout", 30*time.Second)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "answers")
	v.SetDefault("storage.user", "")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "blogpkg")
	v.SetDefault("storage.sqlite_path", "answers/artifacts.db")
	v.SetDefault("storage.pantry_id", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.mode", "dev")
}

// Load reads configuration from .env, the optional config file at path and
// the environment (BLOGPKG_LLM_API_KEY style names plus legacy names).
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BLOGPKG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key, "BLOGPKG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		for _, name := range providerKeyEnv[cfg.LLM.Provider] {
			if key := os.Getenv(name); key != "" {
				cfg.LLM.APIKey = key
				break
			}
		}
	}
	if cfg.Storage.User == "" {
		cfg.Storage.User = cfg.WordPress.Username
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings; credentials are checked by the
// component that needs them.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "deepseek", "avalai", "gemini", "mock":
	default:
		return fmt.Errorf("llm.provider %q not supported", c.LLM.Provider)
	}
	switch c.Storage.Backend {
	case "file", "redis", "sqlite", "none":
	default:
		return fmt.Errorf("storage.backend %q not supported", c.Storage.Backend)
	}
	if c.LLM.MaxConcurrency < 1 {
		c.LLM.MaxConcurrency = 1
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm.timeout must be positive")
	}
	return nil
}

// WordPressConfigured reports whether publishing credentials are present.
func (c *Config) WordPressConfigured() bool {
	return c.WordPress.URL != "" && c.WordPress.Username != "" && c.WordPress.AppPassword != ""
}
