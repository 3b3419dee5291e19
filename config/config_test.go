package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, name := range []string{"WP_URL", "WP_USERNAME", "WP_APP_PASSWORD", "BLOGPKG_LLM_PROVIDER", "BLOGPKG_STORAGE_BACKEND"} {
		t.Setenv(name, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxConcurrency)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "answers", cfg.Storage.Dir)
	assert.False(t, cfg.WordPressConfigured())
}

func TestLoadFileAndLegacyEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: gemini
  timeout: 45s
  models:
    blog: gemini-2.5-pro
storage:
  backend: sqlite
wordpress:
  category_id: 26
  default_tag_id: 46
`), 0o644))

	t.Setenv("WP_URL", "https://blog.example.com")
	t.Setenv("WP_USERNAME", "editor")
	t.Setenv("WP_APP_PASSWORD", "secret")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("BLOGPKG_LLM_API_KEY", "")
	t.Setenv("BLOGPKG_LLM_PROVIDER", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "stray-openai-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Models.Blog)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Models.Image)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, 26, cfg.WordPress.CategoryID)
	assert.Equal(t, "editor", cfg.Storage.User)
	assert.True(t, cfg.WordPressConfigured())
}

func TestLoadPicksKeyForProvider(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	for _, name := range []string{"LLM_API_KEY", "BLOGPKG_LLM_API_KEY", "DEEPSEEK_API_KEY", "AVALAI_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(name, "")
	}
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cases := []struct{ provider, want string }{
		{"openai", "o-key"},
		{"deepseek", "o-key"},
		{"avalai", "g-key"},
		{"gemini", "g-key"},
		{"mock", ""},
	}
	for _, c := range cases {
		t.Run(c.provider, func(t *testing.T) {
			t.Setenv("BLOGPKG_LLM_PROVIDER", c.provider)
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, c.want, cfg.LLM.APIKey)
		})
	}

	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("BLOGPKG_LLM_PROVIDER", "gemini")
		t.Setenv("LLM_API_KEY", "explicit")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "explicit", cfg.LLM.APIKey)
	})
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := &Config{LLM: LLM{Provider: "openai", Timeout: time.Second}, Storage: Storage{Backend: "s3"}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{LLM: LLM{Provider: "claude", Timeout: time.Second}, Storage: Storage{Backend: "file"}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{LLM: LLM{Provider: "mock", Timeout: time.Second}, Storage: Storage{Backend: "none"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.LLM.MaxConcurrency)
}
