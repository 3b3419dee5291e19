package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	got := sanitizeKVs([]interface{}{"api_key", "sk-123", "stage", "blog", "WP_APP_PASSWORD", "pw", "dangling"})
	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "stage", "blog", "WP_APP_PASSWORD", "[REDACTED]", "dangling"}, got)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc", 10))
	assert.Equal(t, "ab...", Preview("abcdef", 2))
	assert.Equal(t, "abcdef", Preview("abcdef", 0))
	assert.Equal(t, "سلا...", Preview("سلام دنیا", 3))
	assert.Equal(t, "سلام", Preview("سلام", 4))
}

func TestNopDoesNotPanic(t *testing.T) {
	l := Nop().With("run_id", "x")
	l.Info("hello", "k", 1)
	l.Sync()
}
