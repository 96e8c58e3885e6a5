package utils

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("UTILS_TEST_SET", "value")
	t.Setenv("UTILS_TEST_EMPTY", "")

	assert.Equal(t, "value", GetEnvWithDefault("UTILS_TEST_SET", "fallback"))
	assert.Equal(t, "fallback", GetEnvWithDefault("UTILS_TEST_EMPTY", "fallback"))
}

func TestLookupHelpers(t *testing.T) {
	env := envMap(map[string]string{
		"INT":   " 42 ",
		"BAD":   "forty",
		"FLOAT": "0.25",
		"YES":   "TRUE",
		"NO":    "0",
		"HUH":   "maybe",
	})

	v, ok := LookupInt(env, "INT")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = LookupInt(env, "BAD")
	assert.False(t, ok)

	_, ok = LookupInt(env, "MISSING")
	assert.False(t, ok)

	f, ok := LookupFloat(env, "FLOAT")
	assert.True(t, ok)
	assert.InDelta(t, 0.25, f, 1e-9)

	b, ok := LookupBool(env, "YES")
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = LookupBool(env, "NO")
	assert.True(t, ok)
	assert.False(t, b)

	_, ok = LookupBool(env, "HUH")
	assert.False(t, ok)
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "empty", token: "", want: ""},
		{name: "long token keeps prefix", token: "sk-abcdefghijklmnop", want: "sk-abcde..."},
		{name: "short token never shows more than half", token: "abcd", want: "ab..."},
		{name: "single char", token: "x", want: "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskToken(tt.token, 8)
			assert.Equal(t, tt.want, got)
			if tt.token != "" {
				assert.NotEqual(t, tt.token, got)
				assert.LessOrEqual(t, len(strings.TrimSuffix(got, MaskSuffix)), 8)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "héé", Truncate("héééé", 3))
}

func TestDefaultConfigPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG resolution is Linux-specific")
	}

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := DefaultConfigPath("llm-chat-proxy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "llm-chat-proxy", ConfigFileName), got)
}
