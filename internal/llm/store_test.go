package llm

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDefaults() LLMConfig {
	return DefaultsFromEnv(envOf(nil))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "llm-chat-proxy", "config.json")
	s, err := NewStore(path, testDefaults(), discardLogger())
	require.NoError(t, err)
	return s, path
}

func readConfigFile(t *testing.T, path string) LLMConfig {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg LLMConfig
	require.NoError(t, json.Unmarshal(data, &cfg))
	return cfg
}

func TestNewStore_WritesDefaultsWhenMissing(t *testing.T) {
	s, path := newTestStore(t)

	assert.Equal(t, testDefaults(), s.Config())
	assert.Equal(t, testDefaults(), readConfigFile(t, path))
	assert.Equal(t, path, s.Path())

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(configFilePerm), info.Mode().Perm())
	}
}

func TestNewStore_LoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"endpointUrl": "https://llm.example.com",
		"authToken": "stored-token",
		"maxTokens": 800
	}`), 0o600))

	s, err := NewStore(path, testDefaults(), discardLogger())
	require.NoError(t, err)

	got := s.Config()
	assert.Equal(t, "https://llm.example.com", got.EndpointURL)
	assert.Equal(t, "stored-token", got.AuthToken)
	assert.Equal(t, 800, got.MaxTokens)
	// Absent fields come from the defaults.
	assert.Equal(t, DefaultModel, got.DefaultModel)
	assert.Equal(t, DefaultTemperature, got.Temperature)
	assert.Equal(t, DefaultRequestTimeoutMs, got.RequestTimeoutMs)
}

func TestNewStore_CorruptFileFallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unparsable", content: `{"endpointUrl": "http://x",`},
		{name: "out of bounds", content: `{"maxTokens": 99999}`},
		{name: "wrong types", content: `{"maxTokens": "lots"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			s, err := NewStore(path, testDefaults(), discardLogger())
			require.NoError(t, err)

			assert.Equal(t, testDefaults(), s.Config())
			assert.Equal(t, testDefaults(), readConfigFile(t, path))
		})
	}
}

func TestNewStore_RejectsInvalidDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := NewStore(path, LLMConfig{}, discardLogger())
	require.Error(t, err)
}

func TestStore_Update(t *testing.T) {
	s, path := newTestStore(t)

	err := s.Update(ConfigUpdate{
		EndpointURL: ptr(" https://llm.example.com "),
		MaxTokens:   ptr(1000),
		Temperature: ptr(1.5),
	})
	require.NoError(t, err)

	got := s.Config()
	assert.Equal(t, "https://llm.example.com", got.EndpointURL)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.Equal(t, 1.5, got.Temperature)
	assert.Equal(t, DefaultModel, got.DefaultModel)
	assert.Equal(t, got, readConfigFile(t, path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestStore_UpdateRejectedLeavesStateUnchanged(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Update(ConfigUpdate{MaxTokens: ptr(200)}))

	before := s.Config()

	err := s.Update(ConfigUpdate{
		DefaultModel: ptr("other-model"),
		MaxTokens:    ptr(5000),
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{FieldMaxTokens}, verr.Fields)
	assert.Equal(t, before, s.Config())
	assert.Equal(t, before, readConfigFile(t, path))
}

func TestStore_PersistFailureLeavesStateUnchanged(t *testing.T) {
	s, path := newTestStore(t)
	before := s.Config()

	// Replace the config directory with a file so the temp file cannot be created.
	dir := filepath.Dir(path)
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0o600))

	err := s.Update(ConfigUpdate{MaxTokens: ptr(300)})
	require.Error(t, err)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "persistence failures are not validation errors")
	assert.Contains(t, err.Error(), "persist config")
	assert.Equal(t, before, s.Config())

	require.Error(t, s.Reset())
}

func TestStore_SetAPIConfig(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		token      string
		wantFields []string
	}{
		{name: "valid", url: "https://llm.example.com", token: "tok"},
		{name: "bad scheme", url: "ftp://bad", token: "tok", wantFields: []string{FieldEndpointURL}},
		{name: "missing url", url: "", token: "tok", wantFields: []string{FieldEndpointURL}},
		{name: "blank token", url: "http://ok", token: "   ", wantFields: []string{FieldAuthToken}},
		{name: "both missing", url: " ", token: "", wantFields: []string{FieldEndpointURL, FieldAuthToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			before := s.Config()

			err := s.SetAPIConfig(tt.url, tt.token)
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.url, s.Config().EndpointURL)
				assert.Equal(t, tt.token, s.Config().AuthToken)
				assert.True(t, s.Status().Configured)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantFields, verr.Fields)
			assert.Equal(t, before, s.Config())
		})
	}
}

func TestStore_Reset(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.SetAPIConfig("https://llm.example.com", "tok"))
	require.NoError(t, s.Update(ConfigUpdate{MaxTokens: ptr(42), EnableLogging: ptr(true)}))

	require.NoError(t, s.Reset())

	assert.Equal(t, testDefaults(), s.Config())
	assert.Equal(t, testDefaults(), readConfigFile(t, path))
	assert.False(t, s.Status().Configured)
	assert.Equal(t, []string{FieldEndpointURL, FieldAuthToken}, s.Status().MissingFields)
}

func TestStore_MaskedAndStatus(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, NotConfigured, s.Masked().EndpointURL)
	assert.Equal(t, NotConfigured, s.Masked().AuthToken)

	require.NoError(t, s.SetAPIConfig("https://llm.example.com", "sk-abcdefghijklmnop"))
	m := s.Masked()
	assert.Equal(t, "https://llm.example.com", m.EndpointURL)
	assert.Equal(t, "sk-abcde...", m.AuthToken)
	assert.Equal(t, ConfigStatus{Configured: true, MissingFields: []string{}}, s.Status())
}

func TestStore_ConcurrentWritesAreSerialised(t *testing.T) {
	s, path := newTestStore(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Update(ConfigUpdate{MaxTokens: ptr(n), RequestTimeoutMs: ptr(1000 * n)}))
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := s.Config()
			// Every snapshot a reader observes was written by a single update.
			if cfg.MaxTokens != DefaultMaxTokens {
				assert.Equal(t, cfg.MaxTokens*1000, cfg.RequestTimeoutMs)
			}
		}()
	}
	wg.Wait()

	final := s.Config()
	assert.Equal(t, final.MaxTokens*1000, final.RequestTimeoutMs)
	assert.Equal(t, final, readConfigFile(t, path))
}
