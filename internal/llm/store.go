package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	configDirPerm  = 0o700
	configFilePerm = 0o600
)

// Store owns the persisted LLM settings. It is safe for concurrent use:
// readers always observe a complete configuration and writers are serialised.
type Store struct {
	mu  sync.RWMutex
	cfg LLMConfig

	// writeMu serialises Update and Reset so that persisting to disk does not
	// hold the read lock.
	writeMu  sync.Mutex
	defaults LLMConfig
	path     string
	logger   *slog.Logger
}

// fileConfig is the on-disk format. Pointer fields let the loader tell an
// absent field from a zero value.
type fileConfig struct {
	EndpointURL      *string  `json:"endpointUrl"`
	AuthToken        *string  `json:"authToken"`
	DefaultModel     *string  `json:"defaultModel"`
	MaxTokens        *int     `json:"maxTokens"`
	Temperature      *float64 `json:"temperature"`
	RequestTimeoutMs *int     `json:"requestTimeoutMs"`
	EnableLogging    *bool    `json:"enableLogging"`
}

// NewStore opens the settings file at path. A missing, unreadable or invalid
// file is replaced by defaults, which are written immediately; only a failure
// to write that file is returned as an error.
func NewStore(path string, defaults LLMConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("llm: invalid defaults: %w", err)
	}

	s := &Store{
		cfg:      defaults,
		defaults: defaults,
		path:     path,
		logger:   logger,
	}

	cfg, err := s.load()
	if err == nil {
		s.cfg = cfg
		return s, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config file unusable, reinitialising from defaults", "path", path, "error", err)
	}
	if err := s.persist(defaults); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the settings file.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration.
func (s *Store) Config() LLMConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update validates u and, when every present field is within bounds, merges
// it over the current configuration and persists the result. On any error
// the stored configuration is left unchanged.
func (s *Store) Update(u ConfigUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := u.apply(s.Config())
	if err := next.Validate(); err != nil {
		return err
	}

	return s.commit(next)
}

// SetAPIConfig sets the endpoint URL and token together. Both are required.
func (s *Store) SetAPIConfig(url, token string) error {
	url = strings.TrimSpace(url)
	token = strings.TrimSpace(token)

	verr := &ValidationError{}
	switch {
	case url == "":
		verr.add(FieldEndpointURL, "API URL is required")
	case !validURL(url):
		verr.add(FieldEndpointURL, "API URL must start with http:// or https://")
	}
	if token == "" {
		verr.add(FieldAuthToken, "API token is required")
	}
	if err := verr.errOrNil(); err != nil {
		return err
	}

	return s.Update(ConfigUpdate{EndpointURL: &url, AuthToken: &token})
}

// Reset discards the stored configuration and reinstates the defaults.
func (s *Store) Reset() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.commit(s.defaults)
}

// Masked returns a display-safe view of the current configuration.
func (s *Store) Masked() MaskedConfig {
	return s.Config().Masked()
}

// Status reports whether the endpoint URL and token are configured.
func (s *Store) Status() ConfigStatus {
	return s.Config().Status()
}

// commit persists cfg and then publishes it to readers. Must be called
// with writeMu held.
func (s *Store) commit(cfg LLMConfig) error {
	if err := s.persist(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("llm config saved", "path", s.path, "config", cfg.Masked())
	return nil
}

// load reads and validates the settings file, filling absent fields from
// the defaults.
func (s *Store) load() (LLMConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return LLMConfig{}, err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return LLMConfig{}, fmt.Errorf("parse %s: %w", s.path, err)
	}

	cfg := ConfigUpdate(fc).apply(s.defaults)
	if err := cfg.Validate(); err != nil {
		return LLMConfig{}, err
	}
	return cfg, nil
}

// persist writes cfg to a temporary file in the target directory and renames
// it over the settings file, so the file is either fully replaced or untouched.
func (s *Store) persist(cfg LLMConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("llm: persist config: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return fmt.Errorf("llm: persist config: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("llm: persist config: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(configFilePerm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("llm: persist config: chmod temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("llm: persist config: write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("llm: persist config: sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("llm: persist config: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("llm: persist config: rename temp file: %w", err)
	}

	return nil
}
