package utils

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is the name of the persisted LLM settings file.
const ConfigFileName = "config.json"

// DefaultConfigPath returns the per-user location of the settings file for
// the application named app.
//
// The file lives in the standard configuration directory for the platform:
// - Windows: %APPDATA%\<app>\config.json
// - macOS: ~/.config/<app>/config.json
// - Linux: $XDG_CONFIG_HOME/<app>/config.json, falling back to ~/.config
func DefaultConfigPath(app string) (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, app, ConfigFileName), nil
}

// configDir determines the base configuration directory for the current OS.
func configDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return appData, nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config"), nil
	default: // Linux and other Unix-like systems
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return xdg, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config"), nil
	}
}
