// Package utils provides small helpers shared by the proxy: environment
// lookups, secret masking and locating the per-user configuration file.
package utils

import (
	"os"
	"strconv"
	"strings"
)

// MaskSuffix is appended to the visible part of a masked secret.
const MaskSuffix = "..."

// GetEnvWithDefault retrieves an environment variable or returns a default value if not set.
//
// Parameters:
//   - name: The name of the environment variable
//   - defaultValue: The default value to return if the environment variable is not set
//
// Returns the value of the environment variable, or the default value if not set.
func GetEnvWithDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// LookupInt parses the value returned by getenv for name as an integer.
// The second result is false when the variable is unset or not a number.
func LookupInt(getenv func(string) string, name string) (int, bool) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LookupFloat is LookupInt for floating point values.
func LookupFloat(getenv func(string) string, name string) (float64, bool) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LookupBool is LookupInt for booleans ("1", "true", "yes" and their negatives).
func LookupBool(getenv func(string) string, name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// MaskToken masks a secret for display. At most visible characters of the
// token are kept, and never more than half of it, followed by MaskSuffix.
// An empty token stays empty.
func MaskToken(token string, visible int) string {
	if token == "" {
		return ""
	}

	runes := []rune(token)
	if half := len(runes) / 2; visible > half {
		visible = half
	}
	if visible < 0 {
		visible = 0
	}

	return string(runes[:visible]) + MaskSuffix
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
