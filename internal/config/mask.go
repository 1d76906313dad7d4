package config

import (
	"sort"
	"strings"
)

var secretMarkers = []string{"key", "secret", "token", "password"}

const maskValue = "****"

// Mask returns a copy of settings with secret-like values hidden. It is meant
// for display only and works on the stored settings map, never on credentials
// resolved for a call.
func Mask(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		switch value := v.(type) {
		case map[string]any:
			out[k] = Mask(value)
		case string:
			if isSecretKey(k) {
				out[k] = maskString(value)
			} else {
				out[k] = value
			}
		default:
			out[k] = v
		}
	}
	return out
}

// MaskedKeys lists the dotted keys Mask would hide, sorted.
func MaskedKeys(settings map[string]any) []string {
	var keys []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			full := k
			if prefix != "" {
				full = prefix + "." + k
			}
			switch value := v.(type) {
			case map[string]any:
				walk(full, value)
			case string:
				if isSecretKey(k) && value != "" {
					keys = append(keys, full)
				}
			}
		}
	}
	walk("", settings)
	sort.Strings(keys)
	return keys
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	// File paths are not secrets.
	if strings.HasSuffix(key, "-file") {
		return false
	}
	for _, marker := range secretMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= 8 {
		return maskValue
	}
	return string(runes[:4]) + maskValue
}
