package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the non-secret settings currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_debug":               Global.App.Debug,
		"app_version":             Global.App.Version,
		"backend_api_server_uri":  Global.Backend.APIServerURI,
		"backend_environment":     Global.Backend.Environment,
		"backend_request_timeout": Global.Backend.RequestTimeout.String(),
		"messenger_api_version":   Global.Messenger.APIVersion,
		"cache_session_ttl":       Global.Cache.SessionTTL.String(),
		"valkey_enabled":          Global.Database.ValkeyEnabled,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("10s") or a plain number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
