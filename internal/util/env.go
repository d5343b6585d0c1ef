package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func GetEnvEnum(key string, defaultVal string, allowedValues []string) string {
	if !contains(allowedValues, defaultVal) {
		log.Panic().Str("key", key).Str("value", defaultVal).Msg("Default value is not in the allowed values list.")
	}

	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	if !contains(allowedValues, val) {
		log.Error().Str("key", key).Str("value", val).Strs("allowed", allowedValues).Msg("Value is not allowed, falling back to default value.")
		return defaultVal
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int) int {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(strVal)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to parse env as int, falling back to default value.")
		return defaultVal
	}
	return val
}

func GetEnvAsUint32(key string, defaultVal uint32) uint32 {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := strconv.ParseUint(strVal, 10, 32)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to parse env as uint32, falling back to default value.")
		return defaultVal
	}
	return uint32(val)
}

func GetEnvAsBool(key string, defaultVal bool) bool {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(strVal)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to parse env as bool, falling back to default value.")
		return defaultVal
	}
	return val
}

// GetEnvAsDuration parses values like "90s" or "24h".
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal := GetEnv(key, "")
	if strVal == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(strVal)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to parse env as duration, falling back to default value.")
		return defaultVal
	}
	return val
}

func GetEnvAsStringArr(key string, defaultVal []string, separator ...string) []string {
	strVal := GetEnv(key, "")
	if len(strVal) == 0 {
		return defaultVal
	}

	sep := ","
	if len(separator) >= 1 {
		sep = separator[0]
	}

	parts := strings.Split(strVal, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
