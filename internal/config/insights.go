package config

import (
	"os"
	"strconv"
	"time"
)

// InsightsConfig controls the advice summary assembler and its cache.
type InsightsConfig struct {
	CacheTTL     time.Duration
	PeriodDays   int
	DefaultLabel string
}

func LoadInsightsConfig() *InsightsConfig {
	return &InsightsConfig{
		CacheTTL:     getEnvAsDuration("INSIGHTS_CACHE_TTL", 15*time.Minute),
		PeriodDays:   getEnvAsInt("INSIGHTS_PERIOD_DAYS", 30),
		DefaultLabel: getEnv("INSIGHTS_PERIOD_LABEL", "last-30-days"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
