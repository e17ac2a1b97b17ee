package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath       string
	InputDir     string
	OutputDir    string
	ProfilePath  string
	InputPattern string

	LogLevel  string
	LogFormat string

	DedupePolicy    string
	DedupeThreshold float64
	EngineWorkers   int
	ReviewThreshold float64

	SNBaseURL      string
	SNToken        string
	SNTable        string
	SNRateLimitRPS int
	SNTimeoutMs    int
	SNPageSize     int

	WatchIntervalSec int
	IncludeLevel2    bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:       getEnv("DB_PATH", filepath.Join(cwd, "data", "offerings.db")),
		InputDir:     getEnv("INPUT_DIR", filepath.Join(cwd, "data", "inbox")),
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		ProfilePath:  getEnv("PROFILE_PATH", ""),
		InputPattern: getEnv("INPUT_PATTERN", "ALL_Service_Offering_*.xlsx"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DedupePolicy:    getEnv("DEDUPE_POLICY", "exact"),
		DedupeThreshold: getEnvFloat("DEDUPE_THRESHOLD", 0.92),
		EngineWorkers:   getEnvInt("ENGINE_WORKERS", 1),
		ReviewThreshold: getEnvFloat("REVIEW_THRESHOLD", 0.85),

		SNBaseURL:      getEnv("SN_BASE_URL", ""),
		SNToken:        getEnv("SN_TOKEN", ""),
		SNTable:        getEnv("SN_TABLE", "service_offering"),
		SNRateLimitRPS: getEnvInt("SN_RATE_LIMIT_RPS", 5),
		SNTimeoutMs:    getEnvInt("SN_TIMEOUT_MS", 30000),
		SNPageSize:     getEnvInt("SN_PAGE_SIZE", 500),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 30),
		IncludeLevel2:    getEnvBool("INCLUDE_LEVEL2", false),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
