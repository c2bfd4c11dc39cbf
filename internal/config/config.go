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
	DBPath string
	PGDSN  string

	WBAPIBaseURL string
	WBAPIToken   string

	HTTPTimeoutMs int
	RateLimitRPS  int

	RetryMax    int
	RetryBaseMs int
	RetryCapMs  int

	PollIntervalMs    int
	PollMaxIntervalMs int
	PollBudgetMs      int

	DownloadCooldownMs     int
	DownloadCooldownStepMs int

	UpsertChunk        int
	WindowRetries      int
	WindowRetryPauseMs int
	WindowPauseMs      int

	FailOnTimeout bool
	LogLevel      string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath: getEnv("DB_PATH", filepath.Join(cwd, "data", "wbstorage.db")),
		PGDSN:  getEnv("PG_DSN", ""),

		WBAPIBaseURL: getEnv("WB_API_BASE", "https://seller-analytics-api.wildberries.ru"),
		WBAPIToken:   getEnv("WB_API_TOKEN", ""),

		HTTPTimeoutMs: getEnvInt("WB_HTTP_TIMEOUT_MS", 60000),
		RateLimitRPS:  getEnvInt("WB_RATE_LIMIT_RPS", 1),

		RetryMax:    getEnvInt("WB_RETRY_MAX", 6),
		RetryBaseMs: getEnvInt("WB_RETRY_BASE_MS", 2000),
		RetryCapMs:  getEnvInt("WB_RETRY_CAP_MS", 20000),

		PollIntervalMs:    getEnvInt("WB_POLL_INTERVAL_MS", 5000),
		PollMaxIntervalMs: getEnvInt("WB_POLL_MAX_INTERVAL_MS", 60000),
		PollBudgetMs:      getEnvInt("WB_POLL_BUDGET_MS", 600000),

		DownloadCooldownMs:     getEnvInt("WB_DOWNLOAD_COOLDOWN_MS", 60000),
		DownloadCooldownStepMs: getEnvInt("WB_DOWNLOAD_COOLDOWN_STEP_MS", 15000),

		UpsertChunk:        getEnvInt("UPSERT_CHUNK", 1000),
		WindowRetries:      getEnvInt("WINDOW_RETRIES", 3),
		WindowRetryPauseMs: getEnvInt("WINDOW_RETRY_PAUSE_MS", 5000),
		WindowPauseMs:      getEnvInt("WINDOW_PAUSE_MS", 2000),

		FailOnTimeout: getEnvBool("WB_FAIL_ON_TIMEOUT", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
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
