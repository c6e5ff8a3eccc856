package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CRMBaseURL            string
	CRMAPIKey             string
	CRMTimeoutSeconds     int
	LocalSearchWindowDays int
	CRMSearchWindowDays   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	crmTimeout, err := strconv.Atoi(getEnv("CRM_TIMEOUT_SECONDS", "20"))
	if err != nil || crmTimeout < 1 {
		crmTimeout = 20
	}
	localWindow, err := strconv.Atoi(getEnv("LOCAL_SEARCH_WINDOW_DAYS", "30"))
	if err != nil || localWindow < 1 {
		localWindow = 30
	}
	crmWindow, err := strconv.Atoi(getEnv("CRM_SEARCH_WINDOW_DAYS", "365"))
	if err != nil || crmWindow < 1 {
		crmWindow = 365
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		CRMBaseURL:            strings.TrimRight(strings.TrimSpace(os.Getenv("CRM_BASE_URL")), "/"),
		CRMAPIKey:             strings.TrimSpace(os.Getenv("CRM_API_KEY")),
		CRMTimeoutSeconds:     crmTimeout,
		LocalSearchWindowDays: localWindow,
		CRMSearchWindowDays:   crmWindow,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// CRMConfigured reports whether both CRM credentials are present; when false
// the locator and processors degrade to local-only operation.
func (c Config) CRMConfigured() bool {
	return c.CRMBaseURL != "" && c.CRMAPIKey != ""
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
