// SPDX-License-Identifier: Apache-2.0

// Package config reads process settings from the environment. A .env file in
// the working directory is loaded first when present; variables already set
// in the environment win.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	Env         string
	DatabaseURL string
	AutoMigrate bool
	AdminToken  string

	SessionCapacity   int
	SessionTTL        time.Duration
	SessionsPerMinute int

	JournalBuffer        int
	JournalRetention     time.Duration
	JournalPurgeSchedule string

	RunWebhookURL    string
	RunWebhookSecret string
}

// Load never fails; malformed values fall back to their defaults. An empty
// DATABASE_URL keeps the run journal in memory.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Env:         getenv("ENV", "dev"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AutoMigrate: getenvBool("AUTO_MIGRATE", true),
		AdminToken:  strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),

		SessionCapacity:   getenvInt("SESSION_CAPACITY", 256),
		SessionTTL:        getenvDuration("SESSION_TTL", 30*time.Minute),
		SessionsPerMinute: getenvInt("SESSIONS_PER_MINUTE", 30),

		JournalBuffer:        getenvInt("JOURNAL_BUFFER", 256),
		JournalRetention:     getenvDuration("JOURNAL_RETENTION", 7*24*time.Hour),
		JournalPurgeSchedule: getenv("JOURNAL_PURGE_SCHEDULE", "@hourly"),

		RunWebhookURL:    strings.TrimSpace(os.Getenv("RUN_WEBHOOK_URL")),
		RunWebhookSecret: os.Getenv("RUN_WEBHOOK_SECRET"),
	}
}

func getenv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v != "" {
		return v
	}
	return defaultValue
}

func getenvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getenvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getenv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
