package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string
	JWTSecret  string
	JWTExpiry  time.Duration

	StoreDriver  string
	SQLitePath   string
	StoreTimeout time.Duration

	SchedulerInterval time.Duration
	ExpanderWorkers   int
	Timezone          string

	TriggerDefaultsPath string
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "temple_user"),
		DBPassword: getEnv("DB_PASSWORD", "temple_pass"),
		DBName:     getEnv("DB_NAME", "templeops_db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", "supersecretkey"),
		JWTExpiry:  time.Duration(getInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,

		StoreDriver:  getEnv("STORE_DRIVER", DriverPostgres),
		SQLitePath:   getEnv("SQLITE_PATH", "templeops.db"),
		StoreTimeout: getDuration("STORE_TIMEOUT", 3*time.Second),

		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", time.Minute),
		ExpanderWorkers:   getInt("EXPANDER_WORKERS", 8),
		Timezone:          getEnv("TIMEZONE", "Asia/Kolkata"),

		TriggerDefaultsPath: getEnv("TRIGGER_DEFAULTS_PATH", ""),
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("⚠️  Unknown TIMEZONE %q, using UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, raw, defaultVal)
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %s", key, raw, defaultVal)
		return defaultVal
	}
	return d
}
