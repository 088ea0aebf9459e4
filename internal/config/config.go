package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// service config, loaded once at startup
type Config struct {
	Port     string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI            string
	QuestionsDBName     string
	QuestionsCollection string
	SeedQuestions       bool

	Postgres PostgresConfig

	ExecProvider  string
	ExecEndpoint  string
	ExecAPIKey    string
	ExecAPISecret string
	SandboxURL    string
	ExecTimeout   time.Duration
	MaxCodeBytes  int

	GracePeriod time.Duration
	CORSOrigins []string

	RateLimitWindow time.Duration
	RateLimitMax    int

	ReaperSchedule string
	RoomIdleTTL    time.Duration
}

// audit database settings; an empty Host disables execution auditing
type PostgresConfig struct {
	Host     string
	User     string
	Password string
	DBName   string
	Port     string
	SSLMode  string
}

func (p PostgresConfig) Enabled() bool { return p.Host != "" }

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode)
}

var supportedProviders = map[string]bool{
	"":        true,
	"judge0":  true,
	"jdoodle": true,
	"sandbox": true,
}

// loads configuration from environment variables (and .env when present)
func LoadConfig() (*Config, error) {
	// a missing .env file is the normal case outside local development
	_ = godotenv.Load()

	config := &Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MongoURI:            getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		QuestionsDBName:     getEnvOrDefault("QUESTIONS_DB_NAME", "codesync"),
		QuestionsCollection: getEnvOrDefault("QUESTIONS_COLLECTION", "questions"),
		SeedQuestions:       getEnvBool("SEED_QUESTIONS", true),

		Postgres: PostgresConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnvOrDefault("POSTGRES_DB", "codesync"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		},

		ExecProvider:  strings.ToLower(strings.TrimSpace(os.Getenv("EXEC_PROVIDER"))),
		ExecEndpoint:  strings.TrimSpace(os.Getenv("EXEC_ENDPOINT")),
		ExecAPIKey:    os.Getenv("EXEC_API_KEY"),
		ExecAPISecret: os.Getenv("EXEC_API_SECRET"),
		SandboxURL:    getEnvOrDefault("SANDBOX_URL", "http://localhost:8090"),
		ExecTimeout:   getEnvDuration("EXEC_TIMEOUT", 15*time.Second),
		MaxCodeBytes:  getEnvInt("MAX_CODE_BYTES", 200_000),

		GracePeriod: time.Duration(getEnvInt("INTERVIEWER_END_GRACE_MS", 15000)) * time.Millisecond,
		CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),

		RateLimitWindow: getEnvDuration("EXEC_RATE_WINDOW", 60*time.Second),
		RateLimitMax:    getEnvInt("EXEC_RATE_LIMIT", 10),

		ReaperSchedule: getEnvOrDefault("ROOM_REAPER_SCHEDULE", "@every 10m"),
		RoomIdleTTL:    getEnvDuration("ROOM_IDLE_TTL", 6*time.Hour),
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if !supportedProviders[config.ExecProvider] {
		return errors.New("unsupported execution provider: " + config.ExecProvider + ". Currently supported: judge0, jdoodle, sandbox")
	}
	if config.GracePeriod < 0 {
		return errors.New("INTERVIEWER_END_GRACE_MS must not be negative")
	}
	if config.ExecTimeout <= 0 {
		return errors.New("EXEC_TIMEOUT must be positive")
	}
	if config.MaxCodeBytes <= 0 {
		return errors.New("MAX_CODE_BYTES must be positive")
	}
	if config.RateLimitMax <= 0 || config.RateLimitWindow <= 0 {
		return errors.New("EXEC_RATE_LIMIT and EXEC_RATE_WINDOW must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
