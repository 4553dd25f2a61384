package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	APIPort          string
	JWTKey           []byte
	JWTExp           time.Duration
	AdminSignupToken string

	StoreDriver   string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSslMode     string
	DBConnStr     string
	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EvaluationQueueName      string
	EvaluationLockPrefix     string
	EvaluationLockTTLSeconds int
	EvaluationWorkerEnabled  bool

	ExecutorURL            string
	ExecutorTimeoutSeconds int
	WebhookSecret          string

	RabbitMQURI          string
	NotificationExchange string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:          getEnv("API_PORT", "8080"),
		JWTKey:           []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:           time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		AdminSignupToken: getEnv("ADMIN_SIGNUP_TOKEN", ""),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "user"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "examforge"),
		DBSslMode:     getEnv("DB_SSLMODE", "disable"),
		DBAutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		EvaluationQueueName:      getEnv("EVALUATION_QUEUE_NAME", "evaluation_jobs_queue"),
		EvaluationLockPrefix:     getEnv("EVALUATION_LOCK_PREFIX", "evaluation_lock:"),
		EvaluationLockTTLSeconds: getEnvAsInt("EVALUATION_LOCK_TTL_SECONDS", 300),
		EvaluationWorkerEnabled:  getEnvAsBool("EVALUATION_WORKER_ENABLED", true),

		ExecutorURL:            getEnv("EXECUTOR_URL", ""),
		ExecutorTimeoutSeconds: getEnvAsInt("EXECUTOR_TIMEOUT_SECONDS", 30),
		WebhookSecret:          getEnv("WEBHOOK_SECRET", ""),

		RabbitMQURI:          getEnv("RABBITMQ_URI", ""),
		NotificationExchange: getEnv("NOTIFICATION_EXCHANGE", "examforge.events"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
