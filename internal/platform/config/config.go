package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	ResetTokenTTL time.Duration

	PasswordMinLength    int
	PasswordRequireMixed bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MailQueueName      string
	MailLockKey        string
	MailLockTTLSeconds int
	MailDeliveryURL    string
	MailFromAddress    string
	ResetLinkBaseURL   string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:              getEnv("API_PORT", "8080"),
		JWTKey:               []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:               time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		ResetTokenTTL:        time.Duration(getEnvAsInt("RESET_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		PasswordMinLength:    getEnvAsInt("PASSWORD_MIN_LENGTH", 6),
		PasswordRequireMixed: getEnvAsBool("PASSWORD_REQUIRE_MIXED", true),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "user"),
		DBPassword:           getEnv("DB_PASSWORD", "password"),
		DBName:               getEnv("DB_NAME", "accounts_db"),
		DBSslMode:            getEnv("DB_SSLMODE", "disable"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		MailQueueName:        getEnv("MAIL_QUEUE_NAME", "reset_mail_queue"),
		MailLockKey:          getEnv("MAIL_LOCK_KEY", "reset_mail_lock"),
		MailLockTTLSeconds:   getEnvAsInt("MAIL_LOCK_TTL_SECONDS", 60),
		MailDeliveryURL:      getEnv("MAIL_DELIVERY_URL", "http://localhost:8025/api/send"),
		MailFromAddress:      getEnv("MAIL_FROM_ADDRESS", "no-reply@accounts.local"),
		ResetLinkBaseURL:     getEnv("RESET_LINK_BASE_URL", "http://localhost:3000/reset-password"),
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
