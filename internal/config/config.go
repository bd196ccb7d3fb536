package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Канал Redis Pub/Sub для событий жизненного цикла инцидентов
	EventChannel string `env:"EVENT_CHANNEL" envDefault:"incident_events"`

	// Geo Discovery Config
	DefaultSearchRadiusKm float64 `env:"DEFAULT_SEARCH_RADIUS_KM" envDefault:"10"`

	// Routing Config (внешний OSRM-совместимый сервис)
	RoutingBaseURL string        `env:"ROUTING_BASE_URL" envDefault:"https://router.project-osrm.org"`
	RoutingTimeout time.Duration `env:"ROUTING_TIMEOUT" envDefault:"10s"`

	// SMS Bridge Config (исходящие уведомления репортёрам с телефона)
	SMSGatewayURL string        `env:"SMS_GATEWAY_URL"`
	SMSSecret     string        `env:"SMS_GATEWAY_SECRET"`
	SMSTimeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"5s"`
	SMSMaxRetries int           `env:"SMS_MAX_RETRIES" envDefault:"3"`
	SMSBaseDelay  time.Duration `env:"SMS_BASE_DELAY" envDefault:"1s"`

	// Allow-list операторов спасательных организаций
	OperatorEmails []string `env:"OPERATOR_EMAILS"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		EventChannel:          getEnv("EVENT_CHANNEL", "incident_events"),
		DefaultSearchRadiusKm: getEnvAsFloat("DEFAULT_SEARCH_RADIUS_KM", 10),
		RoutingBaseURL:        getEnv("ROUTING_BASE_URL", "https://router.project-osrm.org"),
		RoutingTimeout:        getEnvAsDuration("ROUTING_TIMEOUT", 10*time.Second),
		SMSGatewayURL:         os.Getenv("SMS_GATEWAY_URL"),
		SMSSecret:             os.Getenv("SMS_GATEWAY_SECRET"),
		SMSTimeout:            getEnvAsDuration("SMS_TIMEOUT", 5*time.Second),
		SMSMaxRetries:         getEnvAsInt("SMS_MAX_RETRIES", 3),
		SMSBaseDelay:          getEnvAsDuration("SMS_BASE_DELAY", time.Second),
		OperatorEmails:        getEnvAsList("OPERATOR_EMAILS"),
		APIKeys:               getEnvAsList("API_KEYS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat возвращает значение переменной окружения как float64 или значение по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

// getEnvAsList разбирает значение переменной окружения как список через запятую
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
