package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Risk     RiskConfig
	Exchange ExchangeConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// RiskConfig - пороги и интервалы риск-ядра
type RiskConfig struct {
	// Kill switch: процент быстрого убытка, активирующий автотриггер
	RapidLossThresholdPercent float64
	RapidLossWindow           time.Duration

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	BreakerSuccessQuota     int

	// Пассивные breach'и
	BreachCheckInterval    time.Duration
	AutoReductionEnabled   bool
	ReductionTargetPercent float64

	// Post-trade защитные действия
	EnableProtectiveActions bool
}

// ExchangeConfig - параметры взаимодействия с биржами
type ExchangeConfig struct {
	// RateLimitBufferPercent - доля лимита, резервируемая под
	// критические операции (сокращение позиций)
	RateLimitBufferPercent float64

	// Таймаут запроса позиций биржи перед сверкой
	ReconcileTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "riskcore"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Risk: RiskConfig{
			RapidLossThresholdPercent: getEnvAsFloat("RAPID_LOSS_THRESHOLD_PERCENT", 5),
			RapidLossWindow:           getEnvAsDuration("RAPID_LOSS_WINDOW", 5*time.Minute),

			BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerCooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 5*time.Minute),
			BreakerSuccessQuota:     getEnvAsInt("BREAKER_SUCCESS_QUOTA", 3),

			BreachCheckInterval:    getEnvAsDuration("BREACH_CHECK_INTERVAL", 30*time.Second),
			AutoReductionEnabled:   getEnvAsBool("AUTO_REDUCTION_ENABLED", false),
			ReductionTargetPercent: getEnvAsFloat("REDUCTION_TARGET_PERCENT", 80),

			EnableProtectiveActions: getEnvAsBool("ENABLE_PROTECTIVE_ACTIONS", true),
		},
		Exchange: ExchangeConfig{
			RateLimitBufferPercent: getEnvAsFloat("RATE_LIMIT_BUFFER_PERCENT", 10),
			ReconcileTimeout:       getEnvAsDuration("RECONCILE_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет числовые диапазоны параметров
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Risk.RapidLossThresholdPercent <= 0 || c.Risk.RapidLossThresholdPercent > 100 {
		return fmt.Errorf("RAPID_LOSS_THRESHOLD_PERCENT must be in (0, 100], got %v", c.Risk.RapidLossThresholdPercent)
	}

	if c.Risk.RapidLossWindow <= 0 {
		return fmt.Errorf("RAPID_LOSS_WINDOW must be positive, got %v", c.Risk.RapidLossWindow)
	}

	if c.Risk.BreakerFailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.Risk.BreakerFailureThreshold)
	}

	if c.Risk.BreakerSuccessQuota < 1 {
		return fmt.Errorf("BREAKER_SUCCESS_QUOTA must be at least 1, got %d", c.Risk.BreakerSuccessQuota)
	}

	if c.Risk.ReductionTargetPercent <= 0 || c.Risk.ReductionTargetPercent > 100 {
		return fmt.Errorf("REDUCTION_TARGET_PERCENT must be in (0, 100], got %v", c.Risk.ReductionTargetPercent)
	}

	if c.Risk.BreachCheckInterval <= 0 {
		return fmt.Errorf("BREACH_CHECK_INTERVAL must be positive, got %v", c.Risk.BreachCheckInterval)
	}

	if c.Exchange.RateLimitBufferPercent < 0 || c.Exchange.RateLimitBufferPercent >= 100 {
		return fmt.Errorf("RATE_LIMIT_BUFFER_PERCENT must be in [0, 100), got %v", c.Exchange.RateLimitBufferPercent)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
