package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование (zap)
//
// Назначение:
// Единая инициализация логгера для всего риск-ядра. Каждое решение
// pre-trade проверки, post-trade обновления и пассивного пробоя
// логируется структурированно - это требование аудита, а не best-effort.
//
// Использование:
//
//	logger := utils.InitLogger(utils.LogConfig{Level: "info", Format: "json"})
//	logger.Info("order rejected", utils.TenantID("t-1"), utils.CheckType("KILL_SWITCH"))

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу, пусто = stderr
	Development bool   // человекочитаемые стектрейсы, DPanic паникует
}

// Logger оборачивает zap.Logger с доменными помощниками
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel разбирает строковый уровень логирования
//
// Неизвестные значения дают InfoLevel (безопасный дефолт).
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт и настраивает логгер
//
// Параметры по умолчанию: уровень info, формат json, вывод в stderr.
// При недоступном файле вывода происходит fallback на stderr без паники.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	// Выбираем вывод: файл или stderr
	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// При ошибке остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// With возвращает новый логгер с добавленными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{
		Logger: child,
		sugar:  child.Sugar(),
	}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithTenant возвращает логгер с полем tenant_id
func (l *Logger) WithTenant(tenantID string) *Logger {
	return l.With(TenantID(tenantID))
}

// WithAsset возвращает логгер с полем asset
func (l *Logger) WithAsset(assetID string) *Logger {
	return l.With(Asset(assetID))
}

// WithOrder возвращает логгер с полем order_id
func (l *Logger) WithOrder(orderID string) *Logger {
	return l.With(OrderID(orderID))
}

// Sugar возвращает SugaredLogger для printf-стиля
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный
// при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()

	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// Глобальные функции логирования

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

// Debugf логирует в printf-стиле
func Debugf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(format, args...)
}

// Infof логирует в printf-стиле
func Infof(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(format, args...)
}

// Warnf логирует в printf-стиле
func Warnf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(format, args...)
}

// Errorf логирует в printf-стиле
func Errorf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(format, args...)
}

// ============================================================
// Доменные конструкторы полей
// ============================================================

// TenantID - поле tenant_id
func TenantID(id string) zap.Field { return zap.String("tenant_id", id) }

// Asset - поле asset
func Asset(id string) zap.Field { return zap.String("asset", id) }

// Strategy - поле strategy
func Strategy(id string) zap.Field { return zap.String("strategy", id) }

// OrderID - поле order_id
func OrderID(id string) zap.Field { return zap.String("order_id", id) }

// CheckType - поле check
func CheckType(t string) zap.Field { return zap.String("check", t) }

// Side - поле side
func Side(s string) zap.Field { return zap.String("side", s) }

// Price - поле price
func Price(p float64) zap.Field { return zap.Float64("price", p) }

// Quantity - поле quantity
func Quantity(q float64) zap.Field { return zap.Float64("quantity", q) }

// Value - поле value (стоимость в валюте котировки)
func Value(v float64) zap.Field { return zap.Float64("value", v) }

// LimitID - поле limit_id
func LimitID(id int) zap.Field { return zap.Int("limit_id", id) }

// Severity - поле severity
func Severity(s string) zap.Field { return zap.String("severity", s) }

// EventType - поле event_type
func EventType(t string) zap.Field { return zap.String("event_type", t) }

// Exchange - поле exchange
func Exchange(name string) zap.Field { return zap.String("exchange", name) }

// Latency - поле latency_ms
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - поле request_id
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - поле component
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт базовых конструкторов zap, чтобы вызывающему коду
// не требовался прямой импорт zap

// String - строковое поле
func String(key, value string) zap.Field { return zap.String(key, value) }

// Int - целочисленное поле
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Int64 - поле int64
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

// Float64 - поле float64
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }

// Bool - булево поле
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

// Err - поле error
func Err(err error) zap.Field { return zap.Error(err) }

// Any - поле произвольного типа
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }
