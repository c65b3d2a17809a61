package exchange

import (
	"fmt"
	"strings"
)

// errors.go - категоризация ошибок бирж
//
// Биржи возвращают ошибки в разнородных форматах: числовые коды,
// HTTP статусы, текстовые сообщения. Для политики повторов наверху
// все они сводятся к пяти категориям.

// ErrorCategory - категория ошибки биржи
type ErrorCategory string

const (
	CategoryRetryable     ErrorCategory = "RETRYABLE"      // временная ошибка, повторить с backoff
	CategoryRateLimit     ErrorCategory = "RATE_LIMIT"     // превышен лимит запросов, ждать окно
	CategoryInvalidOrder  ErrorCategory = "INVALID_ORDER"  // ордер отклонён по параметрам, не повторять
	CategoryExchangeError ErrorCategory = "EXCHANGE_ERROR" // проблема на стороне биржи
	CategoryFatal         ErrorCategory = "FATAL"          // неклассифицированная ошибка, не повторять
)

// ExchangeError - ошибка от биржи в нормализованном виде
type ExchangeError struct {
	Exchange   string
	Code       string
	HTTPStatus int
	Message    string
	Original   error
}

func (e *ExchangeError) Error() string {
	if e.Exchange != "" {
		return fmt.Sprintf("%s: %s", e.Exchange, e.Message)
	}
	return e.Message
}

// Unwrap возвращает оригинальную ошибку для errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Retryable сообщает retry-пакету, допускает ли ошибка повтор.
//
// RATE_LIMIT и EXCHANGE_ERROR считаются повторяемыми: лимит сбросится,
// биржа поднимется. INVALID_ORDER и FATAL повторять бессмысленно.
func (e *ExchangeError) Retryable() bool {
	switch CategorizeError(e) {
	case CategoryRetryable, CategoryRateLimit, CategoryExchangeError:
		return true
	default:
		return false
	}
}

// Temporary - алиас Retryable для net-style проверок
func (e *ExchangeError) Temporary() bool {
	return e.Retryable()
}

// categoryRule - одно правило классификации.
//
// Правила проверяются строго в порядке объявления: порядок
// категорий поведенчески значим (RATE_LIMIT раньше INVALID_ORDER,
// INVALID_ORDER раньше EXCHANGE_ERROR, EXCHANGE_ERROR раньше
// RETRYABLE). Внутри правила сопоставление идёт: код ошибки,
// затем HTTP статус, затем подстроки сообщения.
type categoryRule struct {
	category ErrorCategory
	codes    []string
	statuses []int
	messages []string
}

var categoryRules = []categoryRule{
	{
		category: CategoryRateLimit,
		codes:    []string{"429", "-1003", "10006", "10018", "30007"},
		statuses: []int{429},
		messages: []string{"rate limit", "too many requests", "request limit", "frequency"},
	},
	{
		category: CategoryInvalidOrder,
		codes:    []string{"-2010", "-1013", "-1111", "110007", "110017", "51008"},
		statuses: []int{400},
		messages: []string{
			"invalid order", "insufficient balance", "insufficient funds",
			"min notional", "lot size", "tick size",
			"invalid quantity", "invalid price", "order would trigger",
		},
	},
	{
		category: CategoryExchangeError,
		codes:    []string{"-1001", "10002", "50001"},
		statuses: []int{500, 502, 503},
		messages: []string{
			"internal server error", "internal error", "service unavailable",
			"maintenance", "system busy", "server error",
		},
	},
	{
		category: CategoryRetryable,
		statuses: []int{408, 504},
		messages: []string{
			"timeout", "timed out", "connection reset", "connection refused",
			"temporarily", "network", "eof", "try again",
		},
	},
}

// CategorizeError классифицирует ошибку биржи в ErrorCategory.
//
// Непустые правила применяются в порядке объявления; если ни одно
// не совпало (или err == nil), возвращается FATAL - наверху это
// трактуется как "не повторять, эскалировать".
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return CategoryFatal
	}

	var code string
	var status int
	message := strings.ToLower(err.Error())

	if exErr, ok := err.(*ExchangeError); ok {
		code = exErr.Code
		status = exErr.HTTPStatus
		message = strings.ToLower(exErr.Message)
	}

	for _, rule := range categoryRules {
		if matchesRule(rule, code, status, message) {
			return rule.category
		}
	}
	return CategoryFatal
}

// matchesRule проверяет правило: код, затем статус, затем сообщение
func matchesRule(rule categoryRule, code string, status int, message string) bool {
	if code != "" {
		for _, c := range rule.codes {
			if code == c {
				return true
			}
		}
	}
	if status != 0 {
		for _, s := range rule.statuses {
			if status == s {
				return true
			}
		}
	}
	for _, m := range rule.messages {
		if strings.Contains(message, m) {
			return true
		}
	}
	return false
}
