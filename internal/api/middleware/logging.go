package middleware

import (
	"net/http"
	"time"

	"riskcore/pkg/utils"
)

// responseWriter оборачивает http.ResponseWriter для захвата
// статус-кода и размера ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging - middleware для структурированного логирования HTTP запросов
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		utils.L().Info("HTTP request",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.Latency(utils.SinceMs(start)),
			utils.String("remote_addr", r.RemoteAddr),
			utils.Int("response_bytes", int(wrapped.written)),
		)
	})
}
