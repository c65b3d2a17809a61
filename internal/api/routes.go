package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskcore/internal/api/handlers"
	"riskcore/internal/api/middleware"
	"riskcore/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	RiskHandler       *handlers.RiskHandler
	ExecutionHandler  *handlers.ExecutionHandler
	PositionHandler   *handlers.PositionHandler
	LimitHandler      *handlers.LimitHandler
	BreachHandler     *handlers.BreachHandler
	KillSwitchHandler *handlers.KillSwitchHandler
	EventHandler      *handlers.EventHandler
	Hub               *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /risk/
//	│   ├── POST /check - pre-trade проверка ордера
//	│   └── GET /allowed - разрешена ли торговля
//	├── /executions/
//	│   └── POST / - post-trade обработка исполнения
//	├── /reconcile/
//	│   └── POST / - сверка позиций с биржей
//	├── /positions/
//	│   └── GET / - позиции тенанта
//	├── /limits/
//	│   ├── GET / - лимиты тенанта
//	│   ├── POST / - создать лимит
//	│   ├── GET /{id} - получить лимит
//	│   ├── PATCH /{id} - изменить потолок
//	│   └── DELETE /{id} - удалить лимит
//	├── /breaches/
//	│   ├── POST /check - проверка пассивных пробоев
//	│   └── GET / - помеченные позиции
//	├── /reduction-orders/
//	│   └── GET / - корректирующие ордера
//	├── /killswitch/
//	│   ├── GET / - состояние выключателя
//	│   ├── POST /activate - остановить торговлю
//	│   └── POST /deactivate - возобновить торговлю
//	└── /events/
//	    └── GET / - журнал риск-событий
//
// /ws/events - WebSocket поток риск-событий
// /metrics   - Prometheus метрики
// /health    - health check
//
// Middleware применяется в порядке: Recovery → Logging → CORS.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api/v1").Subrouter()

	if deps.RiskHandler != nil {
		api.HandleFunc("/risk/check", deps.RiskHandler.CheckOrder).Methods("POST")
		api.HandleFunc("/risk/allowed", deps.RiskHandler.TradingAllowed).Methods("GET")
	}

	if deps.ExecutionHandler != nil {
		api.HandleFunc("/executions", deps.ExecutionHandler.ProcessExecution).Methods("POST")
		api.HandleFunc("/reconcile", deps.ExecutionHandler.Reconcile).Methods("POST")
	}

	if deps.PositionHandler != nil {
		api.HandleFunc("/positions", deps.PositionHandler.GetPositions).Methods("GET")
	}

	if deps.LimitHandler != nil {
		api.HandleFunc("/limits", deps.LimitHandler.GetLimits).Methods("GET")
		api.HandleFunc("/limits", deps.LimitHandler.CreateLimit).Methods("POST")
		api.HandleFunc("/limits/{id}", deps.LimitHandler.GetLimit).Methods("GET")
		api.HandleFunc("/limits/{id}", deps.LimitHandler.UpdateLimit).Methods("PATCH")
		api.HandleFunc("/limits/{id}", deps.LimitHandler.DeleteLimit).Methods("DELETE")
	}

	if deps.BreachHandler != nil {
		api.HandleFunc("/breaches/check", deps.BreachHandler.CheckBreaches).Methods("POST")
		api.HandleFunc("/breaches", deps.BreachHandler.GetFlagged).Methods("GET")
		api.HandleFunc("/reduction-orders", deps.BreachHandler.GetReductionOrders).Methods("GET")
	}

	if deps.KillSwitchHandler != nil {
		api.HandleFunc("/killswitch", deps.KillSwitchHandler.GetState).Methods("GET")
		api.HandleFunc("/killswitch/activate", deps.KillSwitchHandler.Activate).Methods("POST")
		api.HandleFunc("/killswitch/deactivate", deps.KillSwitchHandler.Deactivate).Methods("POST")
	}

	if deps.EventHandler != nil {
		api.HandleFunc("/events", deps.EventHandler.GetEvents).Methods("GET")
	}

	// WebSocket поток риск-событий
	if deps.Hub != nil {
		router.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return router
}
