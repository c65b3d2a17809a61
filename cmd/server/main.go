package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskcore/internal/api"
	"riskcore/internal/api/handlers"
	"riskcore/internal/config"
	"riskcore/internal/exchange"
	"riskcore/internal/models"
	"riskcore/internal/repository"
	"riskcore/internal/risk"
	"riskcore/internal/websocket"
	"riskcore/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Логгер до всего остального: дальше все ошибки структурные
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	logger.Info("Connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	limitRepo := repository.NewLimitRepository(db)
	eventRepo := repository.NewRiskEventRepository(db)

	// WebSocket hub поднимается раньше ядра: callback'и ядра вещают
	// в него с первого события
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Доставка риск-событий: журнал в БД + broadcast подписчикам.
	// Ошибка записи не блокирует доставку - журнал догонит.
	eventCallback := func(event models.RiskEvent) {
		if err := eventRepo.Insert(&event); err != nil {
			logger.Error("Failed to persist risk event",
				utils.TenantID(event.TenantID),
				utils.EventType(event.EventType),
				utils.Err(err),
			)
		}
		hub.BroadcastRiskEvent(event)
	}

	// Защитные механизмы
	killSwitch := risk.NewKillSwitch(cfg.Risk.RapidLossThresholdPercent, logger)
	breaker := risk.NewCircuitBreaker(risk.BreakerConfig{
		FailureThreshold: cfg.Risk.BreakerFailureThreshold,
		Cooldown:         cfg.Risk.BreakerCooldown,
		SuccessQuota:     cfg.Risk.BreakerSuccessQuota,
	}, logger)
	drawdown := risk.NewDrawdownTracker(logger)
	volatility := risk.NewVolatilityGuard()

	// Ядро
	positions := risk.NewPositionStore(logger)
	portfolio := risk.NewPortfolioTracker()
	checker := risk.NewPreTradeChecker(killSwitch, breaker, limitRepo, drawdown, volatility, logger)
	updater := risk.NewPostTradeUpdater(positions, portfolio, drawdown, breaker, killSwitch, logger)

	// Пассивные пробои: submitter шлёт корректирующие ордера через
	// предохранитель (dry-run до подключения реального шлюза)
	safeguard := exchange.NewSafeguard(logger)
	submitter := exchange.NewGuardedSubmitter("default", safeguard, nil, logger)
	breachStore := risk.NewBreachStore()
	breachHandler := risk.NewPassiveBreachHandler(positions, limitRepo, breachStore, submitter, eventCallback, logger)

	postTradeCfg := &risk.PostTradeConfig{
		EnableProtectiveActions:   cfg.Risk.EnableProtectiveActions,
		RapidLossThresholdPercent: cfg.Risk.RapidLossThresholdPercent,
		RapidLossWindow:           cfg.Risk.RapidLossWindow,
	}
	breachCfg := &risk.BreachConfig{
		AutoReductionEnabled:   cfg.Risk.AutoReductionEnabled,
		ReductionTargetPercent: cfg.Risk.ReductionTargetPercent,
	}

	// Зависимости API
	deps := &api.Dependencies{
		RiskHandler:      handlers.NewRiskHandler(checker),
		ExecutionHandler: handlers.NewExecutionHandler(updater, postTradeCfg, eventCallback),
		PositionHandler:  handlers.NewPositionHandler(positions),
		LimitHandler:     handlers.NewLimitHandler(limitRepo),
		BreachHandler:    handlers.NewBreachHandler(breachHandler, breachStore, breachCfg),
		KillSwitchHandler: handlers.NewKillSwitchHandler(killSwitch, func(tenantID string, state *models.KillSwitchState) {
			hub.BroadcastKillSwitch(tenantID, state)
		}),
		EventHandler: handlers.NewEventHandler(eventRepo),
		Hub:          hub,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Периодическая проверка пассивных пробоев по сохранённым ценам
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runBreachSweep(sweepCtx, positions, breachHandler, breachCfg, cfg.Risk.BreachCheckInterval, logger)

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("Starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", utils.Err(err))
	}

	logger.Info("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runBreachSweep периодически прогоняет позиции всех тенантов через
// проверку пассивных пробоев.
//
// Снапшот цен строится из сохранённых рыночных стоимостей позиций
// (price = marketValue / quantity); позиции без стоимости
// пропускаются. Стоимости засеваются ценами из POST
// /api/v1/breaches/check - внешний фид даёт свежие цены, sweep лишь
// страховка от молчащего фида.
func runBreachSweep(
	ctx context.Context,
	positions *risk.PositionStore,
	handler *risk.PassiveBreachHandler,
	cfg *risk.BreachConfig,
	interval time.Duration,
	logger *utils.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, tenantID := range positions.Tenants() {
			tenantPositions, portfolioValue := positions.GetPositions(tenantID)

			priceMap := make(map[string]float64, len(tenantPositions))
			for _, pos := range tenantPositions {
				if pos.Quantity != 0 && pos.MarketValue != 0 {
					priceMap[pos.AssetID] = pos.MarketValue / pos.Quantity
				}
			}
			if len(priceMap) == 0 {
				continue
			}

			if _, err := handler.ProcessPassiveBreaches(tenantID, priceMap, portfolioValue, cfg); err != nil {
				logger.Error("Passive breach sweep failed",
					utils.TenantID(tenantID),
					utils.Err(err),
				)
			}
		}
	}
}
