// trader runs the real-time breakout bot: it streams quotes for the
// configured epics, aggregates them into candles, evaluates the breakout
// strategy on every close, and places at most one stop order per epic
// per trading day.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/DhruvalBhuva/trading-algo/internal/aggregator"
	"github.com/DhruvalBhuva/trading-algo/internal/capital"
	"github.com/DhruvalBhuva/trading-algo/internal/config"
	"github.com/DhruvalBhuva/trading-algo/internal/database"
	"github.com/DhruvalBhuva/trading-algo/internal/levels"
	"github.com/DhruvalBhuva/trading-algo/internal/metrics"
	"github.com/DhruvalBhuva/trading-algo/internal/model"
	"github.com/DhruvalBhuva/trading-algo/internal/store"
	"github.com/DhruvalBhuva/trading-algo/internal/strategy"
	"github.com/DhruvalBhuva/trading-algo/internal/stream"
	"github.com/DhruvalBhuva/trading-algo/internal/trader"
	"github.com/DhruvalBhuva/trading-algo/internal/version"
	"github.com/DhruvalBhuva/trading-algo/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/trader.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	logger.Info("starting trader",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	resolution, err := aggregator.ParseResolution(cfg.Strategy.Resolution)
	if err != nil {
		logger.Error("invalid resolution", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"epics", cfg.Strategy.Epics,
		"resolution", resolution,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, resolution, logger); err != nil {
		logger.Error("trader failed", "error", err)
		os.Exit(1)
	}

	logger.Info("trader stopped")
}

func run(ctx context.Context, cfg *config.TraderConfig, resolution aggregator.Resolution, logger *slog.Logger) error {
	// REST client and session login.
	apiClient := capital.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		cfg.API.Identifier,
		cfg.API.Password,
		capital.WithLogger(logger),
		capital.WithTimeout(cfg.API.Timeout),
		capital.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	if err := apiClient.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	logger.Info("session established")

	account, err := apiClient.AccountByID(ctx, cfg.API.AccountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	logger.Info("account loaded",
		"account_id", account.AccountID,
		"balance", account.Balance,
		"currency", account.Currency,
	)

	// Filesystem sinks.
	fs := afero.NewOsFs()
	levelsSvc := levels.NewService(apiClient, fs, cfg.Storage.DataDir+"/levels", logger)
	levelsSvc.Warm(ctx, cfg.Strategy.Epics, time.Now().UTC())

	candleStore := store.NewCandleStore(fs, cfg.Storage.DataDir+"/candles", resolution.String(), logger)
	tradeBook := store.NewTradeBook(fs, cfg.Storage.TradeBookPath, logger)

	// Optional database mirror.
	var (
		pool     *pgxpool.Pool
		candleCh chan model.Candle
		tradeCh  chan model.TradeRecord
	)
	if cfg.Database.Enabled {
		pool, err = database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		logger.Info("database connected", "host", cfg.Database.Timescale.Host)

		candleCh = make(chan model.Candle, cfg.Writers.BufferSize)
		tradeCh = make(chan model.TradeRecord, cfg.Writers.BufferSize)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	strat := strategy.New(strategy.Config{
		RiskPercent:  cfg.Strategy.RiskPercent,
		TPPips:       cfg.Strategy.TPPips,
		PipSize:      cfg.Strategy.PipSize,
		ContractSize: cfg.Strategy.ContractSize,
		Balance:      account.Balance,
	}, levelsSvc, logger)

	agg := aggregator.New(resolution, logger)

	session := stream.NewSession(stream.Config{
		URL:              cfg.API.StreamURL,
		ReconnectDelay:   cfg.Stream.ReconnectDelay,
		PingInterval:     cfg.Stream.PingInterval,
		PongWait:         cfg.Stream.PongWait,
		SubscribeDelay:   cfg.Stream.SubscribeDelay,
		SubscribeTimeout: cfg.Stream.SubscribeTimeout,
		WriteTimeout:     5 * time.Second,
		BufferSize:       cfg.Stream.BufferSize,
	}, cfg.Strategy.Epics, apiClient, logger)

	engine := trader.New(trader.Config{
		Resolution:   resolution.String(),
		StrategyName: "breakout_" + resolution.String(),
	}, trader.Deps{
		Events:     session.Events(),
		Aggregator: agg,
		Strategy:   strat,
		Gateway:    apiClient,
		Candles:    candleStore,
		Trades:     tradeBook,
		CandleDB:   candleCh,
		TradeDB:    tradeCh,
		Metrics:    m,
	}, logger)

	// Writers only run with a database attached.
	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	var candleWriter *writer.CandleWriter
	var tradeWriter *writer.TradeWriter
	if pool != nil {
		candleWriter = writer.NewCandleWriter(writerCfg, resolution.String(), candleCh, pool, logger)
		tradeWriter = writer.NewTradeWriter(writerCfg, tradeCh, pool, logger)

		if err := candleWriter.Start(ctx); err != nil {
			return fmt.Errorf("start candle writer: %w", err)
		}
		if err := tradeWriter.Start(ctx); err != nil {
			return fmt.Errorf("start trade writer: %w", err)
		}
	}

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: healthHandler(cfg, session, agg, strat, reg, pool),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")
		session.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if candleWriter != nil {
			candleWriter.Stop(shutdownCtx)
		}
		if tradeWriter != nil {
			tradeWriter.Stop(shutdownCtx)
		}
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// healthHandler serves /health plus the Prometheus metrics endpoint.
func healthHandler(cfg *config.TraderConfig, session *stream.Session, agg *aggregator.Aggregator, strat *strategy.Breakout, reg *prometheus.Registry, pool *pgxpool.Pool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		state := session.State()
		health.Components["stream"] = string(state)
		if state != stream.StateSubscribed {
			health.Status = "degraded"
		}

		stats := agg.Stats()
		health.Components["aggregator"] = map[string]int64{
			"ticks_processed": stats.TicksProcessed,
			"candles_closed":  stats.CandlesClosed,
		}

		setups := make(map[string]interface{}, len(cfg.Strategy.Epics))
		for _, epic := range cfg.Strategy.Epics {
			if status, ok := strat.Status(epic); ok {
				setups[epic] = map[string]interface{}{
					"locked":    status.Locked,
					"has_c1":    status.HasC1,
					"has_c2":    status.HasC2,
					"direction": string(status.Direction),
				}
			}
		}
		health.Components["strategy"] = setups

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["timescaledb"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}
