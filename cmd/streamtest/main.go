// streamtest connects to the Capital.com streaming endpoint and prints
// parsed quote events to the console. Useful for checking credentials and
// epic names before running the trader.
//
// Usage: go run ./cmd/streamtest --config configs/trader.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/DhruvalBhuva/trading-algo/internal/capital"
	"github.com/DhruvalBhuva/trading-algo/internal/config"
	"github.com/DhruvalBhuva/trading-algo/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/trader.yaml", "path to config file")
	duration := flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.DateTime,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *duration > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, *duration)
		defer tcancel()
	}

	apiClient := capital.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		cfg.API.Identifier,
		cfg.API.Password,
		capital.WithLogger(logger),
		capital.WithTimeout(cfg.API.Timeout),
	)

	if err := apiClient.Login(ctx); err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	logger.Info("session established", "epics", cfg.Strategy.Epics)

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

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			logger.Info("done", "ticks", ticks)
			return

		case ev, ok := <-session.Events():
			if !ok {
				logger.Info("session terminated", "ticks", ticks)
				return
			}

			switch {
			case ev.Fatal:
				logger.Error("fatal stream error", "error", ev.Err)
				os.Exit(1)
			case ev.Err != nil:
				logger.Warn("stream error", "error", ev.Err)
			case ev.Tick != nil:
				ticks++
				fmt.Printf("%s  %-12s bid=%-10.4f ofr=%-10.4f spread=%.4f\n",
					ev.Tick.Timestamp.Format("15:04:05.000"),
					ev.Tick.Epic,
					ev.Tick.Bid,
					ev.Tick.Ask,
					ev.Tick.Ask-ev.Tick.Bid,
				)
			case ev.State != "":
				logger.Info("state change", "state", ev.State)
			}
		}
	}
}
