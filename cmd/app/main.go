package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dipbot/internal/app"
	"dipbot/internal/infra/telegram"
	"dipbot/internal/trader"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 2. Metrics + pprof side server (localhost only)
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		slog.Info("🕵️ Metrics server started", slog.String("addr", cfg.Metrics.Addr))
		if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Price stream (optional)
	if bootstrap.Stream != nil {
		if err := bootstrap.Stream.Connect(ctx); err != nil {
			slog.Error("Failed to start price stream", slog.Any("error", err))
		}
		defer bootstrap.Stream.Disconnect()
	}

	// 5. Control loop + operator bot. The bot's /shutdown cancels the
	// same context as SIGTERM.
	tr := trader.NewTrader(bootstrap.TraderConfig(), bootstrap.Exchange, bootstrap.Journal, bootstrap.Storage)

	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatID, tr, bootstrap.Journal, bootstrap.Storage, stop)
	if err != nil {
		slog.Error("❌ Telegram bot failed", slog.Any("error", err))
		os.Exit(1)
	}
	tr.SetNotifier(bot)

	go tr.Run(ctx)
	slog.InfoContext(ctx, "✅ Control loop started", slog.Bool("autostart", cfg.Trading.Autostart))

	if cfg.Trading.Autostart {
		tr.Start()
	}

	go func() {
		if err := bot.Run(ctx); err != nil {
			// Crash alert: one best-effort notification before the bot dies.
			slog.Error("Operator bot crashed", slog.Any("error", err))
			bot.Notify(fmt.Sprintf("🚨 Bot crashed with error:\n%v", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ dipbot fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
}
