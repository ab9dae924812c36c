package app

import (
	"log/slog"
	"os"

	"dipbot/internal/infra"
	"dipbot/internal/infra/binance"
	"dipbot/internal/infra/storage"
	"dipbot/internal/journal"
	"dipbot/internal/trader"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Journal  *journal.Journal
	Exchange *binance.Client
	Stream   *binance.Stream // nil unless binance.use_stream
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config and wires the infrastructure: logger,
// side store, trade journal and the exchange client.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping dipbot...")

	// 1. Load Config
	path := os.Getenv("DIPBOT_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Side store (tax events, daily summaries)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Trade journal (append-only CSV ledger)
	jnl, err := journal.New(cfg.Journal.Path)
	if err != nil {
		return err
	}
	b.Journal = jnl
	slog.Info("✅ Trade journal ready", slog.String("path", cfg.Journal.Path))

	// 5. Exchange client, optionally backed by the websocket stream
	b.Exchange = binance.NewClient(cfg.Binance.RestURL, cfg.Binance.APIKey, cfg.Binance.APISecret)
	if cfg.Binance.UseStream {
		b.Stream = binance.NewStream(cfg.Binance.WSURL, cfg.Trading.Symbols)
		b.Exchange.AttachStream(b.Stream)
	}

	return nil
}

// TraderConfig maps the file configuration to the control loop's.
func (b *Bootstrap) TraderConfig() trader.Config {
	cfg := b.Config
	return trader.Config{
		Symbols:          cfg.Trading.Symbols,
		QuoteAsset:       cfg.Trading.QuoteAsset,
		InvestmentAmount: cfg.Trading.InvestmentAmount,
		DipThreshold:     cfg.Trading.DipThreshold,
		RipThreshold:     cfg.Trading.RipThreshold,
		PollInterval:     cfg.PollInterval(),
		IdleInterval:     cfg.IdleInterval(),
		MinHold:          cfg.MinHold(),
		DrawdownLimit:    cfg.Trading.DrawdownLimit,
		AnchorResetEvery: cfg.AnchorResetInterval(),
		Retry: trader.RetryPolicy{
			MaxAttempts: cfg.Trading.MaxRetries,
			Delay:       cfg.RetryDelay(),
		},
	}
}
