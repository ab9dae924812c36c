// Package trader implements the unattended trading control loop:
// per-symbol dip/rip state machines, the daily drawdown breaker and
// trade journaling. The loop owns all mutable trading state; the
// operator surface only calls Start/Pause/Resume/Status.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dipbot/internal/domain"
	"dipbot/internal/infra"

	"github.com/shopspring/decimal"
)

const historyCap = 240 // recent prices kept per symbol for charting

// Config holds the trading parameters, validated at startup.
type Config struct {
	Symbols          []string
	QuoteAsset       string
	InvestmentAmount decimal.Decimal
	DipThreshold     decimal.Decimal
	RipThreshold     decimal.Decimal
	PollInterval     time.Duration
	IdleInterval     time.Duration
	MinHold          time.Duration
	DrawdownLimit    decimal.Decimal
	AnchorResetEvery time.Duration // 0 = track the live price continuously while flat
	Retry            RetryPolicy
}

// SummaryStore persists closed trading days. Optional.
type SummaryStore interface {
	SaveDailySummary(day string, tradeCount int, netQuoteDelta decimal.Decimal) error
}

// PositionStatus is one symbol's state as reported to the operator.
type PositionStatus struct {
	Symbol         string
	State          string
	ReferencePrice decimal.Decimal
	EntryPrice     decimal.Decimal
	HeldFor        time.Duration
}

// Status is the operator-facing view of the loop.
type Status struct {
	Running         bool
	PausedByBreaker bool
	Baseline        decimal.Decimal
	Positions       []PositionStatus
}

// Trader runs the control loop. One instance per process.
type Trader struct {
	cfg      Config
	log      *slog.Logger
	exchange domain.Exchange
	notifier domain.Notifier
	journal  domain.TradeJournal
	store    SummaryStore

	breaker *Breaker
	clock   func() time.Time

	mu              sync.Mutex
	running         bool
	pausedByBreaker bool
	positions       map[string]*domain.Position
	history         map[string][]decimal.Decimal
}

// NewTrader wires the loop to its collaborators. store may be nil;
// the notifier defaults to a no-op until SetNotifier is called.
func NewTrader(cfg Config, exchange domain.Exchange, journal domain.TradeJournal, store SummaryStore) *Trader {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Trader{
		cfg:       cfg,
		log:       slog.Default().With("module", "trader"),
		exchange:  exchange,
		notifier:  noopNotifier{},
		journal:   journal,
		store:     store,
		breaker:   NewBreaker(cfg.DrawdownLimit),
		clock:     time.Now,
		positions: make(map[string]*domain.Position),
		history:   make(map[string][]decimal.Decimal),
	}
}

// SetNotifier replaces the notifier. Call before Run.
func (t *Trader) SetNotifier(n domain.Notifier) {
	if n != nil {
		t.notifier = n
	}
}

// Start activates trading. Returns false if already running.
func (t *Trader) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	t.running = true
	t.pausedByBreaker = false
	infra.MetricRunning.Set(1)
	t.log.Info("🚀 trading started")
	return true
}

// Pause suspends trading. The loop keeps polling at the idle cadence.
func (t *Trader) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return false
	}
	t.running = false
	infra.MetricRunning.Set(0)
	t.log.Info("⏸ trading paused")
	return true
}

// Resume is Start under another name; the operator uses it after a
// manual pause or a breaker trip. Only the operator can resume a
// breaker pause.
func (t *Trader) Resume() bool {
	return t.Start()
}

// Status reports the loop and per-symbol position state.
func (t *Trader) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	st := Status{
		Running:         t.running,
		PausedByBreaker: t.pausedByBreaker,
		Baseline:        t.breaker.Baseline(),
	}
	for _, sym := range t.cfg.Symbols {
		pos, ok := t.positions[sym]
		if !ok {
			continue
		}
		ps := PositionStatus{
			Symbol:         pos.Symbol,
			State:          pos.State,
			ReferencePrice: pos.ReferencePrice,
			EntryPrice:     pos.EntryPrice,
		}
		if pos.Holding() {
			ps.HeldFor = now.Sub(pos.EntryTime)
		}
		st.Positions = append(st.Positions, ps)
	}
	return st
}

// PriceHistory returns the recent prices observed for a symbol,
// oldest first.
func (t *Trader) PriceHistory(symbol string) []decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.history[symbol]
	out := make([]decimal.Decimal, len(src))
	copy(out, src)
	return out
}

// Run executes the control loop until ctx is cancelled. While not
// running it sleeps the short idle interval so an operator resume is
// observed promptly. A single bad cycle never kills the loop.
func (t *Trader) Run(ctx context.Context) {
	t.log.Info("control loop started",
		slog.Int("symbols", len(t.cfg.Symbols)),
		slog.Duration("poll_interval", t.cfg.PollInterval),
	)
	for {
		if !t.isRunning() {
			if !sleepCtx(ctx, t.cfg.IdleInterval) {
				break
			}
			continue
		}

		t.runCycle(ctx)

		if ctx.Err() != nil {
			break
		}
		if !sleepCtx(ctx, t.cfg.PollInterval) {
			break
		}
	}
	t.log.Info("👋 control loop stopped")
}

// runCycle is one iteration: rollover, balance, breaker, then each
// symbol independently. Panics are recovered here so the loop
// survives any unclassified failure.
func (t *Trader) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			infra.MetricCycleErrors.Inc()
			t.log.Error("trading cycle panic recovered", slog.Any("panic", r))
			t.notifier.Notify(fmt.Sprintf("🚨 Recovered from unexpected error: %v", r))
		}
	}()

	balance, err := callWithRetry(ctx, t.log, "fetch balance", t.cfg.Retry, t.quoteBalance)
	if err != nil {
		// Can't judge risk blind: skip this cycle's trading, stay running.
		t.log.Warn("balance fetch failed, skipping cycle", slog.Any("error", err))
		return
	}
	infra.MetricQuoteBalance.Set(balance.InexactFloat64())

	now := t.clock()
	switch {
	case !t.breaker.Seeded():
		t.breaker.Seed(now, balance)
		t.log.Info("risk baseline captured", slog.String("balance", balance.String()))
	case t.breaker.NewDay(now):
		t.rollDay(now, balance)
	}

	if t.breaker.Breached(balance) {
		t.tripBreaker(balance)
		return
	}

	for _, sym := range t.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := t.evaluateSymbol(ctx, sym); err != nil {
			// One symbol's failure never aborts its siblings.
			t.log.Error("symbol evaluation failed", slog.String("symbol", sym), slog.Any("error", err))
			t.notifier.Notify(fmt.Sprintf("⚠️ %s: %v", sym, err))
		}
	}
}

// rollDay closes the previous day: summary notification, persisted
// summary row, then a fresh baseline. Rolling never clears a pause.
func (t *Trader) rollDay(now time.Time, balance decimal.Decimal) {
	prev := t.breaker.DayStart()
	sum, err := t.journal.Summarize(prev)
	if err != nil {
		t.log.Error("daily summary failed", slog.Any("error", err))
	} else {
		day := prev.Format("2006-01-02")
		t.notifier.Notify(fmt.Sprintf("📊 Daily summary %s: %d trades, net %s %s",
			day, sum.TradeCount, sum.NetQuoteDelta.StringFixed(2), t.cfg.QuoteAsset))
		if t.store != nil {
			if err := t.store.SaveDailySummary(day, sum.TradeCount, sum.NetQuoteDelta); err != nil {
				t.log.Error("failed to persist daily summary", slog.Any("error", err))
			}
		}
	}
	t.breaker.Roll(now, balance)
	t.log.Info("risk baseline rolled",
		slog.String("day", dayOf(now).Format("2006-01-02")),
		slog.String("baseline", balance.String()),
	)
}

func (t *Trader) tripBreaker(balance decimal.Decimal) {
	t.mu.Lock()
	t.running = false
	t.pausedByBreaker = true
	t.mu.Unlock()

	infra.MetricRunning.Set(0)
	infra.MetricBreakerTrips.Inc()
	t.log.Warn("daily drawdown limit breached",
		slog.String("balance", balance.String()),
		slog.String("baseline", t.breaker.Baseline().String()),
	)
	t.notifier.Notify(fmt.Sprintf("🛑 Daily drawdown limit hit: balance %s below baseline %s. Trading paused. Use /resume to continue.",
		balance.StringFixed(2), t.breaker.Baseline().StringFixed(2)))
}

// evaluateSymbol observes one price and drives that symbol's state
// machine. An order that fails after retries leaves the position
// untouched.
func (t *Trader) evaluateSymbol(ctx context.Context, symbol string) error {
	price, err := callWithRetry(ctx, t.log, "fetch ticker "+symbol, t.cfg.Retry,
		func(ctx context.Context) (decimal.Decimal, error) {
			return t.exchange.FetchTicker(ctx, symbol)
		})
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("non-positive price %s", price)
	}

	now := t.clock()

	t.mu.Lock()
	pos, ok := t.positions[symbol]
	if !ok {
		pos = domain.NewPosition(symbol, price, now)
		t.positions[symbol] = pos
	}
	t.recordPriceLocked(symbol, price)
	t.mu.Unlock()

	switch {
	case pos.ShouldBuy(price, t.cfg.DipThreshold):
		return t.enterPosition(ctx, pos, price)
	case pos.ShouldSell(price, t.cfg.RipThreshold, t.cfg.MinHold, now):
		return t.exitPosition(ctx, pos, price)
	default:
		t.mu.Lock()
		pos.TrackReference(price, now, t.cfg.AnchorResetEvery)
		t.mu.Unlock()
	}
	return nil
}

// enterPosition commits FLAT -> HOLDING: buy, journal, notify. The
// state only changes after the order succeeded.
func (t *Trader) enterPosition(ctx context.Context, pos *domain.Position, price decimal.Decimal) error {
	symbol := pos.Symbol
	amount := t.cfg.InvestmentAmount.Div(price)

	res, err := callWithRetry(ctx, t.log, "create buy order "+symbol, t.cfg.Retry,
		func(ctx context.Context) (domain.OrderResult, error) {
			// A shutdown arriving mid-placement must not abort the
			// request: the exchange could accept an order the journal
			// never sees. Retry sleeps stay cancellable.
			return t.exchange.CreateOrder(context.WithoutCancel(ctx), symbol, domain.SideBuy, amount, price)
		})
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}

	filled := res.FilledAmount
	if filled.IsZero() {
		filled = amount
	}
	now := t.clock()

	t.mu.Lock()
	pos.EnterHold(price, now)
	t.mu.Unlock()

	rec := domain.NewTradeRecord(now, symbol, domain.SideBuy, price, filled, res.Fee)
	if err := t.journal.Append(rec); err != nil {
		t.log.Error("journal append failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
	infra.MetricOrders.WithLabelValues("buy").Inc()

	t.log.Info("position opened",
		slog.String("symbol", symbol),
		slog.String("price", price.String()),
		slog.String("amount", filled.String()),
	)
	t.notifier.Notify(fmt.Sprintf("✅ BUY %s: %s @ %s (dip from %s)",
		symbol, filled.String(), price.String(), pos.ReferencePrice.String()))
	return nil
}

// exitPosition commits HOLDING -> FLAT: sell the full free base
// balance, journal, notify.
func (t *Trader) exitPosition(ctx context.Context, pos *domain.Position, price decimal.Decimal) error {
	symbol := pos.Symbol
	base := baseAsset(symbol)

	balances, err := callWithRetry(ctx, t.log, "fetch balance "+base, t.cfg.Retry, t.exchange.FetchBalance)
	if err != nil {
		return fmt.Errorf("sell: %w", err)
	}
	free := balances[base].Free
	if !free.IsPositive() {
		return fmt.Errorf("sell %s: %w: no free %s", symbol, domain.ErrInsufficientBalance, base)
	}

	res, err := callWithRetry(ctx, t.log, "create sell order "+symbol, t.cfg.Retry,
		func(ctx context.Context) (domain.OrderResult, error) {
			// Same shutdown shielding as the buy side.
			return t.exchange.CreateOrder(context.WithoutCancel(ctx), symbol, domain.SideSell, free, price)
		})
	if err != nil {
		return fmt.Errorf("sell: %w", err)
	}

	filled := res.FilledAmount
	if filled.IsZero() {
		filled = free
	}
	now := t.clock()
	entry := pos.EntryPrice

	t.mu.Lock()
	pos.ExitHold(price, now)
	t.mu.Unlock()

	rec := domain.NewTradeRecord(now, symbol, domain.SideSell, price, filled, res.Fee)
	if err := t.journal.Append(rec); err != nil {
		t.log.Error("journal append failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
	infra.MetricOrders.WithLabelValues("sell").Inc()

	t.log.Info("position closed",
		slog.String("symbol", symbol),
		slog.String("entry", entry.String()),
		slog.String("exit", price.String()),
	)
	t.notifier.Notify(fmt.Sprintf("💰 SELL %s: %s @ %s (entry %s)",
		symbol, filled.String(), price.String(), entry.String()))
	return nil
}

// quoteBalance fetches the total quote-currency balance.
func (t *Trader) quoteBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := t.exchange.FetchBalance(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return balances[t.cfg.QuoteAsset].Total, nil
}

func (t *Trader) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// recordPriceLocked keeps a bounded price history per symbol for the
// operator chart. Caller holds t.mu.
func (t *Trader) recordPriceLocked(symbol string, price decimal.Decimal) {
	h := append(t.history[symbol], price)
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	t.history[symbol] = h
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// baseAsset extracts the base half of a pair like "BTC/USDT".
func baseAsset(symbol string) string {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return symbol[:i]
		}
	}
	return symbol
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}
