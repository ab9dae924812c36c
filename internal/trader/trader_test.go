package trader

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dipbot/internal/domain"
	"dipbot/internal/journal"

	"github.com/shopspring/decimal"
)

// ======================================================================================
// Fakes
// ======================================================================================

type placedOrder struct {
	Symbol string
	Side   string
	Amount decimal.Decimal
	Price  decimal.Decimal
}

type fakeExchange struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	tickerErr  map[string]error
	balances   map[string]domain.AssetBalance
	balanceErr error
	orderErr   error
	orders     []placedOrder
	onOrder    func(ctx context.Context) // observes the order call, set before use
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		prices:    make(map[string]decimal.Decimal),
		tickerErr: make(map[string]error),
		balances:  map[string]domain.AssetBalance{"USDT": {Total: d("1000"), Free: d("1000")}},
	}
}

func (f *fakeExchange) setPrice(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = d(price)
}

func (f *fakeExchange) setBalance(asset, total, free string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[asset] = domain.AssetBalance{Total: d(total), Free: d(free)}
}

func (f *fakeExchange) FetchTicker(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tickerErr[symbol]; err != nil {
		return decimal.Decimal{}, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, domain.NewFatalExchangeError("fetch ticker", domain.ErrInvalidSymbol)
	}
	return price, nil
}

func (f *fakeExchange) FetchBalance(_ context.Context) (map[string]domain.AssetBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	out := make(map[string]domain.AssetBalance, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, symbol, side string, amount, price decimal.Decimal) (domain.OrderResult, error) {
	if f.onOrder != nil {
		f.onOrder(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return domain.OrderResult{}, f.orderErr
	}
	f.orders = append(f.orders, placedOrder{Symbol: symbol, Side: side, Amount: amount, Price: price})
	return domain.OrderResult{FilledAmount: amount, Fee: decimal.Zero}, nil
}

func (f *fakeExchange) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *fakeNotifier) contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type savedSummary struct {
	Day   string
	Count int
	Net   decimal.Decimal
}

type fakeStore struct {
	mu    sync.Mutex
	saved []savedSummary
}

func (s *fakeStore) SaveDailySummary(day string, tradeCount int, net decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedSummary{Day: day, Count: tradeCount, Net: net})
	return nil
}

// ======================================================================================
// Harness
// ======================================================================================

type harness struct {
	trader   *Trader
	exchange *fakeExchange
	notifier *fakeNotifier
	store    *fakeStore
	journal  *journal.Journal

	nowMu sync.Mutex
	now   time.Time
}

func newHarness(t *testing.T, symbols ...string) *harness {
	t.Helper()
	if len(symbols) == 0 {
		symbols = []string{"BTC/USDT"}
	}

	jnl, err := journal.New(filepath.Join(t.TempDir(), "trades.csv"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}

	h := &harness{
		exchange: newFakeExchange(),
		notifier: &fakeNotifier{},
		store:    &fakeStore{},
		journal:  jnl,
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	cfg := Config{
		Symbols:          symbols,
		QuoteAsset:       "USDT",
		InvestmentAmount: d("50"),
		DipThreshold:     d("0.01"),
		RipThreshold:     d("0.02"),
		PollInterval:     time.Second,
		IdleInterval:     time.Millisecond,
		MinHold:          300 * time.Second,
		DrawdownLimit:    d("0.05"),
		Retry:            RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond},
	}
	h.trader = NewTrader(cfg, h.exchange, jnl, h.store)
	h.trader.SetNotifier(h.notifier)
	h.trader.clock = func() time.Time {
		h.nowMu.Lock()
		defer h.nowMu.Unlock()
		return h.now
	}
	return h
}

func (h *harness) cycle() {
	h.trader.runCycle(context.Background())
}

func (h *harness) advance(dur time.Duration) {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	h.now = h.now.Add(dur)
}

// ======================================================================================
// Tests
// ======================================================================================

func TestBuyOnDip(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()

	// First observation seeds the reference at 100
	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle()
	if h.exchange.orderCount() != 0 {
		t.Fatal("first observation must not trade")
	}

	// 99.5 > 99: still no dip, but the flat reference follows the market
	h.exchange.setPrice("BTC/USDT", "99.5")
	h.advance(time.Minute)
	h.cycle()
	if h.exchange.orderCount() != 0 {
		t.Fatal("price above dip limit must not buy")
	}

	// 98.5 <= 99.5*0.99 = 98.505: dip fires against the tracked reference
	h.exchange.setPrice("BTC/USDT", "98.5")
	h.advance(time.Minute)
	h.cycle()

	if h.exchange.orderCount() != 1 {
		t.Fatalf("expected one order, got %d", h.exchange.orderCount())
	}
	order := h.exchange.orders[0]
	if order.Side != domain.SideBuy {
		t.Errorf("side = %s, want BUY", order.Side)
	}
	wantAmount := d("50").Div(d("98.5"))
	if !order.Amount.Equal(wantAmount) {
		t.Errorf("amount = %s, want %s", order.Amount, wantAmount)
	}

	st := h.trader.Status()
	if len(st.Positions) != 1 || st.Positions[0].State != domain.StateHolding {
		t.Fatalf("expected a holding position, got %+v", st.Positions)
	}
	if !st.Positions[0].EntryPrice.Equal(d("98.5")) {
		t.Errorf("entry = %s, want the dip price 98.5", st.Positions[0].EntryPrice)
	}

	records, err := h.journal.ReadAll()
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(records) != 1 || records[0].Side != domain.SideBuy {
		t.Fatalf("journal should hold exactly the buy, got %+v", records)
	}
	if !h.notifier.contains("BUY") {
		t.Error("expected a buy confirmation notification")
	}
}

func TestSellAfterHoldAndRip(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()

	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle()
	h.exchange.setPrice("BTC/USDT", "98.99")
	h.cycle() // buys at 98.99, target = 100.9698
	h.exchange.setBalance("BTC", "0.5051", "0.5051")

	// Rip reached but hold time not met
	h.exchange.setPrice("BTC/USDT", "103")
	h.advance(200 * time.Second)
	h.cycle()
	if h.exchange.orderCount() != 1 {
		t.Fatal("sold before the minimum hold elapsed")
	}

	// Hold met but price back under the target
	h.exchange.setPrice("BTC/USDT", "100.5")
	h.advance(101 * time.Second)
	h.cycle()
	if h.exchange.orderCount() != 1 {
		t.Fatal("sold below the rip target")
	}

	// Both conditions met: sells the full free base balance
	h.exchange.setPrice("BTC/USDT", "101")
	h.cycle()
	if h.exchange.orderCount() != 2 {
		t.Fatalf("expected the sell order, got %d orders", h.exchange.orderCount())
	}
	sell := h.exchange.orders[1]
	if sell.Side != domain.SideSell {
		t.Errorf("side = %s, want SELL", sell.Side)
	}
	if !sell.Amount.Equal(d("0.5051")) {
		t.Errorf("sell amount = %s, want full free balance 0.5051", sell.Amount)
	}

	st := h.trader.Status()
	if st.Positions[0].State != domain.StateFlat {
		t.Error("position should be flat after the sell")
	}
	if !st.Positions[0].ReferencePrice.Equal(d("101")) {
		t.Errorf("reference = %s, want exit price 101", st.Positions[0].ReferencePrice)
	}

	records, _ := h.journal.ReadAll()
	if len(records) != 2 || records[1].Side != domain.SideSell {
		t.Fatalf("journal should hold buy then sell, got %+v", records)
	}
}

func TestOrderRejectionAbortsTransition(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()

	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle()

	h.exchange.orderErr = &domain.OrderRejectedError{
		Symbol: "BTC/USDT", Side: domain.SideBuy, Err: errors.New("insufficient funds"),
	}
	h.exchange.setPrice("BTC/USDT", "98")
	h.cycle()

	st := h.trader.Status()
	if st.Positions[0].State != domain.StateFlat {
		t.Error("rejected order must leave the position flat")
	}
	records, _ := h.journal.ReadAll()
	if len(records) != 0 {
		t.Errorf("rejected order must not be journaled, got %d records", len(records))
	}
	if !h.notifier.contains("BTC/USDT") {
		t.Error("per-symbol failure should be reported")
	}
	if !st.Running {
		t.Error("a rejected order must not stop the loop")
	}
}

func TestDrawdownBreachPausesLoop(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()

	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle() // baseline = 1000, floor = 950

	// Exactly on the floor: not a breach
	h.exchange.setBalance("USDT", "950", "950")
	h.cycle()
	if !h.trader.Status().Running {
		t.Fatal("balance exactly on the floor must not trip the breaker")
	}

	h.exchange.setBalance("USDT", "949", "949")
	h.cycle()

	st := h.trader.Status()
	if st.Running {
		t.Fatal("breach must clear the running flag")
	}
	if !st.PausedByBreaker {
		t.Error("pause should be attributed to the breaker")
	}
	if !h.notifier.contains("drawdown") {
		t.Error("breach must be reported to the operator")
	}

	// Only the operator resumes
	if !h.trader.Resume() {
		t.Fatal("operator resume should succeed")
	}
	st = h.trader.Status()
	if !st.Running || st.PausedByBreaker {
		t.Errorf("resume should reactivate the loop, got %+v", st)
	}
}

func TestSymbolFailureIsolation(t *testing.T) {
	h := newHarness(t, "BTC/USDT", "ETH/USDT")
	h.trader.Start()

	h.exchange.setPrice("BTC/USDT", "100")
	h.exchange.setPrice("ETH/USDT", "2000")
	h.cycle()

	h.exchange.tickerErr["BTC/USDT"] = domain.NewFatalExchangeError("fetch ticker", errors.New("boom"))
	h.exchange.setPrice("ETH/USDT", "1980") // dip: 1980 <= 2000*0.99
	h.cycle()

	if h.exchange.orderCount() != 1 {
		t.Fatalf("healthy symbol should still trade, got %d orders", h.exchange.orderCount())
	}
	if h.exchange.orders[0].Symbol != "ETH/USDT" {
		t.Errorf("order for %s, want ETH/USDT", h.exchange.orders[0].Symbol)
	}
	if !h.notifier.contains("BTC/USDT") {
		t.Error("failing symbol should be reported")
	}
}

func TestBalanceFetchFailureSkipsCycle(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()

	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle()

	h.exchange.balanceErr = domain.NewExchangeError("fetch balance", errors.New("timeout"))
	h.exchange.setPrice("BTC/USDT", "90") // deep dip, but the cycle must not trade blind
	h.cycle()

	if h.exchange.orderCount() != 0 {
		t.Error("cycle with unknown balance must not trade")
	}
	if !h.trader.Status().Running {
		t.Error("a failed balance fetch must not pause the loop")
	}
}

func TestDayRolloverSummarizesAndRebases(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()

	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle() // baseline 1000 on day 1

	// Trade during day 1 so the summary has content
	h.exchange.setPrice("BTC/USDT", "98")
	h.advance(time.Minute)
	h.cycle()

	// Next calendar day: balance has drifted below the old floor, but the
	// summary and the fresh baseline must come first.
	h.advance(24 * time.Hour)
	h.exchange.setBalance("USDT", "940", "940")
	h.exchange.setPrice("BTC/USDT", "98")
	h.cycle()

	h.store.mu.Lock()
	saved := append([]savedSummary(nil), h.store.saved...)
	h.store.mu.Unlock()
	if len(saved) != 1 {
		t.Fatalf("expected one persisted summary, got %d", len(saved))
	}
	if saved[0].Day != "2025-06-01" {
		t.Errorf("summary day = %s, want 2025-06-01", saved[0].Day)
	}
	if saved[0].Count != 1 {
		t.Errorf("summary count = %d, want 1", saved[0].Count)
	}
	if !h.notifier.contains("Daily summary") {
		t.Error("rollover should notify the previous day's summary")
	}

	st := h.trader.Status()
	if !st.Baseline.Equal(d("940")) {
		t.Errorf("baseline = %s, want rebased 940", st.Baseline)
	}
	if !st.Running {
		t.Error("rebased balance is within the new day's limit; loop must stay active")
	}
}

func TestOperatorTransitions(t *testing.T) {
	h := newHarness(t)

	if h.trader.Status().Running {
		t.Fatal("loop must start idle")
	}
	if !h.trader.Start() {
		t.Fatal("first start should succeed")
	}
	if h.trader.Start() {
		t.Error("second start should report already running")
	}
	if h.trader.Resume() {
		t.Error("resume while running should report already running")
	}
	if !h.trader.Pause() {
		t.Error("pause while running should succeed")
	}
	if h.trader.Pause() {
		t.Error("second pause should be a no-op")
	}
}

func TestRunObservesShutdown(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.trader.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not observe shutdown")
	}
}

func TestStatusConcurrentWithBaselineRoll(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()
	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle()

	// Operator polls status while the loop rolls the baseline across
	// days. Run under -race: the baseline is shared between both.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			st := h.trader.Status()
			if st.Baseline.IsNegative() {
				t.Errorf("baseline read as %s", st.Baseline)
				return
			}
		}
	}()
	for i := 0; i < 40; i++ {
		h.advance(24 * time.Hour)
		h.cycle()
	}
	<-done

	if got := h.trader.Status().Baseline; !got.Equal(d("1000")) {
		t.Errorf("baseline = %s, want 1000", got)
	}
}

func TestShutdownDoesNotAbortInFlightOrder(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()
	h.exchange.setPrice("BTC/USDT", "100")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.trader.runCycle(ctx)

	// The termination signal arrives while the buy is in flight. The
	// order call must not observe it; the fill must still be journaled.
	h.exchange.onOrder = func(orderCtx context.Context) {
		cancel()
		if orderCtx.Err() != nil {
			t.Error("in-flight order call observed the shutdown")
		}
	}
	h.exchange.setPrice("BTC/USDT", "98")
	h.trader.runCycle(ctx)

	if h.exchange.orderCount() != 1 {
		t.Fatalf("expected the order to complete, got %d orders", h.exchange.orderCount())
	}
	records, err := h.journal.ReadAll()
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(records) != 1 || records[0].Side != domain.SideBuy {
		t.Fatalf("completed order must be journaled, got %+v", records)
	}
	if h.trader.Status().Positions[0].State != domain.StateHolding {
		t.Error("completed order must commit the transition")
	}
}

func TestCyclePanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.trader.Start()
	h.trader.journal = nil // force a nil-pointer panic inside the cycle

	h.exchange.setPrice("BTC/USDT", "100")
	h.cycle()
	h.advance(24 * time.Hour) // rollover path dereferences the journal
	h.cycle()

	if !h.notifier.contains("Recovered") {
		t.Error("a panicking cycle should be reported and recovered")
	}
	if !h.trader.Status().Running {
		t.Error("the loop must survive a panicking cycle")
	}
}
