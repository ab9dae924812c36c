package trader

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Breaker is the daily drawdown circuit-breaker. It holds one active
// baseline: the quote balance captured at the start of the calendar
// day (or at the last roll). A breach is strict: balance must fall
// BELOW baseline*(1-limit); landing exactly on the floor is tolerated.
//
// The control loop mutates the baseline while the operator surface
// reads it, so every access goes through the breaker's own mutex.
type Breaker struct {
	limit decimal.Decimal

	mu       sync.Mutex
	day      time.Time // midnight of the baseline's calendar day; zero until seeded
	baseline decimal.Decimal
}

// NewBreaker creates a breaker with the given fractional limit (0.05 = 5%).
func NewBreaker(limit decimal.Decimal) *Breaker {
	return &Breaker{limit: limit}
}

// Seeded reports whether a baseline has been captured yet.
func (b *Breaker) Seeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.day.IsZero()
}

// Seed captures the initial baseline at loop start.
func (b *Breaker) Seed(now time.Time, balance decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.day = dayOf(now)
	b.baseline = balance
}

// NewDay reports whether the calendar date has advanced since the
// baseline was captured.
func (b *Breaker) NewDay(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.day.IsZero() && dayOf(now).After(b.day)
}

// Roll moves the baseline forward to the current day. Rolling is
// independent of breach state and never clears a pause.
func (b *Breaker) Roll(now time.Time, balance decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.day = dayOf(now)
	b.baseline = balance
}

// Breached reports whether balance has fallen below the drawdown floor.
func (b *Breaker) Breached(balance decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.day.IsZero() || !b.baseline.IsPositive() {
		return false
	}
	floor := b.baseline.Mul(decimal.NewFromInt(1).Sub(b.limit))
	return balance.LessThan(floor)
}

// DayStart returns midnight of the baseline's calendar day.
func (b *Breaker) DayStart() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.day
}

// Baseline returns the captured baseline balance.
func (b *Breaker) Baseline() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseline
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
