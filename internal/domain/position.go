package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Position states
const (
	StateFlat    = "FLAT"
	StateHolding = "HOLDING"
)

var one = decimal.NewFromInt(1)

// Position is the per-symbol trading state machine.
// EntryPrice/EntryTime are set if and only if State == StateHolding.
type Position struct {
	Symbol         string          `json:"symbol"`
	State          string          `json:"state"`
	ReferencePrice decimal.Decimal `json:"reference_price"` // dip baseline while flat, pre-entry anchor while holding
	EntryPrice     decimal.Decimal `json:"entry_price,omitempty"`
	EntryTime      time.Time       `json:"entry_time,omitempty"`
	AnchorSetAt    time.Time       `json:"anchor_set_at"` // when ReferencePrice was last refreshed
}

// NewPosition creates a flat position seeded with the first observed price.
func NewPosition(symbol string, price decimal.Decimal, now time.Time) *Position {
	return &Position{
		Symbol:         symbol,
		State:          StateFlat,
		ReferencePrice: price,
		AnchorSetAt:    now,
	}
}

// Holding reports whether the position is currently open.
func (p *Position) Holding() bool {
	return p.State == StateHolding
}

// ShouldBuy reports whether price has dipped far enough below the
// reference to enter. The boundary is inclusive: exactly
// reference*(1-dip) fires.
func (p *Position) ShouldBuy(price, dipThreshold decimal.Decimal) bool {
	if p.State != StateFlat {
		return false
	}
	limit := p.ReferencePrice.Mul(one.Sub(dipThreshold))
	return price.LessThanOrEqual(limit)
}

// ShouldSell reports whether the position may exit: the minimum hold
// duration has elapsed (inclusive) AND price has ripped strictly
// above entry*(1+rip). Landing exactly on the target does not fire.
func (p *Position) ShouldSell(price, ripThreshold decimal.Decimal, minHold time.Duration, now time.Time) bool {
	if p.State != StateHolding {
		return false
	}
	if now.Sub(p.EntryTime) < minHold {
		return false
	}
	target := p.EntryPrice.Mul(one.Add(ripThreshold))
	return price.GreaterThan(target)
}

// EnterHold commits the FLAT -> HOLDING transition after a filled buy.
func (p *Position) EnterHold(price decimal.Decimal, now time.Time) {
	p.State = StateHolding
	p.EntryPrice = price
	p.EntryTime = now
}

// ExitHold commits the HOLDING -> FLAT transition after a filled sell.
// The exit price becomes the new dip reference.
func (p *Position) ExitHold(price decimal.Decimal, now time.Time) {
	p.State = StateFlat
	p.ReferencePrice = price
	p.AnchorSetAt = now
	p.EntryPrice = decimal.Decimal{}
	p.EntryTime = time.Time{}
}

// TrackReference updates the dip baseline while flat and no transition
// fired. With resetEvery == 0 the reference follows the live price on
// every poll; otherwise it is refreshed only once the interval has
// elapsed since it was last anchored. Holding positions keep their
// pre-entry anchor untouched.
func (p *Position) TrackReference(price decimal.Decimal, now time.Time, resetEvery time.Duration) {
	if p.State != StateFlat {
		return
	}
	if resetEvery > 0 && now.Sub(p.AnchorSetAt) < resetEvery {
		return
	}
	p.ReferencePrice = price
	p.AnchorSetAt = now
}

// CheckInvariant verifies that entry fields are set exactly when holding.
func (p *Position) CheckInvariant() error {
	hasEntry := !p.EntryPrice.IsZero() && !p.EntryTime.IsZero()
	if p.Holding() != hasEntry {
		return fmt.Errorf("position %s: state=%s but entryPrice=%s entryTime=%s",
			p.Symbol, p.State, p.EntryPrice, p.EntryTime)
	}
	return nil
}
