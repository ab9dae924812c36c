package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeRecord is one executed trade. Records are immutable once
// appended to the journal.
type TradeRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
	QuoteDelta decimal.Decimal `json:"quote_delta"` // signed net cash-flow in quote currency
}

// NewTradeRecord builds a record with the derived cash-flow:
// -(price*amount + fee) for buys, price*amount - fee for sells.
func NewTradeRecord(ts time.Time, symbol, side string, price, amount, fee decimal.Decimal) TradeRecord {
	gross := price.Mul(amount)
	var delta decimal.Decimal
	if side == SideBuy {
		delta = gross.Add(fee).Neg()
	} else {
		delta = gross.Sub(fee)
	}
	return TradeRecord{
		Timestamp:  ts,
		Symbol:     symbol,
		Side:       side,
		Price:      price,
		Amount:     amount,
		Fee:        fee,
		QuoteDelta: delta,
	}
}

// DaySummary aggregates the trades of one calendar day.
type DaySummary struct {
	TradeCount    int             `json:"trade_count"`
	NetQuoteDelta decimal.Decimal `json:"net_quote_delta"`
}
