package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AssetBalance is one asset's balance as reported by the exchange.
type AssetBalance struct {
	Total decimal.Decimal
	Free  decimal.Decimal
}

// OrderResult is what the exchange reports back for a placed order.
type OrderResult struct {
	FilledAmount decimal.Decimal
	Fee          decimal.Decimal
}

// Exchange is the remote trading venue. All calls may fail with a
// retriable ExchangeError or a terminal failure such as
// OrderRejectedError; callers decide whether to retry via IsRetriable.
type Exchange interface {
	FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error)
	FetchBalance(ctx context.Context) (map[string]AssetBalance, error)
	CreateOrder(ctx context.Context, symbol, side string, amount, price decimal.Decimal) (OrderResult, error)
}

// Notifier delivers operator-facing messages. Best effort: a single
// attempt, failures are logged by the implementation and never escalate.
type Notifier interface {
	Notify(text string)
}

// TradeJournal is the append-only ledger of executed trades and the
// source of truth for daily P&L.
type TradeJournal interface {
	Append(rec TradeRecord) error
	Summarize(day time.Time) (DaySummary, error)
}
