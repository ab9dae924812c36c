package domain

import (
	"time"
)

// TaxEvent is an operator-entered cash event (taxes, withdrawals)
// recorded outside the trade journal.
type TaxEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Amount    string    `json:"amount"` // decimal string, rendered as entered
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// DailySummaryRow persists one closed trading day.
type DailySummaryRow struct {
	Day           string    `gorm:"primaryKey" json:"day"` // YYYY-MM-DD
	TradeCount    int       `json:"trade_count"`
	NetQuoteDelta string    `json:"net_quote_delta"`
	CreatedAt     time.Time `json:"created_at"`
}
