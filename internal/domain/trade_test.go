package domain

import (
	"testing"
	"time"
)

func TestNewTradeRecordQuoteDelta(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("buy is negative cash-flow", func(t *testing.T) {
		rec := NewTradeRecord(ts, "BTC/USDT", SideBuy, d("100"), d("1"), d("0.1"))
		if !rec.QuoteDelta.Equal(d("-100.1")) {
			t.Errorf("buy quoteDelta = %s, want -100.1", rec.QuoteDelta)
		}
	})

	t.Run("sell is positive cash-flow net of fee", func(t *testing.T) {
		rec := NewTradeRecord(ts, "BTC/USDT", SideSell, d("103"), d("1"), d("0.1"))
		if !rec.QuoteDelta.Equal(d("102.9")) {
			t.Errorf("sell quoteDelta = %s, want 102.9", rec.QuoteDelta)
		}
	})

	t.Run("fractional amount", func(t *testing.T) {
		rec := NewTradeRecord(ts, "ETH/USDT", SideBuy, d("2000"), d("0.025"), d("0.05"))
		if !rec.QuoteDelta.Equal(d("-50.05")) {
			t.Errorf("quoteDelta = %s, want -50.05", rec.QuoteDelta)
		}
	})
}
