package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dipbot/internal/domain"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return j
}

func TestFreshJournalStartsWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	if _, err := New(path); err != nil {
		t.Fatalf("New failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	first := strings.SplitN(string(data), "\n", 2)[0]
	if first != "timestamp,symbol,side,price,amount,fee,quote_delta" {
		t.Errorf("header = %q", first)
	}

	// Reopening must not rewrite the file
	if _, err := New(path); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	again, _ := os.ReadFile(path)
	if string(again) != string(data) {
		t.Error("reopening an existing journal changed its contents")
	}
}

func TestAppendPreservesPriorRecords(t *testing.T) {
	j := setupJournal(t)
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first := domain.NewTradeRecord(ts, "BTC/USDT", domain.SideBuy, d("100"), d("1"), d("0.1"))
	if err := j.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}
	before, _ := os.ReadFile(j.path)

	second := domain.NewTradeRecord(ts.Add(time.Hour), "BTC/USDT", domain.SideSell, d("103"), d("1"), d("0.1"))
	if err := j.Append(second); err != nil {
		t.Fatalf("append: %v", err)
	}
	after, _ := os.ReadFile(j.path)

	if !strings.HasPrefix(string(after), string(before)) {
		t.Error("append rewrote earlier records")
	}

	records, err := j.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Side != domain.SideBuy || records[1].Side != domain.SideSell {
		t.Errorf("records out of order: %s then %s", records[0].Side, records[1].Side)
	}
	if !records[0].QuoteDelta.Equal(d("-100.1")) {
		t.Errorf("buy quoteDelta round-tripped to %s", records[0].QuoteDelta)
	}
}

func TestSummarizeDayWindow(t *testing.T) {
	j := setupJournal(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	inWindow := []domain.TradeRecord{
		domain.NewTradeRecord(day.Add(9*time.Hour), "BTC/USDT", domain.SideBuy, d("100"), d("1"), d("0.1")),
		domain.NewTradeRecord(day.Add(15*time.Hour), "BTC/USDT", domain.SideSell, d("103"), d("1"), d("0.1")),
	}
	outside := []domain.TradeRecord{
		domain.NewTradeRecord(day.Add(-time.Second), "BTC/USDT", domain.SideSell, d("50"), d("1"), d("0")),
		domain.NewTradeRecord(day.Add(24*time.Hour), "BTC/USDT", domain.SideBuy, d("60"), d("1"), d("0")), // next day 00:00, exclusive
	}
	for _, rec := range append(inWindow, outside...) {
		if err := j.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sum, err := j.Summarize(day.Add(13 * time.Hour)) // any time within the day
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TradeCount != 2 {
		t.Errorf("tradeCount = %d, want 2", sum.TradeCount)
	}
	if !sum.NetQuoteDelta.Equal(d("2.8")) {
		t.Errorf("netQuoteDelta = %s, want 2.8", sum.NetQuoteDelta)
	}
}

func TestSummarizeMatchesRecordSum(t *testing.T) {
	j := setupJournal(t)
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	deltas := []string{"-100.1", "102.9", "-49.95", "51.2"}
	for i, delta := range deltas {
		side := domain.SideBuy
		if d(delta).IsPositive() {
			side = domain.SideSell
		}
		rec := domain.TradeRecord{
			Timestamp:  day.Add(time.Duration(i) * time.Hour),
			Symbol:     "ETH/USDT",
			Side:       side,
			Price:      d("1"),
			Amount:     d("1"),
			Fee:        d("0"),
			QuoteDelta: d(delta),
		}
		if err := j.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	want := decimal.Zero
	for _, delta := range deltas {
		want = want.Add(d(delta))
	}
	sum, err := j.Summarize(day)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TradeCount != len(deltas) {
		t.Errorf("tradeCount = %d, want %d", sum.TradeCount, len(deltas))
	}
	if !sum.NetQuoteDelta.Equal(want) {
		t.Errorf("netQuoteDelta = %s, want %s", sum.NetQuoteDelta, want)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty path")
	}
}
