// Package journal persists executed trades to an append-only CSV ledger.
// The file is the source of truth for daily P&L; records are never
// rewritten or reordered.
package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dipbot/internal/domain"

	"github.com/shopspring/decimal"
)

var header = []string{"timestamp", "symbol", "side", "price", "amount", "fee", "quote_delta"}

// Journal appends trade records to a CSV file. Appends are serialized
// so concurrent writers can never interleave a record's bytes.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New opens (or creates) the journal at path. A fresh journal starts
// with a header row naming the record fields.
func New(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("empty journal path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to create journal: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, err
		}
	}
	return &Journal{path: abs}, nil
}

// Append writes one record to the end of the ledger.
func (j *Journal) Append(rec domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		rec.Timestamp.Format(time.RFC3339),
		rec.Symbol,
		rec.Side,
		rec.Price.String(),
		rec.Amount.String(),
		rec.Fee.String(),
		rec.QuoteDelta.String(),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Summarize returns the trade count and net quote cash-flow for the
// calendar day containing the given time, i.e. [day 00:00, day+1 00:00).
func (j *Journal) Summarize(day time.Time) (domain.DaySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	records, err := j.ReadAll()
	if err != nil {
		return domain.DaySummary{}, err
	}

	sum := domain.DaySummary{NetQuoteDelta: decimal.Zero}
	for _, rec := range records {
		if rec.Timestamp.Before(start) || !rec.Timestamp.Before(end) {
			continue
		}
		sum.TradeCount++
		sum.NetQuoteDelta = sum.NetQuoteDelta.Add(rec.QuoteDelta)
	}
	return sum, nil
}

// ReadAll parses every committed record, oldest first.
func (j *Journal) ReadAll() ([]domain.TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var out []domain.TradeRecord
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("journal row %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (domain.TradeRecord, error) {
	if len(row) != len(header) {
		return domain.TradeRecord{}, fmt.Errorf("expected %d fields, got %d", len(header), len(row))
	}
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return domain.TradeRecord{}, err
	}
	price, err := decimal.NewFromString(row[3])
	if err != nil {
		return domain.TradeRecord{}, err
	}
	amount, err := decimal.NewFromString(row[4])
	if err != nil {
		return domain.TradeRecord{}, err
	}
	fee, err := decimal.NewFromString(row[5])
	if err != nil {
		return domain.TradeRecord{}, err
	}
	delta, err := decimal.NewFromString(row[6])
	if err != nil {
		return domain.TradeRecord{}, err
	}
	return domain.TradeRecord{
		Timestamp:  ts,
		Symbol:     row[1],
		Side:       row[2],
		Price:      price,
		Amount:     amount,
		Fee:        fee,
		QuoteDelta: delta,
	}, nil
}
