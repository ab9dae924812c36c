package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dipbot/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists operator-entered tax events and closed daily
// summaries in SQLite. The trade journal itself stays in the CSV
// ledger; this store only holds derived and side data.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("empty storage path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite driver
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TaxEvent{}, &domain.DailySummaryRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Tax events
// ======================================================================================

// SaveTaxEvent appends an operator-entered cash event.
func (s *Storage) SaveTaxEvent(amount decimal.Decimal, reason string) error {
	event := domain.TaxEvent{
		Amount: amount.String(),
		Reason: reason,
	}
	return s.db.Create(&event).Error
}

// RecentTaxEvents returns the latest n tax events, newest first.
func (s *Storage) RecentTaxEvents(n int) ([]domain.TaxEvent, error) {
	if n <= 0 {
		n = 10
	}
	var events []domain.TaxEvent
	err := s.db.Order("id desc").Limit(n).Find(&events).Error
	return events, err
}

// ======================================================================================
// Daily summaries
// ======================================================================================

// SaveDailySummary upserts the row for one closed trading day.
func (s *Storage) SaveDailySummary(day string, tradeCount int, netQuoteDelta decimal.Decimal) error {
	row := domain.DailySummaryRow{
		Day:           day,
		TradeCount:    tradeCount,
		NetQuoteDelta: netQuoteDelta.String(),
	}
	return s.db.Save(&row).Error
}

// GetDailySummary retrieves one day's row, nil when absent.
func (s *Storage) GetDailySummary(day string) (*domain.DailySummaryRow, error) {
	var row domain.DailySummaryRow
	err := s.db.First(&row, "day = ?", day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &row, err
}
