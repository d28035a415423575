package repository

import (
	"database/sql"
	"errors"
	"time"

	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
)

// QuoteRepository handles quote database operations.
type QuoteRepository struct {
	db *database.DB
}

// NewQuoteRepository creates a new QuoteRepository.
func NewQuoteRepository(db *database.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// Create stores a quote and returns its ID.
func (r *QuoteRepository) Create(q *models.Quote) (int64, error) {
	if q.CapturedAt.IsZero() {
		q.CapturedAt = time.Now().UTC()
	}
	result, err := r.db.Exec(`
		INSERT INTO quotes (symbol, description, ask_price, bid_price, last_trade_price, change_amount, change_percent, as_of, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Symbol, q.Description, q.AskPrice, q.BidPrice, q.LastTradePrice,
		q.ChangeAmount, q.ChangePercent, nullTime(q.AsOf), q.CapturedAt)
	if err != nil {
		return 0, err
	}
	q.ID, err = result.LastInsertId()
	return q.ID, err
}

// Latest returns the newest stored quote for symbol, or nil when none exists.
func (r *QuoteRepository) Latest(symbol string) (*models.Quote, error) {
	row := r.db.QueryRow(`
		SELECT id, symbol, description, ask_price, bid_price, last_trade_price, change_amount, change_percent, as_of, captured_at
		FROM quotes
		WHERE symbol = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`, symbol)

	q := &models.Quote{}
	var asOf sql.NullTime
	err := row.Scan(&q.ID, &q.Symbol, &q.Description, &q.AskPrice, &q.BidPrice,
		&q.LastTradePrice, &q.ChangeAmount, &q.ChangePercent, &asOf, &q.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if asOf.Valid {
		q.AsOf = &asOf.Time
	}
	return q, nil
}

// DeleteOlderThan removes quotes captured before the given time.
func (r *QuoteRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM quotes WHERE captured_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
