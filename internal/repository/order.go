package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
)

// OrderRepository journals order attempts.
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, account_id, symbol, side, price_type, duration, quantity, limit_price, stop_price,
		       dry_run, after_hours, order_invalid, warning, order_preview, after_hours_warning,
		       order_confirmation, error_message, created_at`

// Create stores an order attempt, assigning it a new ID.
func (r *OrderRepository) Create(o *models.OrderRecord) (string, error) {
	o.ID = uuid.NewString()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO order_journal (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.AccountID, o.Symbol, o.Side, o.PriceType, o.Duration, o.Quantity, o.LimitPrice, o.StopPrice,
		boolToInt(o.DryRun), boolToInt(o.AfterHours), o.OrderInvalid, o.Warning, o.OrderPreview,
		o.AfterHoursWarning, o.OrderConfirmation, o.ErrorMessage, o.CreatedAt)
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

// GetByID retrieves an order attempt by ID. It returns nil when absent.
func (r *OrderRepository) GetByID(id string) (*models.OrderRecord, error) {
	row := r.db.QueryRow(`SELECT `+orderColumns+` FROM order_journal WHERE id = ?`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// ListByAccount returns the order attempts for an account, newest first.
func (r *OrderRepository) ListByAccount(accountID string, p Pagination) (PaginatedResult[*models.OrderRecord], error) {
	var total int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM order_journal WHERE account_id = ?`, accountID).Scan(&total); err != nil {
		return PaginatedResult[*models.OrderRecord]{}, err
	}

	rows, err := r.db.Query(`
		SELECT `+orderColumns+`
		FROM order_journal
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, accountID, p.Limit, p.Offset)
	if err != nil {
		return PaginatedResult[*models.OrderRecord]{}, err
	}
	defer rows.Close()

	orders := make([]*models.OrderRecord, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return PaginatedResult[*models.OrderRecord]{}, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return PaginatedResult[*models.OrderRecord]{}, err
	}
	return NewPaginatedResult(orders, total, p), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.OrderRecord, error) {
	o := &models.OrderRecord{}
	var dryRun, afterHours int
	err := row.Scan(
		&o.ID,
		&o.AccountID,
		&o.Symbol,
		&o.Side,
		&o.PriceType,
		&o.Duration,
		&o.Quantity,
		&o.LimitPrice,
		&o.StopPrice,
		&dryRun,
		&afterHours,
		&o.OrderInvalid,
		&o.Warning,
		&o.OrderPreview,
		&o.AfterHoursWarning,
		&o.OrderConfirmation,
		&o.ErrorMessage,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.DryRun = dryRun == 1
	o.AfterHours = afterHours == 1
	return o, nil
}
