package repository

import (
	"database/sql"
	"time"

	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
)

// HoldingRepository handles holding snapshot database operations.
type HoldingRepository struct {
	db *database.DB
}

// NewHoldingRepository creates a new HoldingRepository.
func NewHoldingRepository(db *database.DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// InsertSnapshot stores a set of positions captured together. All rows share
// one captured_at so the set can be read back as a unit.
func (r *HoldingRepository) InsertSnapshot(snapshots []*models.HoldingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO holding_snapshots (account_id, sync_id, kind, symbol, description, quantity, value, as_of, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, s := range snapshots {
		if s.CapturedAt.IsZero() {
			s.CapturedAt = now
		}
		result, err := stmt.Exec(s.AccountID, s.SyncID, s.Kind, s.Symbol, s.Description,
			s.Quantity, s.Value, nullTime(s.AsOf), s.CapturedAt)
		if err != nil {
			return err
		}
		s.ID, _ = result.LastInsertId()
	}

	return tx.Commit()
}

// Latest returns the most recent snapshot set for an account, largest first.
func (r *HoldingRepository) Latest(accountID string) ([]*models.HoldingSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, sync_id, kind, symbol, description, quantity, value, as_of, captured_at
		FROM holding_snapshots
		WHERE account_id = ?
		  AND captured_at = (SELECT MAX(captured_at) FROM holding_snapshots WHERE account_id = ?)
		ORDER BY value DESC
	`, accountID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanSnapshots(rows)
}

// BySymbol returns the snapshot history of one symbol in an account, newest first.
func (r *HoldingRepository) BySymbol(accountID, symbol string, p Pagination) (PaginatedResult[*models.HoldingSnapshot], error) {
	var total int64
	if err := r.db.QueryRow(`
		SELECT COUNT(*) FROM holding_snapshots WHERE account_id = ? AND symbol = ?
	`, accountID, symbol).Scan(&total); err != nil {
		return PaginatedResult[*models.HoldingSnapshot]{}, err
	}

	rows, err := r.db.Query(`
		SELECT id, account_id, sync_id, kind, symbol, description, quantity, value, as_of, captured_at
		FROM holding_snapshots
		WHERE account_id = ? AND symbol = ?
		ORDER BY captured_at DESC
		LIMIT ? OFFSET ?
	`, accountID, symbol, p.Limit, p.Offset)
	if err != nil {
		return PaginatedResult[*models.HoldingSnapshot]{}, err
	}
	defer rows.Close()

	items, err := r.scanSnapshots(rows)
	if err != nil {
		return PaginatedResult[*models.HoldingSnapshot]{}, err
	}
	return NewPaginatedResult(items, total, p), nil
}

// DeleteOlderThan removes snapshots captured before the given time.
func (r *HoldingRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM holding_snapshots WHERE captured_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// scanSnapshots scans multiple rows into HoldingSnapshots.
func (r *HoldingRepository) scanSnapshots(rows *sql.Rows) ([]*models.HoldingSnapshot, error) {
	snapshots := make([]*models.HoldingSnapshot, 0)

	for rows.Next() {
		s := &models.HoldingSnapshot{}
		var syncID sql.NullInt64
		var asOf sql.NullTime

		err := rows.Scan(
			&s.ID,
			&s.AccountID,
			&syncID,
			&s.Kind,
			&s.Symbol,
			&s.Description,
			&s.Quantity,
			&s.Value,
			&asOf,
			&s.CapturedAt,
		)
		if err != nil {
			return nil, err
		}

		if syncID.Valid {
			s.SyncID = &syncID.Int64
		}
		if asOf.Valid {
			s.AsOf = &asOf.Time
		}

		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}
