package repository

import (
	"database/sql"
	"errors"
	"time"

	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
)

// SyncHistoryRepository handles sync history database operations.
type SyncHistoryRepository struct {
	db *database.DB
}

// NewSyncHistoryRepository creates a new SyncHistoryRepository.
func NewSyncHistoryRepository(db *database.DB) *SyncHistoryRepository {
	return &SyncHistoryRepository{db: db}
}

// Start creates a new sync history entry with status "running" and returns its ID.
func (r *SyncHistoryRepository) Start() (int64, error) {
	result, err := r.db.Exec(`
		INSERT INTO sync_history (status, started_at)
		VALUES (?, ?)
	`, models.SyncRunning, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Complete marks a sync as finished. A non-empty errorMsg records a partial
// sync: some accounts failed but others were stored.
func (r *SyncHistoryRepository) Complete(id int64, accountsSynced, positionsSynced int, errorMsg string) error {
	status := models.SyncSuccess
	if errorMsg != "" {
		status = models.SyncPartial
	}
	_, err := r.db.Exec(`
		UPDATE sync_history
		SET status = ?, accounts_synced = ?, positions_synced = ?, error_message = NULLIF(?, ''), completed_at = ?
		WHERE id = ?
	`, status, accountsSynced, positionsSynced, errorMsg, time.Now().UTC(), id)
	return err
}

// Fail marks a sync as failed with an error message.
func (r *SyncHistoryRepository) Fail(id int64, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE sync_history
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, models.SyncFailed, errorMsg, time.Now().UTC(), id)
	return err
}

// GetByID retrieves a sync history entry by ID. It returns nil when absent.
func (r *SyncHistoryRepository) GetByID(id int64) (*models.SyncHistory, error) {
	row := r.db.QueryRow(`
		SELECT id, status, accounts_synced, positions_synced, error_message, started_at, completed_at
		FROM sync_history
		WHERE id = ?
	`, id)

	return r.scanHistory(row)
}

// GetLatest retrieves the most recent sync history entry.
func (r *SyncHistoryRepository) GetLatest() (*models.SyncHistory, error) {
	row := r.db.QueryRow(`
		SELECT id, status, accounts_synced, positions_synced, error_message, started_at, completed_at
		FROM sync_history
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`)

	return r.scanHistory(row)
}

// GetRecent retrieves the most recent sync history entries.
func (r *SyncHistoryRepository) GetRecent(limit int) ([]*models.SyncHistory, error) {
	rows, err := r.db.Query(`
		SELECT id, status, accounts_synced, positions_synced, error_message, started_at, completed_at
		FROM sync_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histories := make([]*models.SyncHistory, 0)
	for rows.Next() {
		h, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// DeleteOlderThan removes sync history entries older than the given time.
func (r *SyncHistoryRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sync_history WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// scanHistory scans a single row into a SyncHistory.
func (r *SyncHistoryRepository) scanHistory(row *sql.Row) (*models.SyncHistory, error) {
	h, err := scanHistoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

func scanHistoryRow(row rowScanner) (*models.SyncHistory, error) {
	h := &models.SyncHistory{}
	var errorMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&h.ID,
		&h.Status,
		&h.AccountsSynced,
		&h.PositionsSynced,
		&errorMsg,
		&h.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorMsg.Valid {
		h.ErrorMessage = errorMsg.String
	}
	if completedAt.Valid {
		h.CompletedAt = &completedAt.Time
	}
	return h, nil
}
