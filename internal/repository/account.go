package repository

import (
	"database/sql"
	"errors"
	"time"

	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
)

// AccountRepository handles account database operations.
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert inserts or refreshes an account keyed by its connector id.
func (r *AccountRepository) Upsert(account *models.Account) error {
	_, err := r.db.Exec(`
		INSERT INTO accounts (account_id, mask, nickname, detail_type, account_value, is_ira, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			mask = excluded.mask,
			nickname = excluded.nickname,
			detail_type = excluded.detail_type,
			account_value = excluded.account_value,
			is_ira = excluded.is_ira,
			updated_at = excluded.updated_at
	`, account.AccountID, account.Mask, account.Nickname, account.DetailType,
		account.AccountValue, boolToInt(account.IsIRA), time.Now().UTC())
	return err
}

// GetByID retrieves an account by connector id. It returns nil when absent.
func (r *AccountRepository) GetByID(accountID string) (*models.Account, error) {
	row := r.db.QueryRow(`
		SELECT account_id, mask, nickname, detail_type, account_value, is_ira, updated_at
		FROM accounts
		WHERE account_id = ?
	`, accountID)

	account := &models.Account{}
	var isIRA int
	err := row.Scan(&account.AccountID, &account.Mask, &account.Nickname, &account.DetailType,
		&account.AccountValue, &isIRA, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account.IsIRA = isIRA == 1
	return account, nil
}

// List returns every known account ordered by value.
func (r *AccountRepository) List() ([]*models.Account, error) {
	rows, err := r.db.Query(`
		SELECT account_id, mask, nickname, detail_type, account_value, is_ira, updated_at
		FROM accounts
		ORDER BY account_value DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account := &models.Account{}
		var isIRA int
		if err := rows.Scan(&account.AccountID, &account.Mask, &account.Nickname, &account.DetailType,
			&account.AccountValue, &isIRA, &account.UpdatedAt); err != nil {
			return nil, err
		}
		account.IsIRA = isIRA == 1
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Delete removes an account and, by cascade, its snapshots.
func (r *AccountRepository) Delete(accountID string) error {
	_, err := r.db.Exec(`DELETE FROM accounts WHERE account_id = ?`, accountID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
