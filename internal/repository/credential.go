package repository

import (
	"database/sql"
	"errors"
	"time"

	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
)

// CredentialRepository stores sealed logon details.
type CredentialRepository struct {
	db *database.DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert stores the credential for its profile, replacing any existing one.
func (r *CredentialRepository) Upsert(c *models.Credential) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO credentials (profile, username_encrypted, username_nonce, password_encrypted, password_nonce, last_four, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			username_encrypted = excluded.username_encrypted,
			username_nonce = excluded.username_nonce,
			password_encrypted = excluded.password_encrypted,
			password_nonce = excluded.password_nonce,
			last_four = excluded.last_four,
			updated_at = excluded.updated_at
	`, c.Profile, c.UsernameEncrypted, c.UsernameNonce, c.PasswordEncrypted, c.PasswordNonce, c.LastFour, now, now)
	return err
}

// GetByProfile retrieves the credential for a profile. It returns nil when absent.
func (r *CredentialRepository) GetByProfile(profile string) (*models.Credential, error) {
	row := r.db.QueryRow(`
		SELECT id, profile, username_encrypted, username_nonce, password_encrypted, password_nonce, last_four, created_at, updated_at
		FROM credentials
		WHERE profile = ?
	`, profile)

	c := &models.Credential{}
	err := row.Scan(&c.ID, &c.Profile, &c.UsernameEncrypted, &c.UsernameNonce,
		&c.PasswordEncrypted, &c.PasswordNonce, &c.LastFour, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the credential for a profile.
func (r *CredentialRepository) Delete(profile string) error {
	_, err := r.db.Exec(`DELETE FROM credentials WHERE profile = ?`, profile)
	return err
}
