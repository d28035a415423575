package vault

import (
	"context"
	"errors"
	"fmt"

	"chaseinvest/internal/models"
)

// ErrNoCredentials is returned when a profile has no stored credentials.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials are the plain logon details for one profile.
type Credentials struct {
	Username string
	Password string
	LastFour string
}

// Store persists sealed credentials.
type Store interface {
	Upsert(c *models.Credential) error
	GetByProfile(profile string) (*models.Credential, error)
	Delete(profile string) error
}

// Vault seals credentials before they reach the store.
type Vault struct {
	enc   *Encryptor
	store Store
}

// New creates a Vault.
func New(enc *Encryptor, store Store) *Vault {
	return &Vault{enc: enc, store: store}
}

// Save seals and stores creds for profile.
func (v *Vault) Save(profile string, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return errors.New("username and password are required")
	}

	userCT, userNonce, err := v.enc.Encrypt(creds.Username, profile)
	if err != nil {
		return fmt.Errorf("sealing username: %w", err)
	}
	passCT, passNonce, err := v.enc.Encrypt(creds.Password, profile)
	if err != nil {
		return fmt.Errorf("sealing password: %w", err)
	}

	return v.store.Upsert(&models.Credential{
		Profile:           profile,
		UsernameEncrypted: userCT,
		UsernameNonce:     userNonce,
		PasswordEncrypted: passCT,
		PasswordNonce:     passNonce,
		LastFour:          creds.LastFour,
	})
}

// Load returns the stored credentials for profile.
func (v *Vault) Load(profile string) (*Credentials, error) {
	c, err := v.store.GetByProfile(profile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w for profile %q", ErrNoCredentials, profile)
	}

	username, err := v.enc.Decrypt(c.UsernameEncrypted, c.UsernameNonce, profile)
	if err != nil {
		return nil, fmt.Errorf("opening username: %w", err)
	}
	password, err := v.enc.Decrypt(c.PasswordEncrypted, c.PasswordNonce, profile)
	if err != nil {
		return nil, fmt.Errorf("opening password: %w", err)
	}

	return &Credentials{Username: username, Password: password, LastFour: c.LastFour}, nil
}

// Forget deletes the stored credentials for profile.
func (v *Vault) Forget(profile string) error {
	return v.store.Delete(profile)
}

// Source returns a credential lookup that uses fixed when it carries a
// username and password and reads profile from the vault otherwise.
func (v *Vault) Source(profile string, fixed Credentials) func(ctx context.Context) (Credentials, error) {
	return func(ctx context.Context) (Credentials, error) {
		if fixed.Username != "" && fixed.Password != "" {
			return fixed, nil
		}
		if err := ctx.Err(); err != nil {
			return Credentials{}, err
		}
		c, err := v.Load(profile)
		if err != nil {
			return Credentials{}, err
		}
		return *c, nil
	}
}
