package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUserCodeTaken   = errors.New("user code already in use")
)

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	const query = `
		INSERT INTO accounts (
			id, organization_id, user_code, email, password_hash, user_name, user_name_kana,
			role, is_company_admin, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.OrganizationID,
		account.UserCode,
		account.Email,
		account.PasswordHash,
		account.UserName,
		account.UserNameKana,
		account.Role,
		account.IsCompanyAdmin,
		account.IsActive,
	)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "accounts_user_code_key":
			return ErrUserCodeTaken
		default:
			return ErrEmailTaken
		}
	}
	return err
}

// LookupCredentials reads the account and its organization status in one
// statement so the login decision sees a single snapshot.
func (r *AccountRepository) LookupCredentials(ctx context.Context, email string) (models.Credentials, error) {
	const query = `
		SELECT a.id, a.user_code, a.user_name, a.email, a.password_hash, a.role,
		       a.is_company_admin, a.is_active,
		       o.id, o.name, o.code, o.status
		FROM accounts a
		JOIN organizations o ON o.id = a.organization_id
		WHERE a.email = $1
		LIMIT 1
	`

	var c models.Credentials
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&c.AccountID,
		&c.UserCode,
		&c.UserName,
		&c.Email,
		&c.PasswordHash,
		&c.Role,
		&c.IsCompanyAdmin,
		&c.IsActive,
		&c.OrganizationID,
		&c.OrganizationName,
		&c.OrganizationCode,
		&c.OrganizationStatus,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Credentials{}, ErrAccountNotFound
		}
		return models.Credentials{}, err
	}
	return c, nil
}

// LookupCredentialsByID is the reauthentication variant of LookupCredentials.
func (r *AccountRepository) LookupCredentialsByID(ctx context.Context, id string) (models.Credentials, error) {
	const query = `
		SELECT a.id, a.user_code, a.user_name, a.email, a.password_hash, a.role,
		       a.is_company_admin, a.is_active,
		       o.id, o.name, o.code, o.status
		FROM accounts a
		JOIN organizations o ON o.id = a.organization_id
		WHERE a.id = $1
	`

	var c models.Credentials
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.AccountID,
		&c.UserCode,
		&c.UserName,
		&c.Email,
		&c.PasswordHash,
		&c.Role,
		&c.IsCompanyAdmin,
		&c.IsActive,
		&c.OrganizationID,
		&c.OrganizationName,
		&c.OrganizationCode,
		&c.OrganizationStatus,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Credentials{}, ErrAccountNotFound
		}
		return models.Credentials{}, err
	}
	return c, nil
}

func (r *AccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *AccountRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE accounts SET last_login_at = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetRememberToken overwrites any previous token, which revokes it.
func (r *AccountRepository) SetRememberToken(ctx context.Context, id string, hash []byte, expiresAt time.Time) error {
	const query = `
		UPDATE accounts
		SET remember_token_hash = $2, remember_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, hash, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *AccountRepository) ClearRememberToken(ctx context.Context, id string) error {
	const query = `
		UPDATE accounts
		SET remember_token_hash = NULL, remember_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// FindByRememberHash returns the account holding hash together with the
// stored hash and expiry for the caller to check.
func (r *AccountRepository) FindByRememberHash(ctx context.Context, hash []byte) (models.Account, error) {
	const query = `
		SELECT id, organization_id, remember_token_hash, remember_expires_at
		FROM accounts
		WHERE remember_token_hash = $1
		LIMIT 1
	`

	var (
		account models.Account
		expires sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&account.ID,
		&account.OrganizationID,
		&account.RememberTokenHash,
		&expires,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	if expires.Valid {
		account.RememberExpiresAt = &expires.Time
	}
	return account, nil
}

func (r *AccountRepository) PurgeExpiredRememberTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE accounts
		SET remember_token_hash = NULL, remember_expires_at = NULL, updated_at = NOW()
		WHERE remember_expires_at IS NOT NULL AND remember_expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
