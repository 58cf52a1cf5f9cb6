package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

const pgErrUniqueViolation = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ProvisioningTx is the write surface available inside the signup transaction.
type ProvisioningTx interface {
	OrganizationCodeExists(ctx context.Context, code string) (bool, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error
	CreateAccount(ctx context.Context, account *models.Account) error
}

type Store struct {
	db            *sql.DB
	Accounts      *AccountRepository
	Organizations *OrganizationRepository
	Events        *EventRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:            db,
		Accounts:      NewAccountRepository(db),
		Organizations: NewOrganizationRepository(db),
		Events:        NewEventRepository(db),
	}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.Accounts.EmailExists(ctx, email)
}

// WithinProvisioningTx runs fn in one transaction. Any error from fn, or a
// failed commit, leaves no rows behind.
func (s *Store) WithinProvisioningTx(ctx context.Context, fn func(ctx context.Context, tx ProvisioningTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &provisioningTx{
		accounts:      NewAccountRepository(tx),
		organizations: NewOrganizationRepository(tx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type provisioningTx struct {
	accounts      *AccountRepository
	organizations *OrganizationRepository
}

func (t *provisioningTx) OrganizationCodeExists(ctx context.Context, code string) (bool, error) {
	return t.organizations.CodeExists(ctx, code)
}

func (t *provisioningTx) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return t.organizations.Create(ctx, org)
}

func (t *provisioningTx) CreateAccount(ctx context.Context, account *models.Account) error {
	return t.accounts.Create(ctx, account)
}

// uniqueViolation returns the violated constraint name, if err is one.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
