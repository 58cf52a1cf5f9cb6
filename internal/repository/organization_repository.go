package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

var (
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrOrganizationCodeTaken = errors.New("organization code already in use")
)

type OrganizationRepository struct {
	db DBTX
}

func NewOrganizationRepository(db DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM organizations WHERE code = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts org. A concurrent signup that committed the same code first
// surfaces as ErrOrganizationCodeTaken.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	const query = `
		INSERT INTO organizations (
			id, code, name, name_kana, postal_code, prefecture, city, address_line1, address_line2,
			full_address, delivery_location_name, phone, phone_extension, delivery_notes,
			contact_person, status, signup_ip, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW()
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Code,
		org.Name,
		org.NameKana,
		org.PostalCode,
		org.Prefecture,
		org.City,
		org.AddressLine1,
		nullString(org.AddressLine2),
		org.FullAddress,
		org.DeliveryLocationName,
		org.Phone,
		nullString(org.PhoneExtension),
		nullString(org.DeliveryNotes),
		org.ContactPerson,
		org.Status,
		org.SignupIP,
	)
	if _, ok := uniqueViolation(err); ok {
		return ErrOrganizationCodeTaken
	}
	return err
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (models.Organization, error) {
	const query = `
		SELECT id, code, name, name_kana, postal_code, prefecture, city, address_line1, address_line2,
		       full_address, delivery_location_name, phone, phone_extension, delivery_notes,
		       contact_person, status, signup_ip, created_at, updated_at
		FROM organizations WHERE id = $1
	`

	var (
		org                     models.Organization
		line2, extension, notes sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Code,
		&org.Name,
		&org.NameKana,
		&org.PostalCode,
		&org.Prefecture,
		&org.City,
		&org.AddressLine1,
		&line2,
		&org.FullAddress,
		&org.DeliveryLocationName,
		&org.Phone,
		&extension,
		&notes,
		&org.ContactPerson,
		&org.Status,
		&org.SignupIP,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Organization{}, ErrOrganizationNotFound
		}
		return models.Organization{}, err
	}
	org.AddressLine2 = stringPtr(line2)
	org.PhoneExtension = stringPtr(extension)
	org.DeliveryNotes = stringPtr(notes)
	return org, nil
}
