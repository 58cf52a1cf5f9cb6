package models

import "time"

type UserRole string

const (
	UserRoleUser              UserRole = "user"
	UserRoleOrganizationAdmin UserRole = "organization_admin"
	UserRoleAdmin             UserRole = "admin"
)

type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
	OrganizationStatusPending   OrganizationStatus = "pending"
)

type Account struct {
	ID                string
	OrganizationID    string
	UserCode          string
	Email             string
	PasswordHash      string
	UserName          string
	UserNameKana      string
	Role              UserRole
	IsCompanyAdmin    bool
	IsActive          bool
	RememberTokenHash []byte
	RememberExpiresAt *time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Organization struct {
	ID                   string
	Code                 string
	Name                 string
	NameKana             string
	PostalCode           string
	Prefecture           string
	City                 string
	AddressLine1         string
	AddressLine2         *string
	FullAddress          string
	DeliveryLocationName string
	Phone                string
	PhoneExtension       *string
	DeliveryNotes        *string
	ContactPerson        string
	Status               OrganizationStatus
	SignupIP             string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Credentials is the joined account + organization view read in a single
// query when authenticating.
type Credentials struct {
	AccountID          string
	UserCode           string
	UserName           string
	Email              string
	PasswordHash       string
	Role               UserRole
	IsCompanyAdmin     bool
	IsActive           bool
	OrganizationID     string
	OrganizationName   string
	OrganizationCode   string
	OrganizationStatus OrganizationStatus
}
