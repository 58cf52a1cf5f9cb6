package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hipper-gif/meal-delivery/internal/ids"
	"github.com/hipper-gif/meal-delivery/internal/models"
	"github.com/hipper-gif/meal-delivery/internal/repository"
	"github.com/hipper-gif/meal-delivery/internal/security"
	"github.com/hipper-gif/meal-delivery/internal/session"
)

const firstUserSequence = "0001"

type ProvisioningStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	WithinProvisioningTx(ctx context.Context, fn func(ctx context.Context, tx repository.ProvisioningTx) error) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

type SignupConfig struct {
	MinPasswordLength int
	MaxAttempts       int
	Window            time.Duration
	FailOpen          bool
}

type SignupInput struct {
	PostalCode           string
	Prefecture           string
	City                 string
	AddressLine1         string
	AddressLine2         string
	CompanyName          string
	CompanyNameKana      string
	DeliveryLocationName string
	CompanyPhone         string
	PhoneExtension       string
	DeliveryNotes        string
	UserName             string
	UserNameKana         string
	Email                string
	EmailConfirm         string
	Password             string
	PasswordConfirm      string
	ClientIP             string
	State                *session.State
}

type SignupResult struct {
	AccountID        string
	OrganizationID   string
	UserCode         string
	OrganizationCode string
	Claims           session.Claims
}

// AccountProvisioner creates an organization together with its first admin
// account in one transaction and logs the new admin in.
type AccountProvisioner struct {
	store      ProvisioningStore
	codes      *CodeGenerator
	hasher     PasswordHasher
	limiter    AttemptLimiter
	sessions   SessionStore
	events     EventPublisher
	hashBudget *rate.Limiter
	recorder   Recorder
	cfg        SignupConfig
	log        zerolog.Logger
	now        func() time.Time
}

type ProvisionerDeps struct {
	Store      ProvisioningStore
	Codes      *CodeGenerator
	Hasher     PasswordHasher
	Limiter    AttemptLimiter
	Sessions   SessionStore
	Events     EventPublisher
	HashBudget *rate.Limiter
	Recorder   Recorder
}

func NewAccountProvisioner(deps ProvisionerDeps, cfg SignupConfig, log zerolog.Logger) *AccountProvisioner {
	return &AccountProvisioner{
		store:      deps.Store,
		codes:      deps.Codes,
		hasher:     deps.Hasher,
		limiter:    deps.Limiter,
		sessions:   deps.Sessions,
		events:     deps.Events,
		hashBudget: deps.HashBudget,
		recorder:   deps.Recorder,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

func SignupKey(clientIP string) string { return "signup_" + clientIP }

func (p *AccountProvisioner) Signup(ctx context.Context, input SignupInput) (SignupResult, error) {
	if err := p.validate(input); err != nil {
		p.record("invalid")
		return SignupResult{}, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if err := p.throttle(ctx, input.ClientIP); err != nil {
		return SignupResult{}, err
	}

	taken, err := p.store.EmailExists(ctx, email)
	if err != nil {
		return SignupResult{}, internalError(fmt.Errorf("check email: %w", err))
	}
	if taken {
		p.record("conflict")
		return SignupResult{}, &Error{Kind: KindConflict, Message: msgEmailTaken}
	}

	if p.hashBudget != nil {
		if err := p.hashBudget.Wait(ctx); err != nil {
			return SignupResult{}, internalError(err)
		}
	}
	passwordHash, err := p.hasher.Hash(input.Password)
	if err != nil {
		return SignupResult{}, internalError(err)
	}

	org := buildOrganization(input)
	account := &models.Account{
		ID:             ids.New(),
		OrganizationID: org.ID,
		Email:          email,
		PasswordHash:   passwordHash,
		UserName:       security.SanitizeText(input.UserName),
		UserNameKana:   security.SanitizeText(input.UserNameKana),
		Role:           models.UserRoleOrganizationAdmin,
		IsCompanyAdmin: true,
		IsActive:       true,
	}

	err = p.store.WithinProvisioningTx(ctx, func(ctx context.Context, tx repository.ProvisioningTx) error {
		code, draws, err := p.codes.Generate(ctx, tx)
		if p.recorder != nil {
			p.recorder.CodeDraws(draws)
		}
		if err != nil {
			return err
		}
		org.Code = code
		if err := tx.CreateOrganization(ctx, org); err != nil {
			return err
		}
		account.UserCode = code + firstUserSequence
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return SignupResult{}, p.provisioningFailed(ctx, input.ClientIP, err)
	}

	result := SignupResult{
		AccountID:        account.ID,
		OrganizationID:   org.ID,
		UserCode:         account.UserCode,
		OrganizationCode: org.Code,
	}

	now := p.now().UTC()
	claims := ClaimsFor(models.Credentials{
		AccountID:          account.ID,
		UserCode:           account.UserCode,
		UserName:           account.UserName,
		Email:              account.Email,
		Role:               account.Role,
		IsCompanyAdmin:     account.IsCompanyAdmin,
		IsActive:           account.IsActive,
		OrganizationID:     org.ID,
		OrganizationName:   org.Name,
		OrganizationCode:   org.Code,
		OrganizationStatus: org.Status,
	}, now)
	if err := p.sessions.Establish(ctx, input.State, claims); err != nil {
		// The rows are committed; the admin can still log in normally.
		p.log.Error().Err(err).Str("account_id", account.ID).Msg("signup: establish session failed")
	} else {
		result.Claims = claims
	}

	p.record("success")
	publishEvent(ctx, p.events, p.recorder, p.log, models.AuthEvent{
		Kind:           models.AuthEventSignupCompleted,
		AccountID:      account.ID,
		OrganizationID: org.ID,
		ClientIP:       input.ClientIP,
		Detail:         org.Code,
	})
	return result, nil
}

const (
	msgEmailTaken       = "This email address is already registered."
	msgSignupConflict   = "Registration could not be completed. Please try again."
	msgEmailMismatch    = "Email address and confirmation do not match."
	msgPasswordMismatch = "Password and confirmation do not match."
	msgInvalidEmail     = "Please enter a valid email address."
)

func (p *AccountProvisioner) validate(input SignupInput) error {
	required := []struct {
		name  string
		value string
	}{
		{"postal_code", input.PostalCode},
		{"prefecture", input.Prefecture},
		{"city", input.City},
		{"address_line1", input.AddressLine1},
		{"company_name", input.CompanyName},
		{"company_name_kana", input.CompanyNameKana},
		{"delivery_location_name", input.DeliveryLocationName},
		{"company_phone", input.CompanyPhone},
		{"user_name", input.UserName},
		{"user_name_kana", input.UserNameKana},
		{"email", input.Email},
		{"email_confirm", input.EmailConfirm},
		{"password", input.Password},
		{"password_confirm", input.PasswordConfirm},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return validationError(field.name + " is required.")
		}
	}

	if strings.TrimSpace(input.Email) != strings.TrimSpace(input.EmailConfirm) {
		return validationError(msgEmailMismatch)
	}
	if input.Password != input.PasswordConfirm {
		return validationError(msgPasswordMismatch)
	}
	if utf8.RuneCountInString(input.Password) < p.cfg.MinPasswordLength {
		return validationError(fmt.Sprintf("Password must be at least %d characters.", p.cfg.MinPasswordLength))
	}
	if err := validate.Var(strings.TrimSpace(input.Email), "email"); err != nil {
		return validationError(msgInvalidEmail)
	}
	return nil
}

func (p *AccountProvisioner) throttle(ctx context.Context, clientIP string) error {
	if p.limiter == nil || p.cfg.MaxAttempts <= 0 {
		return nil
	}
	key := SignupKey(clientIP)
	allowed, err := p.limiter.CheckAndIncrement(ctx, key, p.cfg.MaxAttempts, p.cfg.Window)
	if err != nil {
		p.log.Error().Err(err).Str("key", key).Bool("fail_open", p.cfg.FailOpen).Msg("attempt limiter unavailable")
		if p.cfg.FailOpen {
			return nil
		}
		return rateLimited(err)
	}
	if !allowed {
		p.record("rate_limited")
		if p.recorder != nil {
			p.recorder.RateLimited("signup")
		}
		return rateLimited(nil)
	}
	return nil
}

func (p *AccountProvisioner) provisioningFailed(ctx context.Context, clientIP string, err error) error {
	switch {
	case KindOf(err) == KindCodeSpaceExhausted:
		p.record("code_space_exhausted")
		p.log.Error().Err(err).Msg("signup aborted: organization code space exhausted")
		publishEvent(ctx, p.events, p.recorder, p.log, models.AuthEvent{
			Kind:     models.AuthEventCodeSpaceExhausted,
			ClientIP: clientIP,
		})
		return err
	case errors.Is(err, repository.ErrEmailTaken):
		p.record("conflict")
		return &Error{Kind: KindConflict, Message: msgEmailTaken, Err: err}
	case errors.Is(err, repository.ErrOrganizationCodeTaken), errors.Is(err, repository.ErrUserCodeTaken):
		p.record("conflict")
		return &Error{Kind: KindConflict, Message: msgSignupConflict, Err: err}
	default:
		p.record("error")
		return internalError(err)
	}
}

func (p *AccountProvisioner) record(outcome string) {
	if p.recorder != nil {
		p.recorder.SignupOutcome(outcome)
	}
}

func buildOrganization(input SignupInput) *models.Organization {
	prefecture := security.SanitizeText(input.Prefecture)
	city := security.SanitizeText(input.City)
	line1 := security.SanitizeText(input.AddressLine1)
	line2 := security.SanitizeOptional(input.AddressLine2)

	fullAddress := prefecture + city + line1
	if line2 != nil {
		fullAddress += " " + *line2
	}

	return &models.Organization{
		ID:                   ids.New(),
		Name:                 security.SanitizeText(input.CompanyName),
		NameKana:             security.SanitizeText(input.CompanyNameKana),
		PostalCode:           security.DigitsOnly(input.PostalCode),
		Prefecture:           prefecture,
		City:                 city,
		AddressLine1:         line1,
		AddressLine2:         line2,
		FullAddress:          fullAddress,
		DeliveryLocationName: security.SanitizeText(input.DeliveryLocationName),
		Phone:                security.PhoneDigits(input.CompanyPhone),
		PhoneExtension:       security.SanitizeOptional(input.PhoneExtension),
		DeliveryNotes:        security.SanitizeOptional(input.DeliveryNotes),
		ContactPerson:        security.SanitizeText(input.UserName),
		Status:               models.OrganizationStatusActive,
		SignupIP:             input.ClientIP,
	}
}
