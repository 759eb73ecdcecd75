// Package accounts creates the login identities that customer profiles are
// attached to.
//
// Accounts created on behalf of a customer, for example during a bulk import,
// get a random credential and are flagged so the customer must choose a new
// password on first sign-in.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailRejected is returned when an email fails the account policy.
var ErrEmailRejected = errors.New("email rejected")

// Repository persists accounts.
type Repository interface {
	InsertAccount(ctx context.Context, a model.Account) error
}

// Service creates accounts. It satisfies importer.AccountCreator.
type Service struct {
	repo           Repository
	cost           int
	credentialSize int
	blocked        map[string]bool
	now            func() time.Time
}

// New creates an account service.
func New(repo Repository, cfg config.AccountsConfig) *Service {
	blocked := make(map[string]bool, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		blocked[strings.ToLower(strings.TrimSpace(d))] = true
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	size := cfg.CredentialLength
	if size <= 0 {
		size = 18
	}
	return &Service{
		repo:           repo,
		cost:           cost,
		credentialSize: size,
		blocked:        blocked,
		now:            time.Now,
	}
}

// CheckEmail applies the account policy and returns the normalized address.
func (s *Service) CheckEmail(email string) (string, error) {
	normalized := model.NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("%w: %q is not a valid address", ErrEmailRejected, email)
	}
	_, domain, _ := strings.Cut(normalized, "@")
	if s.blocked[domain] {
		return "", fmt.Errorf("%w: domain %s is not allowed", ErrEmailRejected, domain)
	}
	return normalized, nil
}

// CreateAccount stores a new account for email with the given initial
// credential and returns its id. An empty credential is replaced with a
// generated one. The account always requires a password reset.
func (s *Service) CreateAccount(ctx context.Context, email, displayName, credential string) (uuid.UUID, error) {
	normalized, err := s.CheckEmail(email)
	if err != nil {
		return uuid.Nil, err
	}

	if credential == "" {
		if credential, err = s.NewCredential(); err != nil {
			return uuid.Nil, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.cost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	acct := model.Account{
		ID:                uuid.New(),
		Email:             normalized,
		DisplayName:       strings.TrimSpace(displayName),
		PasswordHash:      string(hash),
		MustResetPassword: true,
		CreatedAt:         s.now(),
	}
	if err := s.repo.InsertAccount(ctx, acct); err != nil {
		return uuid.Nil, fmt.Errorf("insert account %s: %w", normalized, err)
	}

	slog.Debug("account created", "account_id", acct.ID, "email", normalized)
	return acct.ID, nil
}

// NewCredential returns a random credential of the configured size.
func (s *Service) NewCredential() (string, error) {
	return GenerateCredential(s.credentialSize)
}

// GenerateCredential returns n random bytes, URL-safe base64 encoded.
func GenerateCredential(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
