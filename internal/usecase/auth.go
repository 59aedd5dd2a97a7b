package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

// AuthService registers users and verifies credentials. Token issuance
// lives in the HTTP layer; this service only owns identity data.
type AuthService struct {
	Users domain.UserRepository
}

// NewAuthService constructs an AuthService.
func NewAuthService(users domain.UserRepository) AuthService {
	return AuthService{Users: users}
}

// Register creates a user with a bcrypt-hashed password.
func (s AuthService) Register(ctx domain.Context, name, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return domain.User{}, fmt.Errorf("%w: name and email required", domain.ErrInvalidArgument)
	}
	if len(password) < 8 {
		return domain.User{}, fmt.Errorf("%w: password must have at least 8 characters", domain.ErrInvalidArgument)
	}
	if _, err := s.Users.GetByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.Register: %w", err)
	}
	u := domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	id, err := s.Users.Create(ctx, u)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.Register: %w", err)
	}
	u.ID = id
	u.PasswordHash = ""
	return u, nil
}

// Login verifies credentials and returns the user on success. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s AuthService) Login(ctx domain.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	u.PasswordHash = ""
	return u, nil
}
