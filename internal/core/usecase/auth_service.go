package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

const tokenBytes = 32

type AuthService struct {
	repo  ports.APIKeyRepository
	users ports.UserRepository
}

func NewAuthService(repo ports.APIKeyRepository, users ports.UserRepository) *AuthService {
	return &AuthService{repo: repo, users: users}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active || apiKey.UserID == "" {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

func (s *AuthService) Register(ctx context.Context, reg domain.Registration) (domain.User, error) {
	reg = reg.Normalize()
	if err := reg.Validate(); err != nil {
		return domain.User{}, err
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return domain.User{}, err
	}
	return s.users.Create(ctx, domain.User{
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
}

// Login verifies the credentials and issues a new bearer token. Unknown emails
// and wrong passwords both return ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, domain.User, error) {
	user, err := s.users.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.User{}, ErrUnauthorized
		}
		return "", domain.User{}, err
	}
	if user.PasswordHash == "" {
		return "", domain.User{}, ErrUnauthorized
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return "", domain.User{}, ErrUnauthorized
	}

	token, err := NewToken()
	if err != nil {
		return "", domain.User{}, err
	}
	if err := s.repo.Upsert(ctx, domain.APIKey{
		TokenHash: HashToken(token),
		UserID:    user.ID,
		Name:      "login",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

func (s *AuthService) User(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, ErrUnauthorized
	}
	return s.users.FindByID(ctx, id)
}

// Bootstrap upserts a password-less user named name and binds token to it.
func (s *AuthService) Bootstrap(ctx context.Context, token, name string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, errors.New("bootstrap token is empty")
	}
	if name == "" {
		name = "bootstrap"
	}

	email := domain.NormalizeEmail(name + "@bootstrap.local")
	if !domain.ValidEmail(email) {
		return domain.User{}, fmt.Errorf("bootstrap name %q does not form a valid email", name)
	}
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.PasswordHash != "":
		return domain.User{}, fmt.Errorf("bootstrap email %s belongs to a registered user", email)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, fmt.Errorf("bootstrap lookup: %w", err)
	}

	user, err := s.users.Upsert(ctx, domain.User{
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("bootstrap user: %w", err)
	}
	if err := s.repo.Upsert(ctx, domain.APIKey{
		TokenHash: HashToken(token),
		UserID:    user.ID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return domain.User{}, fmt.Errorf("bootstrap api key: %w", err)
	}
	return user, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
