package domain

import (
	"net/mail"
	"strings"
	"time"
)

// APIKey is a hashed bearer token bound to a user. Login issues one per session;
// the bootstrap flag upserts a long-lived one at startup.
type APIKey struct {
	TokenHash string
	UserID    string
	Name      string
	Active    bool
	CreatedAt time.Time
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

const MinPasswordLength = 8

type Registration struct {
	Name     string
	Email    string
	Password string
}

func (r Registration) Normalize() Registration {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	return r
}

func (r Registration) Validate() error {
	var problems []string
	if r.Name == "" {
		problems = append(problems, "name is required")
	}
	if !ValidEmail(r.Email) {
		problems = append(problems, "email is invalid")
	}
	if len(r.Password) < MinPasswordLength {
		problems = append(problems, "password must be at least 8 characters")
	}
	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// ValidEmail accepts a bare addr-spec only; display names and angle brackets
// are rejected.
func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
