package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

var ErrPasswordTooShort = errors.New("password too short")

type BcryptConfig struct {
	Cost      int // bcrypt.DefaultCost when 0
	MinLength int // 4 when 0
}

func HashPassword(plain string, cfg BcryptConfig) (string, error) {
	minLen := 4
	if cfg.MinLength > 0 {
		minLen = cfg.MinLength
	}
	cost := bcrypt.DefaultCost
	if cfg.Cost > 0 {
		cost = cfg.Cost
	}

	if len(plain) < minLen {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword returns domain.ErrInvalidCredentials on mismatch.
func ComparePassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredentials
		}
		return err
	}
	return nil
}
