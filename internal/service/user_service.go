package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
)

type UserService struct {
	users  UserStore
	tokens *security.Tokens
	bcrypt security.BcryptConfig
	now    func() time.Time
}

func NewUserService(users UserStore, tokens *security.Tokens, bcryptCfg security.BcryptConfig) *UserService {
	return &UserService{users: users, tokens: tokens, bcrypt: bcryptCfg, now: time.Now}
}

func (s *UserService) Signup(ctx context.Context, username, fullName, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	fullName = strings.TrimSpace(fullName)
	if username == "" || fullName == "" {
		return nil, domain.ErrInvalidInput
	}

	hash, err := security.HashPassword(password, s.bcrypt)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return nil, err
	}

	u := &domain.User{
		Username:     username,
		FullName:     fullName,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("users.CreateUser: %w", err)
	}
	return u, nil
}

type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("users.GetByUsername: %w", err)
	}
	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, err
	}

	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Token: token, ExpiresAt: exp}, nil
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("users.ListUsers: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// Authenticate resolves a bearer token to its claims.
func (s *UserService) Authenticate(raw string) (*security.Claims, error) {
	return s.tokens.Parse(raw)
}
