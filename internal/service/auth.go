// Package service holds the application logic between the HTTP handlers
// and the repository: account registration and login, quota admission and
// the analysis pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/agriplan/internal/apperr"
	"github.com/iliyamo/agriplan/internal/config"
	"github.com/iliyamo/agriplan/internal/model"
	"github.com/iliyamo/agriplan/internal/repository"
	"github.com/iliyamo/agriplan/internal/utils"
)

const (
	maxUsernameLen = 64
	// bcrypt ignores input past 72 bytes; longer passwords are refused
	// instead of silently truncated.
	maxPasswordBytes = 72
)

// Session is what a successful login hands back to the client.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
	Username  string    `json:"username"`
}

// AuthService registers accounts and issues session tokens.
type AuthService struct {
	Users        *repository.UserRepo
	Secret       string
	TTL          time.Duration
	BcryptCost   int
	DefaultLimit int
	Now          func() time.Time

	log *zap.Logger
}

func NewAuthService(cfg config.Config, users *repository.UserRepo, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		Users:        users,
		Secret:       cfg.JWTSecret,
		TTL:          cfg.TokenTTL,
		BcryptCost:   cfg.BcryptCost,
		DefaultLimit: cfg.DefaultDailyLimit,
		Now:          time.Now,
		log:          log.Named("auth"),
	}
}

// Register creates an account.  The username "admin" (any case) becomes an
// approved admin; everyone else starts as a pending user.
func (s *AuthService) Register(ctx context.Context, username, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return model.User{}, err
	}

	role, status := model.RoleUser, model.StatusPending
	if strings.EqualFold(username, model.AdminUsername) {
		role, status = model.RoleAdmin, model.StatusApproved
	}

	hash, err := utils.HashPassword(password, s.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.Users.Create(ctx, username, hash, role, status, s.DefaultLimit)
	if err != nil {
		return model.User{}, err
	}
	s.log.Info("account registered", zap.Uint64("user_id", id), zap.String("username", username), zap.String("role", role))
	return model.User{
		ID:         id,
		Username:   username,
		Role:       role,
		Status:     status,
		LimitDaily: s.DefaultLimit,
	}, nil
}

// Login checks the password and the account status and issues a token.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, apperr.ErrInvalidCredentials
	}

	u, err := s.Users.GetByUsername(ctx, username)
	if errors.Is(err, apperr.ErrUserNotFound) {
		utils.BurnPasswordCheck(password, s.BcryptCost)
		return Session{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, apperr.ErrInvalidCredentials
	}
	switch u.Status {
	case model.StatusBanned:
		return Session{}, apperr.ErrAccountBanned
	case model.StatusPending:
		return Session{}, apperr.ErrAccountPending
	}

	tok, err := utils.NewSessionToken(s.Secret, model.Identity{ID: u.ID, Role: u.Role, Username: u.Username}, s.TTL, s.Now())
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: tok.Token, ExpiresAt: tok.Exp, Role: u.Role, Username: u.Username}, nil
}

// Me returns the caller's own account row.
func (s *AuthService) Me(ctx context.Context, id uint64) (model.User, error) {
	return s.Users.GetByID(ctx, id)
}

func validateCredentials(username, password string) error {
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		return fmt.Errorf("%w: username is required", apperr.ErrInvalidInput)
	case n > maxUsernameLen:
		return fmt.Errorf("%w: username must be at most %d characters", apperr.ErrInvalidInput, maxUsernameLen)
	}
	switch n := len(password); {
	case n == 0:
		return fmt.Errorf("%w: password is required", apperr.ErrInvalidInput)
	case n > maxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", apperr.ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}
