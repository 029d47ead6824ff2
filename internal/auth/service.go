package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

const minPasswordLength = 8

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

type Service struct {
	repo   Repository
	tokens *TokenManager
	logger *zap.Logger
}

func NewService(repo Repository, tokens *TokenManager, logger *zap.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Register creates an OWNER account awaiting identity documents.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.createUser(ctx, req, RoleOwner)
}

func (s *Service) createUser(ctx context.Context, req RegisterRequest, role Role) (*User, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, apperrors.Validation("email", "email is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperrors.Validation("password", "password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Infra("hash password", err)
	}

	user := &User{
		Email:              email,
		Name:               name,
		PasswordHash:       string(hash),
		Role:               role,
		IsActive:           true,
		VerificationStatus: InitialVerificationStatus(role),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(role)))
	return user, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, apperrors.Unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, apperrors.Unauthenticated("invalid email or password")
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is disabled")
	}

	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperrors.Infra("issue token", err)
	}
	return &LoginResponse{Token: token, ExpiresAt: exp, User: user}, nil
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, actor Actor) (*User, error) {
	return s.repo.GetUserByID(ctx, actor.UserID)
}

// SeedAdmin creates the bootstrap administrator if it does not exist.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.New("missing admin email or password")
	}

	_, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err == nil {
		s.logger.Info("Admin user already exists", zap.String("email", email))
		return nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return err
	}

	_, err = s.createUser(ctx, RegisterRequest{Email: email, Name: "Administrator", Password: password}, RoleAdmin)
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
