// Package auth issues the tokens the document and collab services consume.
// The crypto core never sees passwords; it only ever receives user ids that
// passed the JWT middleware.
package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"securedocs-backend/internal/domain"
	apperrors "securedocs-backend/pkg/errors"
	"securedocs-backend/pkg/jwt"
	"securedocs-backend/pkg/logger"
)

const (
	minUsernameLength = 3
	minPasswordLength = 10
)

// UserRepository is the slice of user storage the auth service needs
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Service handles account registration and token issuance
type Service struct {
	users      UserRepository
	jwtManager *jwt.Manager
}

// NewService creates a new auth service
func NewService(users UserRepository, jwtManager *jwt.Manager) *Service {
	return &Service{
		users:      users,
		jwtManager: jwtManager,
	}
}

// RegisterInput contains user registration data
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// TokenPair is an access token and the refresh token that renews it
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RegisterOutput contains the new account and its first token pair
type RegisterOutput struct {
	User   *domain.User `json:"user"`
	Tokens TokenPair    `json:"tokens"`
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, input *RegisterInput) (*RegisterOutput, error) {
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if existing != nil {
		return nil, apperrors.ConflictError("email already registered")
	}

	existing, err = s.users.GetByUsername(ctx, input.Username)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if existing != nil {
		return nil, apperrors.ConflictError("username already taken")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.InternalError("failed to hash password")
	}

	user := &domain.User{
		UserID:       uuid.New(),
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: string(passwordHash),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	logger.Info("user registered",
		zap.String("user_id", user.UserID.String()),
		zap.String("username", user.Username))

	return &RegisterOutput{User: user, Tokens: *tokens}, nil
}

// LoginInput contains login credentials
type LoginInput struct {
	Email    string
	Password string
}

// Login authenticates a user and issues a token pair. Failures are reported
// uniformly so callers cannot probe which accounts exist.
func (s *Service) Login(ctx context.Context, input *LoginInput) (*RegisterOutput, error) {
	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if user == nil {
		return nil, apperrors.UnauthorizedError("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, apperrors.UnauthorizedError("invalid credentials")
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	return &RegisterOutput{User: user, Tokens: *tokens}, nil
}

// Refresh exchanges a valid refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, apperrors.InvalidTokenError("invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.UnauthorizedError("user no longer exists")
	}

	return s.issueTokens(user)
}

func (s *Service) issueTokens(user *domain.User) (*TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.UserID, user.Username)
	if err != nil {
		return nil, apperrors.InternalError("failed to generate access token")
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.UserID)
	if err != nil {
		return nil, apperrors.InternalError("failed to generate refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func validateRegisterInput(input *RegisterInput) error {
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return apperrors.ValidationError("a valid email is required")
	}
	if len(input.Username) < minUsernameLength {
		return apperrors.ValidationError("username too short")
	}
	if len(input.Password) < minPasswordLength {
		return apperrors.ValidationError("password too short")
	}
	return nil
}
