package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"examforge/internal/common"
	"examforge/internal/common/security"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"

	"github.com/google/uuid"
)

type AuthService struct {
	userRepo         repository.UserRepository
	adminSignupToken string
	clock            common.Clock
}

// NewAuthService builds the account service. An empty adminSignupToken disables admin signup.
func NewAuthService(userRepo repository.UserRepository, adminSignupToken string, clock common.Clock) *AuthService {
	return &AuthService{userRepo: userRepo, adminSignupToken: adminSignupToken, clock: clock}
}

type SignupRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	AdminToken string `json:"admin_token,omitempty"`
}

type LoginRequest struct {
	LoginField string `json:"login_field" validate:"required"` // Can be username or email
	Password   string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	role := model.RoleCandidate
	if req.AdminToken != "" {
		if s.adminSignupToken == "" || subtle.ConstantTimeCompare([]byte(req.AdminToken), []byte(s.adminSignupToken)) != 1 {
			return nil, common.Errorf("invalid admin signup token: %w", common.ErrForbidden)
		}
		role = model.RoleAdmin
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock.Now()
	user := &model.User{
		ID:             uuid.NewString(),
		Username:       req.Username,
		Email:          strings.ToLower(req.Email),
		HashedPassword: hashedPassword,
		Role:           role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Repo might return common.ErrConflict
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	token, err := security.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = "" // Clear password before returning
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	// Try finding by email first, then by username
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(req.LoginField))
	if errors.Is(err, common.ErrNotFound) {
		user, err = s.userRepo.FindByUsername(ctx, req.LoginField)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized // Generic message for security
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.ErrUnauthorized
	}

	token, err := security.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}
