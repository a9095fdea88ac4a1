package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"inbox_crm_backend/internal/auth/repository"
	"inbox_crm_backend/internal/auth/transport"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/config"
)

const accessTokenType = "access"

// Service owns authentication: password verification and access token
// issuance, plus user management within a tenant.
type Service struct {
	repo *repository.Repository
	cfg  config.AuthServiceConfig
}

// New creates a new auth service.
func New(repo *repository.Repository, cfg config.AuthServiceConfig) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// Login verifies credentials and issues an access token carrying the user's
// tenant and role.
func (s *Service) Login(ctx context.Context, req transport.LoginRequest) (transport.LoginResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		// Same error for unknown email and wrong password.
		return transport.LoginResponse{}, apperr.Unauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return transport.LoginResponse{}, apperr.Unauthorized("invalid credentials")
	}

	ttl := s.cfg.GetAccessTokenTTL()
	token, err := s.signAccessToken(user, ttl)
	if err != nil {
		return transport.LoginResponse{}, err
	}

	return transport.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(ttl.Seconds()),
		User:        toUserResponse(user),
	}, nil
}

// CreateUser registers a new user under the tenant.
func (s *Service) CreateUser(ctx context.Context, tenantID uuid.UUID, req transport.CreateUserRequest) (transport.UserResponse, error) {
	role := req.Role
	if role == "" {
		role = "agent"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return transport.UserResponse{}, apperr.Wrap(apperr.KindInternal, "password hashing failed", err)
	}

	user, err := s.repo.Create(ctx, repository.CreateParams{
		TenantID:     tenantID,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Role:         role,
	})
	if err != nil {
		return transport.UserResponse{}, err
	}
	return toUserResponse(user), nil
}

// GetUser retrieves a user within the tenant.
func (s *Service) GetUser(ctx context.Context, tenantID, id uuid.UUID) (transport.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.UserResponse{}, err
	}
	return toUserResponse(user), nil
}

// ListUsers retrieves all users of the tenant.
func (s *Service) ListUsers(ctx context.Context, tenantID uuid.UUID) (transport.UserListResponse, error) {
	users, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return transport.UserListResponse{}, err
	}

	resp := transport.UserListResponse{Items: make([]transport.UserResponse, len(users))}
	for i, user := range users {
		resp.Items[i] = toUserResponse(user)
	}
	return resp, nil
}

func (s *Service) signAccessToken(user repository.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       user.ID.String(),
		"tenant_id": user.TenantID.String(),
		"type":      accessTokenType,
		"roles":     []string{user.Role},
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "token signing failed", err)
	}
	return signed, nil
}

func toUserResponse(u repository.User) transport.UserResponse {
	return transport.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}
