package transport

import (
	"github.com/google/uuid"
)

// LoginRequest authenticates a user with email and password.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int64        `json:"expiresIn"`
	User        UserResponse `json:"user"`
}

// CreateUserRequest registers a user under the caller's tenant.
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"displayName" validate:"required,max=256"`
	Role        string `json:"role" validate:"omitempty,oneof=admin agent"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
}

// UserListResponse wraps a tenant's users.
type UserListResponse struct {
	Items []UserResponse `json:"items"`
}
