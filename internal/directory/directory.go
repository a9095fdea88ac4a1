// Package directory resolves user IDs to display names for audit trails.
package directory

import (
	"context"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/auth/repository"
)

// Directory looks up display names in the user store.
type Directory struct {
	users *repository.Repository
}

// New creates a directory backed by the user repository.
func New(users *repository.Repository) *Directory {
	return &Directory{users: users}
}

// DisplayName resolves a user's display name within a tenant.
func (d *Directory) DisplayName(ctx context.Context, tenantID, userID uuid.UUID) (string, error) {
	user, err := d.users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	return user.DisplayName, nil
}
