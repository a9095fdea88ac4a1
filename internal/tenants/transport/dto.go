package transport

import "github.com/google/uuid"

// CreateBusinessRequest contains data for registering a new business.
type CreateBusinessRequest struct {
	Name             string `json:"name" validate:"required,min=1,max=200"`
	Channel          string `json:"channel" validate:"required,oneof=whatsapp sms telegram"`
	ChannelIdentity  string `json:"channelIdentity" validate:"required,min=3,max=100"`
	ArchiveAfterDays *int   `json:"archiveAfterDays,omitempty" validate:"omitempty,min=1,max=3650"`
}

// UpdateBusinessRequest contains data for updating a business.
type UpdateBusinessRequest struct {
	Name             *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	ArchiveAfterDays *int    `json:"archiveAfterDays,omitempty" validate:"omitempty,min=1,max=3650"`
}

// ConnectCompleteRequest redeems a connect token and binds a channel identity.
type ConnectCompleteRequest struct {
	Token           string `json:"token" validate:"required,len=64,hexadecimal"`
	Channel         string `json:"channel" validate:"required,oneof=whatsapp sms telegram"`
	ChannelIdentity string `json:"channelIdentity" validate:"required,min=3,max=100"`
}

// BusinessResponse represents a business in API responses.
type BusinessResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Channel          string    `json:"channel"`
	ChannelIdentity  string    `json:"channelIdentity"`
	ArchiveAfterDays int       `json:"archiveAfterDays"`
	CreatedAt        string    `json:"createdAt"`
	UpdatedAt        string    `json:"updatedAt"`
}

// BusinessListResponse wraps a list of businesses.
type BusinessListResponse struct {
	Items []BusinessResponse `json:"items"`
	Total int                `json:"total"`
}

// ConnectTokenResponse carries a freshly issued connect token.
type ConnectTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresInSeconds"`
}
