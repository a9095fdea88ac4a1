package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/tenants/repository"
	"inbox_crm_backend/internal/tenants/transport"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/phone"
)

// TokenStore issues and consumes single-use channel connect tokens.
type TokenStore interface {
	Create(ctx context.Context, tenantID uuid.UUID) (string, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

// Service provides business logic for tenant management and recipient resolution.
type Service struct {
	repo     repository.Repository
	tokens   TokenStore
	tokenTTL time.Duration
	bus      events.Bus
	log      *logger.Logger
}

// New creates a new tenants service. tokens may be nil when redis is not
// configured; connect token endpoints then return an internal error.
func New(repo repository.Repository, tokens TokenStore, tokenTTL time.Duration, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, tokenTTL: tokenTTL, bus: bus, log: log}
}

// ResolveRecipient finds the business owning a channel identity. Phone-shaped
// identities are normalized before lookup so channel payload formats don't
// fragment resolution.
func (s *Service) ResolveRecipient(ctx context.Context, channel, recipientRef string) (repository.Business, error) {
	normalized := phone.NormalizeE164(recipientRef)
	return s.repo.ResolveByChannelIdentity(ctx, channel, normalized)
}

// GetByID retrieves a business by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.BusinessResponse, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.BusinessResponse{}, err
	}
	return toResponse(b), nil
}

// List retrieves all businesses.
func (s *Service) List(ctx context.Context) (transport.BusinessListResponse, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return transport.BusinessListResponse{}, err
	}

	responses := make([]transport.BusinessResponse, len(items))
	for i, item := range items {
		responses[i] = toResponse(item)
	}

	return transport.BusinessListResponse{Items: responses, Total: len(responses)}, nil
}

// Create registers a new business with its channel identity.
func (s *Service) Create(ctx context.Context, req transport.CreateBusinessRequest) (transport.BusinessResponse, error) {
	archiveAfterDays := 30
	if req.ArchiveAfterDays != nil {
		archiveAfterDays = *req.ArchiveAfterDays
	}

	b, err := s.repo.Create(ctx, repository.CreateParams{
		Name:             req.Name,
		Channel:          req.Channel,
		ChannelIdentity:  phone.NormalizeE164(req.ChannelIdentity),
		ArchiveAfterDays: archiveAfterDays,
	})
	if err != nil {
		return transport.BusinessResponse{}, err
	}

	s.log.Info("business created", "id", b.ID, "name", b.Name, "channel", b.Channel)
	return toResponse(b), nil
}

// Update updates business settings.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateBusinessRequest) (transport.BusinessResponse, error) {
	b, err := s.repo.Update(ctx, repository.UpdateParams{
		ID:               id,
		Name:             req.Name,
		ArchiveAfterDays: req.ArchiveAfterDays,
	})
	if err != nil {
		return transport.BusinessResponse{}, err
	}

	return toResponse(b), nil
}

// IssueConnectToken creates a single-use token for binding a channel identity.
func (s *Service) IssueConnectToken(ctx context.Context, tenantID uuid.UUID) (transport.ConnectTokenResponse, error) {
	if s.tokens == nil {
		return transport.ConnectTokenResponse{}, apperr.Internal("connect tokens are not configured")
	}

	// Verify the tenant exists before issuing.
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return transport.ConnectTokenResponse{}, err
	}

	token, err := s.tokens.Create(ctx, tenantID)
	if err != nil {
		return transport.ConnectTokenResponse{}, err
	}

	return transport.ConnectTokenResponse{
		Token:     token,
		ExpiresIn: int(s.tokenTTL.Seconds()),
	}, nil
}

// CompleteConnect consumes a connect token and binds the channel identity to
// the tenant the token was issued for.
func (s *Service) CompleteConnect(ctx context.Context, req transport.ConnectCompleteRequest) (transport.BusinessResponse, error) {
	if s.tokens == nil {
		return transport.BusinessResponse{}, apperr.Internal("connect tokens are not configured")
	}

	tenantID, err := s.tokens.Consume(ctx, req.Token)
	if err != nil {
		return transport.BusinessResponse{}, err
	}

	identity := phone.NormalizeE164(req.ChannelIdentity)
	b, err := s.repo.SetChannelIdentity(ctx, tenantID, req.Channel, identity)
	if err != nil {
		return transport.BusinessResponse{}, err
	}

	s.bus.Publish(ctx, events.ChannelConnected{
		BaseEvent:       events.NewBaseEvent(),
		TenantID:        b.ID,
		Channel:         b.Channel,
		ChannelIdentity: b.ChannelIdentity,
	})

	s.log.Info("channel connected", "tenant_id", b.ID, "channel", b.Channel)
	return toResponse(b), nil
}

func toResponse(b repository.Business) transport.BusinessResponse {
	return transport.BusinessResponse{
		ID:               b.ID,
		Name:             b.Name,
		Channel:          b.Channel,
		ChannelIdentity:  b.ChannelIdentity,
		ArchiveAfterDays: b.ArchiveAfterDays,
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        b.UpdatedAt.Format(time.RFC3339),
	}
}
