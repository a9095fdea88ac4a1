package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/leads/domain"
	"inbox_crm_backend/internal/leads/repository"
	"inbox_crm_backend/internal/leads/transport"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/sanitize"
)

// EligibilityPolicy decides whether an ingested inbound message should open an
// AI-sourced lead on its conversation. Implementations are free to use intent
// labels, keywords, or an external model.
type EligibilityPolicy interface {
	ShouldOpenLead(ctx context.Context, event events.MessageIngested) (bool, string)
}

// Service owns the lead lifecycle: creation with supersession, explicit
// closes, and automatic lead opening driven by ingestion events.
type Service struct {
	repo   repository.Repository
	policy EligibilityPolicy
	bus    events.Bus
	log    *logger.Logger
}

// New creates a new leads service. policy may be nil; ingestion events then
// never open leads automatically.
func New(repo repository.Repository, policy EligibilityPolicy, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, policy: policy, bus: bus, log: log}
}

// Create opens a lead on a conversation. Any currently open lead on the same
// conversation is closed and marked superseded in the same transaction.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req transport.CreateLeadRequest) (transport.CreateLeadResponse, error) {
	source := req.Source
	if source == "" {
		source = domain.SourceManual
	}

	result, err := s.repo.CreateWithSupersede(ctx, repository.CreateParams{
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Source:         source,
		Note:           sanitize.Text(req.Note),
	})
	if err != nil {
		return transport.CreateLeadResponse{}, err
	}

	s.publishCreated(ctx, result)

	resp := transport.CreateLeadResponse{Lead: toLeadResponse(result.Lead)}
	if result.Superseded != nil {
		superseded := toLeadResponse(*result.Superseded)
		resp.Superseded = &superseded
	}
	return resp, nil
}

// GetByID retrieves a lead.
func (s *Service) GetByID(ctx context.Context, tenantID, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return toLeadResponse(lead), nil
}

// List retrieves leads with optional filters, most recent first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	page := req.Page
	pageSize := req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var status *domain.Status
	if req.Status != nil {
		parsed, err := domain.ParseStatus(*req.Status)
		if err != nil {
			return transport.LeadListResponse{}, err
		}
		status = &parsed
	}

	items, total, err := s.repo.List(ctx, repository.ListParams{
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Status:         status,
		Limit:          pageSize,
		Offset:         (page - 1) * pageSize,
	})
	if err != nil {
		return transport.LeadListResponse{}, err
	}

	responses := make([]transport.LeadResponse, len(items))
	for i, item := range items {
		responses[i] = toLeadResponse(item)
	}

	return transport.LeadListResponse{
		Items:    responses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Close moves a lead to LOST or CLOSED.
func (s *Service) Close(ctx context.Context, tenantID, id uuid.UUID, req transport.CloseLeadRequest) (transport.LeadResponse, error) {
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	if err := domain.ValidateClose(domain.StatusNew, target); err != nil {
		return transport.LeadResponse{}, err
	}

	lead, err := s.repo.Close(ctx, tenantID, id, target, sanitize.Text(req.Note))
	if err != nil {
		return transport.LeadResponse{}, err
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         lead.ID,
		ConversationID: lead.ConversationID,
		TenantID:       lead.TenantID,
		OldStatus:      string(domain.StatusNew),
		NewStatus:      string(lead.Status),
	})

	return toLeadResponse(lead), nil
}

// RegisterHandlers subscribes the service to ingestion events so qualifying
// inbound messages open AI-sourced leads.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.MessageIngested{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		event, ok := e.(events.MessageIngested)
		if !ok {
			return nil
		}
		return s.handleMessageIngested(ctx, event)
	}))
}

func (s *Service) handleMessageIngested(ctx context.Context, event events.MessageIngested) error {
	if s.policy == nil || event.Direction != "INBOUND" {
		return nil
	}

	open, note := s.policy.ShouldOpenLead(ctx, event)
	if !open {
		return nil
	}

	// An open lead already tracking this conversation wins; auto-creation
	// never supersedes. The one-open-lead index arbitrates, so two
	// qualifying messages racing each other leave exactly one lead.
	result, err := s.repo.CreateWithSupersede(ctx, repository.CreateParams{
		TenantID:       event.TenantID,
		ConversationID: event.ConversationID,
		Source:         domain.SourceAI,
		Note:           note,
		NoSupersede:    true,
	})
	if apperr.Is(err, apperr.KindConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open lead from ingestion: %w", err)
	}

	s.publishCreated(ctx, result)
	s.log.Info("lead opened from ingestion",
		"lead_id", result.Lead.ID,
		"conversation_id", event.ConversationID,
	)
	return nil
}

func (s *Service) publishCreated(ctx context.Context, result repository.CreateResult) {
	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         result.Lead.ID,
		ConversationID: result.Lead.ConversationID,
		TenantID:       result.Lead.TenantID,
		Source:         result.Lead.Source,
	})

	if result.Superseded != nil {
		s.bus.Publish(ctx, events.LeadSuperseded{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         result.Superseded.ID,
			SupersededByID: result.Lead.ID,
			ConversationID: result.Superseded.ConversationID,
			TenantID:       result.Superseded.TenantID,
		})
		s.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         result.Superseded.ID,
			ConversationID: result.Superseded.ConversationID,
			TenantID:       result.Superseded.TenantID,
			OldStatus:      string(domain.StatusNew),
			NewStatus:      string(result.Superseded.Status),
		})
	}
}

func toLeadResponse(l repository.Lead) transport.LeadResponse {
	resp := transport.LeadResponse{
		ID:               l.ID,
		ConversationID:   l.ConversationID,
		Status:           string(l.Status),
		Source:           l.Source,
		Note:             l.Note,
		SupersededBy:     l.SupersededBy,
		ConvertedOrderID: l.ConvertedOrderID,
		CreatedAt:        l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        l.UpdatedAt.Format(time.RFC3339),
	}
	if l.ClosedAt != nil {
		formatted := l.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &formatted
	}
	return resp
}
