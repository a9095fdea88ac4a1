package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	convrepo "inbox_crm_backend/internal/conversations/repository"
	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/ingestion/transport"
	tenantrepo "inbox_crm_backend/internal/tenants/repository"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/phone"
)

// RecipientResolver maps a channel identity to the tenant owning it.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, channel, recipientRef string) (tenantrepo.Business, error)
}

// ConversationAppender lands one channel message atomically.
type ConversationAppender interface {
	UpsertAndAppend(ctx context.Context, params convrepo.UpsertAndAppendParams) (convrepo.UpsertAndAppendResult, error)
}

// Gateway applies raw channel events: it resolves the tenant from the channel
// identities on the event, infers direction, and delegates the atomic append
// to the conversation registry.
type Gateway struct {
	resolver RecipientResolver
	appender ConversationAppender
	bus      events.Bus
	log      *logger.Logger
	region   string
}

// New creates a new ingestion gateway. region is the default phone region for
// normalizing bare national numbers.
func New(resolver RecipientResolver, appender ConversationAppender, bus events.Bus, log *logger.Logger, region string) *Gateway {
	return &Gateway{resolver: resolver, appender: appender, bus: bus, log: log, region: region}
}

// Ingest applies one raw event. Malformed events fail validation with no side
// effects; an unknown recipient reports unresolved without writing anything;
// a replayed channel message ID reports duplicate and leaves no trace.
// expectedTenantID, when set, rejects events that resolve to another tenant.
func (g *Gateway) Ingest(ctx context.Context, expectedTenantID *uuid.UUID, raw transport.RawEvent) (transport.IngestResponse, error) {
	if err := validateRawEvent(raw); err != nil {
		return transport.IngestResponse{}, err
	}

	senderRef := g.normalizeRef(raw.Channel, raw.SenderRef)
	recipientRef := g.normalizeRef(raw.Channel, raw.RecipientRef)

	business, direction, customerRef, err := g.resolveParties(ctx, raw.Channel, senderRef, recipientRef)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			g.log.IngestEvent(raw.Channel, raw.ChannelMessageID, transport.OutcomeUnresolvedRecipient)
			return transport.IngestResponse{Outcome: transport.OutcomeUnresolvedRecipient}, nil
		}
		return transport.IngestResponse{}, err
	}

	if expectedTenantID != nil && business.ID != *expectedTenantID {
		return transport.IngestResponse{}, apperr.Forbidden("event belongs to another tenant")
	}

	senderType := convrepo.SenderCustomer
	customerName := raw.SenderName
	if direction == convrepo.DirectionOutbound {
		senderType = convrepo.SenderBusiness
		customerName = ""
	}

	channelMessageID := raw.ChannelMessageID
	result, err := g.appender.UpsertAndAppend(ctx, convrepo.UpsertAndAppendParams{
		TenantID:              business.ID,
		Channel:               raw.Channel,
		CustomerRef:           customerRef,
		CustomerName:          customerName,
		ChannelMessageID:      &channelMessageID,
		Direction:             direction,
		SenderType:            senderType,
		Body:                  raw.Body,
		AttachmentKey:         raw.AttachmentKey,
		AttachmentContentType: raw.AttachmentContentType,
		SentAt:                raw.SentAt,
	})
	if err != nil {
		return transport.IngestResponse{}, err
	}

	if result.Duplicate {
		g.log.IngestEvent(raw.Channel, raw.ChannelMessageID, transport.OutcomeDuplicate)
		return transport.IngestResponse{Outcome: transport.OutcomeDuplicate}, nil
	}

	g.bus.Publish(ctx, events.MessageIngested{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      result.Message.ID,
		ConversationID: result.Conversation.ID,
		TenantID:       business.ID,
		Channel:        raw.Channel,
		Direction:      direction,
		CustomerRef:    customerRef,
		Body:           result.Message.Body,
		SentAt:         result.Message.SentAt,
	})

	g.log.IngestEvent(raw.Channel, raw.ChannelMessageID, transport.OutcomeApplied)

	conversationID := result.Conversation.ID
	messageID := result.Message.ID
	return transport.IngestResponse{
		Outcome:        transport.OutcomeApplied,
		ConversationID: &conversationID,
		MessageID:      &messageID,
	}, nil
}

// resolveParties determines the tenant and direction. The recipient resolving
// to a business means a customer wrote in; the sender resolving means the
// business wrote from the channel directly and the event is an outbound echo.
func (g *Gateway) resolveParties(ctx context.Context, channel, senderRef, recipientRef string) (tenantrepo.Business, string, string, error) {
	business, err := g.resolver.ResolveRecipient(ctx, channel, recipientRef)
	if err == nil {
		if business.ChannelIdentity == senderRef {
			// Self-addressed event; treat as outbound so it lands in the
			// thread without inflating unread counts.
			return business, convrepo.DirectionOutbound, senderRef, nil
		}
		return business, convrepo.DirectionInbound, senderRef, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return tenantrepo.Business{}, "", "", err
	}

	business, err = g.resolver.ResolveRecipient(ctx, channel, senderRef)
	if err != nil {
		return tenantrepo.Business{}, "", "", err
	}
	return business, convrepo.DirectionOutbound, recipientRef, nil
}

// normalizeRef canonicalizes phone-based channel identities so the same
// customer never splits across conversations. Unparseable refs pass through
// trimmed.
func (g *Gateway) normalizeRef(channel, ref string) string {
	if channel != "whatsapp" && channel != "sms" {
		return strings.TrimSpace(ref)
	}
	return phone.NormalizeE164Region(ref, g.region)
}

func validateRawEvent(raw transport.RawEvent) error {
	switch {
	case strings.TrimSpace(raw.Channel) == "":
		return apperr.Validation("channel is required")
	case strings.TrimSpace(raw.ChannelMessageID) == "":
		return apperr.Validation("channelMessageId is required")
	case strings.TrimSpace(raw.SenderRef) == "":
		return apperr.Validation("senderRef is required")
	case strings.TrimSpace(raw.RecipientRef) == "":
		return apperr.Validation("recipientRef is required")
	case raw.SentAt.IsZero():
		return apperr.Validation("sentAt is required")
	case raw.SentAt.After(time.Now().Add(5 * time.Minute)):
		return apperr.Validation("sentAt is in the future")
	case strings.TrimSpace(raw.Body) == "" && raw.AttachmentKey == nil:
		return apperr.Validation("body or attachment is required")
	}
	return nil
}
