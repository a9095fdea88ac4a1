package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	convrepo "inbox_crm_backend/internal/conversations/repository"
	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/ingestion/transport"
	tenantrepo "inbox_crm_backend/internal/tenants/repository"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
)

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// fakeResolver maps channel identities to businesses.
type fakeResolver struct {
	businesses map[string]tenantrepo.Business // key: channel + "|" + identity
}

func (r *fakeResolver) ResolveRecipient(_ context.Context, channel, recipientRef string) (tenantrepo.Business, error) {
	business, ok := r.businesses[channel+"|"+recipientRef]
	if !ok {
		return tenantrepo.Business{}, apperr.NotFound("no business bound to this channel identity")
	}
	return business, nil
}

// fakeAppender records appended messages and simulates channel message ID
// dedup.
type fakeAppender struct {
	seen    map[string]bool
	applied []convrepo.UpsertAndAppendParams
}

func newFakeAppender() *fakeAppender {
	return &fakeAppender{seen: make(map[string]bool)}
}

func (a *fakeAppender) UpsertAndAppend(_ context.Context, params convrepo.UpsertAndAppendParams) (convrepo.UpsertAndAppendResult, error) {
	if params.ChannelMessageID != nil {
		if a.seen[*params.ChannelMessageID] {
			return convrepo.UpsertAndAppendResult{Duplicate: true}, nil
		}
		a.seen[*params.ChannelMessageID] = true
	}
	a.applied = append(a.applied, params)

	return convrepo.UpsertAndAppendResult{
		Conversation: convrepo.Conversation{
			ID:          uuid.New(),
			TenantID:    params.TenantID,
			Channel:     params.Channel,
			CustomerRef: params.CustomerRef,
		},
		Message: convrepo.Message{
			ID:        uuid.New(),
			TenantID:  params.TenantID,
			Direction: params.Direction,
			Body:      params.Body,
			SentAt:    params.SentAt,
		},
		ConversationCreated: true,
	}, nil
}

const (
	businessNumber = "+31201234567"
	customerNumber = "+31612345678"
)

func newTestGateway(bus events.Bus) (*Gateway, *fakeResolver, *fakeAppender, tenantrepo.Business) {
	business := tenantrepo.Business{
		ID:              uuid.New(),
		Name:            "Test Business",
		Channel:         "whatsapp",
		ChannelIdentity: businessNumber,
	}
	resolver := &fakeResolver{businesses: map[string]tenantrepo.Business{
		"whatsapp|" + businessNumber: business,
	}}
	appender := newFakeAppender()
	gateway := New(resolver, appender, bus, logger.New("test"), "NL")
	return gateway, resolver, appender, business
}

func validEvent() transport.RawEvent {
	return transport.RawEvent{
		Channel:          "whatsapp",
		ChannelMessageID: "wamid.001",
		SenderRef:        customerNumber,
		RecipientRef:     businessNumber,
		SenderName:       "Casey Customer",
		Body:             "hello",
		SentAt:           time.Now().Add(-time.Minute),
	}
}

func TestIngestApplied(t *testing.T) {
	bus := &fakeBus{}
	gateway, _, appender, business := newTestGateway(bus)

	resp, err := gateway.Ingest(context.Background(), nil, validEvent())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Outcome != transport.OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", resp.Outcome)
	}
	if resp.ConversationID == nil || resp.MessageID == nil {
		t.Fatal("applied response should carry conversation and message IDs")
	}

	if len(appender.applied) != 1 {
		t.Fatalf("applied messages = %d, want 1", len(appender.applied))
	}
	got := appender.applied[0]
	if got.TenantID != business.ID {
		t.Errorf("tenant = %s, want %s", got.TenantID, business.ID)
	}
	if got.Direction != convrepo.DirectionInbound {
		t.Errorf("direction = %q, want INBOUND", got.Direction)
	}
	if got.CustomerRef != customerNumber {
		t.Errorf("customer ref = %q, want sender", got.CustomerRef)
	}
	if got.SenderType != convrepo.SenderCustomer {
		t.Errorf("sender type = %q, want CUSTOMER", got.SenderType)
	}
	if got.CustomerName != "Casey Customer" {
		t.Errorf("customer name = %q, want Casey Customer", got.CustomerName)
	}

	if bus.count() != 1 {
		t.Errorf("published events = %d, want 1", bus.count())
	}
}

func TestIngestDuplicate(t *testing.T) {
	bus := &fakeBus{}
	gateway, _, appender, _ := newTestGateway(bus)

	if _, err := gateway.Ingest(context.Background(), nil, validEvent()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	resp, err := gateway.Ingest(context.Background(), nil, validEvent())
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if resp.Outcome != transport.OutcomeDuplicate {
		t.Errorf("outcome = %q, want duplicate", resp.Outcome)
	}
	if resp.ConversationID != nil || resp.MessageID != nil {
		t.Error("duplicate response should not carry IDs")
	}
	if len(appender.applied) != 1 {
		t.Errorf("applied messages = %d, want 1", len(appender.applied))
	}

	// A duplicate never publishes.
	if bus.count() != 1 {
		t.Errorf("published events = %d, want 1", bus.count())
	}
}

func TestIngestUnresolvedRecipient(t *testing.T) {
	bus := &fakeBus{}
	gateway, _, appender, _ := newTestGateway(bus)

	event := validEvent()
	event.RecipientRef = "+31999999999"

	resp, err := gateway.Ingest(context.Background(), nil, event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Outcome != transport.OutcomeUnresolvedRecipient {
		t.Errorf("outcome = %q, want unresolved_recipient", resp.Outcome)
	}
	if len(appender.applied) != 0 {
		t.Error("unresolved recipient must write nothing")
	}
	if bus.count() != 0 {
		t.Error("unresolved recipient must publish nothing")
	}
}

func TestIngestOutboundEcho(t *testing.T) {
	bus := &fakeBus{}
	gateway, _, appender, business := newTestGateway(bus)

	// The business wrote to the customer from the channel directly; the
	// sender resolves, the recipient does not.
	event := validEvent()
	event.SenderRef = businessNumber
	event.RecipientRef = customerNumber
	event.SenderName = ""
	event.Body = "we ship tomorrow"

	resp, err := gateway.Ingest(context.Background(), nil, event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Outcome != transport.OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", resp.Outcome)
	}

	got := appender.applied[0]
	if got.TenantID != business.ID {
		t.Errorf("tenant = %s, want %s", got.TenantID, business.ID)
	}
	if got.Direction != convrepo.DirectionOutbound {
		t.Errorf("direction = %q, want OUTBOUND", got.Direction)
	}
	if got.CustomerRef != customerNumber {
		t.Errorf("customer ref = %q, want the recipient", got.CustomerRef)
	}
	if got.SenderType != convrepo.SenderBusiness {
		t.Errorf("sender type = %q, want BUSINESS", got.SenderType)
	}
}

func TestIngestSelfAddressed(t *testing.T) {
	gateway, _, appender, _ := newTestGateway(&fakeBus{})

	event := validEvent()
	event.SenderRef = businessNumber
	event.RecipientRef = businessNumber

	resp, err := gateway.Ingest(context.Background(), nil, event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Outcome != transport.OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", resp.Outcome)
	}
	if appender.applied[0].Direction != convrepo.DirectionOutbound {
		t.Errorf("self-addressed event direction = %q, want OUTBOUND", appender.applied[0].Direction)
	}
}

func TestIngestTenantMismatch(t *testing.T) {
	gateway, _, appender, _ := newTestGateway(&fakeBus{})

	otherTenant := uuid.New()
	_, err := gateway.Ingest(context.Background(), &otherTenant, validEvent())
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden error, got %v", err)
	}
	if len(appender.applied) != 0 {
		t.Error("tenant mismatch must write nothing")
	}
}

func TestIngestValidation(t *testing.T) {
	gateway, _, appender, _ := newTestGateway(&fakeBus{})

	tests := []struct {
		name   string
		mutate func(*transport.RawEvent)
	}{
		{"missing channel", func(e *transport.RawEvent) { e.Channel = "" }},
		{"missing channel message id", func(e *transport.RawEvent) { e.ChannelMessageID = "  " }},
		{"missing sender", func(e *transport.RawEvent) { e.SenderRef = "" }},
		{"missing recipient", func(e *transport.RawEvent) { e.RecipientRef = "" }},
		{"missing sent at", func(e *transport.RawEvent) { e.SentAt = time.Time{} }},
		{"sent at in the future", func(e *transport.RawEvent) { e.SentAt = time.Now().Add(time.Hour) }},
		{"no body and no attachment", func(e *transport.RawEvent) { e.Body = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(&event)

			_, err := gateway.Ingest(context.Background(), nil, event)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if len(appender.applied) != 0 {
		t.Error("malformed events must write nothing")
	}
}

func TestIngestBodylessAttachment(t *testing.T) {
	gateway, _, _, _ := newTestGateway(&fakeBus{})

	key := "attachments/abc"
	event := validEvent()
	event.Body = ""
	event.AttachmentKey = &key

	resp, err := gateway.Ingest(context.Background(), nil, event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if resp.Outcome != transport.OutcomeApplied {
		t.Errorf("outcome = %q, want applied", resp.Outcome)
	}
}

func TestNormalizeRefMergesNumberFormats(t *testing.T) {
	gateway, _, appender, _ := newTestGateway(&fakeBus{})

	// The same customer writing with a nationally formatted number should
	// land under the same canonical ref.
	event := validEvent()
	event.SenderRef = "06 12345678"
	event.ChannelMessageID = "wamid.002"

	if _, err := gateway.Ingest(context.Background(), nil, event); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := appender.applied[0].CustomerRef; got != customerNumber {
		t.Errorf("customer ref = %q, want %q", got, customerNumber)
	}
}
