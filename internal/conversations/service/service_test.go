package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/conversations/repository"
	"inbox_crm_backend/internal/conversations/transport"
	"inbox_crm_backend/internal/events"
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

func (b *fakeBus) eventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.published))
	for i, e := range b.published {
		names[i] = e.EventName()
	}
	return names
}

type conversationKey struct {
	tenantID    uuid.UUID
	channel     string
	customerRef string
}

// fakeConversationRepo keys conversations by (tenant, channel, customer) and
// dedups messages on channel message ID, mirroring the storage contract.
type fakeConversationRepo struct {
	conversations map[uuid.UUID]repository.Conversation
	byKey         map[conversationKey]uuid.UUID
	messages      map[uuid.UUID][]repository.Message
	seenChannelID map[string]bool
	intents       map[uuid.UUID]string
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[uuid.UUID]repository.Conversation),
		byKey:         make(map[conversationKey]uuid.UUID),
		messages:      make(map[uuid.UUID][]repository.Message),
		seenChannelID: make(map[string]bool),
		intents:       make(map[uuid.UUID]string),
	}
}

func (r *fakeConversationRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (repository.Conversation, error) {
	c, ok := r.conversations[id]
	if !ok || c.TenantID != tenantID {
		return repository.Conversation{}, apperr.NotFound("conversation not found")
	}
	return c, nil
}

func (r *fakeConversationRepo) List(_ context.Context, params repository.ListParams) ([]repository.Conversation, int, error) {
	var out []repository.Conversation
	for _, c := range r.conversations {
		if c.TenantID == params.TenantID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, _, conversationID uuid.UUID, _, _ int) ([]repository.Message, error) {
	return r.messages[conversationID], nil
}

func (r *fakeConversationRepo) UpsertAndAppend(_ context.Context, params repository.UpsertAndAppendParams) (repository.UpsertAndAppendResult, error) {
	if params.ChannelMessageID != nil {
		if r.seenChannelID[*params.ChannelMessageID] {
			return repository.UpsertAndAppendResult{Duplicate: true}, nil
		}
		r.seenChannelID[*params.ChannelMessageID] = true
	}

	key := conversationKey{params.TenantID, params.Channel, params.CustomerRef}
	id, exists := r.byKey[key]
	if !exists {
		id = uuid.New()
		r.byKey[key] = id
		r.conversations[id] = repository.Conversation{
			ID:          id,
			TenantID:    params.TenantID,
			Channel:     params.Channel,
			CustomerRef: params.CustomerRef,
			Status:      repository.StatusOpen,
		}
	}

	c := r.conversations[id]
	now := params.SentAt
	c.LastMessageAt = &now
	if params.Direction == repository.DirectionInbound {
		c.UnreadCount++
	}
	r.conversations[id] = c

	message := repository.Message{
		ID:               uuid.New(),
		ConversationID:   id,
		TenantID:         params.TenantID,
		Channel:          params.Channel,
		ChannelMessageID: params.ChannelMessageID,
		Direction:        params.Direction,
		SenderType:       params.SenderType,
		Body:             params.Body,
		SentAt:           params.SentAt,
	}
	r.messages[id] = append(r.messages[id], message)

	return repository.UpsertAndAppendResult{
		Conversation:        c,
		Message:             message,
		ConversationCreated: !exists,
	}, nil
}

func (r *fakeConversationRepo) AppendOutbound(_ context.Context, params repository.AppendOutboundParams) (repository.Message, error) {
	c, ok := r.conversations[params.ConversationID]
	if !ok || c.TenantID != params.TenantID {
		return repository.Message{}, apperr.NotFound("conversation not found")
	}
	author := params.AuthorUserID
	message := repository.Message{
		ID:             uuid.New(),
		ConversationID: params.ConversationID,
		TenantID:       params.TenantID,
		Direction:      repository.DirectionOutbound,
		SenderType:     repository.SenderBusiness,
		AuthorUserID:   &author,
		Body:           params.Body,
		SentAt:         time.Now(),
	}
	r.messages[params.ConversationID] = append(r.messages[params.ConversationID], message)
	return message, nil
}

func (r *fakeConversationRepo) MarkRead(_ context.Context, tenantID, conversationID uuid.UUID) error {
	c, ok := r.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return apperr.NotFound("conversation not found")
	}
	c.UnreadCount = 0
	r.conversations[conversationID] = c
	return nil
}

func (r *fakeConversationRepo) Archive(_ context.Context, tenantID, conversationID uuid.UUID) error {
	c, ok := r.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return apperr.NotFound("conversation not found")
	}
	now := time.Now()
	c.Status = repository.StatusArchived
	c.ArchivedAt = &now
	r.conversations[conversationID] = c
	return nil
}

func (r *fakeConversationRepo) SoftDelete(_ context.Context, tenantID, conversationID uuid.UUID) error {
	c, ok := r.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return apperr.NotFound("conversation not found")
	}
	now := time.Now()
	c.DeletedAt = &now
	r.conversations[conversationID] = c
	return nil
}

func (r *fakeConversationRepo) UpsertIntent(_ context.Context, params repository.IntentParams) (*string, error) {
	c, ok := r.conversations[params.ConversationID]
	if !ok || c.TenantID != params.TenantID {
		return nil, apperr.NotFound("conversation not found")
	}
	var previous *string
	if old, ok := r.intents[params.ConversationID]; ok {
		previous = &old
	}
	r.intents[params.ConversationID] = params.Label
	return previous, nil
}

func (r *fakeConversationRepo) ArchiveIdle(context.Context) (int64, error) { return 0, nil }

func (r *fakeConversationRepo) ListPurgeable(context.Context, time.Duration) ([]repository.Conversation, error) {
	return nil, nil
}

func (r *fakeConversationRepo) Purge(_ context.Context, tenantID, conversationID uuid.UUID) error {
	c, ok := r.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return apperr.NotFound("conversation not found")
	}
	delete(r.conversations, conversationID)
	delete(r.messages, conversationID)
	return nil
}

func newTestRegistry() (*Registry, *fakeConversationRepo, *fakeBus) {
	repo := newFakeConversationRepo()
	bus := &fakeBus{}
	return New(repo, nil, "", bus, logger.New("test")), repo, bus
}

func ingestParams(tenantID uuid.UUID, channelMessageID string) repository.UpsertAndAppendParams {
	id := channelMessageID
	return repository.UpsertAndAppendParams{
		TenantID:         tenantID,
		Channel:          "whatsapp",
		CustomerRef:      "+31612345678",
		ChannelMessageID: &id,
		Direction:        repository.DirectionInbound,
		SenderType:       repository.SenderCustomer,
		Body:             "hello",
		SentAt:           time.Now(),
	}
}

func TestUpsertAndAppendCreatesOnce(t *testing.T) {
	registry, _, bus := newTestRegistry()
	tenantID := uuid.New()

	first, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m1"))
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if !first.ConversationCreated {
		t.Error("first message should create the conversation")
	}

	second, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m2"))
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if second.ConversationCreated {
		t.Error("second message should reuse the conversation")
	}
	if second.Conversation.ID != first.Conversation.ID {
		t.Error("same customer on same channel should map to one conversation")
	}

	names := bus.eventNames()
	if len(names) != 1 || names[0] != "conversations.created" {
		t.Errorf("published events = %v, want one conversations.created", names)
	}
}

func TestUpsertAndAppendDuplicate(t *testing.T) {
	registry, repo, bus := newTestRegistry()
	tenantID := uuid.New()

	if _, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m1")); err != nil {
		t.Fatalf("first append: %v", err)
	}

	result, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m1"))
	if err != nil {
		t.Fatalf("duplicate append: %v", err)
	}
	if !result.Duplicate {
		t.Error("replayed channel message ID should report duplicate")
	}

	total := 0
	for _, msgs := range repo.messages {
		total += len(msgs)
	}
	if total != 1 {
		t.Errorf("stored messages = %d, want 1", total)
	}
	if len(bus.eventNames()) != 1 {
		t.Error("duplicate should not publish")
	}
}

func TestArchivePublishes(t *testing.T) {
	registry, _, bus := newTestRegistry()
	tenantID := uuid.New()

	result, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := registry.Archive(context.Background(), tenantID, result.Conversation.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	names := bus.eventNames()
	if names[len(names)-1] != "conversations.archived" {
		t.Errorf("last event = %q, want conversations.archived", names[len(names)-1])
	}
}

func TestUpsertIntentPublishesOnChange(t *testing.T) {
	registry, _, bus := newTestRegistry()
	tenantID := uuid.New()

	result, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	conversationID := result.Conversation.ID

	req := transport.UpsertIntentRequest{Label: "purchase_intent", Confidence: 0.9, EvaluatedAt: time.Now()}
	if err := registry.UpsertIntent(context.Background(), tenantID, conversationID, req); err != nil {
		t.Fatalf("first intent: %v", err)
	}

	// Same label again is not a change.
	if err := registry.UpsertIntent(context.Background(), tenantID, conversationID, req); err != nil {
		t.Fatalf("repeat intent: %v", err)
	}

	req.Label = "support_request"
	if err := registry.UpsertIntent(context.Background(), tenantID, conversationID, req); err != nil {
		t.Fatalf("changed intent: %v", err)
	}

	changes := 0
	for _, name := range bus.eventNames() {
		if name == "conversations.intent.changed" {
			changes++
		}
	}
	if changes != 2 {
		t.Errorf("intent change events = %d, want 2", changes)
	}
}

func TestMarkReadClearsUnread(t *testing.T) {
	registry, repo, _ := newTestRegistry()
	tenantID := uuid.New()

	result, err := registry.UpsertAndAppend(context.Background(), ingestParams(tenantID, "m1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result.Conversation.UnreadCount != 1 {
		t.Fatalf("unread = %d, want 1", result.Conversation.UnreadCount)
	}

	if err := registry.MarkRead(context.Background(), tenantID, result.Conversation.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	c, err := repo.GetByID(context.Background(), tenantID, result.Conversation.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread after mark read = %d, want 0", c.UnreadCount)
	}
}
