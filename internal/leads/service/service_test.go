package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/leads/domain"
	"inbox_crm_backend/internal/leads/repository"
	"inbox_crm_backend/internal/leads/transport"
	"inbox_crm_backend/platform/apperr"
	"inbox_crm_backend/platform/logger"
)

// fakeBus records published events synchronously.
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

// fakeLeadRepo is an in-memory lead store implementing the repository
// contract, including supersession.
type fakeLeadRepo struct {
	leads map[uuid.UUID]repository.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: make(map[uuid.UUID]repository.Lead)}
}

func (r *fakeLeadRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (repository.Lead, error) {
	lead, ok := r.leads[id]
	if !ok || lead.TenantID != tenantID {
		return repository.Lead{}, errNotFound
	}
	return lead, nil
}

func (r *fakeLeadRepo) List(_ context.Context, params repository.ListParams) ([]repository.Lead, int, error) {
	var out []repository.Lead
	for _, lead := range r.leads {
		if lead.TenantID != params.TenantID {
			continue
		}
		if params.ConversationID != nil && lead.ConversationID != *params.ConversationID {
			continue
		}
		if params.Status != nil && lead.Status != *params.Status {
			continue
		}
		out = append(out, lead)
	}
	total := len(out)
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, total, nil
}

func (r *fakeLeadRepo) CreateWithSupersede(_ context.Context, params repository.CreateParams) (repository.CreateResult, error) {
	var superseded *repository.Lead
	for id, lead := range r.leads {
		if lead.TenantID == params.TenantID && lead.ConversationID == params.ConversationID && lead.Status == domain.StatusNew {
			if params.NoSupersede {
				return repository.CreateResult{}, apperr.Conflict("another lead was opened concurrently on this conversation")
			}
			now := time.Now()
			lead.Status = domain.StatusClosed
			lead.ClosedAt = &now
			r.leads[id] = lead
			copied := lead
			superseded = &copied
		}
	}

	created := repository.Lead{
		ID:             uuid.New(),
		TenantID:       params.TenantID,
		ConversationID: params.ConversationID,
		Status:         domain.StatusNew,
		Source:         params.Source,
		Note:           params.Note,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	r.leads[created.ID] = created

	if superseded != nil {
		stamped := r.leads[superseded.ID]
		stamped.SupersededBy = &created.ID
		r.leads[superseded.ID] = stamped
		superseded.SupersededBy = &created.ID
	}

	return repository.CreateResult{Lead: created, Superseded: superseded}, nil
}

func (r *fakeLeadRepo) Close(_ context.Context, tenantID, id uuid.UUID, target domain.Status, note string) (repository.Lead, error) {
	lead, ok := r.leads[id]
	if !ok || lead.TenantID != tenantID {
		return repository.Lead{}, errNotFound
	}
	if lead.Status != domain.StatusNew {
		return repository.Lead{}, errClosed
	}
	now := time.Now()
	lead.Status = target
	lead.ClosedAt = &now
	if note != "" {
		lead.Note = note
	}
	r.leads[id] = lead
	return lead, nil
}

var (
	errNotFound = &testError{"lead not found"}
	errClosed   = &testError{"lead is not open"}
)

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func newTestService(repo repository.Repository, policy EligibilityPolicy, bus events.Bus) *Service {
	return New(repo, policy, bus, logger.New("test"))
}

func TestCreateSupersedesOpenLead(t *testing.T) {
	repo := newFakeLeadRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	conversationID := uuid.New()

	first, err := svc.Create(context.Background(), tenantID, transport.CreateLeadRequest{
		ConversationID: conversationID,
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.Superseded != nil {
		t.Fatal("first lead on a conversation should not supersede anything")
	}
	if first.Lead.Source != domain.SourceManual {
		t.Errorf("default source = %q, want MANUAL", first.Lead.Source)
	}

	second, err := svc.Create(context.Background(), tenantID, transport.CreateLeadRequest{
		ConversationID: conversationID,
		Source:         domain.SourceManual,
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Superseded == nil {
		t.Fatal("second lead should supersede the first")
	}
	if second.Superseded.ID != first.Lead.ID {
		t.Errorf("superseded lead = %s, want %s", second.Superseded.ID, first.Lead.ID)
	}
	if second.Superseded.Status != string(domain.StatusClosed) {
		t.Errorf("superseded lead status = %q, want CLOSED", second.Superseded.Status)
	}
	if second.Superseded.SupersededBy == nil || *second.Superseded.SupersededBy != second.Lead.ID {
		t.Error("superseded lead should point at its successor")
	}

	names := bus.eventNames()
	want := []string{
		"leads.lead.created",
		"leads.lead.created",
		"leads.lead.superseded",
		"leads.lead.status_changed",
	}
	if len(names) != len(want) {
		t.Fatalf("published events = %v, want %v", names, want)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("event[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestCloseLead(t *testing.T) {
	repo := newFakeLeadRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, nil, bus)

	tenantID := uuid.New()
	created, err := svc.Create(context.Background(), tenantID, transport.CreateLeadRequest{
		ConversationID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	closed, err := svc.Close(context.Background(), tenantID, created.Lead.ID, transport.CloseLeadRequest{
		Status: "LOST",
		Note:   "went with a competitor",
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != "LOST" {
		t.Errorf("status = %q, want LOST", closed.Status)
	}
	if closed.ClosedAt == nil {
		t.Error("closed lead should have a closed timestamp")
	}
}

func TestCloseRejectsConversion(t *testing.T) {
	repo := newFakeLeadRepo()
	svc := newTestService(repo, nil, &fakeBus{})

	_, err := svc.Close(context.Background(), uuid.New(), uuid.New(), transport.CloseLeadRequest{
		Status: "CONVERTED",
	})
	if err == nil {
		t.Fatal("closing with CONVERTED should be rejected before touching storage")
	}
}

func TestHandleMessageIngestedOpensLead(t *testing.T) {
	repo := newFakeLeadRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, NewKeywordPolicy(nil), bus)

	tenantID := uuid.New()
	conversationID := uuid.New()

	event := events.MessageIngested{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Channel:        "whatsapp",
		Direction:      "INBOUND",
		Body:           "Hi, how much is the large package?",
	}

	if err := svc.handleMessageIngested(context.Background(), event); err != nil {
		t.Fatalf("handleMessageIngested: %v", err)
	}

	statusNew := domain.StatusNew
	open, _, err := repo.List(context.Background(), repository.ListParams{
		TenantID:       tenantID,
		ConversationID: &conversationID,
		Status:         &statusNew,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open leads = %d, want 1", len(open))
	}
	if open[0].Source != domain.SourceAI {
		t.Errorf("source = %q, want AI", open[0].Source)
	}
	if open[0].Note == "" {
		t.Error("auto-opened lead should carry the matched signal as note")
	}
}

func TestHandleMessageIngestedSkipsWhenLeadAlreadyOpen(t *testing.T) {
	repo := newFakeLeadRepo()
	bus := &fakeBus{}
	svc := newTestService(repo, NewKeywordPolicy(nil), bus)

	tenantID := uuid.New()
	conversationID := uuid.New()

	existing, err := svc.Create(context.Background(), tenantID, transport.CreateLeadRequest{
		ConversationID: conversationID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	event := events.MessageIngested{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Direction:      "INBOUND",
		Body:           "what is the price?",
	}
	if err := svc.handleMessageIngested(context.Background(), event); err != nil {
		t.Fatalf("handleMessageIngested: %v", err)
	}

	// The open lead must survive untouched; auto-creation never supersedes
	// and a lost insert race is swallowed, not surfaced.
	lead, err := repo.GetByID(context.Background(), tenantID, existing.Lead.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lead.Status != domain.StatusNew {
		t.Errorf("existing lead status = %q, want NEW", lead.Status)
	}
	if len(repo.leads) != 1 {
		t.Errorf("lead count = %d, want 1", len(repo.leads))
	}
	if names := bus.eventNames(); len(names) != 1 {
		t.Errorf("published events = %v, want only the manual creation", names)
	}
}

func TestHandleMessageIngestedIgnoresOutbound(t *testing.T) {
	repo := newFakeLeadRepo()
	svc := newTestService(repo, NewKeywordPolicy(nil), &fakeBus{})

	event := events.MessageIngested{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  uuid.New(),
		Direction: "OUTBOUND",
		Body:      "our price list is attached",
	}
	if err := svc.handleMessageIngested(context.Background(), event); err != nil {
		t.Fatalf("handleMessageIngested: %v", err)
	}
	if len(repo.leads) != 0 {
		t.Errorf("outbound message opened %d leads, want 0", len(repo.leads))
	}
}

func TestKeywordPolicy(t *testing.T) {
	policy := NewKeywordPolicy(nil)

	tests := []struct {
		body string
		want bool
	}{
		{"How much does delivery cost?", true},
		{"Ik wil graag een offerte", true},
		{"I'd like to ORDER two of these", true},
		{"thanks, see you tomorrow", false},
		{"", false},
	}

	for _, tt := range tests {
		got, note := policy.ShouldOpenLead(context.Background(), events.MessageIngested{Body: tt.body})
		if got != tt.want {
			t.Errorf("ShouldOpenLead(%q) = %v, want %v", tt.body, got, tt.want)
		}
		if got && note == "" {
			t.Errorf("ShouldOpenLead(%q): matched but note empty", tt.body)
		}
	}

	custom := NewKeywordPolicy([]string{"banana"})
	if got, _ := custom.ShouldOpenLead(context.Background(), events.MessageIngested{Body: "price?"}); got {
		t.Error("custom phrase list should replace the defaults")
	}
	if got, _ := custom.ShouldOpenLead(context.Background(), events.MessageIngested{Body: "one BANANA please"}); !got {
		t.Error("custom phrase should match case-insensitively")
	}
}
