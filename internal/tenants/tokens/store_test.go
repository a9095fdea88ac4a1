package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inbox_crm_backend/platform/apperr"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Minute), mr
}

func TestCreateAndConsume(t *testing.T) {
	store, _ := newTestStore(t)
	tenantID := uuid.New()

	token, err := store.Create(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token == "" {
		t.Fatal("token is empty")
	}

	got, err := store.Consume(context.Background(), token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got != tenantID {
		t.Errorf("consumed tenant = %s, want %s", got, tenantID)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t)

	token, err := store.Create(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Consume(context.Background(), token); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	_, err = store.Consume(context.Background(), token)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second consume: expected not found, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Consume(context.Background(), "deadbeef")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	store, mr := newTestStore(t)

	token, err := store.Create(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	_, err = store.Consume(context.Background(), token)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found after expiry, got %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	store, _ := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		token, err := store.Create(context.Background(), uuid.New())
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[token] {
			t.Fatal("duplicate token issued")
		}
		seen[token] = true
	}
}
