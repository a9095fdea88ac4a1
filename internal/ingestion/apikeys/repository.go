// Package apikeys provides storage for ingest API keys. Channel integrations
// authenticate webhook deliveries with these keys; only the hash is stored.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inbox_crm_backend/platform/apperr"
)

// Key represents an ingest API key record.
type Key struct {
	ID        uuid.UUID  `db:"id"`
	TenantID  uuid.UUID  `db:"tenant_id"`
	KeyHash   string     `db:"key_hash"`
	KeyPrefix string     `db:"key_prefix"`
	Label     string     `db:"label"`
	CreatedAt time.Time  `db:"created_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

// Repository provides data access for ingest API keys.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new API key repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateKey creates a new random API key. The plaintext is returned exactly
// once; only the hash is stored.
func GenerateKey() (plaintext, hash, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}
	plaintext = "ink_" + hex.EncodeToString(bytes)
	hash = HashKey(plaintext)
	prefix = plaintext[:12]
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const keyColumns = `id, tenant_id, key_hash, key_prefix, label, created_at, revoked_at`

func scanKey(row pgx.Row) (Key, error) {
	var k Key
	err := row.Scan(&k.ID, &k.TenantID, &k.KeyHash, &k.KeyPrefix, &k.Label, &k.CreatedAt, &k.RevokedAt)
	return k, err
}

// Create stores a new API key record.
func (r *Repository) Create(ctx context.Context, tenantID uuid.UUID, keyHash, keyPrefix, label string) (Key, error) {
	key, err := scanKey(r.pool.QueryRow(ctx, `
		INSERT INTO ingest_api_keys (tenant_id, key_hash, key_prefix, label)
		VALUES ($1, $2, $3, $4)
		RETURNING `+keyColumns,
		tenantID, keyHash, keyPrefix, label,
	))
	if err != nil {
		return Key{}, fmt.Errorf("create api key: %w", err)
	}
	return key, nil
}

// GetByHash retrieves a non-revoked API key by its hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (Key, error) {
	key, err := scanKey(r.pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM ingest_api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		keyHash,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Key{}, apperr.Unauthorized("invalid API key")
		}
		return Key{}, fmt.Errorf("get api key by hash: %w", err)
	}
	return key, nil
}

// ListByTenant returns all API keys of a tenant, revoked ones included.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Key, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM ingest_api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Revoke disables an API key. Revocation is permanent.
func (r *Repository) Revoke(ctx context.Context, tenantID, keyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ingest_api_keys SET revoked_at = now()
		WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL`,
		keyID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("API key not found")
	}
	return nil
}
