package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"inbox_crm_backend/platform/apperr"
)

const (
	businessNotFoundMessage = "business not found"
	uniqueViolationCode     = "23505"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new tenants repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const businessColumns = `id, name, channel, channel_identity, archive_after_days, created_at, updated_at`

// GetByID retrieves a business by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1`

	var b Business
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.Channel, &b.ChannelIdentity, &b.ArchiveAfterDays, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Business{}, apperr.NotFound(businessNotFoundMessage)
		}
		return Business{}, fmt.Errorf("get business by id: %w", err)
	}

	return b, nil
}

// List retrieves all businesses ordered by name.
func (r *Repo) List(ctx context.Context) ([]Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var results []Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Channel, &b.ChannelIdentity, &b.ArchiveAfterDays, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate businesses: %w", err)
	}

	return results, nil
}

// ResolveByChannelIdentity finds the business owning a channel identity.
func (r *Repo) ResolveByChannelIdentity(ctx context.Context, channel, identity string) (Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE channel = $1 AND channel_identity = $2`

	var b Business
	err := r.pool.QueryRow(ctx, query, channel, identity).Scan(
		&b.ID, &b.Name, &b.Channel, &b.ChannelIdentity, &b.ArchiveAfterDays, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Business{}, apperr.NotFound("no business for channel identity")
		}
		return Business{}, fmt.Errorf("resolve channel identity: %w", err)
	}

	return b, nil
}

// Create creates a new business.
func (r *Repo) Create(ctx context.Context, params CreateParams) (Business, error) {
	query := `
		INSERT INTO businesses (name, channel, channel_identity, archive_after_days)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + businessColumns

	var b Business
	err := r.pool.QueryRow(ctx, query,
		params.Name, params.Channel, params.ChannelIdentity, params.ArchiveAfterDays,
	).Scan(
		&b.ID, &b.Name, &b.Channel, &b.ChannelIdentity, &b.ArchiveAfterDays, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Business{}, apperr.Conflict("channel identity already connected to another business")
		}
		return Business{}, fmt.Errorf("create business: %w", err)
	}

	return b, nil
}

// Update updates an existing business.
func (r *Repo) Update(ctx context.Context, params UpdateParams) (Business, error) {
	query := `
		UPDATE businesses SET
			name = COALESCE($2, name),
			archive_after_days = COALESCE($3, archive_after_days),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + businessColumns

	var b Business
	err := r.pool.QueryRow(ctx, query, params.ID, params.Name, params.ArchiveAfterDays).Scan(
		&b.ID, &b.Name, &b.Channel, &b.ChannelIdentity, &b.ArchiveAfterDays, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Business{}, apperr.NotFound(businessNotFoundMessage)
		}
		return Business{}, fmt.Errorf("update business: %w", err)
	}

	return b, nil
}

// SetChannelIdentity binds a channel identity to a business.
func (r *Repo) SetChannelIdentity(ctx context.Context, id uuid.UUID, channel, identity string) (Business, error) {
	query := `
		UPDATE businesses SET channel = $2, channel_identity = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + businessColumns

	var b Business
	err := r.pool.QueryRow(ctx, query, id, channel, identity).Scan(
		&b.ID, &b.Name, &b.Channel, &b.ChannelIdentity, &b.ArchiveAfterDays, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Business{}, apperr.NotFound(businessNotFoundMessage)
		}
		if isUniqueViolation(err) {
			return Business{}, apperr.Conflict("channel identity already connected to another business")
		}
		return Business{}, fmt.Errorf("set channel identity: %w", err)
	}

	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
