package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/model"
)

// LinkRepo defines the interface for short link repository operations
type LinkRepo interface {
	Create(ctx context.Context, link *model.ShortLink) error
	GetByID(ctx context.Context, id uuid.UUID) (model.ShortLink, error)
	List(ctx context.Context, limit, offset int) ([]model.ShortLink, error)
}

type linkRepo struct {
	db *sql.DB
}

// NewLinkRepo creates a new LinkRepo instance
func NewLinkRepo(db *sql.DB) LinkRepo {
	return &linkRepo{db: db}
}

// Create inserts a new short link; the store-assigned id doubles as the slug.
func (r *linkRepo) Create(ctx context.Context, link *model.ShortLink) error {
	query := `
		INSERT INTO short_links (user_id, long_url, expiry)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query, link.UserID, link.LongURL, link.Expiry).
		Scan(&idStr, &link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create short link: %w", err)
	}

	link.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("failed to parse link ID: %w", err)
	}
	return nil
}

// GetByID retrieves a short link by its id (the slug).
func (r *linkRepo) GetByID(ctx context.Context, id uuid.UUID) (model.ShortLink, error) {
	query := `
		SELECT id, user_id, long_url, expiry, created_at
		FROM short_links
		WHERE id = $1
	`
	var link model.ShortLink
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&idStr,
		&userIDStr,
		&link.LongURL,
		&link.Expiry,
		&link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ShortLink{}, ErrNotFound
		}
		return model.ShortLink{}, fmt.Errorf("failed to query short link: %w", err)
	}

	if link.ID, err = uuid.Parse(idStr); err != nil {
		return model.ShortLink{}, fmt.Errorf("failed to parse link ID: %w", err)
	}
	if link.UserID, err = uuid.Parse(userIDStr); err != nil {
		return model.ShortLink{}, fmt.Errorf("failed to parse link user ID: %w", err)
	}
	return link, nil
}

// List returns links most-recent-first with fixed-size pagination.
func (r *linkRepo) List(ctx context.Context, limit, offset int) ([]model.ShortLink, error) {
	query := `
		SELECT id, user_id, long_url, expiry, created_at
		FROM short_links
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list short links: %w", err)
	}
	defer rows.Close()

	var links []model.ShortLink
	for rows.Next() {
		var link model.ShortLink
		var idStr, userIDStr string
		if err := rows.Scan(&idStr, &userIDStr, &link.LongURL, &link.Expiry, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan short link: %w", err)
		}
		if link.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse link ID: %w", err)
		}
		if link.UserID, err = uuid.Parse(userIDStr); err != nil {
			return nil, fmt.Errorf("failed to parse link user ID: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate short links: %w", err)
	}
	return links, nil
}
