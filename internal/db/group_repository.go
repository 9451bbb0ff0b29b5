package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository handles ensemble database operations.
type GroupRepository struct {
	db *DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateGroupParams contains parameters for creating a group.
type CreateGroupParams struct {
	Name        string
	Category    string
	Authors     string
	Description string
	ImageURL    string
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, params CreateGroupParams) (*Group, error) {
	var g Group
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO groups (name, category, authors, description, image_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, category, authors, description, image_url, created_at`,
		params.Name, params.Category, params.Authors, params.Description, params.ImageURL,
	).Scan(&g.ID, &g.Name, &g.Category, &g.Authors, &g.Description, &g.ImageURL, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &g, nil
}

// GetByID retrieves a group.
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*Group, error) {
	var g Group
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, category, authors, description, image_url, created_at
		FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Category, &g.Authors, &g.Description, &g.ImageURL, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("query group: %w", err)
	}
	return &g, nil
}

// List returns groups matching an optional name substring.
func (r *GroupRepository) List(ctx context.Context, search string, limit int) ([]*Group, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if search != "" {
		rows, err = r.db.pool.Query(ctx, `
			SELECT id, name, category, authors, description, image_url, created_at
			FROM groups WHERE name ILIKE $1 ORDER BY name LIMIT $2`,
			"%"+search+"%", limit)
	} else {
		rows, err = r.db.pool.Query(ctx, `
			SELECT id, name, category, authors, description, image_url, created_at
			FROM groups ORDER BY name LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Category, &g.Authors, &g.Description, &g.ImageURL, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// Count returns the total number of groups.
func (r *GroupRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM groups`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return count, nil
}
