package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNoLiveState is returned while the channel has never been started.
var ErrNoLiveState = errors.New("live state not initialized")

// LiveRepository owns the singleton live-channel row. Only the live
// director mutates it.
type LiveRepository struct {
	db *DB
}

// NewLiveRepository creates a new live-state repository.
func NewLiveRepository(db *DB) *LiveRepository {
	return &LiveRepository{db: db}
}

// Get returns the current live-channel state.
func (r *LiveRepository) Get(ctx context.Context) (*LiveState, error) {
	var state LiveState
	err := r.db.pool.QueryRow(ctx, `
		SELECT youtube_id, title, duration_seconds, started_at, source_channel
		FROM live_state WHERE id = 1`,
	).Scan(&state.YouTubeID, &state.Title, &state.DurationSec, &state.StartedAt, &state.SourceChannel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoLiveState
		}
		return nil, fmt.Errorf("query live state: %w", err)
	}
	return &state, nil
}

// Set overwrites (or creates) the singleton state. The whole
// read-modify-write of an advance happens under this single upsert.
func (r *LiveRepository) Set(ctx context.Context, state *LiveState) error {
	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now().UTC()
	}
	if state.SourceChannel == "" {
		state.SourceChannel = DefaultLiveChannel
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO live_state (id, youtube_id, title, duration_seconds, started_at, source_channel)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			youtube_id = EXCLUDED.youtube_id,
			title = EXCLUDED.title,
			duration_seconds = EXCLUDED.duration_seconds,
			started_at = EXCLUDED.started_at,
			source_channel = EXCLUDED.source_channel`,
		state.YouTubeID, state.Title, state.DurationSec, state.StartedAt, state.SourceChannel,
	)
	if err != nil {
		return fmt.Errorf("upsert live state: %w", err)
	}
	return nil
}
