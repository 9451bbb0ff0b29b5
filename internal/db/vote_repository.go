package db

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidScore is returned for scores outside the 1-5 range.
var ErrInvalidScore = errors.New("score must be between 1 and 5")

// VoteRepository handles vote database operations.
type VoteRepository struct {
	db *DB
}

// NewVoteRepository creates a new vote repository.
func NewVoteRepository(db *DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// Rating is a video's recomputed aggregate after a vote write.
type Rating struct {
	Average float64 `json:"rating_avg"`
	Count   int     `json:"rating_count"`
}

// Upsert records or updates a vote and recomputes the owning video's
// aggregate rating in the same transaction. Repeat votes from the same
// identity update the existing row.
func (r *VoteRepository) Upsert(ctx context.Context, videoID int64, ipHash string, score int) (*Rating, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO votes (video_id, ip_hash, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (video_id, ip_hash)
		DO UPDATE SET score = EXCLUDED.score, updated_at = NOW()`,
		videoID, ipHash, score,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert vote: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, fmt.Errorf("upsert vote: no row written")
	}

	var rating Rating
	err = tx.QueryRow(ctx, `
		UPDATE videos
		SET rating_avg = sub.avg, rating_count = sub.count, updated_at = NOW()
		FROM (
			SELECT ROUND(AVG(score)::numeric, 2)::float8 AS avg, COUNT(*) AS count
			FROM votes WHERE video_id = $1
		) AS sub
		WHERE videos.id = $1
		RETURNING sub.avg, sub.count`,
		videoID,
	).Scan(&rating.Average, &rating.Count)
	if err != nil {
		return nil, fmt.Errorf("recompute rating: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit vote: %w", err)
	}
	return &rating, nil
}
