package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	ErrVideoNotFound  = errors.New("video not found")
	ErrDuplicateVideo = errors.New("duplicate video for youtube id")
)

const videoColumns = `id, youtube_id, title, description, thumbnail, duration_seconds,
	view_count, published_at, year, phase, category, content_type, group_id, group_name,
	has_lyrics, featured, odysee_url, rating_avg, rating_count, created_at, updated_at`

// VideoRepository handles catalog video database operations.
type VideoRepository struct {
	db *DB
}

// NewVideoRepository creates a new video repository.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// CreateVideoParams contains parameters for creating a video.
type CreateVideoParams struct {
	YouTubeID   string
	Title       string
	Description string
	Thumbnail   string
	DurationSec int
	ViewCount   int64
	PublishedAt *int64 // unix seconds, nil if unknown
	Year        *int
	Phase       *string
	Category    *string
	ContentType string
	GroupName   string
	Featured    bool
}

func scanVideo(row pgx.Row) (*Video, error) {
	var v Video
	err := row.Scan(
		&v.ID, &v.YouTubeID, &v.Title, &v.Description, &v.Thumbnail, &v.DurationSec,
		&v.ViewCount, &v.PublishedAt, &v.Year, &v.Phase, &v.Category, &v.ContentType,
		&v.GroupID, &v.GroupName, &v.HasLyrics, &v.Featured, &v.OdyseeURL,
		&v.RatingAvg, &v.RatingCount, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a single video. Returns ErrDuplicateVideo when the
// youtube id is already in the catalog.
func (r *VideoRepository) Create(ctx context.Context, params CreateVideoParams) (*Video, error) {
	contentType := params.ContentType
	if contentType == "" {
		contentType = ContentTypeCOAC
	}

	row := r.db.pool.QueryRow(ctx, `
		INSERT INTO videos (youtube_id, title, description, thumbnail, duration_seconds,
			view_count, published_at, year, phase, category, content_type, group_name, featured)
		VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7), $8, $9, $10, $11, $12, $13)
		RETURNING `+videoColumns,
		params.YouTubeID, params.Title, params.Description, params.Thumbnail,
		params.DurationSec, params.ViewCount, params.PublishedAt, params.Year,
		params.Phase, params.Category, contentType, params.GroupName, params.Featured,
	)

	video, err := scanVideo(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateVideo
		}
		return nil, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

// CreateBatch inserts a batch of scraped videos in one transaction and
// returns how many rows landed. A youtube id that raced into the
// catalog since the dedup check is skipped, not an error.
func (r *VideoRepository) CreateBatch(ctx context.Context, batch []CreateVideoParams) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, params := range batch {
		contentType := params.ContentType
		if contentType == "" {
			contentType = ContentTypeCOAC
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO videos (youtube_id, title, description, thumbnail, duration_seconds,
				view_count, published_at, year, phase, category, content_type, group_name)
			VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7), $8, $9, $10, $11, $12)
			ON CONFLICT (youtube_id) DO NOTHING`,
			params.YouTubeID, params.Title, params.Description, params.Thumbnail,
			params.DurationSec, params.ViewCount, params.PublishedAt, params.Year,
			params.Phase, params.Category, contentType, params.GroupName,
		)
		if err != nil {
			return 0, fmt.Errorf("insert video %s: %w", params.YouTubeID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit video batch: %w", err)
	}
	return inserted, nil
}

// GetByID retrieves a video by its primary key.
func (r *VideoRepository) GetByID(ctx context.Context, id int64) (*Video, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("query video: %w", err)
	}
	return video, nil
}

// GetByYouTubeID retrieves a video by its source identifier.
func (r *VideoRepository) GetByYouTubeID(ctx context.Context, youtubeID string) (*Video, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE youtube_id = $1`, youtubeID)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("query video: %w", err)
	}
	return video, nil
}

// Exists reports whether a youtube id is already in the catalog.
func (r *VideoRepository) Exists(ctx context.Context, youtubeID string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE youtube_id = $1)`, youtubeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check video exists: %w", err)
	}
	return exists, nil
}

// ListVideosParams contains filters for listing videos.
type ListVideosParams struct {
	Year     *int
	Category string
	Phase    string
	Search   string
	Featured *bool
	Limit    int
	Offset   int
}

// List retrieves videos with optional filtering.
func (r *VideoRepository) List(ctx context.Context, params ListVideosParams) ([]*Video, int, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	var conditions []string
	var args []interface{}
	argIdx := 1

	addCondition := func(cond string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Year != nil {
		addCondition("year = $%d", *params.Year)
	}
	if params.Category != "" {
		addCondition("category = $%d", params.Category)
	}
	if params.Phase != "" {
		addCondition("phase = $%d", params.Phase)
	}
	if params.Featured != nil {
		addCondition("featured = $%d", *params.Featured)
	}
	if params.Search != "" {
		addCondition("(title ILIKE $%d OR group_name ILIKE $%[1]d)", "%"+params.Search+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM videos%s ORDER BY year DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d`,
		videoColumns, where, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, total, nil
}

// UpdateVideoParams contains the editable classification fields.
type UpdateVideoParams struct {
	Year        *int
	Phase       *string
	Category    *string
	ContentType *string
	GroupName   *string
	Featured    *bool
	OdyseeURL   *string
}

// Update edits a video's classification fields.
func (r *VideoRepository) Update(ctx context.Context, id int64, params UpdateVideoParams) error {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	argIdx := 2

	addSet := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Year != nil {
		addSet("year", *params.Year)
	}
	if params.Phase != nil {
		addSet("phase", *params.Phase)
	}
	if params.Category != nil {
		addSet("category", *params.Category)
	}
	if params.ContentType != nil {
		addSet("content_type", *params.ContentType)
	}
	if params.GroupName != nil {
		addSet("group_name", *params.GroupName)
	}
	if params.Featured != nil {
		addSet("featured", *params.Featured)
	}
	if params.OdyseeURL != nil {
		addSet("odysee_url", *params.OdyseeURL)
	}

	query := fmt.Sprintf("UPDATE videos SET %s WHERE id = $1", strings.Join(setClauses, ", "))
	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// Delete removes a video. Lyric back-references are set to NULL by the
// schema; votes cascade.
func (r *VideoRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// RandomByPhases returns a uniformly random video whose phase is in the
// given set, or from the whole catalog when phases is empty. Returns
// ErrVideoNotFound on an empty selection.
func (r *VideoRepository) RandomByPhases(ctx context.Context, phases []string) (*Video, error) {
	var row pgx.Row
	if len(phases) > 0 {
		row = r.db.pool.QueryRow(ctx,
			`SELECT `+videoColumns+` FROM videos WHERE phase = ANY($1) ORDER BY random() LIMIT 1`,
			phases,
		)
	} else {
		row = r.db.pool.QueryRow(ctx,
			`SELECT `+videoColumns+` FROM videos ORDER BY random() LIMIT 1`,
		)
	}

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("query random video: %w", err)
	}
	return video, nil
}

// Ranking returns the top-rated videos with at least minVotes votes.
func (r *VideoRepository) Ranking(ctx context.Context, minVotes int, category string, year *int, limit int) ([]*Video, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	conditions := []string{"rating_count >= $1"}
	args := []interface{}{minVotes}
	argIdx := 2

	if category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, category)
		argIdx++
	}
	if year != nil {
		conditions = append(conditions, fmt.Sprintf("year = $%d", argIdx))
		args = append(args, *year)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM videos WHERE %s ORDER BY rating_avg DESC, rating_count DESC LIMIT $%d`,
		videoColumns, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// PendingArchive returns videos that have no archive backup yet.
func (r *VideoRepository) PendingArchive(ctx context.Context, limit int) ([]*Video, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE odysee_url IS NULL ORDER BY created_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending archive: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// SetOdyseeURL records the archive URL for a published video.
func (r *VideoRepository) SetOdyseeURL(ctx context.Context, id int64, url string) error {
	result, err := r.db.pool.Exec(ctx,
		`UPDATE videos SET odysee_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("set odysee url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// Count returns the total number of catalog videos.
func (r *VideoRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return count, nil
}

func isDuplicateKeyError(err error) bool {
	// pgx v5 surfaces unique violations with SQLSTATE 23505
	return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key"))
}
