package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var ErrLetraNotFound = errors.New("letra not found")

const letraColumns = `id, title, piece_type, content, source_url, year, group_name,
	video_id, group_id, created_at`

// LetraRepository handles lyric database operations.
type LetraRepository struct {
	db *DB
}

// NewLetraRepository creates a new lyric repository.
func NewLetraRepository(db *DB) *LetraRepository {
	return &LetraRepository{db: db}
}

// CreateLetraParams contains parameters for creating a lyric record.
// Content is intentionally absent: bulk import creates metadata-only
// rows whose text is fetched lazily.
type CreateLetraParams struct {
	Title     string
	PieceType string
	SourceURL string
	Year      *int
	GroupName string
}

func scanLetra(row pgx.Row) (*Letra, error) {
	var l Letra
	err := row.Scan(
		&l.ID, &l.Title, &l.PieceType, &l.Content, &l.SourceURL, &l.Year,
		&l.GroupName, &l.VideoID, &l.GroupID, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ExistsBySource reports whether a lyric with the given source URL is
// already present. The source URL is the import dedup key.
func (r *LetraRepository) ExistsBySource(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM letras WHERE source_url = $1)`, sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check letra exists: %w", err)
	}
	return exists, nil
}

// CreateBatch inserts one page of imported lyric metadata in a single
// transaction. Source URLs that raced in since the dedup check are
// skipped silently.
func (r *LetraRepository) CreateBatch(ctx context.Context, batch []CreateLetraParams) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, params := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO letras (title, piece_type, content, source_url, year, group_name)
			VALUES ($1, $2, '', $3, $4, $5)
			ON CONFLICT (source_url) DO NOTHING`,
			params.Title, params.PieceType, params.SourceURL, params.Year, params.GroupName,
		)
		if err != nil {
			return fmt.Errorf("insert letra: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit letra batch: %w", err)
	}
	return nil
}

// GetByID retrieves a lyric by its primary key.
func (r *LetraRepository) GetByID(ctx context.Context, id int64) (*Letra, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+letraColumns+` FROM letras WHERE id = $1`, id)
	letra, err := scanLetra(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLetraNotFound
		}
		return nil, fmt.Errorf("query letra: %w", err)
	}
	return letra, nil
}

// SetContent stores the fetched lyric body. Title and piece type are
// backfilled only when the stored values are empty.
func (r *LetraRepository) SetContent(ctx context.Context, id int64, content, title, pieceType string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE letras
		SET content = $2,
		    title = CASE WHEN title = '' THEN $3 ELSE title END,
		    piece_type = CASE WHEN piece_type = '' THEN $4 ELSE piece_type END
		WHERE id = $1`,
		id, content, title, pieceType,
	)
	if err != nil {
		return fmt.Errorf("set letra content: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLetraNotFound
	}
	return nil
}

// WithoutContent returns up to limit lyrics whose body is still empty
// and whose source URL can be fetched.
func (r *LetraRepository) WithoutContent(ctx context.Context, limit int) ([]*Letra, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+letraColumns+` FROM letras
		 WHERE content = '' AND source_url IS NOT NULL AND source_url LIKE 'http%'
		 ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query letras without content: %w", err)
	}
	defer rows.Close()

	return collectLetras(rows)
}

// ListLetrasParams contains filters for listing lyrics.
type ListLetrasParams struct {
	Year      *int
	PieceType string
	Group     string
	Search    string
	Limit     int
	Offset    int
}

// List retrieves lyrics with optional filtering and pagination.
func (r *LetraRepository) List(ctx context.Context, params ListLetrasParams) ([]*Letra, int, error) {
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
	if params.PieceType != "" {
		addCondition("piece_type = $%d", params.PieceType)
	}
	if params.Group != "" {
		addCondition("group_name ILIKE $%d", "%"+params.Group+"%")
	}
	if params.Search != "" {
		addCondition("(content ILIKE $%d OR title ILIKE $%[1]d OR group_name ILIKE $%[1]d)", "%"+params.Search+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM letras"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count letras: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM letras%s ORDER BY year DESC NULLS LAST, id LIMIT $%d OFFSET $%d`,
		letraColumns, where, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query letras: %w", err)
	}
	defer rows.Close()

	letras, err := collectLetras(rows)
	if err != nil {
		return nil, 0, err
	}
	return letras, total, nil
}

// ByVideo returns all lyrics linked to a catalog video.
func (r *LetraRepository) ByVideo(ctx context.Context, videoID int64) ([]*Letra, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+letraColumns+` FROM letras WHERE video_id = $1 ORDER BY id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query letras by video: %w", err)
	}
	defer rows.Close()

	return collectLetras(rows)
}

// ByGroup returns lyrics whose group name matches, optionally filtered
// by year.
func (r *LetraRepository) ByGroup(ctx context.Context, group string, year *int) ([]*Letra, error) {
	var rows pgx.Rows
	var err error
	if year != nil {
		rows, err = r.db.pool.Query(ctx,
			`SELECT `+letraColumns+` FROM letras WHERE group_name ILIKE $1 AND year = $2 LIMIT 50`,
			"%"+group+"%", *year)
	} else {
		rows, err = r.db.pool.Query(ctx,
			`SELECT `+letraColumns+` FROM letras WHERE group_name ILIKE $1 LIMIT 50`,
			"%"+group+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("query letras by group: %w", err)
	}
	defer rows.Close()

	return collectLetras(rows)
}

// Random returns a random lyric, preferring ones that already carry
// content. Returns ErrLetraNotFound on an empty table.
func (r *LetraRepository) Random(ctx context.Context) (*Letra, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+letraColumns+` FROM letras WHERE content <> '' ORDER BY random() LIMIT 1`)
	letra, err := scanLetra(row)
	if err == nil {
		return letra, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("query random letra: %w", err)
	}

	row = r.db.pool.QueryRow(ctx,
		`SELECT `+letraColumns+` FROM letras ORDER BY random() LIMIT 1`)
	letra, err = scanLetra(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLetraNotFound
		}
		return nil, fmt.Errorf("query random letra: %w", err)
	}
	return letra, nil
}

// Count returns the total number of lyric records.
func (r *LetraRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM letras`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count letras: %w", err)
	}
	return count, nil
}

func collectLetras(rows pgx.Rows) ([]*Letra, error) {
	var letras []*Letra
	for rows.Next() {
		letra, err := scanLetra(rows)
		if err != nil {
			return nil, fmt.Errorf("scan letra: %w", err)
		}
		letras = append(letras, letra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate letras: %w", err)
	}
	return letras, nil
}
