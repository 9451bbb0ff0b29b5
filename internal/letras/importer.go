package letras

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/log"
)

// ErrBusy is returned when an import or enrichment run is already in
// flight. The caller's counters and progress are left untouched.
var ErrBusy = errors.New("letras import already running")

const (
	pageRetryBackoff = 2 * time.Second
	maxPageRetries   = 3
)

// LetraStore is the persistence surface the importer writes through.
type LetraStore interface {
	ExistsBySource(ctx context.Context, sourceURL string) (bool, error)
	CreateBatch(ctx context.Context, batch []db.CreateLetraParams) error
	GetByID(ctx context.Context, id int64) (*db.Letra, error)
	SetContent(ctx context.Context, id int64, content, title, pieceType string) error
	WithoutContent(ctx context.Context, limit int) ([]*db.Letra, error)
}

// ArchiveClient is the remote archive surface.
type ArchiveClient interface {
	List(ctx context.Context, page int, filters ListFilters) (*ListPage, error)
	DetailURL(id int64) string
	FetchDetail(ctx context.Context, sourceURL string) (*RemoteLetra, error)
}

// ImportParams narrows a metadata import run.
type ImportParams struct {
	Year       int
	Category   string
	MinQuality int
	Limit      int
	PageDelay  time.Duration
}

// Importer pulls lyric metadata and text from the archive into the
// local store.
type Importer struct {
	store    LetraStore
	client   ArchiveClient
	progress *Progress
}

// New builds an importer. All runs share a single Progress.
func New(store LetraStore, client ArchiveClient) *Importer {
	return &Importer{
		store:    store,
		client:   client,
		progress: &Progress{},
	}
}

// Progress exposes the shared progress for the admin endpoint.
func (i *Importer) Progress() Snapshot {
	return i.progress.Snapshot()
}

// ImportMetadata pages the archive listing and inserts metadata-only
// rows until the listing is exhausted, the limit is reached, or the
// context is cancelled. A fetched page commits as one transaction. A
// page error backs off and retries the same page a few times before
// giving up on the run.
func (i *Importer) ImportMetadata(ctx context.Context, params ImportParams) (Snapshot, error) {
	if !i.progress.begin("import") {
		return i.progress.Snapshot(), ErrBusy
	}

	filters := ListFilters{Year: params.Year, Category: params.Category}
	imported := 0
	page := 1
	retries := 0

	log.Info("letras import started",
		zap.Int("year", params.Year),
		zap.String("category", params.Category),
		zap.Int("limit", params.Limit),
	)

	for {
		if err := ctx.Err(); err != nil {
			i.progress.finish("cancelled")
			return i.progress.Snapshot(), err
		}

		listing, err := i.client.List(ctx, page, filters)
		if err != nil {
			i.progress.add(0, 0, 0, 1)
			retries++
			if retries > maxPageRetries {
				log.Error("letras page failed repeatedly, aborting run",
					zap.Int("page", page), zap.Error(err))
				i.progress.finish(fmt.Sprintf("aborted on page %d", page))
				return i.progress.Snapshot(), err
			}
			log.Warn("letras page failed, retrying",
				zap.Int("page", page), zap.Int("attempt", retries), zap.Error(err))
			i.progress.SetMessage(fmt.Sprintf("reintentando página %d (intento %d)", page, retries))
			if !sleepCtx(ctx, pageRetryBackoff) {
				i.progress.finish("cancelled")
				return i.progress.Snapshot(), ctx.Err()
			}
			continue
		}
		retries = 0
		i.progress.setPage(page, listing.TotalPages)

		if len(listing.Letras) == 0 {
			break
		}

		// Counters move per item so a concurrent progress reader sees
		// the run advance inside a page, not just at commit points.
		var batch []db.CreateLetraParams
		for _, remote := range listing.Letras {
			if params.MinQuality > 0 && remote.Quality < params.MinQuality {
				i.progress.add(0, 0, 1, 0)
				continue
			}
			if remote.ID == 0 {
				i.progress.add(0, 0, 1, 0)
				continue
			}
			sourceURL := i.client.DetailURL(remote.ID)
			exists, err := i.store.ExistsBySource(ctx, sourceURL)
			if err != nil {
				i.progress.add(0, 0, 0, 1)
				continue
			}
			if exists {
				i.progress.add(0, 0, 1, 0)
				continue
			}
			batch = append(batch, db.CreateLetraParams{
				Title:     remote.Title,
				PieceType: remote.PieceType,
				SourceURL: sourceURL,
				Year:      remote.Year,
				GroupName: remote.GroupName,
			})
			i.progress.add(1, 0, 0, 0)
			if params.Limit > 0 && imported+len(batch) >= params.Limit {
				break
			}
		}

		if len(batch) > 0 {
			if err := i.store.CreateBatch(ctx, batch); err != nil {
				log.Error("letras batch insert failed", zap.Int("page", page), zap.Error(err))
				// The page's rows never landed; take them back out.
				i.progress.add(-len(batch), 0, 0, 1)
			} else {
				imported += len(batch)
			}
		}

		if params.Limit > 0 && imported >= params.Limit {
			break
		}
		if listing.TotalPages > 0 && page >= listing.TotalPages {
			break
		}
		page++

		if params.PageDelay > 0 && !sleepCtx(ctx, params.PageDelay) {
			i.progress.finish("cancelled")
			return i.progress.Snapshot(), ctx.Err()
		}
	}

	i.progress.finish(fmt.Sprintf("imported %d letras", imported))
	snap := i.progress.Snapshot()
	log.Info("letras import finished",
		zap.Int("imported", snap.Imported),
		zap.Int("skipped", snap.Skipped),
		zap.Int("errors", snap.Errors),
	)
	return snap, nil
}

// FetchContent returns a lyric's text, fetching and persisting it on
// first access. A fetch failure yields an empty string, not an error;
// only an unknown ID is an error.
func (i *Importer) FetchContent(ctx context.Context, lyricID int64) (string, error) {
	letra, err := i.store.GetByID(ctx, lyricID)
	if err != nil {
		return "", err
	}
	if letra.HasContent() {
		return letra.Content, nil
	}
	if letra.SourceURL == nil {
		return "", nil
	}

	detail, err := i.client.FetchDetail(ctx, *letra.SourceURL)
	if err != nil {
		log.Warn("letra content fetch failed",
			zap.Int64("letra_id", lyricID),
			zap.String("source_url", *letra.SourceURL),
			zap.Error(err),
		)
		return "", nil
	}

	content := detail.Content()
	if content == "" {
		return "", nil
	}
	if err := i.store.SetContent(ctx, lyricID, content, detail.Title, detail.PieceType); err != nil {
		return "", fmt.Errorf("persist letra content: %w", err)
	}
	return content, nil
}

// EnrichBatch walks rows that still have no text and fetches each one
// sequentially, committing per success. Shares the import guard.
func (i *Importer) EnrichBatch(ctx context.Context, limit int, delayPerItem time.Duration) (Snapshot, error) {
	if !i.progress.begin("enrich") {
		return i.progress.Snapshot(), ErrBusy
	}
	if limit <= 0 {
		limit = 50
	}

	pending, err := i.store.WithoutContent(ctx, limit)
	if err != nil {
		i.progress.finish("listing failed")
		return i.progress.Snapshot(), err
	}

	log.Info("letras enrichment started", zap.Int("pending", len(pending)))

	for idx, letra := range pending {
		if err := ctx.Err(); err != nil {
			i.progress.finish("cancelled")
			return i.progress.Snapshot(), err
		}
		i.progress.setPage(idx+1, len(pending))

		if letra.SourceURL == nil {
			i.progress.add(0, 0, 1, 0)
			continue
		}

		detail, err := i.client.FetchDetail(ctx, *letra.SourceURL)
		switch {
		case err != nil, detail.Content() == "":
			i.progress.add(0, 0, 0, 1)
		default:
			if err := i.store.SetContent(ctx, letra.ID, detail.Content(), detail.Title, detail.PieceType); err != nil {
				i.progress.add(0, 0, 0, 1)
			} else {
				i.progress.add(0, 1, 0, 0)
			}
		}

		if delayPerItem > 0 && idx < len(pending)-1 && !sleepCtx(ctx, delayPerItem) {
			i.progress.finish("cancelled")
			return i.progress.Snapshot(), ctx.Err()
		}
	}

	snap := i.progress.Snapshot()
	i.progress.finish(fmt.Sprintf("enriched %d letras", snap.Updated))
	return i.progress.Snapshot(), nil
}

// sleepCtx sleeps for d unless the context ends first. Reports whether
// the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
