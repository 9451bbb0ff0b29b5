// Package scraper populates the video catalog from YouTube, either by
// walking a channel's uploads or by running a search matrix of
// query templates across competition years.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/classify"
	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/log"
	"github.com/carnavalix/carnavalplay/internal/youtube"
)

// commitBatchSize flushes accumulated channel-mode inserts.
const commitBatchSize = 20

// VideoStore is the catalog surface the scraper writes through.
type VideoStore interface {
	Exists(ctx context.Context, youtubeID string) (bool, error)
	CreateBatch(ctx context.Context, params []db.CreateVideoParams) (int, error)
}

// MetadataResolver is the two-stage resolution surface.
type MetadataResolver interface {
	Resolve(ctx context.Context, youtubeID string, fallbackOnly bool) (*youtube.Metadata, bool, error)
	Search(ctx context.Context, query string, maxResults int, fallbackOnly bool) ([]youtube.SearchResult, bool, error)
}

// ChannelLister enumerates a channel's uploads without fetching details.
type ChannelLister interface {
	ListChannel(ctx context.Context, channelURL string, maxVideos int) ([]string, error)
}

// Summary reports what one scrape run did.
type Summary struct {
	Found       int `json:"found"`
	Added       int `json:"added"`
	Existing    int `json:"existing"`
	Errors      int `json:"errors"`
	QueriesUsed int `json:"queries_used,omitempty"`
	QuotaSpent  int `json:"quota_spent,omitempty"`
}

// SearchParams narrows a search-matrix run.
type SearchParams struct {
	Years          []int
	QueryTemplates []string
	Categories     []string
	MaxPerQuery    int
	ForceFallback  bool
}

// Scraper drives both scrape modes.
type Scraper struct {
	store    VideoStore
	resolver MetadataResolver
	lister   ChannelLister

	quotaBudget int
}

// New builds a scraper. quotaBudget is the per-run search-mode API cost
// ceiling; crossing it flips the rest of that run to fallback-only.
func New(store VideoStore, resolver MetadataResolver, lister ChannelLister, quotaBudget int) *Scraper {
	if quotaBudget <= 0 {
		quotaBudget = 80
	}
	return &Scraper{
		store:       store,
		resolver:    resolver,
		lister:      lister,
		quotaBudget: quotaBudget,
	}
}

// quotaGovernor tracks one search run's approximate API cost. Each run
// owns its own governor; nothing carries over to the next run.
type quotaGovernor struct {
	budget    int
	spent     int
	exhausted bool
}

// spend records API cost. Crossing the budget flips the governor,
// irrevocably for this run, to exhausted; once flipped it stops counting.
func (g *quotaGovernor) spend(units int) {
	if g.exhausted {
		return
	}
	g.spent += units
	if g.spent >= g.budget {
		g.exhausted = true
		log.Warn("youtube quota budget exhausted, switching to fallback extraction",
			zap.Int("spent", g.spent),
			zap.Int("budget", g.budget),
		)
	}
}

// ScrapeChannel walks a channel's uploads and inserts the videos not yet
// in the catalog. Listing and metadata always go through the extraction
// tool; channel walks never touch API quota.
func (s *Scraper) ScrapeChannel(ctx context.Context, channelURL string, maxVideos int) (*Summary, error) {
	summary := &Summary{}

	ids, err := s.lister.ListChannel(ctx, channelURL, maxVideos)
	if err != nil {
		return nil, fmt.Errorf("list channel %s: %w", channelURL, err)
	}
	summary.Found = len(ids)

	log.Info("channel scrape started",
		zap.String("channel", channelURL),
		zap.Int("videos", len(ids)),
	)

	var batch []db.CreateVideoParams
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			summary.Errors++
			continue
		}
		if exists {
			summary.Existing++
			continue
		}

		meta, _, err := s.resolver.Resolve(ctx, id, true)
		if err != nil {
			log.Warn("channel video metadata failed", zap.String("youtube_id", id), zap.Error(err))
			summary.Errors++
			continue
		}

		batch = append(batch, buildParams(id, meta))
		if len(batch) >= commitBatchSize {
			s.flush(ctx, &batch, summary)
		}
	}
	s.flush(ctx, &batch, summary)

	log.Info("channel scrape finished",
		zap.String("channel", channelURL),
		zap.Int("added", summary.Added),
		zap.Int("existing", summary.Existing),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// ScrapeSearch runs the years × templates search matrix. API search and
// detail fetches cost one quota unit each; crossing the budget flips the
// rest of the run, irrevocably, to fallback-only extraction.
func (s *Scraper) ScrapeSearch(ctx context.Context, params SearchParams) (*Summary, error) {
	if len(params.Years) == 0 {
		return nil, errors.New("search scrape needs at least one year")
	}
	if len(params.QueryTemplates) == 0 {
		return nil, errors.New("search scrape needs at least one query template")
	}
	maxPerQuery := params.MaxPerQuery
	if maxPerQuery <= 0 {
		maxPerQuery = 20
	}

	summary := &Summary{}
	gov := &quotaGovernor{budget: s.quotaBudget, exhausted: params.ForceFallback}

	for _, year := range params.Years {
		for _, template := range params.QueryTemplates {
			if err := ctx.Err(); err != nil {
				summary.QuotaSpent = gov.spent
				return summary, err
			}

			query := strings.ReplaceAll(template, "{year}", fmt.Sprintf("%d", year))
			summary.QueriesUsed++

			fallbackOnly := gov.exhausted
			if !fallbackOnly {
				gov.spend(1)
			}

			results, usedFallback, err := s.resolver.Search(ctx, query, maxPerQuery, fallbackOnly)
			if err != nil {
				log.Warn("search query failed", zap.String("query", query), zap.Error(err))
				summary.Errors++
				continue
			}
			if usedFallback && !fallbackOnly {
				// Primary path refused the search; stop paying for more.
				gov.exhausted = true
			}
			summary.Found += len(results)

			var batch []db.CreateVideoParams
			for _, hit := range results {
				if err := ctx.Err(); err != nil {
					summary.QuotaSpent = gov.spent
					return summary, err
				}

				exists, err := s.store.Exists(ctx, hit.YouTubeID)
				if err != nil {
					summary.Errors++
					continue
				}
				if exists {
					summary.Existing++
					continue
				}

				cls := classify.Classify(hit.Title, hit.Description)
				if !categoryAllowed(params.Categories, cls.Category) {
					continue
				}

				fallbackOnly := gov.exhausted
				if !fallbackOnly {
					gov.spend(1)
				}
				meta, _, err := s.resolver.Resolve(ctx, hit.YouTubeID, fallbackOnly)
				if err != nil {
					summary.Errors++
					continue
				}
				batch = append(batch, buildParams(hit.YouTubeID, meta))
			}

			s.flush(ctx, &batch, summary)
		}
	}

	summary.QuotaSpent = gov.spent
	log.Info("search scrape finished",
		zap.Int("queries", summary.QueriesUsed),
		zap.Int("added", summary.Added),
		zap.Int("existing", summary.Existing),
		zap.Int("errors", summary.Errors),
		zap.Int("quota_spent", summary.QuotaSpent),
	)
	return summary, nil
}

// categoryAllowed applies the optional category allow-list. Without a
// list everything passes, uncategorised hits included.
func categoryAllowed(allowed []string, category *string) bool {
	if len(allowed) == 0 {
		return true
	}
	if category == nil {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(a, *category) {
			return true
		}
	}
	return false
}

// flush commits the accumulated batch and folds the result into summary.
func (s *Scraper) flush(ctx context.Context, batch *[]db.CreateVideoParams, summary *Summary) {
	if len(*batch) == 0 {
		return
	}
	added, err := s.store.CreateBatch(ctx, *batch)
	if err != nil {
		log.Error("batch insert failed", zap.Int("size", len(*batch)), zap.Error(err))
		summary.Errors += len(*batch)
	} else {
		summary.Added += added
		summary.Existing += len(*batch) - added
	}
	*batch = (*batch)[:0]
}

// buildParams classifies the metadata and shapes it for insertion.
func buildParams(youtubeID string, meta *youtube.Metadata) db.CreateVideoParams {
	cls := classify.Classify(meta.Title, meta.Description)

	params := db.CreateVideoParams{
		YouTubeID:   youtubeID,
		Title:       meta.Title,
		Description: meta.Description,
		Thumbnail:   meta.Thumbnail,
		DurationSec: meta.DurationSec,
		ViewCount:   meta.ViewCount,
		Year:        cls.Year,
		Category:    cls.Category,
		Phase:       cls.Phase,
		ContentType: cls.ContentType,
	}
	if meta.PublishedAt != nil {
		unix := meta.PublishedAt.Unix()
		params.PublishedAt = &unix
	}
	return params
}
