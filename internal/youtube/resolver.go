// Package youtube resolves video metadata through a two-stage strategy:
// the quota-metered YouTube Data API v3 first, falling through to the
// yt-dlp extraction tool on any failure or when explicitly bypassed.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/carnavalix/carnavalplay/internal/log"
	"github.com/carnavalix/carnavalplay/internal/ytdlp"
)

// ErrNotFound is returned when neither the API nor the fallback tool
// could produce metadata for a video.
var ErrNotFound = errors.New("video metadata not found")

// descriptionLimit caps stored descriptions.
const descriptionLimit = 1000

// Metadata is the source-agnostic shape both resolution paths produce.
type Metadata struct {
	Title       string
	Description string
	Thumbnail   string
	DurationSec int
	ViewCount   int64
	PublishedAt *time.Time
	Channel     string
	ChannelID   string
}

// SearchResult is one hit of a video search.
type SearchResult struct {
	YouTubeID   string
	Title       string
	Description string
	Thumbnail   string
	Channel     string
	ChannelID   string
}

// FallbackClient is the extraction-tool surface the resolver needs.
type FallbackClient interface {
	VideoMetadata(ctx context.Context, youtubeID string) (*ytdlp.VideoInfo, error)
	Search(ctx context.Context, query string, maxResults int) ([]*ytdlp.VideoInfo, error)
}

// Resolver fetches video metadata. It never writes to the store.
type Resolver struct {
	service  *yt.Service // nil when no API key is configured
	fallback FallbackClient
}

// NewResolver builds a resolver. An empty API key disables the primary
// path; every call then goes straight to the fallback tool.
func NewResolver(ctx context.Context, apiKey string, fallback FallbackClient) (*Resolver, error) {
	r := &Resolver{fallback: fallback}

	if apiKey != "" {
		service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, fmt.Errorf("create youtube service: %w", err)
		}
		r.service = service
	}

	return r, nil
}

// NewResolverWithService wires an existing Data API service, for tests.
func NewResolverWithService(service *yt.Service, fallback FallbackClient) *Resolver {
	return &Resolver{service: service, fallback: fallback}
}

// HasAPI reports whether the primary Data API path is configured.
func (r *Resolver) HasAPI() bool {
	return r.service != nil
}

// Resolve fetches metadata for one video. usedFallback reports whether
// the extraction tool served the request, so callers accounting quota
// can tell the paths apart. Returns ErrNotFound when both paths fail.
func (r *Resolver) Resolve(ctx context.Context, youtubeID string, fallbackOnly bool) (meta *Metadata, usedFallback bool, err error) {
	if !fallbackOnly && r.service != nil {
		meta, err := r.resolveAPI(ctx, youtubeID)
		if err == nil {
			return meta, false, nil
		}
		log.Warn("primary metadata lookup failed, falling back to yt-dlp",
			zap.String("youtube_id", youtubeID),
			zap.Error(err),
		)
	}

	info, err := r.fallback.VideoMetadata(ctx, youtubeID)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s", ErrNotFound, youtubeID)
	}

	return &Metadata{
		Title:       info.Title,
		Description: truncate(info.Description, descriptionLimit),
		Thumbnail:   info.BestThumbnail(),
		DurationSec: int(info.Duration),
		ViewCount:   info.ViewCount,
		PublishedAt: parseUploadDate(info.UploadDate),
		Channel:     info.ChannelName(),
		ChannelID:   info.ChannelID,
	}, true, nil
}

func (r *Resolver) resolveAPI(ctx context.Context, youtubeID string) (*Metadata, error) {
	resp, err := r.service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(youtubeID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("videos.list: %w", ErrNotFound)
	}

	item := resp.Items[0]
	meta := &Metadata{
		Title:       item.Snippet.Title,
		Description: truncate(item.Snippet.Description, descriptionLimit),
		Thumbnail:   bestAPIThumbnail(item.Snippet.Thumbnails),
		PublishedAt: parseRFC3339(item.Snippet.PublishedAt),
		Channel:     item.Snippet.ChannelTitle,
		ChannelID:   item.Snippet.ChannelId,
	}
	if item.ContentDetails != nil {
		meta.DurationSec = ParseISODuration(item.ContentDetails.Duration)
	}
	if item.Statistics != nil {
		meta.ViewCount = int64(item.Statistics.ViewCount)
	}
	return meta, nil
}

// Search finds videos matching a query, via the API unless fallbackOnly
// or the API is unconfigured or returns nothing.
func (r *Resolver) Search(ctx context.Context, query string, maxResults int, fallbackOnly bool) (results []SearchResult, usedFallback bool, err error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	if !fallbackOnly && r.service != nil {
		results, err := r.searchAPI(ctx, query, maxResults)
		if err == nil && len(results) > 0 {
			return results, false, nil
		}
		if err != nil {
			log.Warn("primary search failed, falling back to yt-dlp",
				zap.String("query", query),
				zap.Error(err),
			)
		}
	}

	infos, err := r.fallback.Search(ctx, query, maxResults)
	if err != nil {
		return nil, true, fmt.Errorf("fallback search %q: %w", query, err)
	}

	for _, info := range infos {
		results = append(results, SearchResult{
			YouTubeID:   info.ID,
			Title:       info.Title,
			Description: truncate(info.Description, 500),
			Thumbnail:   info.BestThumbnail(),
			Channel:     info.ChannelName(),
			ChannelID:   info.ChannelID,
		})
	}
	return results, true, nil
}

func (r *Resolver) searchAPI(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	resp, err := r.service.Search.
		List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search.list: %w", err)
	}

	var results []SearchResult
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		result := SearchResult{
			YouTubeID: item.Id.VideoId,
		}
		if item.Snippet != nil {
			result.Title = item.Snippet.Title
			result.Description = truncate(item.Snippet.Description, 500)
			result.Thumbnail = bestAPIThumbnail(item.Snippet.Thumbnails)
			result.Channel = item.Snippet.ChannelTitle
			result.ChannelID = item.Snippet.ChannelId
		}
		results = append(results, result)
	}
	return results, nil
}

// bestAPIThumbnail prefers the highest resolution the API offers.
func bestAPIThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, candidate := range []*yt.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if candidate != nil && candidate.Url != "" {
			return candidate.Url
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
