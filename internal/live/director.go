// Package live drives the simulated 24/7 carnival channel: it picks
// what plays, tracks where playback stands, and rotates to the next
// piece when the current one runs out.
package live

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/log"
	"github.com/carnavalix/carnavalplay/internal/youtube"
)

const (
	// monitorInterval is how often the rotation check runs.
	monitorInterval = 30 * time.Second
	// rotateGrace keeps the current piece on screen a little past its
	// nominal end so clients buffering near the tail are not cut off.
	rotateGrace = 15 * time.Second

	// Room and event name for playback-change notifications.
	liveRoom        = "live"
	eventLiveChange = "live_cambio"
)

// preferredPhases drives selection: finals and semifinals first.
var preferredPhases = []string{db.PhaseFinal, db.PhaseSemifinal}

// Catalog is the video lookup surface the director reads from.
type Catalog interface {
	RandomByPhases(ctx context.Context, phases []string) (*db.Video, error)
	GetByYouTubeID(ctx context.Context, youtubeID string) (*db.Video, error)
}

// StateStore owns the singleton playback state.
type StateStore interface {
	Get(ctx context.Context) (*db.LiveState, error)
	Set(ctx context.Context, state *db.LiveState) error
}

// Broadcaster pushes playback-change events to connected clients.
type Broadcaster interface {
	Publish(room, event string, payload any)
}

// MetadataResolver resolves titles and durations for videos scheduled
// from outside the catalog.
type MetadataResolver interface {
	Resolve(ctx context.Context, youtubeID string, fallbackOnly bool) (*youtube.Metadata, bool, error)
}

// Director owns the live channel.
type Director struct {
	catalog  Catalog
	state    StateStore
	hub      Broadcaster
	resolver MetadataResolver
	now      func() time.Time
}

// New builds a director.
func New(catalog Catalog, state StateStore, hub Broadcaster, resolver MetadataResolver) *Director {
	return &Director{
		catalog:  catalog,
		state:    state,
		hub:      hub,
		resolver: resolver,
		now:      time.Now,
	}
}

// changePayload is what clients receive on rotation.
type changePayload struct {
	YouTubeID   string `json:"youtube_id"`
	Title       string `json:"title"`
	DurationSec int    `json:"duration_seconds"`
}

// select picks the next piece: random among finals/semifinals, falling
// back to the whole catalog. Nil when the catalog is empty.
func (d *Director) selectNext(ctx context.Context) (*db.Video, error) {
	video, err := d.catalog.RandomByPhases(ctx, preferredPhases)
	if err == nil {
		return video, nil
	}
	if !errors.Is(err, db.ErrVideoNotFound) {
		return nil, err
	}

	video, err = d.catalog.RandomByPhases(ctx, nil)
	if errors.Is(err, db.ErrVideoNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return video, nil
}

// Advance rotates the channel to a freshly selected piece. On an empty
// catalog it reports ok=false and leaves the current state untouched.
func (d *Director) Advance(ctx context.Context) (string, bool, error) {
	video, err := d.selectNext(ctx)
	if err != nil {
		return "", false, err
	}
	if video == nil {
		log.Warn("live advance skipped, catalog is empty")
		return "", false, nil
	}

	state := &db.LiveState{
		YouTubeID:   video.YouTubeID,
		Title:       video.Title,
		DurationSec: video.DurationSec,
		StartedAt:   d.now().UTC(),
	}
	if video.GroupName != "" {
		state.SourceChannel = video.GroupName
	}
	if err := d.state.Set(ctx, state); err != nil {
		return "", false, err
	}

	d.broadcast(state)
	log.Info("live channel advanced",
		zap.String("youtube_id", state.YouTubeID),
		zap.String("title", state.Title),
		zap.Int("duration_seconds", state.DurationSec),
	)
	return video.YouTubeID, true, nil
}

// Schedule puts a specific video on air. Catalog hits reuse the stored
// title and duration; anything else gets a best-effort resolve, and on
// failure plays with the id as title and an unknown duration so the
// monitor's bootstrap path takes over.
func (d *Director) Schedule(ctx context.Context, youtubeID string) error {
	state := &db.LiveState{
		YouTubeID: youtubeID,
		Title:     youtubeID,
		StartedAt: d.now().UTC(),
	}

	video, err := d.catalog.GetByYouTubeID(ctx, youtubeID)
	switch {
	case err == nil:
		state.Title = video.Title
		state.DurationSec = video.DurationSec
		if video.GroupName != "" {
			state.SourceChannel = video.GroupName
		}
	case errors.Is(err, db.ErrVideoNotFound):
		if meta, _, rerr := d.resolver.Resolve(ctx, youtubeID, true); rerr == nil {
			state.Title = meta.Title
			state.DurationSec = meta.DurationSec
		} else {
			log.Warn("scheduled video could not be resolved",
				zap.String("youtube_id", youtubeID), zap.Error(rerr))
		}
	default:
		return err
	}

	if err := d.state.Set(ctx, state); err != nil {
		return err
	}
	d.broadcast(state)
	log.Info("live video scheduled", zap.String("youtube_id", youtubeID))
	return nil
}

// Status returns the current state plus its clamped elapsed seconds.
func (d *Director) Status(ctx context.Context) (*db.LiveState, int, error) {
	state, err := d.state.Get(ctx)
	if err != nil {
		return nil, 0, err
	}
	return state, state.Elapsed(d.now()), nil
}

func (d *Director) broadcast(state *db.LiveState) {
	d.hub.Publish(liveRoom, eventLiveChange, changePayload{
		YouTubeID:   state.YouTubeID,
		Title:       state.Title,
		DurationSec: state.DurationSec,
	})
}

// RunMonitor checks the channel every 30 seconds and rotates when the
// current piece has played out (plus grace), or bootstraps when there
// is no usable state. It only ever stops on context cancellation.
func (d *Director) RunMonitor(ctx context.Context) {
	log.Info("live monitor started", zap.Duration("interval", monitorInterval))

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("live monitor stopped")
			return
		case <-ticker.C:
			if err := d.tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("live monitor check failed", zap.Error(err))
			}
		}
	}
}

// tick is one monitor pass.
func (d *Director) tick(ctx context.Context) error {
	state, err := d.state.Get(ctx)
	if errors.Is(err, db.ErrNoLiveState) {
		_, _, err := d.Advance(ctx)
		return err
	}
	if err != nil {
		return err
	}

	if state.DurationSec <= 0 {
		// Unknown duration, nothing to measure against. Rotate so the
		// channel never wedges on an unmeasurable piece.
		_, _, err := d.Advance(ctx)
		return err
	}

	playedFor := d.now().UTC().Sub(state.StartedAt)
	if playedFor >= time.Duration(state.DurationSec)*time.Second+rotateGrace {
		_, _, err := d.Advance(ctx)
		return err
	}
	return nil
}
