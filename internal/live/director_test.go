package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/youtube"
)

type stubCatalog struct {
	preferred *db.Video
	anyVideo  *db.Video
	byID      map[string]*db.Video
}

func (c *stubCatalog) RandomByPhases(_ context.Context, phases []string) (*db.Video, error) {
	if len(phases) > 0 {
		if c.preferred == nil {
			return nil, db.ErrVideoNotFound
		}
		return c.preferred, nil
	}
	if c.anyVideo == nil {
		return nil, db.ErrVideoNotFound
	}
	return c.anyVideo, nil
}

func (c *stubCatalog) GetByYouTubeID(_ context.Context, youtubeID string) (*db.Video, error) {
	if v, ok := c.byID[youtubeID]; ok {
		return v, nil
	}
	return nil, db.ErrVideoNotFound
}

type stubStateStore struct {
	state   *db.LiveState
	setErr  error
	setCnt  int
	history []*db.LiveState
}

func (s *stubStateStore) Get(_ context.Context) (*db.LiveState, error) {
	if s.state == nil {
		return nil, db.ErrNoLiveState
	}
	return s.state, nil
}

func (s *stubStateStore) Set(_ context.Context, state *db.LiveState) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.setCnt++
	s.state = state
	s.history = append(s.history, state)
	return nil
}

type broadcastCall struct {
	room    string
	event   string
	payload any
}

type stubHub struct {
	calls []broadcastCall
}

func (h *stubHub) Publish(room, event string, payload any) {
	h.calls = append(h.calls, broadcastCall{room: room, event: event, payload: payload})
}

type stubLiveResolver struct {
	meta *youtube.Metadata
	err  error
}

func (r *stubLiveResolver) Resolve(_ context.Context, _ string, _ bool) (*youtube.Metadata, bool, error) {
	return r.meta, true, r.err
}

func fixedNow() time.Time {
	return time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)
}

func newTestDirector(catalog *stubCatalog, state *stubStateStore, hub *stubHub, resolver *stubLiveResolver) *Director {
	d := New(catalog, state, hub, resolver)
	d.now = fixedNow
	return d
}

func TestAdvanceEmptyCatalog(t *testing.T) {
	state := &stubStateStore{}
	hub := &stubHub{}
	d := newTestDirector(&stubCatalog{}, state, hub, &stubLiveResolver{})

	id, ok, err := d.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if ok || id != "" {
		t.Errorf("Advance on empty catalog = (%q, %v), want no-op", id, ok)
	}
	if state.setCnt != 0 {
		t.Error("empty catalog must not mutate state")
	}
	if len(hub.calls) != 0 {
		t.Error("empty catalog must not broadcast")
	}
}

func TestAdvancePrefersFinals(t *testing.T) {
	catalog := &stubCatalog{
		preferred: &db.Video{YouTubeID: "final123", Title: "Comparsa La Final", DurationSec: 1700, GroupName: "Los Piratas"},
		anyVideo:  &db.Video{YouTubeID: "other456", Title: "Ensayo"},
	}
	state := &stubStateStore{}
	hub := &stubHub{}
	d := newTestDirector(catalog, state, hub, &stubLiveResolver{})

	id, ok, err := d.Advance(context.Background())
	if err != nil || !ok {
		t.Fatalf("Advance = (%q, %v, %v)", id, ok, err)
	}
	if id != "final123" {
		t.Errorf("selected %q, want the finals pick", id)
	}
	if state.state.SourceChannel != "Los Piratas" {
		t.Errorf("source channel = %q, want group name", state.state.SourceChannel)
	}
	if !state.state.StartedAt.Equal(fixedNow()) {
		t.Errorf("started_at = %v", state.state.StartedAt)
	}

	if len(hub.calls) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(hub.calls))
	}
	call := hub.calls[0]
	if call.room != "live" || call.event != "live_cambio" {
		t.Errorf("broadcast = %s/%s", call.room, call.event)
	}
	payload, ok := call.payload.(changePayload)
	if !ok {
		t.Fatalf("payload type %T", call.payload)
	}
	if payload.YouTubeID != "final123" || payload.Title != "Comparsa La Final" {
		t.Errorf("payload = %+v, must carry id and title", payload)
	}
}

func TestAdvanceFallsBackToWholeCatalog(t *testing.T) {
	catalog := &stubCatalog{anyVideo: &db.Video{YouTubeID: "any789", Title: "Popurrí"}}
	d := newTestDirector(catalog, &stubStateStore{}, &stubHub{}, &stubLiveResolver{})

	id, ok, err := d.Advance(context.Background())
	if err != nil || !ok {
		t.Fatalf("Advance = (%q, %v, %v)", id, ok, err)
	}
	if id != "any789" {
		t.Errorf("selected %q", id)
	}
}

func TestScheduleCatalogHit(t *testing.T) {
	catalog := &stubCatalog{byID: map[string]*db.Video{
		"vid111": {YouTubeID: "vid111", Title: "Coro del Puerto", DurationSec: 2000},
	}}
	state := &stubStateStore{}
	hub := &stubHub{}
	d := newTestDirector(catalog, state, hub, &stubLiveResolver{err: errors.New("unused")})

	if err := d.Schedule(context.Background(), "vid111"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if state.state.Title != "Coro del Puerto" || state.state.DurationSec != 2000 {
		t.Errorf("state = %+v", state.state)
	}
	if len(hub.calls) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(hub.calls))
	}
}

func TestScheduleUnknownVideoResolves(t *testing.T) {
	resolver := &stubLiveResolver{meta: &youtube.Metadata{Title: "Fuera de concurso", DurationSec: 900}}
	state := &stubStateStore{}
	d := newTestDirector(&stubCatalog{}, state, &stubHub{}, resolver)

	if err := d.Schedule(context.Background(), "ext999"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if state.state.Title != "Fuera de concurso" || state.state.DurationSec != 900 {
		t.Errorf("state = %+v", state.state)
	}
}

func TestScheduleResolveFailureStillWrites(t *testing.T) {
	resolver := &stubLiveResolver{err: errors.New("yt-dlp failed")}
	state := &stubStateStore{}
	hub := &stubHub{}
	d := newTestDirector(&stubCatalog{}, state, hub, resolver)

	if err := d.Schedule(context.Background(), "ghost42"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if state.state.Title != "ghost42" || state.state.DurationSec != 0 {
		t.Errorf("state = %+v, want id-as-title with unknown duration", state.state)
	}
	if len(hub.calls) != 1 {
		t.Error("failed resolve must still broadcast the change")
	}
}

func TestElapsedClamped(t *testing.T) {
	started := fixedNow().Add(-2 * time.Hour)
	tests := []struct {
		name  string
		state db.LiveState
		want  int
	}{
		{
			name:  "mid playback",
			state: db.LiveState{DurationSec: 7500, StartedAt: fixedNow().Add(-100 * time.Second)},
			want:  100,
		},
		{
			name:  "overrun clamps to duration minus one",
			state: db.LiveState{DurationSec: 1800, StartedAt: started},
			want:  1799,
		},
		{
			name:  "unknown duration",
			state: db.LiveState{DurationSec: 0, StartedAt: started},
			want:  0,
		},
		{
			name:  "clock skew never negative",
			state: db.LiveState{DurationSec: 600, StartedAt: fixedNow().Add(30 * time.Second)},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.Elapsed(fixedNow())
			if got != tt.want {
				t.Errorf("Elapsed = %d, want %d", got, tt.want)
			}
			if tt.state.DurationSec > 0 && (got < 0 || got >= tt.state.DurationSec) {
				t.Errorf("Elapsed = %d outside [0, %d)", got, tt.state.DurationSec)
			}
		})
	}
}

func TestTickRotatesAfterGrace(t *testing.T) {
	catalog := &stubCatalog{preferred: &db.Video{YouTubeID: "next1", Title: "Siguiente", DurationSec: 1600}}

	tests := []struct {
		name       string
		state      *db.LiveState
		wantRotate bool
	}{
		{
			name:       "no state bootstraps",
			state:      nil,
			wantRotate: true,
		},
		{
			name:       "unknown duration rotates",
			state:      &db.LiveState{YouTubeID: "cur", DurationSec: 0, StartedAt: fixedNow().Add(-time.Minute)},
			wantRotate: true,
		},
		{
			name:       "still playing",
			state:      &db.LiveState{YouTubeID: "cur", DurationSec: 300, StartedAt: fixedNow().Add(-200 * time.Second)},
			wantRotate: false,
		},
		{
			name:       "past duration but inside grace",
			state:      &db.LiveState{YouTubeID: "cur", DurationSec: 300, StartedAt: fixedNow().Add(-310 * time.Second)},
			wantRotate: false,
		},
		{
			name:       "past duration plus grace",
			state:      &db.LiveState{YouTubeID: "cur", DurationSec: 300, StartedAt: fixedNow().Add(-316 * time.Second)},
			wantRotate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &stubStateStore{state: tt.state}
			d := newTestDirector(catalog, state, &stubHub{}, &stubLiveResolver{})

			if err := d.tick(context.Background()); err != nil {
				t.Fatalf("tick: %v", err)
			}
			rotated := state.state != nil && state.state.YouTubeID == "next1"
			if rotated != tt.wantRotate {
				t.Errorf("rotated = %v, want %v", rotated, tt.wantRotate)
			}
		})
	}
}
