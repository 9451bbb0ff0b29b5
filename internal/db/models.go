package db

import (
	"time"
)

// Content types for a catalog video.
const (
	ContentTypeCOAC      = "coac"
	ContentTypeCallejera = "callejera"
)

// Competition phases inferred from video titles. Callejera marks a
// street performance outside the official contest.
const (
	PhaseFinal      = "final"
	PhaseSemifinal  = "semifinal"
	PhaseCuartos    = "cuartos"
	PhasePreliminar = "preliminar"
	PhaseCallejera  = "callejera"
)

// Categories (modalidades) of a Carnival ensemble.
const (
	CategoryChirigota = "chirigota"
	CategoryComparsa  = "comparsa"
	CategoryCoro      = "coro"
	CategoryCuarteto  = "cuarteto"
	CategoryRomancero = "romancero"
)

// Chat message kinds.
const (
	ChatKindUser   = "user"
	ChatKindBot    = "bot"
	ChatKindSystem = "system"
)

// DefaultLiveChannel is the source label used when a video carries no
// group name of its own.
const DefaultLiveChannel = "ONDACADIZCARNAVAL"

// Video is a COAC video indexed from YouTube.
type Video struct {
	ID          int64      `json:"id"`
	YouTubeID   string     `json:"youtube_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Thumbnail   string     `json:"thumbnail"`
	DurationSec int        `json:"duration_seconds"`
	ViewCount   int64      `json:"view_count"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	Year        *int    `json:"year,omitempty"`
	Phase       *string `json:"phase,omitempty"`
	Category    *string `json:"category,omitempty"`
	ContentType string  `json:"content_type"`

	GroupID   *int64 `json:"group_id,omitempty"`
	GroupName string `json:"group_name"`

	HasLyrics bool    `json:"has_lyrics"`
	Featured  bool    `json:"featured"`
	OdyseeURL *string `json:"odysee_url,omitempty"`

	RatingAvg   float64 `json:"rating_avg"`
	RatingCount int     `json:"rating_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Group is a performing ensemble.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Authors     string    `json:"authors"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Letra is a song lyric, imported from the Carnaval-Letras API or
// entered manually. Content may be empty until the lazy fetch runs.
type Letra struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	PieceType string    `json:"piece_type"`
	Content   string    `json:"content"`
	SourceURL *string   `json:"source_url,omitempty"`
	Year      *int      `json:"year,omitempty"`
	GroupName string    `json:"group_name"`
	VideoID   *int64    `json:"video_id,omitempty"`
	GroupID   *int64    `json:"group_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasContent reports whether the lyric body has been populated.
// Bodies of 10 characters or fewer count as pending.
func (l *Letra) HasContent() bool {
	return len(l.Content) > 10
}

// Vote is a single rating of a video by an anonymized submitter.
type Vote struct {
	ID        int64     `json:"id"`
	VideoID   int64     `json:"video_id"`
	IPHash    string    `json:"-"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one line of the 24/7 chat. Append-only.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	UserID    *int64    `json:"user_id,omitempty"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// LiveState is the singleton state of the simulated live channel.
// Elapsed time is derived from the wall clock, never stored.
type LiveState struct {
	YouTubeID     string    `json:"youtube_id"`
	Title         string    `json:"title"`
	DurationSec   int       `json:"duration_seconds"`
	StartedAt     time.Time `json:"started_at"`
	SourceChannel string    `json:"source_channel"`
}

// Elapsed returns the derived playback position in seconds, clamped to
// [0, duration-1] so the channel never reports a fully-elapsed item.
func (s *LiveState) Elapsed(now time.Time) int {
	if s.DurationSec <= 0 || s.StartedAt.IsZero() {
		return 0
	}
	elapsed := int(now.Sub(s.StartedAt).Seconds())
	if elapsed < 0 {
		return 0
	}
	if elapsed > s.DurationSec-1 {
		return s.DurationSec - 1
	}
	return elapsed
}

// ConfigItem is a key/value pair editable from the admin panel.
type ConfigItem struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}
