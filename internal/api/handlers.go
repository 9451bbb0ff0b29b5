// Package api exposes the HTTP surface: the public catalog, lyrics,
// voting, chat and live endpoints, plus the API-key-guarded admin
// operations that trigger background jobs.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/httpapi"
	"github.com/carnavalix/carnavalplay/internal/jobs"
	"github.com/carnavalix/carnavalplay/internal/letras"
	"github.com/carnavalix/carnavalplay/internal/log"
	"github.com/carnavalix/carnavalplay/internal/scraper"
)

// youtubeIDPatterns extract the 11-char video id from the URL shapes
// admins paste in.
var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`/embed/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`/shorts/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
}

// VideoStore is the catalog surface the handlers need.
type VideoStore interface {
	List(ctx context.Context, params db.ListVideosParams) ([]*db.Video, int, error)
	GetByID(ctx context.Context, id int64) (*db.Video, error)
	Create(ctx context.Context, params db.CreateVideoParams) (*db.Video, error)
	Update(ctx context.Context, id int64, params db.UpdateVideoParams) error
	Delete(ctx context.Context, id int64) error
	Ranking(ctx context.Context, minVotes int, category string, year *int, limit int) ([]*db.Video, error)
}

// LetraStore is the lyrics read surface.
type LetraStore interface {
	List(ctx context.Context, params db.ListLetrasParams) ([]*db.Letra, int, error)
	GetByID(ctx context.Context, id int64) (*db.Letra, error)
	Random(ctx context.Context) (*db.Letra, error)
	ByVideo(ctx context.Context, videoID int64) ([]*db.Letra, error)
}

// GroupStore is the ensembles read surface.
type GroupStore interface {
	List(ctx context.Context, search string, limit int) ([]*db.Group, error)
	GetByID(ctx context.Context, id int64) (*db.Group, error)
}

// VoteStore records ratings.
type VoteStore interface {
	Upsert(ctx context.Context, videoID int64, ipHash string, score int) (*db.Rating, error)
}

// ChatService is the chat surface.
type ChatService interface {
	History(ctx context.Context, room string) ([]*db.ChatMessage, error)
	Post(ctx context.Context, room, sender, content string, userID *int64) (*db.ChatMessage, error)
}

// LiveDirector drives the simulated channel.
type LiveDirector interface {
	Status(ctx context.Context) (*db.LiveState, int, error)
	Advance(ctx context.Context) (string, bool, error)
	Schedule(ctx context.Context, youtubeID string) error
}

// ScrapeService runs catalog scrapes.
type ScrapeService interface {
	ScrapeChannel(ctx context.Context, channelURL string, maxVideos int) (*scraper.Summary, error)
	ScrapeSearch(ctx context.Context, params scraper.SearchParams) (*scraper.Summary, error)
}

// LetraImporter runs lyrics imports and lazy content fetches.
type LetraImporter interface {
	ImportMetadata(ctx context.Context, params letras.ImportParams) (letras.Snapshot, error)
	EnrichBatch(ctx context.Context, limit int, delayPerItem time.Duration) (letras.Snapshot, error)
	FetchContent(ctx context.Context, lyricID int64) (string, error)
	Progress() letras.Snapshot
}

// ArchiveSyncer mirrors pending videos to the archive.
type ArchiveSyncer interface {
	Sync(ctx context.Context, limit int) (published, failed int, err error)
}

// ConfigStore is the runtime key/value configuration.
type ConfigStore interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// SearchDefaults supplies the scrape matrix when the admin request
// leaves years or templates blank.
type SearchDefaults struct {
	Years          []int
	QueryTemplates []string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	videos   VideoStore
	letras   LetraStore
	groups   GroupStore
	votes    VoteStore
	chat     ChatService
	director LiveDirector
	scraper  ScrapeService
	importer LetraImporter
	archiver ArchiveSyncer
	config   ConfigStore
	coord    *jobs.Coordinator
	defaults SearchDefaults
}

// NewHandler creates a new API handler.
func NewHandler(
	videos VideoStore,
	letraStore LetraStore,
	groups GroupStore,
	votes VoteStore,
	chat ChatService,
	director LiveDirector,
	scrapeService ScrapeService,
	importer LetraImporter,
	archiver ArchiveSyncer,
	configStore ConfigStore,
	coord *jobs.Coordinator,
	defaults SearchDefaults,
) *Handler {
	return &Handler{
		videos:   videos,
		letras:   letraStore,
		groups:   groups,
		votes:    votes,
		chat:     chat,
		director: director,
		scraper:  scrapeService,
		importer: importer,
		archiver: archiver,
		config:   configStore,
		coord:    coord,
		defaults: defaults,
	}
}

// --- Public: videos ---

// ListVideos handles GET /api/videos
func (h *Handler) ListVideos(c *gin.Context) {
	params := db.ListVideosParams{
		Category: c.Query("categoria"),
		Phase:    c.Query("fase"),
		Search:   c.Query("q"),
		Limit:    intQuery(c, "limit", 20),
		Offset:   intQuery(c, "offset", 0),
	}
	if year := intQuery(c, "anio", 0); year != 0 {
		params.Year = &year
	}
	if featured := c.Query("destacados"); featured != "" {
		v := featured == "true" || featured == "1"
		params.Featured = &v
	}

	videos, total, err := h.videos.List(c.Request.Context(), params)
	if err != nil {
		log.Error("list videos failed", zap.Error(err))
		httpapi.RespondInternalError(c, "Could not list videos")
		return
	}
	httpapi.RespondOK(c, gin.H{"videos": videos, "total": total})
}

// GetVideo handles GET /api/videos/:id
func (h *Handler) GetVideo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	video, err := h.videos.GetByID(c.Request.Context(), id)
	if errors.Is(err, db.ErrVideoNotFound) {
		httpapi.RespondNotFound(c, "Video not found")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load video")
		return
	}
	httpapi.RespondOK(c, video)
}

// RankingVideos handles GET /api/votos/ranking
func (h *Handler) RankingVideos(c *gin.Context) {
	minVotes := intQuery(c, "min_votos", 3)
	limit := intQuery(c, "limit", 20)
	var year *int
	if y := intQuery(c, "anio", 0); y != 0 {
		year = &y
	}

	videos, err := h.videos.Ranking(c.Request.Context(), minVotes, c.Query("categoria"), year, limit)
	if err != nil {
		log.Error("ranking query failed", zap.Error(err))
		httpapi.RespondInternalError(c, "Could not compute ranking")
		return
	}
	httpapi.RespondOK(c, gin.H{"ranking": videos})
}

// VoteRequest is the body of POST /api/votos.
type VoteRequest struct {
	VideoID int64 `json:"video_id" binding:"required"`
	Score   int   `json:"puntuacion" binding:"required"`
}

// CastVote handles POST /api/votos
func (h *Handler) CastVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	rating, err := h.votes.Upsert(c.Request.Context(), req.VideoID, clientIPHash(c), req.Score)
	switch {
	case errors.Is(err, db.ErrInvalidScore):
		httpapi.RespondError(c, http.StatusBadRequest, httpapi.ErrCodeInvalidScore,
			"Score must be between 1 and 5")
		return
	case errors.Is(err, db.ErrVideoNotFound):
		httpapi.RespondNotFound(c, "Video not found")
		return
	case err != nil:
		log.Error("vote upsert failed", zap.Int64("video_id", req.VideoID), zap.Error(err))
		httpapi.RespondInternalError(c, "Could not record vote")
		return
	}
	httpapi.RespondOK(c, rating)
}

// --- Public: letras ---

// ListLetras handles GET /api/letras
func (h *Handler) ListLetras(c *gin.Context) {
	params := db.ListLetrasParams{
		PieceType: c.Query("tipo"),
		Group:     c.Query("agrupacion"),
		Search:    c.Query("q"),
		Limit:     intQuery(c, "limit", 20),
		Offset:    intQuery(c, "offset", 0),
	}
	if year := intQuery(c, "anio", 0); year != 0 {
		params.Year = &year
	}

	rows, total, err := h.letras.List(c.Request.Context(), params)
	if err != nil {
		log.Error("list letras failed", zap.Error(err))
		httpapi.RespondInternalError(c, "Could not list letras")
		return
	}
	httpapi.RespondOK(c, gin.H{"letras": rows, "total": total})
}

// GetLetra handles GET /api/letras/:id. The text is fetched lazily on
// first access; a fetch failure returns the row with empty content.
func (h *Handler) GetLetra(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	letra, err := h.letras.GetByID(c.Request.Context(), id)
	if errors.Is(err, db.ErrLetraNotFound) {
		httpapi.RespondNotFound(c, "Letra not found")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load letra")
		return
	}

	if !letra.HasContent() {
		content, err := h.importer.FetchContent(c.Request.Context(), id)
		if err == nil {
			letra.Content = content
		}
	}
	httpapi.RespondOK(c, letra)
}

// RandomLetra handles GET /api/letras/aleatoria
func (h *Handler) RandomLetra(c *gin.Context) {
	letra, err := h.letras.Random(c.Request.Context())
	if errors.Is(err, db.ErrLetraNotFound) {
		httpapi.RespondNotFound(c, "No letras available")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not pick a letra")
		return
	}
	httpapi.RespondOK(c, letra)
}

// VideoLetras handles GET /api/videos/:id/letras
func (h *Handler) VideoLetras(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rows, err := h.letras.ByVideo(c.Request.Context(), id)
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load letras")
		return
	}
	httpapi.RespondOK(c, gin.H{"letras": rows})
}

// --- Public: agrupaciones ---

// ListGroups handles GET /api/agrupaciones
func (h *Handler) ListGroups(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	groups, err := h.groups.List(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		log.Error("list groups failed", zap.Error(err))
		httpapi.RespondInternalError(c, "Could not list agrupaciones")
		return
	}
	httpapi.RespondOK(c, gin.H{"agrupaciones": groups})
}

// GetGroup handles GET /api/agrupaciones/:id
func (h *Handler) GetGroup(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	group, err := h.groups.GetByID(c.Request.Context(), id)
	if errors.Is(err, db.ErrGroupNotFound) {
		httpapi.RespondNotFound(c, "Agrupación not found")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load agrupación")
		return
	}
	httpapi.RespondOK(c, group)
}

// --- Public: live ---

// LiveStatus handles GET /api/live/estado
func (h *Handler) LiveStatus(c *gin.Context) {
	state, elapsed, err := h.director.Status(c.Request.Context())
	if errors.Is(err, db.ErrNoLiveState) {
		httpapi.RespondOK(c, gin.H{"activo": false})
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load live state")
		return
	}
	httpapi.RespondOK(c, gin.H{
		"activo":           true,
		"youtube_id":       state.YouTubeID,
		"title":            state.Title,
		"duration_seconds": state.DurationSec,
		"elapsed_seconds":  elapsed,
		"source_channel":   state.SourceChannel,
	})
}

// LiveNext handles POST /api/live/siguiente
func (h *Handler) LiveNext(c *gin.Context) {
	id, ok, err := h.director.Advance(c.Request.Context())
	if err != nil {
		log.Error("live advance failed", zap.Error(err))
		httpapi.RespondInternalError(c, "Could not advance the live channel")
		return
	}
	if !ok {
		httpapi.RespondError(c, http.StatusConflict, httpapi.ErrCodeEmptyCatalog,
			"The catalog is empty, nothing to play")
		return
	}
	httpapi.RespondOK(c, gin.H{"youtube_id": id})
}

// ScheduleRequest is the body of POST /api/live/programar.
type ScheduleRequest struct {
	YouTubeID string `json:"youtube_id"`
	URL       string `json:"url"`
}

// LiveSchedule handles POST /api/live/programar
func (h *Handler) LiveSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	youtubeID := req.YouTubeID
	if youtubeID == "" {
		youtubeID = ExtractYouTubeID(req.URL)
	}
	if youtubeID == "" {
		httpapi.RespondError(c, http.StatusBadRequest, httpapi.ErrCodeInvalidURL,
			"A youtube_id or a recognizable YouTube URL is required")
		return
	}

	if err := h.director.Schedule(c.Request.Context(), youtubeID); err != nil {
		log.Error("live schedule failed", zap.String("youtube_id", youtubeID), zap.Error(err))
		httpapi.RespondInternalError(c, "Could not schedule the video")
		return
	}
	httpapi.RespondOK(c, gin.H{"youtube_id": youtubeID})
}

// --- Public: chat ---

// ChatHistory handles GET /api/chat/historial
func (h *Handler) ChatHistory(c *gin.Context) {
	messages, err := h.chat.History(c.Request.Context(), c.Query("sala"))
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load chat history")
		return
	}
	httpapi.RespondOK(c, gin.H{"mensajes": messages})
}

// --- Helpers ---

// ExtractYouTubeID pulls the video id out of a watch/short/embed URL,
// or returns the input when it already is a bare id. Empty when
// nothing matches.
func ExtractYouTubeID(input string) string {
	input = strings.TrimSpace(input)
	for _, pattern := range youtubeIDPatterns {
		if m := pattern.FindStringSubmatch(input); m != nil {
			return m[1]
		}
	}
	return ""
}

// clientIPHash anonymizes the voter: sha256 of the first forwarded
// address, falling back to the peer address.
func clientIPHash(c *gin.Context) string {
	addr := c.GetHeader("X-Forwarded-For")
	if addr != "" {
		addr = strings.TrimSpace(strings.Split(addr, ",")[0])
	} else {
		addr = c.ClientIP()
	}
	sum := sha256.Sum256([]byte(addr))
	return hex.EncodeToString(sum[:])
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// pathID parses the :id path param, responding 400 on garbage.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpapi.RespondBadRequest(c, "Invalid id")
		return 0, false
	}
	return id, true
}
