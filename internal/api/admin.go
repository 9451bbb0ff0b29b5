package api

import (
	"context"
	"errors"
	"net/http"
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

// ScrapeRequest is the body of POST /api/admin/scraper/youtube.
// Channel mode runs when channel_url is set, otherwise search mode.
type ScrapeRequest struct {
	ChannelURL    string   `json:"channel_url"`
	MaxVideos     int      `json:"max_videos"`
	Years         []int    `json:"anios"`
	Categories    []string `json:"categorias"`
	ForceFallback bool     `json:"force_fallback"`
}

// TriggerScrape handles POST /api/admin/scraper/youtube. The scrape
// runs in the background; the response carries the run id.
func (h *Handler) TriggerScrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	run, err := h.coord.TryStart(context.Background(), jobs.FamilyScraper)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		httpapi.RespondConflict(c, httpapi.ErrCodeJobRunning, "A scrape is already running")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not start the scrape")
		return
	}

	go func() {
		defer run.Done()
		var err error
		if req.ChannelURL != "" {
			_, err = h.scraper.ScrapeChannel(run.Context(), req.ChannelURL, req.MaxVideos)
		} else {
			params := scraper.SearchParams{
				Years:          req.Years,
				QueryTemplates: h.defaults.QueryTemplates,
				Categories:     req.Categories,
				ForceFallback:  req.ForceFallback,
			}
			if len(params.Years) == 0 {
				params.Years = h.defaults.Years
			}
			_, err = h.scraper.ScrapeSearch(run.Context(), params)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scrape run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	httpapi.RespondAccepted(c, gin.H{"run_id": run.ID})
}

// ImportLetrasRequest is the body of POST /api/admin/letras/importar.
type ImportLetrasRequest struct {
	Year       int    `json:"anio"`
	Category   string `json:"tipo"`
	MinQuality int    `json:"calidad_minima"`
	Limit      int    `json:"limite"`
}

// TriggerLetrasImport handles POST /api/admin/letras/importar.
func (h *Handler) TriggerLetrasImport(c *gin.Context) {
	var req ImportLetrasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	run, err := h.coord.TryStart(context.Background(), jobs.FamilyLetras)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		httpapi.RespondConflict(c, httpapi.ErrCodeJobRunning, "A letras job is already running")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not start the import")
		return
	}

	go func() {
		defer run.Done()
		_, err := h.importer.ImportMetadata(run.Context(), letras.ImportParams{
			Year:       req.Year,
			Category:   req.Category,
			MinQuality: req.MinQuality,
			Limit:      req.Limit,
			PageDelay:  time.Second,
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, letras.ErrBusy) {
			log.Error("letras import failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	httpapi.RespondAccepted(c, gin.H{"run_id": run.ID})
}

// EnrichLetrasRequest is the body of POST /api/admin/letras/enriquecer.
type EnrichLetrasRequest struct {
	Limit int `json:"limite"`
}

// TriggerLetrasEnrich handles POST /api/admin/letras/enriquecer.
func (h *Handler) TriggerLetrasEnrich(c *gin.Context) {
	var req EnrichLetrasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	run, err := h.coord.TryStart(context.Background(), jobs.FamilyLetras)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		httpapi.RespondConflict(c, httpapi.ErrCodeJobRunning, "A letras job is already running")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not start the enrichment")
		return
	}

	go func() {
		defer run.Done()
		_, err := h.importer.EnrichBatch(run.Context(), req.Limit, time.Second)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, letras.ErrBusy) {
			log.Error("letras enrichment failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	httpapi.RespondAccepted(c, gin.H{"run_id": run.ID})
}

// LetrasProgress handles GET /api/admin/letras/progreso.
func (h *Handler) LetrasProgress(c *gin.Context) {
	httpapi.RespondOK(c, h.importer.Progress())
}

// TriggerOdyseeSync handles POST /api/admin/odysee/sync.
func (h *Handler) TriggerOdyseeSync(c *gin.Context) {
	limit := intQuery(c, "limit", 25)

	run, err := h.coord.TryStart(context.Background(), jobs.FamilyOdysee)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		httpapi.RespondConflict(c, httpapi.ErrCodeJobRunning, "An archive sync is already running")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not start the sync")
		return
	}

	go func() {
		defer run.Done()
		published, failed, err := h.archiver.Sync(run.Context(), limit)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("archive sync failed", zap.String("run_id", run.ID), zap.Error(err))
			return
		}
		log.Info("archive sync run finished",
			zap.String("run_id", run.ID),
			zap.Int("published", published),
			zap.Int("failed", failed),
		)
	}()

	httpapi.RespondAccepted(c, gin.H{"run_id": run.ID})
}

// JobsStatus handles GET /api/admin/jobs.
func (h *Handler) JobsStatus(c *gin.Context) {
	httpapi.RespondOK(c, h.coord.Snapshot())
}

// StopJob handles POST /api/admin/jobs/:family/stop.
func (h *Handler) StopJob(c *gin.Context) {
	family := jobs.Family(c.Param("family"))
	if !h.coord.Stop(family) {
		httpapi.RespondNotFound(c, "No running job for that family")
		return
	}
	httpapi.RespondAccepted(c, gin.H{"stopping": string(family)})
}

// CreateVideoRequest is the body of POST /api/admin/videos.
type CreateVideoRequest struct {
	URL         string  `json:"url" binding:"required"`
	Title       string  `json:"title"`
	Year        *int    `json:"anio"`
	Category    *string `json:"categoria"`
	Phase       *string `json:"fase"`
	GroupName   string  `json:"agrupacion"`
	ContentType string  `json:"content_type"`
	Featured    bool    `json:"destacado"`
}

// CreateVideo handles POST /api/admin/videos: manual catalog entry
// from a pasted URL.
func (h *Handler) CreateVideo(c *gin.Context) {
	var req CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	youtubeID := ExtractYouTubeID(req.URL)
	if youtubeID == "" {
		httpapi.RespondError(c, http.StatusBadRequest, httpapi.ErrCodeInvalidURL,
			"Not a recognizable YouTube URL or video id")
		return
	}

	title := req.Title
	if title == "" {
		title = youtubeID
	}
	video, err := h.videos.Create(c.Request.Context(), db.CreateVideoParams{
		YouTubeID:   youtubeID,
		Title:       title,
		Year:        req.Year,
		Category:    req.Category,
		Phase:       req.Phase,
		GroupName:   req.GroupName,
		ContentType: req.ContentType,
		Featured:    req.Featured,
	})
	if errors.Is(err, db.ErrDuplicateVideo) {
		httpapi.RespondConflict(c, httpapi.ErrCodeDuplicateVideo, "Video already in the catalog")
		return
	}
	if err != nil {
		log.Error("manual video create failed", zap.String("youtube_id", youtubeID), zap.Error(err))
		httpapi.RespondInternalError(c, "Could not create video")
		return
	}
	httpapi.RespondCreated(c, video)
}

// UpdateVideoRequest is the body of PATCH /api/admin/videos/:id.
type UpdateVideoRequest struct {
	Year        *int    `json:"anio"`
	Phase       *string `json:"fase"`
	Category    *string `json:"categoria"`
	ContentType *string `json:"content_type"`
	GroupName   *string `json:"agrupacion"`
	Featured    *bool   `json:"destacado"`
}

// UpdateVideo handles PATCH /api/admin/videos/:id.
func (h *Handler) UpdateVideo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	err := h.videos.Update(c.Request.Context(), id, db.UpdateVideoParams{
		Year:        req.Year,
		Phase:       req.Phase,
		Category:    req.Category,
		ContentType: req.ContentType,
		GroupName:   req.GroupName,
		Featured:    req.Featured,
	})
	if errors.Is(err, db.ErrVideoNotFound) {
		httpapi.RespondNotFound(c, "Video not found")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not update video")
		return
	}
	httpapi.RespondNoContent(c)
}

// DeleteVideo handles DELETE /api/admin/videos/:id.
func (h *Handler) DeleteVideo(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.videos.Delete(c.Request.Context(), id)
	if errors.Is(err, db.ErrVideoNotFound) {
		httpapi.RespondNotFound(c, "Video not found")
		return
	}
	if err != nil {
		httpapi.RespondInternalError(c, "Could not delete video")
		return
	}
	httpapi.RespondNoContent(c)
}

// GetConfig handles GET /api/admin/config.
func (h *Handler) GetConfig(c *gin.Context) {
	values, err := h.config.All(c.Request.Context())
	if err != nil {
		httpapi.RespondInternalError(c, "Could not load configuration")
		return
	}
	httpapi.RespondOK(c, values)
}

// SetConfigRequest is the body of POST /api/admin/config.
type SetConfigRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// SetConfig handles POST /api/admin/config.
func (h *Handler) SetConfig(c *gin.Context) {
	var req SetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.config.Set(c.Request.Context(), req.Key, req.Value); err != nil {
		httpapi.RespondInternalError(c, "Could not store configuration")
		return
	}
	httpapi.RespondNoContent(c)
}
