package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carnavalix/carnavalplay/internal/httpapi"
)

// HealthChecker reports storage liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router assembles the gin engine with all routes and middleware.
func Router(h *Handler, ws *WSHandler, health HealthChecker, adminAPIKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpapi.RequestLogger())

	router.GET("/health", func(c *gin.Context) {
		if err := health.Health(c.Request.Context()); err != nil {
			httpapi.RespondError(c, http.StatusServiceUnavailable, httpapi.ErrCodeDatabase,
				"Database unreachable")
			return
		}
		httpapi.RespondOK(c, gin.H{"status": "ok"})
	})

	router.GET("/ws", ws.Serve)

	public := router.Group("/api", httpapi.RateLimit(120, time.Minute))
	{
		public.GET("/videos", h.ListVideos)
		public.GET("/videos/:id", h.GetVideo)
		public.GET("/videos/:id/letras", h.VideoLetras)

		public.GET("/letras", h.ListLetras)
		public.GET("/letras/aleatoria", h.RandomLetra)
		public.GET("/letras/:id", h.GetLetra)

		public.GET("/agrupaciones", h.ListGroups)
		public.GET("/agrupaciones/:id", h.GetGroup)

		public.POST("/votos", h.CastVote)
		public.GET("/votos/ranking", h.RankingVideos)

		public.GET("/live/estado", h.LiveStatus)
		public.POST("/live/siguiente", h.LiveNext)
		public.POST("/live/programar", h.LiveSchedule)

		public.GET("/chat/historial", h.ChatHistory)
	}

	admin := router.Group("/api/admin", httpapi.APIKeyAuth(adminAPIKey))
	{
		admin.POST("/scraper/youtube", h.TriggerScrape)

		admin.POST("/letras/importar", h.TriggerLetrasImport)
		admin.POST("/letras/enriquecer", h.TriggerLetrasEnrich)
		admin.GET("/letras/progreso", h.LetrasProgress)

		admin.POST("/odysee/sync", h.TriggerOdyseeSync)

		admin.GET("/jobs", h.JobsStatus)
		admin.POST("/jobs/:family/stop", h.StopJob)

		admin.POST("/videos", h.CreateVideo)
		admin.PATCH("/videos/:id", h.UpdateVideo)
		admin.DELETE("/videos/:id", h.DeleteVideo)

		admin.GET("/config", h.GetConfig)
		admin.POST("/config", h.SetConfig)
	}

	return router
}
