package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/api"
	"github.com/carnavalix/carnavalplay/internal/chat"
	"github.com/carnavalix/carnavalplay/internal/config"
	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/hub"
	"github.com/carnavalix/carnavalplay/internal/jobs"
	"github.com/carnavalix/carnavalplay/internal/letras"
	"github.com/carnavalix/carnavalplay/internal/live"
	"github.com/carnavalix/carnavalplay/internal/log"
	"github.com/carnavalix/carnavalplay/internal/odysee"
	"github.com/carnavalix/carnavalplay/internal/scheduler"
	"github.com/carnavalix/carnavalplay/internal/scraper"
	"github.com/carnavalix/carnavalplay/internal/youtube"
	"github.com/carnavalix/carnavalplay/internal/ytdlp"
)

// archiveSyncer adapts the odysee client plus the video store to the
// single surface the handlers and the scheduler use.
type archiveSyncer struct {
	client *odysee.Client
	videos *db.VideoRepository
}

func (a *archiveSyncer) Sync(ctx context.Context, limit int) (int, int, error) {
	return a.client.SyncPending(ctx, a.videos, limit)
}

// inboundChatMessage is what websocket clients send.
type inboundChatMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting carnavalplay server",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Repositories
	videoRepo := db.NewVideoRepository(database)
	letraRepo := db.NewLetraRepository(database)
	groupRepo := db.NewGroupRepository(database)
	voteRepo := db.NewVoteRepository(database)
	chatRepo := db.NewChatRepository(database)
	liveRepo := db.NewLiveRepository(database)
	configRepo := db.NewConfigRepository(database)

	// Metadata resolution: Data API primary, yt-dlp fallback.
	ytdlpClient := ytdlp.NewClient(cfg.YtDlpPath)
	if !ytdlpClient.Available(ctx) {
		log.Warn("yt-dlp binary not available, fallback extraction will fail",
			zap.String("path", cfg.YtDlpPath))
	}
	resolver, err := youtube.NewResolver(ctx, cfg.YouTubeAPIKey, ytdlpClient)
	if err != nil {
		log.Fatal("failed to create metadata resolver", zap.Error(err))
	}

	// Services
	scrapeService := scraper.New(videoRepo, resolver, ytdlpClient, cfg.QuotaSearchBudget)
	importer := letras.New(letraRepo, letras.NewClient(cfg.LetrasBaseURL))

	eventHub := hub.New()
	director := live.New(videoRepo, liveRepo, eventHub, resolver)
	chatService := chat.New(chatRepo, eventHub, letraRepo, videoRepo)
	coord := jobs.New()

	archiver := &archiveSyncer{
		client: odysee.New(cfg.OdyseeEmail, cfg.OdyseePassword, cfg.OdyseeChannel),
		videos: videoRepo,
	}

	// Background goroutines share one cancellable context.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	eventHub.SetInboundHandler(func(room string, data []byte) {
		var msg inboundChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if _, err := chatService.Post(bgCtx, room, msg.Sender, msg.Content, nil); err != nil {
			log.Debug("inbound chat message rejected", zap.Error(err))
		}
	})
	go eventHub.Run(bgCtx)
	go director.RunMonitor(bgCtx)
	go chatService.RunBot(bgCtx)

	sched := scheduler.New(coord,
		cfg.ScrapeInterval,
		func(ctx context.Context) error {
			_, err := scrapeService.ScrapeSearch(ctx, scraper.SearchParams{
				Years:          cfg.Years(),
				QueryTemplates: cfg.SearchQueries,
			})
			return err
		},
		cfg.ArchiveSyncEnabled && cfg.HasOdyseeCredentials(),
		func(ctx context.Context) error {
			_, _, err := archiver.Sync(ctx, 25)
			return err
		},
	)
	sched.Start(bgCtx)

	handler := api.NewHandler(
		videoRepo, letraRepo, groupRepo, voteRepo, chatService, director,
		scrapeService, importer, archiver, configRepo, coord,
		api.SearchDefaults{
			Years:          cfg.Years(),
			QueryTemplates: cfg.SearchQueries,
		},
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.Router(handler, api.NewWSHandler(eventHub), database, cfg.AdminAPIKey)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	bgCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
