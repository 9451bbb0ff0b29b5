package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds the configuration for the CarnavalPlay server.
type ServerConfig struct {
	// Server settings
	Port        int
	Environment string

	// Database
	DatabaseURL string

	// Admin API
	AdminAPIKey string

	// YouTube Data API v3
	YouTubeAPIKey string
	// Approximate query-cost budget for one search run before the
	// scraper switches to yt-dlp. Not tied to real quota responses.
	QuotaSearchBudget int

	// yt-dlp
	YtDlpPath string

	// Odysee / LBRY
	OdyseeEmail    string
	OdyseePassword string
	OdyseeChannel  string

	// Lyrics API
	LetrasBaseURL string

	// Scraper matrix
	SearchQueries []string
	YearFrom      int
	YearTo        int

	// Periodic jobs
	ScrapeInterval     time.Duration
	ArchiveSyncEnabled bool

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// defaultSearchQueries are the year-templated searches used by the
// scraper matrix. {year} is substituted per run.
var defaultSearchQueries = []string{
	"COAC {year} final carnaval cadiz",
	"COAC {year} semifinal chirigota",
	"COAC {year} comparsa final",
	"COAC {year} coro final",
	"carnaval cadiz {year} callejera",
	"chirigota {year} carnaval cadiz",
}

// Load reads the server configuration from the environment. A .env file
// in the working directory is honored but not required.
func Load() (*ServerConfig, error) {
	_ = godotenv.Load()

	cfg := &ServerConfig{
		Port:               getEnvInt("PORT", 8000),
		Environment:        getEnv("ENVIRONMENT", "development"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AdminAPIKey:        getEnv("ADMIN_API_KEY", ""),
		YouTubeAPIKey:      getEnv("YOUTUBE_API_KEY", ""),
		QuotaSearchBudget:  getEnvInt("YOUTUBE_QUOTA_SEARCH_BUDGET", 80),
		YtDlpPath:          getEnv("YTDLP_PATH", "yt-dlp"),
		OdyseeEmail:        getEnv("ODYSEE_EMAIL", ""),
		OdyseePassword:     getEnv("ODYSEE_PASSWORD", ""),
		OdyseeChannel:      getEnv("ODYSEE_CHANNEL", "@Carnavalix"),
		LetrasBaseURL:      getEnv("LETRAS_BASE_URL", "https://g3v3r.pythonanywhere.com"),
		SearchQueries:      getEnvList("YOUTUBE_SEARCH_QUERIES", defaultSearchQueries),
		YearFrom:           getEnvInt("SCRAPE_YEAR_FROM", 2010),
		YearTo:             getEnvInt("SCRAPE_YEAR_TO", time.Now().Year()),
		ScrapeInterval:     getEnvDuration("SCRAPE_INTERVAL", 24*time.Hour),
		ArchiveSyncEnabled: getEnvBool("ARCHIVE_SYNC_ENABLED", false),
		ReadTimeout:        getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:       getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AdminAPIKey == "" {
		return nil, fmt.Errorf("ADMIN_API_KEY is required")
	}
	if cfg.YearFrom > cfg.YearTo {
		return nil, fmt.Errorf("SCRAPE_YEAR_FROM (%d) is after SCRAPE_YEAR_TO (%d)", cfg.YearFrom, cfg.YearTo)
	}

	return cfg, nil
}

// Years returns the inclusive year range the scraper matrix covers.
func (c *ServerConfig) Years() []int {
	years := make([]int, 0, c.YearTo-c.YearFrom+1)
	for y := c.YearFrom; y <= c.YearTo; y++ {
		years = append(years, y)
	}
	return years
}

// HasOdyseeCredentials reports whether archive publishing is configured.
func (c *ServerConfig) HasOdyseeCredentials() bool {
	return c.OdyseeEmail != "" && c.OdyseePassword != ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
