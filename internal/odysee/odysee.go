// Package odysee mirrors catalog videos to the Odysee archive so the
// collection survives YouTube takedowns.
package odysee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/log"
)

const (
	defaultBaseURL = "https://api.odysee.com"

	authTimeout    = 15 * time.Second
	publishTimeout = 30 * time.Second
)

// ErrNotAuthenticated is returned when publishing without a token.
var ErrNotAuthenticated = errors.New("odysee session not authenticated")

// VideoStore is the catalog surface the sync reads and writes.
type VideoStore interface {
	PendingArchive(ctx context.Context, limit int) ([]*db.Video, error)
	SetOdyseeURL(ctx context.Context, id int64, url string) error
}

// Client talks to the Odysee API.
type Client struct {
	baseURL    string
	email      string
	password   string
	channel    string
	httpClient *http.Client

	authToken string
}

// New builds a client for the given account. channel is the Odysee
// channel claim the uploads land under.
func New(email, password, channel string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		email:      email,
		password:   password,
		channel:    channel,
		httpClient: &http.Client{Timeout: publishTimeout},
	}
}

// NewWithBaseURL overrides the API endpoint, for tests.
func NewWithBaseURL(baseURL, email, password, channel string) *Client {
	c := New(email, password, channel)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// Authenticate signs in and stores the session token for subsequent
// publish calls.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("email", c.email)
	form.Set("password", c.password)

	data, err := c.post(ctx, "/user/signin", form)
	if err != nil {
		return fmt.Errorf("odysee signin: %w", err)
	}

	var payload struct {
		AuthToken string `json:"auth_token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode signin response: %w", err)
	}
	if payload.AuthToken == "" {
		return errors.New("odysee signin returned no token")
	}

	c.authToken = payload.AuthToken
	log.Info("odysee session established", zap.String("channel", c.channel))
	return nil
}

// PublishVideo uploads one catalog entry as a YouTube-linked claim and
// returns its public odysee.com URL.
func (c *Client) PublishVideo(ctx context.Context, video *db.Video) (string, error) {
	if c.authToken == "" {
		return "", ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("auth_token", c.authToken)
	form.Set("name", claimName(video))
	form.Set("title", video.Title)
	form.Set("description", video.Description)
	form.Set("channel_name", c.channel)
	form.Set("video_url", "https://www.youtube.com/watch?v="+video.YouTubeID)
	if video.Thumbnail != "" {
		form.Set("thumbnail_url", video.Thumbnail)
	}

	data, err := c.post(ctx, "/publish", form)
	if err != nil {
		return "", fmt.Errorf("odysee publish %s: %w", video.YouTubeID, err)
	}

	var payload struct {
		PermanentURL string `json:"permanent_url"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if payload.PermanentURL == "" {
		return "", errors.New("publish response carried no url")
	}

	return publicURL(payload.PermanentURL), nil
}

// SyncPending publishes every catalog video that has no archive URL
// yet, newest first, persisting each success. A failed item is skipped,
// never fatal to the run.
func (c *Client) SyncPending(ctx context.Context, store VideoStore, limit int) (published, failed int, err error) {
	if c.authToken == "" {
		if err := c.Authenticate(ctx); err != nil {
			return 0, 0, err
		}
	}

	pending, err := store.PendingArchive(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	log.Info("odysee sync started", zap.Int("pending", len(pending)))

	for _, video := range pending {
		if err := ctx.Err(); err != nil {
			return published, failed, err
		}

		archiveURL, err := c.PublishVideo(ctx, video)
		if err != nil {
			log.Warn("odysee publish failed",
				zap.String("youtube_id", video.YouTubeID), zap.Error(err))
			failed++
			continue
		}
		if err := store.SetOdyseeURL(ctx, video.ID, archiveURL); err != nil {
			log.Error("odysee url persist failed",
				zap.Int64("video_id", video.ID), zap.Error(err))
			failed++
			continue
		}
		published++
	}

	log.Info("odysee sync finished",
		zap.Int("published", published), zap.Int("failed", failed))
	return published, failed, nil
}

// post sends a form-encoded request and unwraps the API envelope.
func (c *Client) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("api error: %s", envelope.Error)
	}
	return envelope.Data, nil
}

// claimName builds the deterministic claim slug for a video.
func claimName(video *db.Video) string {
	year := "s-a"
	if video.Year != nil {
		year = fmt.Sprintf("%d", *video.Year)
	}
	category := "agrupacion"
	if video.Category != nil && *video.Category != "" {
		category = *video.Category
	}
	return fmt.Sprintf("coac-%s-%s-%s", year, category, strings.ToLower(video.YouTubeID))
}

// publicURL converts a lbry:// permanent url into its odysee.com form.
func publicURL(permanent string) string {
	trimmed := strings.TrimPrefix(permanent, "lbry://")
	trimmed = strings.ReplaceAll(trimmed, "#", ":")
	return "https://odysee.com/" + trimmed
}
