// Package ytdlp wraps the yt-dlp command-line tool. It is the fallback
// metadata path used when the YouTube Data API is unavailable, out of
// quota, or explicitly bypassed; it consumes no API quota.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Per-call timeouts, scaled to the weight of the operation.
const (
	metadataTimeout = 30 * time.Second
	searchTimeout   = 60 * time.Second
	channelTimeout  = 120 * time.Second
)

// playerArgs steer yt-dlp to the android player client with a mobile
// user agent, which avoids anti-bot challenges on server IPs.
var playerArgs = []string{
	"--extractor-args", "youtube:player_client=android,web",
	"--user-agent",
	"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.230 Mobile Safari/537.36",
}

// Thumbnail is one entry of yt-dlp's thumbnail list.
type Thumbnail struct {
	URL        string `json:"url"`
	Preference int    `json:"preference"`
}

// VideoInfo is the subset of yt-dlp's JSON output this system consumes.
type VideoInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Thumbnail   string      `json:"thumbnail"`
	Thumbnails  []Thumbnail `json:"thumbnails"`
	Duration    float64     `json:"duration"`
	ViewCount   int64       `json:"view_count"`
	UploadDate  string      `json:"upload_date"` // YYYYMMDD
	Channel     string      `json:"channel"`
	Uploader    string      `json:"uploader"`
	ChannelID   string      `json:"channel_id"`
}

// ChannelName returns the best-available channel label.
func (v *VideoInfo) ChannelName() string {
	if v.Channel != "" {
		return v.Channel
	}
	return v.Uploader
}

// BestThumbnail returns the thumbnail with the highest preference, or
// the single thumbnail field when the list is absent.
func (v *VideoInfo) BestThumbnail() string {
	best := ""
	bestPref := 0
	for _, t := range v.Thumbnails {
		if best == "" || t.Preference > bestPref {
			best = t.URL
			bestPref = t.Preference
		}
	}
	if best == "" {
		best = v.Thumbnail
	}
	return best
}

// Client wraps yt-dlp command execution.
type Client struct {
	path string
}

// NewClient creates a new yt-dlp client.
func NewClient(path string) *Client {
	if path == "" {
		path = "yt-dlp"
	}
	return &Client{path: path}
}

func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("yt-dlp failed: %w (stderr: %s)", err, msg)
	}
	return stdout.Bytes(), nil
}

// Available reports whether the yt-dlp binary can be executed.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.run(ctx, 10*time.Second, "--version")
	return err == nil
}

// VideoMetadata fetches full metadata for one video without consuming
// API quota.
func (c *Client) VideoMetadata(ctx context.Context, youtubeID string) (*VideoInfo, error) {
	url := "https://www.youtube.com/watch?v=" + youtubeID

	args := append([]string{}, playerArgs...)
	args = append(args, "--dump-json", "--no-playlist", "--skip-download", url)

	out, err := c.run(ctx, metadataTimeout, args...)
	if err != nil {
		return nil, err
	}

	var info VideoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// Search runs a ytsearch query. yt-dlp emits one JSON object per line
// in flat-playlist mode; malformed lines are skipped.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]*VideoInfo, error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	args := append([]string{}, playerArgs...)
	args = append(args,
		fmt.Sprintf("ytsearch%d:%s", maxResults, query),
		"--dump-json", "--no-playlist", "--skip-download", "--flat-playlist",
	)

	out, err := c.run(ctx, searchTimeout, args...)
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

// ListChannel lists up to maxVideos entries of a channel in
// flat-listing mode, returning their video ids in listing order.
func (c *Client) ListChannel(ctx context.Context, channelURL string, maxVideos int) ([]string, error) {
	if maxVideos <= 0 {
		maxVideos = 200
	}

	args := append([]string{}, playerArgs...)
	args = append(args,
		channelURL,
		"--dump-json", "--flat-playlist", "--skip-download", "--yes-playlist",
		"--playlist-end", fmt.Sprintf("%d", maxVideos),
	)

	out, err := c.run(ctx, channelTimeout, args...)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, info := range parseLines(out) {
		if info.ID != "" {
			ids = append(ids, info.ID)
		}
	}
	return ids, nil
}

func parseLines(out []byte) []*VideoInfo {
	var results []*VideoInfo
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var info VideoInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			continue
		}
		if info.ID == "" {
			continue
		}
		results = append(results, &info)
	}
	return results
}
