package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carnavalix/carnavalplay/internal/db"
	"github.com/carnavalix/carnavalplay/internal/jobs"
	"github.com/carnavalix/carnavalplay/internal/letras"
	"github.com/carnavalix/carnavalplay/internal/scraper"
)

type stubVideos struct {
	video   *db.Video
	created []db.CreateVideoParams
	err     error
}

func (s *stubVideos) List(_ context.Context, _ db.ListVideosParams) ([]*db.Video, int, error) {
	if s.video == nil {
		return nil, 0, s.err
	}
	return []*db.Video{s.video}, 1, s.err
}

func (s *stubVideos) GetByID(_ context.Context, _ int64) (*db.Video, error) {
	if s.video == nil {
		return nil, db.ErrVideoNotFound
	}
	return s.video, nil
}

func (s *stubVideos) Create(_ context.Context, params db.CreateVideoParams) (*db.Video, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, params)
	return &db.Video{ID: 1, YouTubeID: params.YouTubeID, Title: params.Title}, nil
}

func (s *stubVideos) Update(_ context.Context, _ int64, _ db.UpdateVideoParams) error { return s.err }
func (s *stubVideos) Delete(_ context.Context, _ int64) error                         { return s.err }
func (s *stubVideos) Ranking(_ context.Context, _ int, _ string, _ *int, _ int) ([]*db.Video, error) {
	return nil, s.err
}

type stubLetras struct {
	letra *db.Letra
}

func (s *stubLetras) List(_ context.Context, _ db.ListLetrasParams) ([]*db.Letra, int, error) {
	return nil, 0, nil
}

func (s *stubLetras) GetByID(_ context.Context, _ int64) (*db.Letra, error) {
	if s.letra == nil {
		return nil, db.ErrLetraNotFound
	}
	return s.letra, nil
}

func (s *stubLetras) Random(_ context.Context) (*db.Letra, error) {
	if s.letra == nil {
		return nil, db.ErrLetraNotFound
	}
	return s.letra, nil
}

func (s *stubLetras) ByVideo(_ context.Context, _ int64) ([]*db.Letra, error) { return nil, nil }

type stubGroups struct{}

func (stubGroups) List(_ context.Context, _ string, _ int) ([]*db.Group, error) { return nil, nil }

func (stubGroups) GetByID(_ context.Context, _ int64) (*db.Group, error) {
	return nil, db.ErrGroupNotFound
}

type stubVotes struct {
	lastIPHash string
	lastScore  int
	err        error
}

func (s *stubVotes) Upsert(_ context.Context, _ int64, ipHash string, score int) (*db.Rating, error) {
	if score < 1 || score > 5 {
		return nil, db.ErrInvalidScore
	}
	if s.err != nil {
		return nil, s.err
	}
	s.lastIPHash = ipHash
	s.lastScore = score
	return &db.Rating{Average: float64(score), Count: 1}, nil
}

type stubChat struct{}

func (stubChat) History(_ context.Context, _ string) ([]*db.ChatMessage, error) { return nil, nil }
func (stubChat) Post(_ context.Context, _, _, _ string, _ *int64) (*db.ChatMessage, error) {
	return &db.ChatMessage{}, nil
}

type stubDirector struct {
	state   *db.LiveState
	advance string
	ok      bool
}

func (s *stubDirector) Status(_ context.Context) (*db.LiveState, int, error) {
	if s.state == nil {
		return nil, 0, db.ErrNoLiveState
	}
	return s.state, 42, nil
}

func (s *stubDirector) Advance(_ context.Context) (string, bool, error) {
	return s.advance, s.ok, nil
}

func (s *stubDirector) Schedule(_ context.Context, _ string) error { return nil }

type stubScrapeService struct {
	mu       sync.Mutex
	channels []string
	searches []scraper.SearchParams
	block    chan struct{}
}

func (s *stubScrapeService) ScrapeChannel(_ context.Context, channelURL string, _ int) (*scraper.Summary, error) {
	s.mu.Lock()
	s.channels = append(s.channels, channelURL)
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return &scraper.Summary{}, nil
}

func (s *stubScrapeService) ScrapeSearch(_ context.Context, params scraper.SearchParams) (*scraper.Summary, error) {
	s.mu.Lock()
	s.searches = append(s.searches, params)
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return &scraper.Summary{}, nil
}

type stubImporter struct {
	content string
}

func (s *stubImporter) ImportMetadata(_ context.Context, _ letras.ImportParams) (letras.Snapshot, error) {
	return letras.Snapshot{}, nil
}

func (s *stubImporter) EnrichBatch(_ context.Context, _ int, _ time.Duration) (letras.Snapshot, error) {
	return letras.Snapshot{}, nil
}

func (s *stubImporter) FetchContent(_ context.Context, _ int64) (string, error) {
	return s.content, nil
}

func (s *stubImporter) Progress() letras.Snapshot { return letras.Snapshot{} }

type stubArchiver struct{}

func (stubArchiver) Sync(_ context.Context, _ int) (int, int, error) { return 0, 0, nil }

type stubConfig struct{}

func (stubConfig) All(_ context.Context) (map[string]string, error) { return map[string]string{}, nil }
func (stubConfig) Set(_ context.Context, _, _ string) error         { return nil }

type testEnv struct {
	handler  *Handler
	votes    *stubVotes
	videos   *stubVideos
	letras   *stubLetras
	director *stubDirector
	scrape   *stubScrapeService
	importer *stubImporter
	coord    *jobs.Coordinator
	router   *gin.Engine
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		votes:    &stubVotes{},
		videos:   &stubVideos{},
		letras:   &stubLetras{},
		director: &stubDirector{},
		scrape:   &stubScrapeService{},
		importer: &stubImporter{},
		coord:    jobs.New(),
	}
	env.handler = NewHandler(
		env.videos, env.letras, stubGroups{}, env.votes, stubChat{}, env.director,
		env.scrape, env.importer, stubArchiver{}, stubConfig{}, env.coord,
		SearchDefaults{
			Years:          []int{2024},
			QueryTemplates: []string{"chirigota {year}", "comparsa {year}"},
		},
	)

	router := gin.New()
	router.POST("/api/votos", env.handler.CastVote)
	router.GET("/api/letras/:id", env.handler.GetLetra)
	router.GET("/api/live/estado", env.handler.LiveStatus)
	router.POST("/api/live/siguiente", env.handler.LiveNext)
	router.POST("/api/admin/scraper/youtube", env.handler.TriggerScrape)
	env.router = router
	return env
}

func postJSON(router *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "watch url", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "watch with params", input: "https://youtube.com/watch?t=1&v=dQw4w9WgXcQ&x=2", want: "dQw4w9WgXcQ"},
		{name: "short url", input: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "embed", input: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "shorts", input: "https://youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "bare id", input: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{name: "garbage", input: "https://example.com/video", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractYouTubeID(tt.input); got != tt.want {
				t.Errorf("ExtractYouTubeID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCastVoteHashesForwardedFor(t *testing.T) {
	env := newTestEnv()

	w := postJSON(env.router, "/api/votos",
		gin.H{"video_id": 5, "puntuacion": 4},
		map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if env.votes.lastScore != 4 {
		t.Errorf("score = %d", env.votes.lastScore)
	}
	// sha256("203.0.113.9")
	if len(env.votes.lastIPHash) != 64 {
		t.Errorf("ip hash = %q, want sha256 hex", env.votes.lastIPHash)
	}

	// The same forwarded address always maps to the same hash.
	first := env.votes.lastIPHash
	postJSON(env.router, "/api/votos",
		gin.H{"video_id": 5, "puntuacion": 2},
		map[string]string{"X-Forwarded-For": "203.0.113.9"})
	if env.votes.lastIPHash != first {
		t.Error("hash must be stable per address")
	}
}

func TestCastVoteInvalidScore(t *testing.T) {
	env := newTestEnv()
	w := postJSON(env.router, "/api/votos", gin.H{"video_id": 5, "puntuacion": 9}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetLetraLazyContent(t *testing.T) {
	env := newTestEnv()
	env.letras.letra = &db.Letra{ID: 3, Title: "Pasodoble"}
	env.importer.content = "Texto recuperado bajo demanda"

	req := httptest.NewRequest("GET", "/api/letras/3", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got db.Letra
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Content != "Texto recuperado bajo demanda" {
		t.Errorf("content = %q, lazy fetch not applied", got.Content)
	}
}

func TestLiveStatusInactive(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest("GET", "/api/live/estado", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	json.Unmarshal(w.Body.Bytes(), &got)
	if got["activo"] != false {
		t.Errorf("body = %v, want activo=false", got)
	}
}

func TestLiveNextEmptyCatalog(t *testing.T) {
	env := newTestEnv()
	w := postJSON(env.router, "/api/live/siguiente", gin.H{}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 on empty catalog", w.Code)
	}
}

func TestTriggerScrapeAcceptedAndConflict(t *testing.T) {
	env := newTestEnv()
	env.scrape.block = make(chan struct{})
	defer close(env.scrape.block)

	w := postJSON(env.router, "/api/admin/scraper/youtube",
		gin.H{"channel_url": "https://www.youtube.com/@ondacadiz"}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["run_id"] == "" {
		t.Error("response must carry the run id")
	}

	// Second trigger while the first still runs must conflict.
	deadline := time.After(time.Second)
	for {
		env.scrape.mu.Lock()
		started := len(env.scrape.channels) > 0
		env.scrape.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scrape goroutine never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	w = postJSON(env.router, "/api/admin/scraper/youtube",
		gin.H{"channel_url": "https://www.youtube.com/@otro"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while a scrape runs", w.Code)
	}
}

func TestTriggerScrapeSearchPassesCategories(t *testing.T) {
	env := newTestEnv()

	w := postJSON(env.router, "/api/admin/scraper/youtube",
		gin.H{"categorias": []string{"comparsa"}}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	deadline := time.After(time.Second)
	for {
		env.scrape.mu.Lock()
		done := len(env.scrape.searches) > 0
		env.scrape.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("search scrape never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	env.scrape.mu.Lock()
	params := env.scrape.searches[0]
	env.scrape.mu.Unlock()

	if len(params.Categories) != 1 || params.Categories[0] != "comparsa" {
		t.Errorf("Categories = %v, want [comparsa]", params.Categories)
	}
	// The category allow-list filters results, not the query matrix.
	if len(params.QueryTemplates) != 2 {
		t.Errorf("QueryTemplates = %v, want the full default set", params.QueryTemplates)
	}
	if len(params.Years) != 1 || params.Years[0] != 2024 {
		t.Errorf("Years = %v, want the default [2024]", params.Years)
	}
}
