// Package letras imports carnival lyrics from the public lyrics
// archive: bulk metadata first, the text itself lazily on demand.
package letras

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	listTimeout   = 20 * time.Second
	detailTimeout = 15 * time.Second

	// pageSize is the archive's listing page size.
	pageSize = 50
)

// RemoteLetra is one entry of the archive's listing or detail payload.
// Listings carry no URL; the detail URL is derived from the ID.
type RemoteLetra struct {
	ID        int64  `json:"id"`
	Title     string `json:"titulo"`
	PieceType string `json:"tipo_pieza"`
	GroupName string `json:"agrupacion"`
	Year      *int   `json:"anio"`
	Quality   int    `json:"calidad"`
	Contenido string `json:"contenido"`
	Texto     string `json:"texto"`
}

// Content returns whichever text field the archive populated.
func (r *RemoteLetra) Content() string {
	if r.Contenido != "" {
		return r.Contenido
	}
	return r.Texto
}

// ListPage is one page of the archive listing.
type ListPage struct {
	Letras     []RemoteLetra `json:"letras"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
}

// ListFilters narrows the archive listing.
type ListFilters struct {
	Year     int
	Category string
}

// Client talks to the lyrics archive over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an archive client rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: listTimeout},
	}
}

// List fetches one listing page.
func (c *Client) List(ctx context.Context, page int, filters ListFilters) (*ListPage, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	if filters.Year != 0 {
		q.Set("anio", strconv.Itoa(filters.Year))
	}
	if filters.Category != "" {
		q.Set("modalidad", filters.Category)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/letras?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list letras page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list letras page %d: status %d", page, resp.StatusCode)
	}

	var out ListPage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode letras page %d: %w", page, err)
	}
	return &out, nil
}

// DetailURL computes the canonical per-item detail URL. It doubles as
// the dedup key stored in fuente.
func (c *Client) DetailURL(id int64) string {
	return fmt.Sprintf("%s/api/letra/%d", c.baseURL, id)
}

// FetchDetail retrieves the full record behind a lyric's source URL.
// Only http/https URLs are honoured.
func (c *Client) FetchDetail(ctx context.Context, sourceURL string) (*RemoteLetra, error) {
	if !strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://") {
		return nil, fmt.Errorf("unsupported source url %q", sourceURL)
	}

	ctx, cancel := context.WithTimeout(ctx, detailTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch letra detail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch letra detail: status %d", resp.StatusCode)
	}

	var detail RemoteLetra
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("decode letra detail: %w", err)
	}
	return &detail, nil
}
