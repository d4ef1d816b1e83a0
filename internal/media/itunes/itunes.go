// Package itunes is the canonical-metadata search client.
package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

const defaultBaseURL = "https://itunes.apple.com/search"

// Client queries the iTunes Search API and fetches cover art.
type Client struct {
	// BaseURL overrides the search endpoint (tests).
	BaseURL string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	Limit int
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Search returns song records matching "<title> <artist>".
func (c *Client) Search(ctx context.Context, title, artist string) ([]model.Metadata, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 5
	}

	q := url.Values{}
	q.Set("term", strings.TrimSpace(title+" "+artist))
	q.Set("entity", "song")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Results []model.Metadata `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("itunes: decode: %w", err)
	}
	return payload.Results, nil
}

// FetchArtwork downloads cover art for a record, upgrading the thumbnail URL
// to the 600x600 rendition when possible.
func (c *Client) FetchArtwork(ctx context.Context, meta model.Metadata) ([]byte, error) {
	artURL := meta.String("artworkUrl100")
	if artURL == "" {
		return nil, fmt.Errorf("itunes: no artwork URL")
	}
	artURL = strings.Replace(artURL, "100x100bb", "600x600bb", 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes: artwork status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
