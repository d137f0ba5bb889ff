// Package books looks up volume information from the Google Books API.
package books

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Review is a condensed volume record returned for a lookup.
type Review struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
	PreviewLink string   `json:"preview_link"`
	InfoLink    string   `json:"info_link"`
}

// Client queries the Google Books volumes API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Google Books client. apiKey may be empty; the volumes
// endpoint works unauthenticated at lower rate limits.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: "https://www.googleapis.com/books/v1",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type volumesResponse struct {
	Items []struct {
		VolumeInfo struct {
			Title       string   `json:"title"`
			Authors     []string `json:"authors"`
			Description string   `json:"description"`
			PreviewLink string   `json:"previewLink"`
			InfoLink    string   `json:"infoLink"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Search queries volumes matching query and returns condensed records.
// An empty result set returns an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]Review, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	params := url.Values{}
	params.Set("q", query)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("books request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read books response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("books request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out volumesResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode books response: %w", err)
	}
	reviews := make([]Review, 0, len(out.Items))
	for _, item := range out.Items {
		v := item.VolumeInfo
		authors := v.Authors
		if authors == nil {
			authors = []string{}
		}
		reviews = append(reviews, Review{
			Title:       v.Title,
			Authors:     authors,
			Description: v.Description,
			PreviewLink: v.PreviewLink,
			InfoLink:    v.InfoLink,
		})
	}
	return reviews, nil
}
