// Package catalog searches an ordered list of external metadata sources for
// a movie code, grounded on the emby-service search contract.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jtdct/ingestor/internal/models"
)

// Client searches configured sources in order for a movie code's metadata.
type Client struct {
	baseURL     string
	token       string
	searchOrder []string
	httpClient  *http.Client
}

// New creates a catalog client. searchOrder names sources in priority order
// (e.g. "missav", "javguru"); each is reached at "<baseURL>/<source>/search".
func New(baseURL, token string, searchOrder []string) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		searchOrder: searchOrder,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type searchRequest struct {
	MovieCode string `json:"moviecode"`
}

type searchResponse struct {
	Success    bool                 `json:"success"`
	Data       *models.CatalogRecord `json:"data"`
	StatusCode int                  `json:"statusCode"`
}

// Search tries each configured source in order for movieCode, returning the
// first hit. If every source misses, the whole sequence is retried once
// before giving up and returning nil.
func (c *Client) Search(movieCode string) *models.CatalogRecord {
	if rec := c.searchOnce(movieCode); rec != nil {
		return rec
	}
	log.Printf("[catalog] no source hit for %s, retrying sequence once", movieCode)
	return c.searchOnce(movieCode)
}

func (c *Client) searchOnce(movieCode string) *models.CatalogRecord {
	for _, source := range c.searchOrder {
		rec, err := c.querySource(source, movieCode)
		if err != nil {
			log.Printf("[catalog] source %s errored for %s: %v", source, movieCode, err)
			continue
		}
		if rec != nil {
			log.Printf("[catalog] hit for %s via %s", movieCode, source)
			return rec
		}
	}
	return nil
}

func (c *Client) querySource(source, movieCode string) (*models.CatalogRecord, error) {
	url := fmt.Sprintf("%s/%s/search", c.baseURL, source)
	body, err := json.Marshal(searchRequest{MovieCode: movieCode})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request [%s]: %w", reqID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[catalog] source %s returned status %d for %s", source, resp.StatusCode, movieCode)
		return nil, nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !parsed.Success || parsed.Data == nil || parsed.Data.Title == "" && parsed.Data.MovieCode == "" {
		return nil, nil
	}
	return parsed.Data, nil
}
