package upstream

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumapics/gallery-backend/internal/adapter"
)

// RawAsset is one record as returned by the hosted image API. The Meta map
// is the untyped metadata blob the gallery app stows its extended fields in.
type RawAsset struct {
	ID       string            `json:"id"`
	Filename string            `json:"filename"`
	Uploaded time.Time         `json:"uploaded"`
	Variants []string          `json:"variants"`
	Meta     map[string]string `json:"meta"`
}

// Client defines the read contract of the hosted image API
//
//go:generate mockgen -source=client.go -destination=../mocks/upstream_client.go -package=mocks -mock_names=Client=MockUpstreamClient
type Client interface {
	// ListPage fetches one page of the account's image listing. Pages are
	// 1-based; a page shorter than pageSize is the last one.
	ListPage(ctx context.Context, page, pageSize int) ([]RawAsset, error)

	// GetByID fetches a single image record. Returns (nil, nil) when the
	// upstream does not know the id.
	GetByID(ctx context.Context, id string) (*RawAsset, error)
}

// Config holds the upstream API connection settings
type Config struct {
	BaseURL           string
	AccountID         string
	APIKey            string
	RequestsPerSecond float64
}

type listResponse struct {
	Result struct {
		Images []RawAsset `json:"images"`
	} `json:"result"`
	Success bool `json:"success"`
}

type getResponse struct {
	Result  RawAsset `json:"result"`
	Success bool     `json:"success"`
}

// APIClient implements Client against the hosted image API. A local rate
// limiter keeps page walks under the upstream's request quota.
type APIClient struct {
	http    adapter.HTTPClient
	cfg     Config
	limiter *rate.Limiter
}

// NewClient creates a new upstream API client
func NewClient(httpClient adapter.HTTPClient, cfg Config) *APIClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &APIClient{
		http:    httpClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *APIClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}
}

// ListPage fetches one page of the account's image listing
func (c *APIClient) ListPage(ctx context.Context, page, pageSize int) ([]RawAsset, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/images/v1?page=%d&per_page=%d",
		c.cfg.BaseURL, c.cfg.AccountID, page, pageSize)

	var response listResponse
	if err := c.http.Get(ctx, url, c.headers(), &response); err != nil {
		return nil, fmt.Errorf("failed to list images page %d: %w", page, err)
	}

	return response.Result.Images, nil
}

// GetByID fetches a single image record
func (c *APIClient) GetByID(ctx context.Context, id string) (*RawAsset, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/images/v1/%s", c.cfg.BaseURL, c.cfg.AccountID, id)

	var response getResponse
	if err := c.http.Get(ctx, url, c.headers(), &response); err != nil {
		if adapter.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch image %s: %w", id, err)
	}

	return &response.Result, nil
}
