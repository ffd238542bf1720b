package nanorpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IdentityDirectory = (*Directory)(nil)

// Directory fetches the known-identity document. Repeated fetches revalidate
// with the ETag of the previous response.
type Directory struct {
	httpClient *http.Client
	url        string
}

// NewDirectory creates a Directory backed by an in-memory HTTP cache.
func NewDirectory(url string, timeout time.Duration) *Directory {
	client := httpcache.NewMemoryCacheTransport().Client()
	client.Timeout = timeout

	return NewDirectoryWithHTTPClient(client, url)
}

// NewDirectoryWithHTTPClient creates a Directory with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewDirectoryWithHTTPClient(httpClient *http.Client, url string) *Directory {
	return &Directory{httpClient: httpClient, url: url}
}

// FetchIdentities returns every entry of the directory document.
func (d *Directory) FetchIdentities(ctx context.Context) ([]model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching identity directory: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching identity directory: HTTP %d", resp.StatusCode)
	}

	// The cache stores the body only once it has been read to EOF.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading identity directory: %w", err)
	}

	var identities []model.Identity
	if err := json.Unmarshal(body, &identities); err != nil {
		return nil, fmt.Errorf("decoding identity directory: %w", err)
	}

	return identities, nil
}
