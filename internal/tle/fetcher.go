package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultSourceURL is CelesTrak's active-satellite group.
	DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

	maxBodyBytes = 50 << 20
)

// Fetcher retrieves raw TLE text over HTTP.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for sourceURL, or DefaultSourceURL if empty.
// Extra URLs are appended to the primary body; their failures only warn.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL:  sourceURL,
		extraURLs:  extraURLs,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SourceURL returns the configured URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch GETs the primary source and any extra sources. Bodies over 50 MB are
// rejected.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra tle source failed", "component", "tle", "source_url", u, "error", err)
			continue
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		body = append(body, extra...)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	f.logger.Info("tle fetched",
		"component", "tle",
		"source_url", url,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

// FetchCatalog fetches and parses the source into a catalog.
func (f *Fetcher) FetchCatalog(ctx context.Context) (*Catalog, []byte, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	elements, err := Parse(bytes.NewReader(data), f.logger)
	if err != nil {
		return nil, nil, err
	}
	if len(elements) == 0 {
		return nil, nil, fmt.Errorf("no valid elements from %s", f.sourceURL)
	}
	return NewCatalog(f.sourceURL, time.Now().UTC(), elements), data, nil
}
