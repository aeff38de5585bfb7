package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxBodyBytes caps a catalog download.
const maxBodyBytes = 50 << 20

// Fetcher retrieves a raw catalog from its source URL. Extra URLs are fetched
// after the primary one and appended; their failures are logged, not returned.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads the catalog. When since is non-zero the request is
// conditional and a 304 answer returns ErrNotModified. A missing
// Last-Modified header is replaced by the time of the download.
func (f *Fetcher) Fetch(ctx context.Context, since time.Time) (Payload, error) {
	body, header, err := f.get(ctx, f.sourceURL, since)
	if err != nil {
		return Payload{}, err
	}

	lastModified := time.Now().UTC().Truncate(time.Second)
	if lm := header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			lastModified = t.UTC()
		} else {
			f.logger.Warn("ignoring unparseable Last-Modified", "url", f.sourceURL, "value", lm)
		}
	}

	if len(f.extraURLs) > 0 {
		buf := bytes.NewBuffer(body)
		for _, u := range f.extraURLs {
			extra, _, err := f.get(ctx, u, time.Time{})
			if err != nil {
				f.logger.Warn("extra catalog source failed", "url", u, "error", err)
				continue
			}
			if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
			buf.Write(extra)
		}
		body = buf.Bytes()
	}

	return Payload{Body: body, LastModified: lastModified}, nil
}

func (f *Fetcher) get(ctx context.Context, url string, since time.Time) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, nil, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}
	return body, resp.Header, nil
}
