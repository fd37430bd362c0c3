package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
)

// Fetcher downloads message payloads referenced by URL before they are
// handed to the transport for upload.
type Fetcher struct {
	client    *http.Client
	limitSize int64
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: env.GetEnvDurationOrDefault("MEDIA_FETCH_TIMEOUT", 30*time.Second),
		},
		limitSize: int64(env.GetEnvIntOrDefault("MEDIA_FETCH_LIMIT_BYTES", 32<<20)),
	}
}

// Fetch downloads the resource and returns its bytes together with the
// Content-Type reported by the origin.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("download media: origin returned %s", res.Status)
	}

	if res.ContentLength > f.limitSize {
		return nil, "", fmt.Errorf("media exceeds the %d byte limit", f.limitSize)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, f.limitSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	if int64(len(data)) > f.limitSize {
		return nil, "", fmt.Errorf("media exceeds the %d byte limit", f.limitSize)
	}

	return data, res.Header.Get("Content-Type"), nil
}
