package syncsvc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultTimeout bounds each remote request.
const DefaultTimeout = 10 * time.Second

// maxBody caps the size of a remote document.
const maxBody = 64 << 10

// HTTPService fetches both documents with plain GET requests.
type HTTPService struct {
	client    *http.Client
	configURL string
	timeURL   string
	timeout   time.Duration
}

// NewHTTPService creates a service. An empty URL disables that resource.
func NewHTTPService(configURL, timeURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPService{
		client:    &http.Client{},
		configURL: configURL,
		timeURL:   timeURL,
		timeout:   timeout,
	}
}

// FetchConfig downloads the sunrise config document.
func (s *HTTPService) FetchConfig(ctx context.Context) (ConfigDocument, error) {
	var doc ConfigDocument
	if err := s.get(ctx, s.configURL, &doc); err != nil {
		return ConfigDocument{}, fmt.Errorf("fetch config: %w", err)
	}
	return doc, nil
}

// FetchTime downloads the time document.
func (s *HTTPService) FetchTime(ctx context.Context) (time.Time, error) {
	var doc TimeDocument
	if err := s.get(ctx, s.timeURL, &doc); err != nil {
		return time.Time{}, fmt.Errorf("fetch time: %w", err)
	}
	if doc.UnixTime <= 0 {
		return time.Time{}, fmt.Errorf("fetch time: invalid unixtime %d", doc.UnixTime)
	}
	return time.Unix(doc.UnixTime, 0).UTC(), nil
}

func (s *HTTPService) get(ctx context.Context, url string, v any) error {
	if url == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
