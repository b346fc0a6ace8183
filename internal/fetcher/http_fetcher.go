package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
)

// maxDownloadSize caps a remote photo held in memory before decoding
const maxDownloadSize = 10 << 20

// HTTPFetcher turns image URLs given to UPDATE into stream candidates
type HTTPFetcher struct {
	logger *zap.Logger
	client *http.Client
	limit  int64
}

// NewHTTPFetcher creates a fetcher with a short timeout; the daemon
// handles one request at a time.
func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		limit:  maxDownloadSize,
	}
}

// IsURL reports whether arg should be downloaded rather than read from disk
func IsURL(arg string) bool {
	lower := strings.ToLower(arg)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// CandidateName labels a downloaded photo in the display record: the last
// path element, or the host when the URL has no file part.
func CandidateName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return u.Host
	}
	return base
}

// Candidate downloads rawURL and wraps the bytes as a stream candidate
func (f *HTTPFetcher) Candidate(ctx context.Context, rawURL string) (domain.ImageCandidate, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !IsURL(rawURL) || u.Host == "" {
		return domain.ImageCandidate{}, fmt.Errorf("not an image url: %s", rawURL)
	}

	data, err := f.Fetch(ctx, u.String())
	if err != nil {
		return domain.ImageCandidate{}, err
	}
	return domain.NewStreamCandidate(data, CandidateName(u)), nil
}

// Fetch downloads image data from the given URL
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if !IsURL(rawURL) {
		return nil, fmt.Errorf("unsupported protocol: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "inkframe/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("url is not an image: %q", resp.Header.Get("Content-Type"))
	}
	if resp.ContentLength > f.limit {
		return nil, fmt.Errorf("image exceeds %d bytes", f.limit)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.limit {
		return nil, fmt.Errorf("image exceeds %d bytes", f.limit)
	}

	f.logger.Debug("Downloaded image", zap.String("url", rawURL), zap.Int("bytes", len(data)))
	return data, nil
}
