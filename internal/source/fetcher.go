// Package source fetches raw frames from the camera a processed camera wraps.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ErrUnavailable means the source produced no frame. It is a hard failure
// for the render that asked.
var ErrUnavailable = errors.New("source unavailable")

const (
	// DefaultTimeout bounds one snapshot download
	DefaultTimeout = 10 * time.Second
	// MaxFrameSize caps the bytes read from any source
	MaxFrameSize = 32 << 20
)

// Fetcher loads raw frames from HTTP snapshot URLs and local files
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher. A nil client gets DefaultTimeout.
func NewFetcher(client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch returns the raw encoded frame for src, an http(s) URL, a file:// URL
// or an absolute path. Every failure wraps ErrUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		data, err = f.fetchHTTP(ctx, src)
	case strings.HasPrefix(src, "file://"):
		data, err = fetchFile(strings.TrimPrefix(src, "file://"))
	case strings.HasPrefix(src, "/"):
		data, err = fetchFile(src)
	default:
		err = fmt.Errorf("%w: unsupported source %q", ErrUnavailable, SanitizeURL(src))
	}
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrUnavailable, SanitizeURL(src))
	}

	f.logger.Debug("Fetched source frame",
		zap.String("source", SanitizeURL(src)),
		zap.String("size", humanize.Bytes(uint64(len(data)))))

	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download %s: %v", ErrUnavailable, SanitizeURL(src), sanitizeError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: failed to download %s: HTTP %d", ErrUnavailable, SanitizeURL(src), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrUnavailable, SanitizeURL(src), err)
	}
	return data, nil
}

func fetchFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnavailable, path)
	}
	if info.Size() > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s is %s, larger than allowed", ErrUnavailable, path, humanize.Bytes(uint64(info.Size())))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// SanitizeURL removes credentials from a source URL so it can be logged
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil

	q := u.Query()
	changed := false
	for key := range q {
		switch strings.ToLower(key) {
		case "password", "pass", "pwd", "token", "access_token", "api_key", "apikey", "auth":
			q.Set(key, "xxxxx")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// sanitizeError drops the URL embedded in *url.Error values
func sanitizeError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
