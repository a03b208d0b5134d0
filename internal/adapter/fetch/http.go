// Package fetch implements the HTTP byte-range fetcher used by schema
// detection. It owns transport-level concerns: retries with backoff,
// Content-Range bookkeeping, and gzip decompression of full-body downloads.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/strata/internal/core/domain"
	"github.com/guillermoBallester/strata/internal/core/port"
	"github.com/klauspost/compress/gzip"
)

const (
	defaultRetries = 2
	defaultBackoff = 250 * time.Millisecond

	// maxFullBody caps how much of a response is buffered when the server
	// ignores range semantics or a full fetch is requested. Beyond this the
	// partial-download guarantee is unsalvageable.
	maxFullBody = 64 << 20
)

var gzipMagic = []byte{0x1f, 0x8b}

// HTTPFetcher implements port.RangeFetcher over net/http.
type HTTPFetcher struct {
	client  *http.Client
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithRetryPolicy overrides the retry count and initial backoff.
func WithRetryPolicy(retries int, backoff time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.retries = retries
		f.backoff = backoff
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

func NewHTTPFetcher(logger *slog.Logger, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:  logger,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchRange issues a single range GET for [start, end). Transient failures
// (network errors, 5xx) are retried with exponential backoff before
// surfacing as upstream_fetch_error. A 200 full-body answer is returned
// as-is; the caller detects range-ignoring servers by length.
func (f *HTTPFetcher) FetchRange(ctx context.Context, url string, start, end int64) ([]byte, int64, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			delay := f.backoff << (attempt - 1)
			f.logger.DebugContext(ctx, "retrying range fetch",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, port.SizeUnknown, domain.WrapDetectError(domain.ErrUpstreamFetch, ctx.Err(), "fetch canceled")
			}
		}

		data, total, err, retryable := f.fetchRangeOnce(ctx, url, start, end)
		if err == nil {
			return data, total, nil
		}
		lastErr = err
		if !retryable {
			return nil, port.SizeUnknown, err
		}
	}
	return nil, port.SizeUnknown, lastErr
}

func (f *HTTPFetcher) fetchRangeOnce(ctx context.Context, url string, start, end int64) (data []byte, total int64, err error, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "building request"), false
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "range request failed"), true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		body, err := readCapped(resp.Body, end-start)
		if err != nil {
			return nil, 0, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "reading partial response"), true
		}
		return body, totalFromContentRange(resp.Header.Get("Content-Range")), nil, false

	case resp.StatusCode == http.StatusOK:
		// Server ignored range semantics and is sending the whole file.
		body, err := readCapped(resp.Body, maxFullBody)
		if err != nil {
			return nil, 0, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "reading full response"), true
		}
		if int64(len(body)) >= maxFullBody {
			return nil, 0, domain.NewDetectError(domain.ErrRangeUnsupported,
				"server ignored range request and body exceeds %d bytes", int64(maxFullBody)), false
		}
		return body, int64(len(body)), nil, false

	case resp.StatusCode >= 500:
		return nil, 0, domain.NewDetectError(domain.ErrUpstreamFetch, "upstream returned status %d", resp.StatusCode), true

	default:
		return nil, 0, domain.NewDetectError(domain.ErrUpstreamFetch, "upstream returned status %d", resp.StatusCode), false
	}
}

// FetchAll downloads url in full, retrying like FetchRange. Bodies that are
// gzip-compressed at rest (magic bytes 1f 8b) are decompressed before return.
func (f *HTTPFetcher) FetchAll(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(f.backoff << (attempt - 1)):
			case <-ctx.Done():
				return nil, domain.WrapDetectError(domain.ErrUpstreamFetch, ctx.Err(), "fetch canceled")
			}
		}

		data, err, retryable := f.fetchAllOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchAllOnce(ctx context.Context, url string) (data []byte, err error, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "building request"), false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "request failed"), true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, domain.NewDetectError(domain.ErrUpstreamFetch, "upstream returned status %d", resp.StatusCode), true
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewDetectError(domain.ErrUpstreamFetch, "upstream returned status %d", resp.StatusCode), false
	}

	body, err := readCapped(resp.Body, maxFullBody)
	if err != nil {
		return nil, domain.WrapDetectError(domain.ErrUpstreamFetch, err, "reading response"), true
	}
	if int64(len(body)) >= maxFullBody {
		return nil, domain.NewDetectError(domain.ErrUpstreamFetch, "resource exceeds %d byte download limit", int64(maxFullBody)), false
	}

	if bytes.HasPrefix(body, gzipMagic) {
		return gunzip(body)
	}
	return body, nil, false
}

func gunzip(data []byte) ([]byte, error, bool) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapDetectError(domain.ErrDecodeFailed, err, "opening gzip stream"), false
	}
	defer zr.Close()

	out, err := readCapped(zr, maxFullBody)
	if err != nil {
		return nil, domain.WrapDetectError(domain.ErrDecodeFailed, err, "decompressing gzip stream"), false
	}
	return out, nil, false
}

// readCapped reads at most limit bytes plus one sentinel byte, so callers can
// tell "exactly limit" from "more than limit".
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, limit+1)); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	if int64(len(b)) > limit {
		b = b[:limit]
	}
	return b, nil
}

// totalFromContentRange parses the complete length out of a Content-Range
// header like "bytes 0-8191/5242880". Returns SizeUnknown for absent or
// unparseable headers, including the "bytes 0-8191/*" form.
func totalFromContentRange(header string) int64 {
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 {
		return port.SizeUnknown
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil || total < 0 {
		return port.SizeUnknown
	}
	return total
}
