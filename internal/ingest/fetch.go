package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/storage"
)

// Fetcher loads media bytes for a reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Checker confirms a reference is still reachable without loading it.
type Checker interface {
	Check(ctx context.Context, ref string) error
}

// Check reports whether ref can still be fetched. Fetchers without a cheaper
// Checker are fetched in full.
func Check(ctx context.Context, f Fetcher, ref string) error {
	if c, ok := f.(Checker); ok {
		return c.Check(ctx, ref)
	}
	_, err := f.Fetch(ctx, ref)
	return err
}

// HTTPFetcher downloads candidate media. Platform page URLs go through the
// resolver first when one is set.
type HTTPFetcher struct {
	client    *http.Client
	resolver  Resolver
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64, userAgent string, resolver Resolver) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		resolver:  resolver,
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	target := ref
	if f.resolver != nil && DetectPlatform(ref) != PlatformWeb {
		resolved, err := f.resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		target = resolved
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url: %v", ErrUnavailable, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", hostOf(target), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &models.RateLimitError{
			Service:    hostOf(target),
			RetryAfter: models.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnavailableForLegalReasons:
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, hostOf(target), resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("fetch %s: status %d", hostOf(target), resp.StatusCode)
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: media is %s, limit %s", ErrUnavailable,
			humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(f.maxBytes)))
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", hostOf(target), err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: media exceeds %s", ErrUnavailable, humanize.Bytes(uint64(f.maxBytes)))
	}

	slog.Debug("fetched media",
		"host", hostOf(target),
		"size", humanize.Bytes(uint64(len(data))),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return data, nil
}

// ObjectGetter reads an object by key.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// ObjectFetcher loads originals from object storage. Missing objects are
// unavailable.
type ObjectFetcher struct {
	Store ObjectGetter
}

func (o ObjectFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, err := o.Store.GetObject(ctx, strings.TrimPrefix(ref, ObjectScheme))
	if err != nil {
		return nil, objectError(ref, err)
	}
	return data, nil
}

// ObjectStatter reports whether an object exists.
type ObjectStatter interface {
	StatObject(ctx context.Context, key string) error
}

// Check stats the object when the store supports it.
func (o ObjectFetcher) Check(ctx context.Context, ref string) error {
	st, ok := o.Store.(ObjectStatter)
	if !ok {
		_, err := o.Fetch(ctx, ref)
		return err
	}
	if err := st.StatObject(ctx, strings.TrimPrefix(ref, ObjectScheme)); err != nil {
		return objectError(ref, err)
	}
	return nil
}

func objectError(ref string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnavailable, ref)
	}
	return fmt.Errorf("load original %s: %w", ref, err)
}

// ObjectScheme prefixes object-storage references; bare keys are accepted too.
const ObjectScheme = "s3://"

// Router picks a fetcher by reference shape: http(s) URLs go to Remote,
// everything else to Objects.
type Router struct {
	Objects Fetcher
	Remote  Fetcher
}

func (r Router) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f, err := r.route(ref)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, ref)
}

func (r Router) Check(ctx context.Context, ref string) error {
	f, err := r.route(ref)
	if err != nil {
		return err
	}
	return Check(ctx, f, ref)
}

func (r Router) route(ref string) (Fetcher, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return r.Remote, nil
	}
	if r.Objects == nil {
		return nil, fmt.Errorf("%w: no object store for %s", ErrUnavailable, ref)
	}
	return r.Objects, nil
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
