// Package transport executes REST calls against the PartyMaker proxy
// (/api/firebase/{path}) with per-call timeouts.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"partymaker/internal/config"
	"partymaker/internal/logging"
	"partymaker/internal/neterr"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	APIPrefix    = "/api/firebase/"
	maxBodyBytes = 32 << 20
)

// BaseURLSource yields the server base URL. It is read once at the start of
// every call; *config.Settings implements it.
type BaseURLSource interface {
	ServerURL() string
}

type StaticURL string

func (s StaticURL) ServerURL() string { return string(s) }

// Meta describes a successful response.
type Meta struct {
	Status int
	ETag   string
}

type Options struct {
	HTTPClient     *http.Client
	DefaultTimeout time.Duration
	// Registerer receives the client metrics; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

type Client struct {
	base           BaseURLSource
	http           *http.Client
	defaultTimeout time.Duration
	log            *slog.Logger
	metrics        *metrics
}

func New(base BaseURLSource, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.For("transport")
	}
	return &Client{
		base:           base,
		http:           hc,
		defaultTimeout: timeout,
		log:            log,
		metrics:        newMetrics(opts.Registerer),
	}
}

// Get returns the raw response body. A zero timeout means the default.
func (c *Client) Get(ctx context.Context, path string, timeout time.Duration) ([]byte, Meta, error) {
	return c.do(ctx, http.MethodGet, path, nil, "", timeout)
}

func (c *Client) Post(ctx context.Context, path string, body []byte, timeout time.Duration) error {
	_, _, err := c.do(ctx, http.MethodPost, path, body, "", timeout)
	return err
}

func (c *Client) Put(ctx context.Context, path string, body []byte, timeout time.Duration) error {
	_, _, err := c.do(ctx, http.MethodPut, path, body, "", timeout)
	return err
}

// PutIfMatch is Put guarded by If-Match; the proxy answers 412 when the
// stored entity no longer has the given ETag.
func (c *Client) PutIfMatch(ctx context.Context, path string, body []byte, etag string, timeout time.Duration) error {
	_, _, err := c.do(ctx, http.MethodPut, path, body, etag, timeout)
	return err
}

func (c *Client) Delete(ctx context.Context, path string, timeout time.Duration) error {
	_, _, err := c.do(ctx, http.MethodDelete, path, nil, "", timeout)
	return err
}

// Probe checks that target answers 200 within timeout.
func (c *Client) Probe(ctx context.Context, target string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout(timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return neterr.Permanent(neterr.WithKind(err, neterr.ClientError))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return &neterr.StatusError{Code: resp.StatusCode, Method: http.MethodGet, Path: target}
	}
	return nil
}

// URL builds {base}/api/firebase/{path}, escaping each segment.
func URL(base, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + APIPrefix + strings.Join(segs, "/")
}

func (c *Client) timeout(t time.Duration) time.Duration {
	if t <= 0 {
		return c.defaultTimeout
	}
	return t
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, ifMatch string, timeout time.Duration) ([]byte, Meta, error) {
	target := URL(c.base.ServerURL(), path)

	ctx, cancel := context.WithTimeout(ctx, c.timeout(timeout))
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, Meta{}, neterr.Permanent(neterr.WithKind(err, neterr.ClientError))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.requests.WithLabelValues(method, "error").Inc()
		c.log.Warn("request failed", "method", method, "path", path, "err", err)
		return nil, Meta{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.metrics.requests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.log.Warn("read body failed", "method", method, "path", path, "err", err)
		return nil, Meta{}, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("unexpected status", "method", method, "path", path, "status", resp.StatusCode)
		return nil, Meta{}, &neterr.StatusError{Code: resp.StatusCode, Method: method, Path: path}
	}

	c.log.Debug("request ok", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(data))
	return data, Meta{Status: resp.StatusCode, ETag: resp.Header.Get("ETag")}, nil
}
