// Package repository is the data-access facade over the PartyMaker proxy.
// Reads degrade to empty results on failure; writes return errors.
//
// Membership changes are read-modify-write cycles on a group snapshot.
// Without conditional writes the last writer wins.
package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"partymaker/internal/config"
	"partymaker/internal/logging"
	"partymaker/internal/neterr"
	"partymaker/internal/transport"

	"github.com/google/uuid"
)

const (
	PathGroups   = "Groups"
	PathUsers    = "Users"
	PathMessages = "GroupsMessages"

	defaultCascadeConcurrency = 4
	maxConflictAttempts       = 3
)

// Transport is the subset of *transport.Client the facade needs.
type Transport interface {
	Get(ctx context.Context, path string, timeout time.Duration) ([]byte, transport.Meta, error)
	Post(ctx context.Context, path string, body []byte, timeout time.Duration) error
	Put(ctx context.Context, path string, body []byte, timeout time.Duration) error
	PutIfMatch(ctx context.Context, path string, body []byte, etag string, timeout time.Duration) error
	Delete(ctx context.Context, path string, timeout time.Duration) error
}

// BlobStore holds group images.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) error
	Delete(ctx context.Context, path string) error
	DownloadURL(ctx context.Context, path string) (string, error)
}

type Options struct {
	// FetchTimeout applies to group and message fetches.
	FetchTimeout time.Duration
	// RequestTimeout applies to everything else; zero means the transport default.
	RequestTimeout     time.Duration
	Retry              neterr.Options
	ConditionalWrites  bool
	CascadeConcurrency int
	Blobs              BlobStore
	Logger             *slog.Logger
	Now                func() time.Time
	NewKey             func() string
}

// OptionsFromConfig maps the env configuration onto facade options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		FetchTimeout:      cfg.FetchTimeout,
		RequestTimeout:    cfg.RequestTimeout,
		ConditionalWrites: cfg.ConditionalWrites,
		Retry: neterr.Options{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
		},
	}
}

type Repository struct {
	t    Transport
	opts Options
	log  *slog.Logger
}

func New(t Transport, opts Options) *Repository {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = config.DefaultFetchTimeout
	}
	if opts.CascadeConcurrency <= 0 {
		opts.CascadeConcurrency = defaultCascadeConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = newKey
	}
	log := opts.Logger
	if log == nil {
		log = logging.For("repository")
	}
	return &Repository{t: t, opts: opts, log: log}
}

// newKey returns a time-ordered id so keys sort by creation.
func newKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func groupPath(id string) string   { return PathGroups + "/" + id }
func userPath(id string) string    { return PathUsers + "/" + id }
func messagePath(id string) string { return PathMessages + "/" + id }

func (r *Repository) retryOpts(op string) neterr.Options {
	o := r.opts.Retry
	next := o.OnRetry
	o.OnRetry = func(attempt int, err error) {
		r.log.Warn("retrying", "op", op, "attempt", attempt, "err", err)
		if next != nil {
			next(attempt, err)
		}
	}
	return o
}

// terminal marks client errors as not worth retrying. Request timeouts and
// throttling stay retryable.
func terminal(err error) error {
	var se *neterr.StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 &&
		se.Code != http.StatusRequestTimeout && se.Code != http.StatusTooManyRequests {
		return neterr.Permanent(err)
	}
	return err
}

type reply struct {
	data []byte
	meta transport.Meta
}

func (r *Repository) get(ctx context.Context, path string, timeout time.Duration) ([]byte, transport.Meta, error) {
	out, err := neterr.Do(ctx, func(ctx context.Context) (reply, error) {
		d, m, err := r.t.Get(ctx, path, timeout)
		if err != nil {
			return reply{}, terminal(err)
		}
		return reply{data: d, meta: m}, nil
	}, r.retryOpts("GET "+path))
	return out.data, out.meta, err
}

func (r *Repository) post(ctx context.Context, path string, body []byte) error {
	return neterr.Retry(ctx, func(ctx context.Context) error {
		return terminal(r.t.Post(ctx, path, body, r.opts.RequestTimeout))
	}, r.retryOpts("POST "+path))
}

func (r *Repository) put(ctx context.Context, path string, body []byte) error {
	return neterr.Retry(ctx, func(ctx context.Context) error {
		return terminal(r.t.Put(ctx, path, body, r.opts.RequestTimeout))
	}, r.retryOpts("PUT "+path))
}

func (r *Repository) putIfMatch(ctx context.Context, path string, body []byte, etag string) error {
	return neterr.Retry(ctx, func(ctx context.Context) error {
		return terminal(r.t.PutIfMatch(ctx, path, body, etag, r.opts.RequestTimeout))
	}, r.retryOpts("PUT "+path))
}

func (r *Repository) delete(ctx context.Context, path string) error {
	return neterr.Retry(ctx, func(ctx context.Context) error {
		return terminal(r.t.Delete(ctx, path, r.opts.RequestTimeout))
	}, r.retryOpts("DELETE "+path))
}

// worthScanning reports whether a failed single-entity read should be
// retried against the whole collection. Malformed bodies and cancelled
// calls are final.
func worthScanning(ctx context.Context, err error) bool {
	return ctx.Err() == nil && neterr.Classify(err) != neterr.ParseError
}
