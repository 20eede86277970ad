package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/seven-days-calm/internal/convai"
)

// ErrFetchCancelled is returned by Load when a newer Load superseded it.
var ErrFetchCancelled = errors.New("signed url fetch superseded")

// Status messages shown next to the widget.
const (
	StatusLoadingMessage = "Loading guide..."
	StatusErrorMessage   = "Unable to load Shria guide."
	StatusReadyMessage   = "Guide ready."
)

// LoadState is the signed-URL loading state.
type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadReady
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadLoading:
		return "loading"
	case LoadReady:
		return "ready"
	case LoadFailed:
		return "error"
	default:
		return "idle"
	}
}

// URLFetcher fetches a signed session URL for a day.
type URLFetcher interface {
	FetchSignedURL(ctx context.Context, day *int) (convai.SignedURLResponse, error)
}

// SessionLoader fetches signed URLs with last-request-wins semantics: a new
// Load cancels the one in flight, and a cancelled fetch never writes state.
// Failures are not retried; the error state holds until the next Load.
type SessionLoader struct {
	fetcher URLFetcher
	onReady func(url string)
	log     *slog.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	state  LoadState
	url    string
	err    error

	// readyMu orders onReady calls; a result is delivered only while it is
	// still the latest request.
	readyMu sync.Mutex
}

// LoaderOption configures a SessionLoader.
type LoaderOption func(*SessionLoader)

// WithLoaderLogger sets the logger for failed fetches. Defaults to
// slog.Default.
func WithLoaderLogger(log *slog.Logger) LoaderOption {
	return func(l *SessionLoader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewSessionLoader creates a loader. onReady, when set, receives every URL
// that is successfully loaded.
func NewSessionLoader(fetcher URLFetcher, onReady func(url string), opts ...LoaderOption) *SessionLoader {
	l := &SessionLoader{fetcher: fetcher, onReady: onReady, log: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// loadRequest is a claimed load that has not been fetched yet.
type loadRequest struct {
	ctx    context.Context
	cancel context.CancelFunc
	seq    uint64
	day    int
}

// begin supersedes any load in flight and claims the next sequence number.
// Requests are ordered by the time begin runs, not by when they are fetched.
func (l *SessionLoader) begin(ctx context.Context, day int) loadRequest {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	l.cancel = cancel
	l.state = LoadLoading
	l.url = ""
	l.err = nil
	return loadRequest{ctx: ctx, cancel: cancel, seq: l.seq, day: day}
}

func (l *SessionLoader) current(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return seq == l.seq
}

// run fetches a claimed request and records its result if it is still the
// latest one.
func (l *SessionLoader) run(req loadRequest) (string, error) {
	defer req.cancel()

	day := req.day
	resp, err := l.fetcher.FetchSignedURL(req.ctx, &day)
	url := resp.SignedURL
	if url == "" {
		url = resp.URL
	}
	if err == nil && url == "" {
		err = fmt.Errorf("response missing signed_url")
	}

	l.mu.Lock()
	if req.seq != l.seq {
		l.mu.Unlock()
		return "", ErrFetchCancelled
	}
	l.cancel = nil
	if err != nil {
		if req.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			l.state = LoadIdle
			l.mu.Unlock()
			return "", err
		}
		l.state = LoadFailed
		l.err = err
		l.mu.Unlock()
		l.log.Error("Signed URL fetch failed", "day", req.day, "error", err)
		return "", err
	}
	l.state = LoadReady
	l.url = url
	l.mu.Unlock()

	if l.onReady != nil {
		l.readyMu.Lock()
		defer l.readyMu.Unlock()
		if !l.current(req.seq) {
			return "", ErrFetchCancelled
		}
		l.onReady(url)
	}
	return url, nil
}

// Load fetches the URL for day, blocking until it completes, fails or is
// superseded.
func (l *SessionLoader) Load(ctx context.Context, day int) (string, error) {
	return l.run(l.begin(ctx, day))
}

// Watch reloads the URL in the background whenever the tracker's day
// changes. Each change claims its request before the callback returns, so
// the last committed day is the one whose URL is kept. The returned func
// stops watching and cancels any fetch in flight.
func (l *SessionLoader) Watch(ctx context.Context, t *Tracker) func() {
	ctx, cancel := context.WithCancel(ctx)
	unsub := t.subscribe(func(day int) {
		req := l.begin(ctx, day)
		go func() {
			_, _ = l.run(req)
		}()
	})
	return func() {
		unsub()
		cancel()
	}
}

// State returns the current loading state.
func (l *SessionLoader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// URL returns the last loaded URL, empty unless ready.
func (l *SessionLoader) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Err returns the failure behind the error state.
func (l *SessionLoader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Status returns the message shown to the user.
func (l *SessionLoader) Status() string {
	switch l.State() {
	case LoadFailed:
		return StatusErrorMessage
	case LoadReady:
		return StatusReadyMessage
	default:
		return StatusLoadingMessage
	}
}
