package tracker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/seven-days-calm/internal/convai"
)

// gatedFetcher blocks each fetch until its day is released.
type gatedFetcher struct {
	mu      sync.Mutex
	gates   map[int]chan error
	started chan int
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: map[int]chan error{}, started: make(chan int, 16)}
}

func (g *gatedFetcher) gate(day int) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[day]
	if !ok {
		ch = make(chan error, 1)
		g.gates[day] = ch
	}
	return ch
}

func (g *gatedFetcher) FetchSignedURL(ctx context.Context, day *int) (convai.SignedURLResponse, error) {
	gate := g.gate(*day)
	g.started <- *day
	select {
	case err := <-gate:
		if err != nil {
			return convai.SignedURLResponse{}, err
		}
		return convai.SignedURLResponse{OK: true, SignedURL: "wss://convai.example/ws?day=" + string(rune('0'+*day))}, nil
	case <-ctx.Done():
		return convai.SignedURLResponse{}, ctx.Err()
	}
}

func TestLoadReady(t *testing.T) {
	f := newGatedFetcher()
	var got string
	l := NewSessionLoader(f, func(url string) { got = url })
	assert.Equal(t, StatusLoadingMessage, l.Status())

	f.gate(2) <- nil
	url, err := l.Load(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "wss://convai.example/ws?day=2", url)
	assert.Equal(t, url, got)
	assert.Equal(t, LoadReady, l.State())
	assert.Equal(t, StatusReadyMessage, l.Status())
}

func TestLoadLastRequestWins(t *testing.T) {
	f := newGatedFetcher()
	l := NewSessionLoader(f, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), 1)
		firstErr <- err
	}()
	require.Equal(t, 1, <-f.started)

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = l.Load(context.Background(), 2)
	}()
	require.Equal(t, 2, <-f.started)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrFetchCancelled)
	case <-time.After(time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	assert.Equal(t, LoadLoading, l.State(), "a cancelled fetch must not write state")

	f.gate(2) <- nil
	<-secondDone
	assert.Equal(t, "wss://convai.example/ws?day=2", l.URL())
}

func TestLoadFailureHoldsUntilNextLoad(t *testing.T) {
	f := newGatedFetcher()
	l := NewSessionLoader(f, nil)

	f.gate(3) <- errors.New("HTTP 502")
	_, err := l.Load(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, LoadFailed, l.State())
	assert.Equal(t, StatusErrorMessage, l.Status())
	assert.EqualError(t, l.Err(), "HTTP 502")

	f.gate(4) <- nil
	_, err = l.Load(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, LoadReady, l.State())
	assert.NoError(t, l.Err())
}

func TestLoadRejectsEmptyURL(t *testing.T) {
	l := NewSessionLoader(emptyFetcher{}, nil)
	_, err := l.Load(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, LoadFailed, l.State())
}

type emptyFetcher struct{}

func (emptyFetcher) FetchSignedURL(context.Context, *int) (convai.SignedURLResponse, error) {
	return convai.SignedURLResponse{OK: true}, nil
}

func TestWatchReloadsOnDayChange(t *testing.T) {
	tr, _, _ := newTracker(t, NewMemoryStorage())
	f := newGatedFetcher()
	b := NewBinding(tr)
	el := newFakeElement()
	b.Attach(el)

	l := NewSessionLoader(f, b.SetSignedURL)
	stop := l.Watch(context.Background(), tr)
	defer stop()

	f.gate(2) <- nil
	_, err := tr.Complete(1)
	require.NoError(t, err)
	require.Equal(t, 2, <-f.started)

	require.Eventually(t, func() bool {
		return el.get(AttrSignedURL) == "wss://convai.example/ws?day=2"
	}, time.Second, 5*time.Millisecond)
}

// slowerForEarlierDays answers older days later, so a stale fetch always
// finishes after the newest one.
type slowerForEarlierDays struct{}

func (slowerForEarlierDays) FetchSignedURL(ctx context.Context, day *int) (convai.SignedURLResponse, error) {
	select {
	case <-time.After(time.Duration(8-*day) * time.Millisecond):
		return convai.SignedURLResponse{OK: true, SignedURL: "wss://convai.example/ws?day=" + strconv.Itoa(*day)}, nil
	case <-ctx.Done():
		return convai.SignedURLResponse{}, ctx.Err()
	}
}

func TestWatchKeepsLatestDayUnderRapidChanges(t *testing.T) {
	for run := 0; run < 25; run++ {
		tr, _, _ := newTracker(t, NewMemoryStorage())
		b := NewBinding(tr)
		el := newFakeElement()
		b.Attach(el)

		l := NewSessionLoader(slowerForEarlierDays{}, b.SetSignedURL)
		stop := l.Watch(context.Background(), tr)

		for day := 1; day <= 7; day++ {
			_, err := tr.SetDay(day)
			require.NoError(t, err)
		}

		want := "wss://convai.example/ws?day=7"
		require.Eventually(t, func() bool {
			return l.State() == LoadReady && l.URL() == want
		}, time.Second, time.Millisecond, "run %d", run)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, want, l.URL(), "run %d: a stale fetch overwrote the latest URL", run)
		assert.Equal(t, want, el.get(AttrSignedURL), "run %d", run)
		assert.Equal(t, FirstMessage(7), el.get(AttrFirstMessage), "run %d", run)
		stop()
	}
}
