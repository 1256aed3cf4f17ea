// Package syncer runs the fetch-then-replace cycle that keeps the article
// cache current.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/njaaron/articlesearch/internal/cache"
	"github.com/njaaron/articlesearch/internal/search"
	"golang.org/x/sync/semaphore"
)

type State int32

const (
	Idle State = iota
	Fetching
	Applying
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Applying:
		return "applying"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store is the part of the cache the controller writes to.
type Store interface {
	ReplaceAll(articles []cache.Article) error
	SetLastRefresh() error
}

// Preference reports whether fetched articles should be persisted.
type Preference interface {
	CacheEnabled() bool
}

// Result describes one finished sync.
type Result struct {
	Articles  []cache.Article
	Persisted bool
	Err       error
	Duration  time.Duration
	At        time.Time
}

type Options struct {
	// Timeout bounds one fetch. Zero leaves it to the HTTP client.
	Timeout time.Duration
}

// Controller serialises refreshes: at most one fetch is in flight, and a
// request that arrives meanwhile is dropped.
type Controller struct {
	fetcher search.Fetcher
	store   Store
	pref    Preference
	opts    Options

	inflight *semaphore.Weighted
	state    atomic.Int32

	// lifeMu orders wg.Add in Refresh against Shutdown.
	lifeMu   sync.Mutex
	stopping bool
	wg       sync.WaitGroup

	mu   sync.Mutex
	subs map[chan Result]struct{}
}

func New(fetcher search.Fetcher, store Store, pref Preference, opts Options) *Controller {
	return &Controller{
		fetcher:  fetcher,
		store:    store,
		pref:     pref,
		opts:     opts,
		inflight: semaphore.NewWeighted(1),
		subs:     make(map[chan Result]struct{}),
	}
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// Refresh starts a sync in the background. It returns false without doing
// anything when a sync is already running or the controller is shutting down.
func (c *Controller) Refresh() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.stopping {
		slog.Debug("refresh ignored, shutting down")
		return false
	}
	if !c.inflight.TryAcquire(1) {
		slog.Debug("refresh ignored, sync in flight")
		return false
	}
	c.state.Store(int32(Fetching))
	c.wg.Add(1)
	go c.run()
	return true
}

// Wait blocks until the current sync, if any, has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown rejects further refreshes and waits for the running sync.
func (c *Controller) Shutdown() {
	c.lifeMu.Lock()
	c.stopping = true
	c.lifeMu.Unlock()
	c.wg.Wait()
}

func (c *Controller) run() {
	defer c.wg.Done()

	start := time.Now()
	res := c.sync()
	res.Duration = time.Since(start)
	res.At = time.Now()

	// Back to Idle before subscribers hear about it, so a refresh triggered
	// from a result handler is accepted.
	c.state.Store(int32(Idle))
	c.inflight.Release(1)
	c.publish(res)
}

func (c *Controller) sync() Result {
	ctx := context.Background()
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	items, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.state.Store(int32(Failed))
		slog.Error("fetching articles failed", "error", err)
		return Result{Err: err}
	}

	c.state.Store(int32(Applying))
	articles := ToArticles(items, time.Now().UTC())

	if !c.pref.CacheEnabled() {
		slog.Info("caching disabled, fetched articles not persisted", "count", len(articles))
		return Result{Articles: articles}
	}

	// The write runs on its own goroutine, after a successful parse.
	errc := make(chan error, 1)
	go func() {
		errc <- c.store.ReplaceAll(articles)
	}()
	if err := <-errc; err != nil {
		c.state.Store(int32(Failed))
		slog.Error("replacing cached articles failed", "error", err)
		return Result{Articles: articles, Err: err}
	}
	if err := c.store.SetLastRefresh(); err != nil {
		slog.Warn("recording refresh time failed", "error", err)
	}

	slog.Info("articles refreshed", "count", len(articles))
	return Result{Articles: articles, Persisted: true}
}

// ToArticles maps raw search items to cache records, preserving order.
func ToArticles(items []search.RawItem, fetchedAt time.Time) []cache.Article {
	articles := make([]cache.Article, len(items))
	for i, it := range items {
		articles[i] = cache.Article{
			Position:  i,
			Headline:  it.Headline,
			Summary:   it.Abstract,
			Byline:    it.Byline,
			ImageURL:  it.ImageURL,
			FetchedAt: fetchedAt,
		}
	}
	return articles
}

// Subscribe returns a channel that receives every Result until ctx is done.
// Slow subscribers miss results rather than stall the controller.
func (c *Controller) Subscribe(ctx context.Context) <-chan Result {
	ch := make(chan Result, 8)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

func (c *Controller) publish(res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- res:
		default:
			slog.Warn("sync result dropped for slow subscriber")
		}
	}
}
