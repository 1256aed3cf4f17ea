package syncer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/njaaron/articlesearch/internal/cache"
	"github.com/njaaron/articlesearch/internal/prefs"
	"github.com/njaaron/articlesearch/internal/search"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	release chan struct{}
	items   []search.RawItem
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]search.RawItem, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.release != nil {
		<-f.release
	}
	return f.items, f.err
}

type memStore struct {
	mu       sync.Mutex
	articles []cache.Article
	writes   int
	err      error
}

func (m *memStore) ReplaceAll(articles []cache.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.articles = articles
	return nil
}

func (m *memStore) SetLastRefresh() error { return nil }

func (m *memStore) snapshot() ([]cache.Article, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.articles, m.writes
}

func TestRefreshReplacesStore(t *testing.T) {
	f := &fakeFetcher{items: []search.RawItem{{Headline: "A", Abstract: "B", Byline: "C"}}}
	store := &memStore{}
	c := New(f, store, prefs.Static(true), Options{})

	results := c.Subscribe(context.Background())
	require.True(t, c.Refresh())
	c.Wait()

	res := <-results
	require.NoError(t, res.Err)
	require.True(t, res.Persisted)

	got, writes := store.snapshot()
	require.Equal(t, 1, writes)
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].Headline)
	require.Equal(t, "B", got[0].Summary)
	require.Equal(t, "C", got[0].Byline)
	require.Empty(t, got[0].ImageURL)
	require.Equal(t, Idle, c.State())
}

func TestRefreshWhileFetchingIsDropped(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := New(f, &memStore{}, prefs.Static(true), Options{})

	require.True(t, c.Refresh())
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, Fetching, c.State())

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Refresh() {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, accepted.Load())

	close(f.release)
	c.Wait()
	require.Equal(t, int32(1), f.calls.Load())
	require.Equal(t, int32(1), f.maxSeen.Load())
	require.Equal(t, Idle, c.State())

	// A new request after completion runs again.
	require.True(t, c.Refresh())
	c.Wait()
	require.Equal(t, int32(2), f.calls.Load())
}

func TestFetchFailureLeavesStoreUntouched(t *testing.T) {
	fetchErr := &search.FetchError{Kind: search.KindTransport, Message: "sending request", Err: errors.New("connection refused")}
	f := &fakeFetcher{err: fetchErr}
	store := &memStore{articles: []cache.Article{{Headline: "kept"}}}
	c := New(f, store, prefs.Static(true), Options{})

	results := c.Subscribe(context.Background())
	require.True(t, c.Refresh())
	c.Wait()

	res := <-results
	var fe *search.FetchError
	require.ErrorAs(t, res.Err, &fe)
	require.Equal(t, search.KindTransport, fe.Kind)
	require.False(t, res.Persisted)

	got, writes := store.snapshot()
	require.Zero(t, writes)
	require.Len(t, got, 1)
	require.Equal(t, "kept", got[0].Headline)
	require.Equal(t, Idle, c.State())
}

func TestCacheDisabledSkipsPersistence(t *testing.T) {
	f := &fakeFetcher{items: []search.RawItem{{Headline: "x"}, {Headline: "y"}}}
	store := &memStore{}
	gate := prefs.Static(false)
	c := New(f, store, gate, Options{})

	results := c.Subscribe(context.Background())
	require.True(t, c.Refresh())
	c.Wait()

	res := <-results
	require.NoError(t, res.Err)
	require.False(t, res.Persisted)
	require.Len(t, res.Articles, 2)
	require.Equal(t, int32(1), f.calls.Load(), "network call still happens")

	_, writes := store.snapshot()
	require.Zero(t, writes)

	// The preference is read on every sync.
	require.NoError(t, gate.Set(true))
	require.True(t, c.Refresh())
	c.Wait()
	_, writes = store.snapshot()
	require.Equal(t, 1, writes)
}

func TestStoreFailureReported(t *testing.T) {
	f := &fakeFetcher{items: []search.RawItem{{Headline: "x"}}}
	store := &memStore{err: errors.New("disk full")}
	c := New(f, store, prefs.Static(true), Options{})

	results := c.Subscribe(context.Background())
	c.Refresh()
	c.Wait()

	res := <-results
	require.EqualError(t, res.Err, "disk full")
	require.False(t, res.Persisted)
	require.Equal(t, Idle, c.State())
}

func TestShutdownRejectsRefresh(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := New(f, &memStore{}, prefs.Static(true), Options{})

	require.True(t, c.Refresh())
	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()

	require.Eventually(t, func() bool {
		c.lifeMu.Lock()
		defer c.lifeMu.Unlock()
		return c.stopping
	}, 2*time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("Shutdown returned before the running sync finished")
	default:
	}

	close(f.release)
	<-done
	require.False(t, c.Refresh(), "refresh after shutdown must be rejected")
	require.Equal(t, int32(1), f.calls.Load())
	require.Equal(t, Idle, c.State())
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	c := New(&fakeFetcher{}, &memStore{}, prefs.Static(true), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx)
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestToArticlesPreservesOrder(t *testing.T) {
	now := time.Now()
	items := []search.RawItem{{Headline: "1"}, {Headline: "2"}, {Headline: "3", ImageURL: "https://img"}}
	got := ToArticles(items, now)
	require.Len(t, got, 3)
	for i, a := range got {
		require.Equal(t, i, a.Position)
		require.Equal(t, items[i].Headline, a.Headline)
		require.Equal(t, now, a.FetchedAt)
	}
	require.Equal(t, "https://img", got[2].ImageURL)
}

// End to end against an httptest server and a real SQLite cache.
func TestSyncIntoSQLite(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"docs":[{"headline":{"main":"A"},"abstract":"B","byline":{"original":"C"}}]}}`))
	}))
	t.Cleanup(server.Close)

	db, err := cache.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := search.NewClient(server.Client(), search.Options{Endpoint: server.URL, APIKey: "k"})
	c := New(client, db, prefs.Static(true), Options{Timeout: 5 * time.Second})

	require.True(t, c.Refresh())
	c.Wait()

	got, err := db.GetAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, cache.Article{Position: 0, Headline: "A", Summary: "B", Byline: "C", FetchedAt: got[0].FetchedAt}, got[0])
	require.False(t, db.NeedsRefresh(time.Hour))

	// A failing fetch keeps the previous snapshot.
	fail.Store(true)
	require.True(t, c.Refresh())
	c.Wait()
	again, err := db.GetAll()
	require.NoError(t, err)
	require.Equal(t, got, again)
	require.Equal(t, Idle, c.State())
}

func TestParseFailureKeepsSQLiteSnapshot(t *testing.T) {
	var broken atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if broken.Load() {
			w.Write([]byte(`{"response":{}}`))
			return
		}
		w.Write([]byte(`{"response":{"docs":[{"headline":{"main":"A"}},{"headline":{"main":"B"}}]}}`))
	}))
	t.Cleanup(server.Close)

	db, err := cache.Open(filepath.Join(t.TempDir(), "parse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := search.NewClient(server.Client(), search.Options{Endpoint: server.URL, APIKey: "k"})
	c := New(client, db, prefs.Static(true), Options{Timeout: 5 * time.Second})
	results := c.Subscribe(context.Background())

	require.True(t, c.Refresh())
	c.Wait()
	require.NoError(t, (<-results).Err)
	seeded, err := db.GetAll()
	require.NoError(t, err)
	require.Len(t, seeded, 2)

	broken.Store(true)
	require.True(t, c.Refresh())
	c.Wait()

	res := <-results
	var fe *search.FetchError
	require.ErrorAs(t, res.Err, &fe)
	require.Equal(t, search.KindParse, fe.Kind)
	require.False(t, res.Persisted)

	after, err := db.GetAll()
	require.NoError(t, err)
	require.Equal(t, seeded, after)
	require.Equal(t, Idle, c.State())
}
