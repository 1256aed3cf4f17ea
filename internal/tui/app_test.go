package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/njaaron/articlesearch/internal/cache"
	"github.com/njaaron/articlesearch/internal/netwatch"
	"github.com/njaaron/articlesearch/internal/prefs"
	"github.com/njaaron/articlesearch/internal/search"
	"github.com/njaaron/articlesearch/internal/syncer"
)

type fakeStore struct {
	ch chan []cache.Article
}

func (f *fakeStore) ObserveAll(ctx context.Context) (<-chan []cache.Article, error) {
	return f.ch, nil
}

type fakeSyncer struct {
	calls  int
	accept bool
	ch     chan syncer.Result
}

func (f *fakeSyncer) Refresh() bool {
	f.calls++
	return f.accept
}

func (f *fakeSyncer) Subscribe(ctx context.Context) <-chan syncer.Result {
	return f.ch
}

func newTestApp(t *testing.T, accept bool) (*App, *fakeSyncer) {
	t.Helper()
	s := &fakeSyncer{accept: accept, ch: make(chan syncer.Result)}
	app, err := NewApp(RunOpts{
		Store:  &fakeStore{ch: make(chan []cache.Article)},
		Syncer: s,
		Pref:   prefs.Static(true),
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(app.Close)
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return app, s
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSnapshotReplacesList(t *testing.T) {
	app, _ := newTestApp(t, true)
	app.cursor = 5

	app.Update(snapshotMsg{articles: []cache.Article{{Headline: "A"}, {Headline: "B"}}})
	if len(app.articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(app.articles))
	}
	if app.cursor != 1 {
		t.Errorf("expected cursor clamped to 1, got %d", app.cursor)
	}
	if !strings.Contains(app.View(), "A") {
		t.Error("expected headline in view")
	}
}

func TestRefreshKeyRunsSpinnerUntilResult(t *testing.T) {
	app, s := newTestApp(t, true)

	app.Update(key("r"))
	if s.calls != 1 {
		t.Fatalf("expected 1 refresh call, got %d", s.calls)
	}
	if !app.refreshing {
		t.Fatal("expected refreshing indicator while sync runs")
	}

	app.Update(syncDoneMsg{result: syncer.Result{Persisted: true, At: time.Now()}})
	if app.refreshing {
		t.Error("expected indicator cleared on completion")
	}
}

func TestRefreshDroppedKeepsIndicatorOff(t *testing.T) {
	app, s := newTestApp(t, false)
	app.Update(key("r"))
	if s.calls != 1 {
		t.Fatalf("expected refresh attempt, got %d", s.calls)
	}
	if app.refreshing {
		t.Error("dropped refresh must not start the indicator")
	}
}

func TestUnpersistedResultShownTransiently(t *testing.T) {
	app, _ := newTestApp(t, true)
	app.Update(snapshotMsg{articles: []cache.Article{{Headline: "cached"}}})

	app.Update(syncDoneMsg{result: syncer.Result{Articles: []cache.Article{{Headline: "fresh"}, {Headline: "two"}}}})
	if !app.transient || len(app.articles) != 2 {
		t.Fatalf("expected transient fetched list, got %+v", app.articles)
	}
	if !strings.Contains(app.View(), "not cached") {
		t.Error("expected status to mark list as not cached")
	}

	// The next store snapshot takes over again.
	app.Update(snapshotMsg{articles: []cache.Article{{Headline: "cached"}}})
	if app.transient {
		t.Error("expected store snapshot to clear transient flag")
	}
}

func TestFailedSyncKeepsArticlesAndShowsNotice(t *testing.T) {
	app, _ := newTestApp(t, true)
	app.Update(snapshotMsg{articles: []cache.Article{{Headline: "kept"}}})

	err := &search.FetchError{Kind: search.KindHTTPStatus, StatusCode: 401, Message: "Unauthorized"}
	app.Update(syncDoneMsg{result: syncer.Result{Err: err}})

	if len(app.articles) != 1 || app.articles[0].Headline != "kept" {
		t.Errorf("expected previous articles kept, got %+v", app.articles)
	}
	if app.notice != "Failed to fetch articles: 401" {
		t.Errorf("unexpected notice %q", app.notice)
	}
}

func TestConnectivityEvents(t *testing.T) {
	app, s := newTestApp(t, true)

	app.Update(connectivityMsg{event: netwatch.Event{Connected: false}})
	if app.online || app.notice != netwatch.MsgOffline {
		t.Errorf("expected offline notice, got online=%v notice=%q", app.online, app.notice)
	}
	if s.calls != 0 {
		t.Error("disconnect must not refresh")
	}

	app.Update(connectivityMsg{event: netwatch.Event{Connected: true}})
	if !app.online || app.notice != netwatch.MsgOnline {
		t.Errorf("expected online notice, got online=%v notice=%q", app.online, app.notice)
	}
	if s.calls != 1 {
		t.Errorf("expected reconnect to refresh once, got %d", s.calls)
	}
}

func TestNoticeExpires(t *testing.T) {
	app, _ := newTestApp(t, true)
	app.showNotice("first")
	stale := app.noticeID
	app.showNotice("second")

	app.Update(clearNoticeMsg{id: stale})
	if app.notice != "second" {
		t.Errorf("stale clear must not remove newer notice, got %q", app.notice)
	}
	app.Update(clearNoticeMsg{id: app.noticeID})
	if app.notice != "" {
		t.Errorf("expected notice cleared, got %q", app.notice)
	}
}

func TestToggleCaching(t *testing.T) {
	app, _ := newTestApp(t, true)

	app.Update(key("c"))
	if app.opts.Pref.CacheEnabled() {
		t.Error("expected caching disabled after toggle")
	}
	app.Update(key("c"))
	if !app.opts.Pref.CacheEnabled() {
		t.Error("expected caching enabled after second toggle")
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&search.FetchError{Kind: search.KindTransport}, "Failed to fetch articles: network unavailable"},
		{&search.FetchError{Kind: search.KindHTTPStatus, StatusCode: 500}, "Failed to fetch articles: 500"},
		{&search.FetchError{Kind: search.KindParse}, "Failed to read the search response"},
		{errors.New("disk I/O error"), "Failed to update the article cache"},
	}
	for _, tt := range tests {
		if got := describeError(tt.err); got != tt.want {
			t.Errorf("describeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
