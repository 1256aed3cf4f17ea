package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/njaaron/articlesearch/internal/browser"
	"github.com/njaaron/articlesearch/internal/cache"
	"github.com/njaaron/articlesearch/internal/netwatch"
	"github.com/njaaron/articlesearch/internal/search"
	"github.com/njaaron/articlesearch/internal/syncer"
)

const noticeTTL = 3 * time.Second

type focusPane int

const (
	focusList focusPane = iota
	focusPreview
)

// Store is the read side of the article cache.
type Store interface {
	ObserveAll(ctx context.Context) (<-chan []cache.Article, error)
}

// Syncer triggers refreshes and reports their results.
type Syncer interface {
	Refresh() bool
	Subscribe(ctx context.Context) <-chan syncer.Result
}

// Preference is the user-toggleable caching switch.
type Preference interface {
	CacheEnabled() bool
	Set(enabled bool) error
}

// RunOpts holds all parameters for launching the TUI.
type RunOpts struct {
	Store  Store
	Syncer Syncer
	Pref   Preference
	// Events is optional; nil disables connectivity notices.
	Events <-chan netwatch.Event
	// RefreshOnStart triggers a sync as soon as the program starts.
	RefreshOnStart bool
}

type App struct {
	opts   RunOpts
	ctx    context.Context
	cancel context.CancelFunc

	snapshots <-chan []cache.Article
	results   <-chan syncer.Result

	articles  []cache.Article
	transient bool
	cursor    int
	focus     focusPane
	showHelp  bool

	width  int
	height int

	spinner spinner.Model

	refreshing  bool
	online      bool
	lastSync    time.Time
	currentDate string
	notice      string
	noticeID    int
	err         error
}

// NewApp subscribes to the store and the sync controller. Call Close when
// the program exits.
func NewApp(opts RunOpts) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	snapshots, err := opts.Store.ObserveAll(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("observing cache: %w", err)
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	return &App{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		snapshots:   snapshots,
		results:     opts.Syncer.Subscribe(ctx),
		spinner:     sp,
		online:      true,
		currentDate: time.Now().Format("Jan 2"),
	}, nil
}

// Close drops the store and controller subscriptions.
func (a *App) Close() {
	a.cancel()
}

func waitSnapshot(ch <-chan []cache.Article) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg{articles: s}
	}
}

func waitResult(ch <-chan syncer.Result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return syncDoneMsg{result: r}
	}
}

func waitEvent(ch <-chan netwatch.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return connectivityMsg{event: ev}
	}
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitSnapshot(a.snapshots),
		waitResult(a.results),
		waitEvent(a.opts.Events),
	}
	if a.opts.RefreshOnStart {
		cmds = append(cmds, a.startRefresh())
	}
	return tea.Batch(cmds...)
}

// startRefresh asks the controller for a sync. The spinner runs until the
// controller reports the result.
func (a *App) startRefresh() tea.Cmd {
	if !a.opts.Syncer.Refresh() {
		return nil
	}
	a.refreshing = true
	return a.spinner.Tick
}

func (a *App) showNotice(msg string) tea.Cmd {
	a.noticeID++
	a.notice = msg
	id := a.noticeID
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{id: id} })
}

func openImageCmd(url string) tea.Cmd {
	return func() tea.Msg {
		if err := browser.Open(url); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		// Clear sticky error on any keypress
		a.err = nil
		return a.handleKey(msg)

	case snapshotMsg:
		a.articles = msg.articles
		a.transient = false
		a.clampCursor()
		return a, waitSnapshot(a.snapshots)

	case syncDoneMsg:
		a.refreshing = false
		res := msg.result
		a.lastSync = res.At
		var cmd tea.Cmd
		switch {
		case res.Err != nil:
			a.err = res.Err
			cmd = a.showNotice(describeError(res.Err))
		case !res.Persisted:
			// Caching is off: show what was fetched without touching the store.
			a.articles = res.Articles
			a.transient = true
			a.clampCursor()
		}
		return a, tea.Batch(cmd, waitResult(a.results))

	case connectivityMsg:
		a.online = msg.event.Connected
		var cmds []tea.Cmd
		if msg.event.Connected {
			cmds = append(cmds, a.startRefresh(), a.showNotice(netwatch.MsgOnline))
		} else {
			cmds = append(cmds, a.showNotice(netwatch.MsgOffline))
		}
		cmds = append(cmds, waitEvent(a.opts.Events))
		return a, tea.Batch(cmds...)

	case clearNoticeMsg:
		if msg.id == a.noticeID {
			a.notice = ""
		}
		return a, nil

	case errMsg:
		a.err = msg.err
		return a, nil

	case spinner.TickMsg:
		if a.refreshing {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	return a, nil
}

func (a *App) clampCursor() {
	if a.cursor >= len(a.articles) {
		a.cursor = max(0, len(a.articles)-1)
	}
}

func describeError(err error) string {
	var fe *search.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case search.KindHTTPStatus:
			return fmt.Sprintf("Failed to fetch articles: %d", fe.StatusCode)
		case search.KindParse:
			return "Failed to read the search response"
		default:
			return "Failed to fetch articles: network unavailable"
		}
	}
	return "Failed to update the article cache"
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit
	}

	if a.showHelp {
		if msg.String() == "?" || msg.String() == "esc" {
			a.showHelp = false
		}
		return a, nil
	}

	switch msg.String() {
	case "j", "down":
		if a.cursor < len(a.articles)-1 {
			a.cursor++
		}
		return a, nil
	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil
	case "g", "home":
		a.cursor = 0
		return a, nil
	case "G", "end":
		a.cursor = max(0, len(a.articles)-1)
		return a, nil
	case "tab":
		if a.focus == focusList {
			a.focus = focusPreview
		} else {
			a.focus = focusList
		}
		return a, nil
	case "o", "enter":
		if a.cursor < len(a.articles) {
			return a, openImageCmd(a.articles[a.cursor].ImageURL)
		}
		return a, nil
	case "r":
		return a, a.startRefresh()
	case "c":
		enabled := !a.opts.Pref.CacheEnabled()
		if err := a.opts.Pref.Set(enabled); err != nil {
			a.err = err
			return a, nil
		}
		if enabled {
			return a, a.showNotice("Caching enabled")
		}
		return a, a.showNotice("Caching disabled")
	case "?":
		a.showHelp = true
		return a, nil
	}

	return a, nil
}

func (a *App) View() string {
	if a.width == 0 {
		return lipgloss.NewStyle().Foreground(colorAccent).Render("  artsearch")
	}

	if a.showHelp {
		return a.renderHelp()
	}

	// Layout calculations
	headerHeight := 1
	statusHeight := 1
	contentHeight := a.height - headerHeight - statusHeight - 3 // borders

	listWidth := int(float64(a.width) * 0.4)
	previewWidth := a.width - listWidth - 1 // gap

	if contentHeight < 3 {
		contentHeight = 3
	}

	// Header
	headerLeft := headerStyle.Render("artsearch")
	headerRight := headerDateStyle.Render(a.currentDate)
	headerGap := a.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	if headerGap < 0 {
		headerGap = 0
	}
	header := headerLeft + fmt.Sprintf("%*s", headerGap, "") + headerRight

	// List pane
	innerListW := listWidth - 4 // border + padding
	listContent := renderList(a.articles, a.cursor, contentHeight, innerListW)

	listStyle := listPaneStyle
	if a.focus == focusList {
		listStyle = listPaneActiveStyle
	}
	listPane := listStyle.Width(listWidth - 2).Height(contentHeight).Render(listContent)

	// Preview pane
	var selected *cache.Article
	if a.cursor < len(a.articles) {
		selected = &a.articles[a.cursor]
	}
	previewContent := renderPreview(selected, previewWidth-4, contentHeight, 0)

	previewStyle := previewPaneStyle
	if a.focus == focusPreview {
		previewStyle = previewPaneActiveStyle
	}
	previewPane := previewStyle.Width(previewWidth - 2).Height(contentHeight).Render(previewContent)

	content := lipgloss.JoinHorizontal(lipgloss.Top, listPane, previewPane)

	info := statusInfo{
		count:        len(a.articles),
		cacheEnabled: a.opts.Pref.CacheEnabled(),
		transient:    a.transient,
		online:       a.online,
		refreshing:   a.refreshing,
	}
	if !a.lastSync.IsZero() {
		info.lastSync = relativeTime(a.lastSync)
	}
	status := renderStatusBar(info, a.width)

	if a.refreshing {
		status = a.spinner.View() + " " + status
	}

	switch {
	case a.notice != "":
		status = noticeStyle.Render(" "+a.notice) + "\n" + status
	case a.err != nil:
		status = errorStyle.Render(" "+a.err.Error()) + "\n" + status
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, content, status)
}

func (a *App) renderHelp() string {
	title := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render("artsearch")
	dim := helpDimStyle

	help := title + dim.Render(" · Keyboard Shortcuts") + "\n\n" +
		dim.Render("Navigation") + "\n" +
		"  j/k, ↑/↓     Move through articles\n" +
		"  g/G           First / last article\n" +
		"  tab           Switch focus between list and preview\n\n" +
		dim.Render("Actions") + "\n" +
		"  r             Refresh from the search API\n" +
		"  c             Toggle caching\n" +
		"  o, enter      Open the article image\n\n" +
		dim.Render("General") + "\n" +
		"  ?, esc        Close this help\n" +
		"  q, ctrl+c     Quit"

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, helpCardStyle.Render(help))
}

// Run starts the TUI application.
func Run(opts RunOpts) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
