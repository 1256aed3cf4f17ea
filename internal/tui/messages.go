package tui

import (
	"github.com/njaaron/articlesearch/internal/cache"
	"github.com/njaaron/articlesearch/internal/netwatch"
	"github.com/njaaron/articlesearch/internal/syncer"
)

type snapshotMsg struct {
	articles []cache.Article
}

type syncDoneMsg struct {
	result syncer.Result
}

type connectivityMsg struct {
	event netwatch.Event
}

type clearNoticeMsg struct {
	id int
}

type errMsg struct {
	err error
}

// streamClosedMsg is sent when a subscription channel closes.
type streamClosedMsg struct{}
