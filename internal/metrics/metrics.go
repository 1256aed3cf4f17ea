// Package metrics exposes sync outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/njaaron/articlesearch/internal/search"
	"github.com/njaaron/articlesearch/internal/syncer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry *prometheus.Registry
	syncs    *prometheus.CounterVec
	duration prometheus.Histogram
	articles prometheus.Gauge
	online   prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "artsearch",
			Name:      "syncs_total",
			Help:      "Finished syncs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "artsearch",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a sync, fetch included.",
			Buckets:   prometheus.DefBuckets,
		}),
		articles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "artsearch",
			Name:      "cached_articles",
			Help:      "Articles in the last persisted snapshot.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "artsearch",
			Name:      "online",
			Help:      "1 when the last connectivity probe succeeded.",
		}),
	}
	r.registry.MustRegister(r.syncs, r.duration, r.articles, r.online)
	r.online.Set(1)
	return r
}

// Outcome labels a sync result.
func Outcome(res syncer.Result) string {
	if res.Err == nil {
		if res.Persisted {
			return "persisted"
		}
		return "not_persisted"
	}
	var fe *search.FetchError
	if errors.As(res.Err, &fe) {
		switch fe.Kind {
		case search.KindTransport:
			return "transport_error"
		case search.KindHTTPStatus:
			return "http_status_error"
		case search.KindParse:
			return "parse_error"
		}
	}
	return "store_error"
}

func (r *Recorder) Observe(res syncer.Result) {
	r.syncs.WithLabelValues(Outcome(res)).Inc()
	r.duration.Observe(res.Duration.Seconds())
	if res.Persisted {
		r.articles.Set(float64(len(res.Articles)))
	}
}

func (r *Recorder) SetOnline(online bool) {
	if online {
		r.online.Set(1)
	} else {
		r.online.Set(0)
	}
}

// Consume records every result from ch until it closes or ctx is done.
func (r *Recorder) Consume(ctx context.Context, ch <-chan syncer.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-ch:
			if !ok {
				return
			}
			r.Observe(res)
		}
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry lets callers add their own collectors next to the sync metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
