// Package netwatch turns a connectivity probe into connected/disconnected
// transitions and wires them to a refresh trigger.
package netwatch

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Event is a connectivity transition.
type Event struct {
	Connected bool
	At        time.Time
}

// Probe reports whether the network is currently reachable.
type Probe func(ctx context.Context) bool

// DialProbe treats a successful TCP dial of addr as connected.
func DialProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) bool {
		if addr == "" {
			return true
		}
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Monitor polls a Probe and emits an Event whenever the result changes.
type Monitor struct {
	probe    Probe
	interval time.Duration
}

func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{probe: probe, interval: interval}
}

// Run probes until ctx is done. The first probe result is treated as a
// transition from an unknown state only when it reports disconnected, so a
// healthy start does not trigger a refresh of its own.
func (m *Monitor) Run(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		connected := true
		first := true
		for {
			now := m.probe(ctx)
			if now != connected || (first && !now) {
				connected = now
				slog.Info("connectivity changed", "connected", now)
				select {
				case events <- Event{Connected: now, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
			first = false

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events
}

// Refresher is the sync trigger.
type Refresher interface {
	Refresh() bool
}

// Notice is a short user-facing message about connectivity.
type Notice func(msg string)

const (
	MsgOnline  = "You are back online"
	MsgOffline = "You are offline"
)

// Bind consumes events until the channel closes or ctx is done. A transition
// to connected triggers a refresh; a disconnect only produces a notice.
func Bind(ctx context.Context, events <-chan Event, r Refresher, notify Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			// select picks randomly among ready cases; do not act on an
			// event once ctx is done.
			if !ok || ctx.Err() != nil {
				return
			}
			Handle(ev, r, notify)
		}
	}
}

// Handle applies a single event.
func Handle(ev Event, r Refresher, notify Notice) {
	if ev.Connected {
		r.Refresh()
		if notify != nil {
			notify(MsgOnline)
		}
		return
	}
	if notify != nil {
		notify(MsgOffline)
	}
}
