package netwatch

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct{ n atomic.Int32 }

func (c *countingRefresher) Refresh() bool {
	c.n.Add(1)
	return true
}

func TestHandle(t *testing.T) {
	r := &countingRefresher{}
	var notices []string
	notify := func(msg string) { notices = append(notices, msg) }

	Handle(Event{Connected: false}, r, notify)
	if r.n.Load() != 0 {
		t.Error("disconnect must not trigger a refresh")
	}
	Handle(Event{Connected: true}, r, notify)
	if r.n.Load() != 1 {
		t.Errorf("expected 1 refresh, got %d", r.n.Load())
	}
	if len(notices) != 2 || notices[0] != MsgOffline || notices[1] != MsgOnline {
		t.Errorf("unexpected notices: %v", notices)
	}

	// nil notifier is allowed
	Handle(Event{Connected: true}, r, nil)
}

func TestMonitorEmitsTransitionsOnly(t *testing.T) {
	// up, up, down, down, up, up...
	script := []bool{true, true, false, false, true}
	var i atomic.Int32
	probe := func(ctx context.Context) bool {
		n := int(i.Add(1)) - 1
		if n >= len(script) {
			return true
		}
		return script[n]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := NewMonitor(probe, time.Millisecond).Run(ctx)

	var got []bool
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Connected)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != false || got[1] != true {
		t.Errorf("expected [false true], got %v", got)
	}
}

func TestMonitorReportsInitialOffline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := NewMonitor(func(context.Context) bool { return false }, time.Hour).Run(ctx)

	select {
	case ev := <-events:
		if ev.Connected {
			t.Error("expected offline event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected an initial offline event")
	}
}

func TestMonitorClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := NewMonitor(func(context.Context) bool { return true }, time.Millisecond).Run(ctx)
	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected no events for a steady connection")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestBindRefreshesOnReconnect(t *testing.T) {
	events := make(chan Event)
	r := &countingRefresher{}
	var mu sync.Mutex
	var notices []string

	done := make(chan struct{})
	go func() {
		Bind(context.Background(), events, r, func(m string) {
			mu.Lock()
			notices = append(notices, m)
			mu.Unlock()
		})
		close(done)
	}()

	events <- Event{Connected: false}
	events <- Event{Connected: true}
	events <- Event{Connected: false}
	events <- Event{Connected: true}
	close(events)
	<-done

	if r.n.Load() != 2 {
		t.Errorf("expected 2 refreshes, got %d", r.n.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notices) != 4 {
		t.Errorf("expected 4 notices, got %v", notices)
	}
}

func TestBindIgnoresEventsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &countingRefresher{}
	for i := 0; i < 50; i++ {
		events := make(chan Event, 1)
		events <- Event{Connected: true}
		Bind(ctx, events, r, nil)
	}
	if r.n.Load() != 0 {
		t.Errorf("expected no refresh after cancel, got %d", r.n.Load())
	}
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	if !DialProbe(addr, time.Second)(context.Background()) {
		t.Error("expected listener to be reachable")
	}
	ln.Close()
	if DialProbe(addr, time.Second)(context.Background()) {
		t.Error("expected closed listener to be unreachable")
	}
	if !DialProbe("", time.Second)(context.Background()) {
		t.Error("empty address is treated as connected")
	}
}
