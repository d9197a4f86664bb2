package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManualMonitor_Transitions(t *testing.T) {
	monitor := NewManualMonitor(false)
	if monitor.Online() {
		t.Error("expected initial offline state")
	}

	ch, cancel := monitor.Subscribe()
	defer cancel()

	monitor.SetOnline(true)
	select {
	case online := <-ch:
		if !online {
			t.Error("expected an online edge")
		}
	case <-time.After(time.Second):
		t.Fatal("no transition delivered")
	}
	if !monitor.Online() {
		t.Error("flag not updated")
	}
}

func TestManualMonitor_NoEdgeWithoutTransition(t *testing.T) {
	monitor := NewManualMonitor(true)
	ch, cancel := monitor.Subscribe()
	defer cancel()

	// Repeating the current state is not a transition.
	monitor.SetOnline(true)
	select {
	case <-ch:
		t.Error("unexpected edge for a repeated state")
	default:
	}
}

func TestManualMonitor_CancelClosesChannel(t *testing.T) {
	monitor := NewManualMonitor(false)
	ch, cancel := monitor.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
	// Cancelling twice must not panic.
	cancel()

	// Transitions after cancel go to nobody.
	monitor.SetOnline(true)
}

func TestManualMonitor_MultipleSubscribers(t *testing.T) {
	monitor := NewManualMonitor(false)
	a, cancelA := monitor.Subscribe()
	defer cancelA()
	b, cancelB := monitor.Subscribe()
	defer cancelB()

	monitor.SetOnline(true)
	for _, ch := range []<-chan bool{a, b} {
		select {
		case online := <-ch:
			if !online {
				t.Error("expected online edge")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the edge")
		}
	}
}

func TestProbeMonitor_DetectsOutageAndRecovery(t *testing.T) {
	var reachable atomic.Bool
	reachable.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !reachable.Load() {
			// Simulate an outage without tearing the listener down.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor := NewProbeMonitor(server.URL, server.Client(), 10*time.Millisecond, zerolog.Nop())
	ch, cancel := monitor.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go monitor.Run(ctx)

	reachable.Store(false)
	waitForEdge(t, ch, false)

	reachable.Store(true)
	waitForEdge(t, ch, true)
}

func waitForEdge(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case online := <-ch:
			if online == want {
				return
			}
		case <-deadline:
			t.Fatalf("no transition to online=%v observed", want)
		}
	}
}
