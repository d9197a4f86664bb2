package syncer

import (
	"context"
	"net/http"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Monitor is the connectivity signal the Coordinator subscribes to. The
// coordinator never polls it for transitions; it reacts to the subscription
// channel.
type Monitor interface {
	// Online reports the current connectivity flag.
	Online() bool
	// Subscribe returns a channel receiving the new flag on every
	// transition, and a cancel function.
	Subscribe() (<-chan bool, func())
}

// signalMonitor is the shared transition bookkeeping for Monitor
// implementations.
type signalMonitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan bool
	next   int
}

func newSignalMonitor(online bool) *signalMonitor {
	return &signalMonitor{online: online, subs: make(map[int]chan bool)}
}

func (m *signalMonitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *signalMonitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	ch := make(chan bool, 4)
	m.subs[id] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// set updates the flag and broadcasts on a transition. Delivery is
// non-blocking; a full subscriber buffer drops the edge for that subscriber.
func (m *signalMonitor) set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return false
	}
	m.online = online
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
		}
	}
	return true
}

// ManualMonitor is a Monitor fed by an external connectivity signal, such as
// a platform network-change notification or a test.
type ManualMonitor struct {
	*signalMonitor
}

func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{signalMonitor: newSignalMonitor(online)}
}

// SetOnline feeds a connectivity transition into the monitor.
func (m *ManualMonitor) SetOnline(online bool) {
	m.set(online)
}

// ProbeMonitor derives connectivity by probing a URL. While online it checks
// at a fixed interval; once offline it retries with exponential backoff so a
// flapping link is not hammered.
type ProbeMonitor struct {
	*signalMonitor

	probeURL string
	client   *http.Client
	interval time.Duration
	log      zerolog.Logger
}

// NewProbeMonitor probes probeURL. A nil client gets a short-timeout default.
func NewProbeMonitor(probeURL string, client *http.Client, interval time.Duration, log zerolog.Logger) *ProbeMonitor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ProbeMonitor{
		signalMonitor: newSignalMonitor(true),
		probeURL:      probeURL,
		client:        client,
		interval:      interval,
		log:           log,
	}
}

// Run probes until ctx is done. It blocks; run it in its own goroutine.
func (m *ProbeMonitor) Run(ctx context.Context) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 2 * time.Second
	exp.MaxInterval = m.interval
	exp.MaxElapsedTime = 0
	exp.Reset()

	for {
		online := m.probe(ctx)
		if m.set(online) {
			m.log.Info().Bool("online", online).Msg("connectivity transition")
		}

		var wait time.Duration
		if online {
			exp.Reset()
			wait = m.interval
		} else {
			wait = exp.NextBackOff()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
