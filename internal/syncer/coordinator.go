// Package syncer bridges user-initiated story creation with network
// reality: content authored while offline is durably queued and replayed
// against the service once connectivity returns.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storyhive/storyhive/internal/api"
	"github.com/storyhive/storyhive/internal/storage"
)

// SyncTag identifies the deferred background replay request.
const SyncTag = "storyhive-data-sync"

// ErrCreateFailed is returned when the service rejects a story submission.
// The wrapped error carries the server-supplied cause.
var ErrCreateFailed = errors.New("create failed")

// BackgroundRegistrar requests a replay run outside the foreground path.
// Absence degrades gracefully: replay then happens on the next online
// transition while the app is open.
type BackgroundRegistrar interface {
	RegisterReplay(tag string) error
}

// CreateResult is the outcome of CreateStory.
type CreateResult struct {
	// Deferred is true when the story was queued locally instead of sent.
	Deferred bool
	// Pending is the queued record; nil when the story was sent directly.
	Pending *storage.FavoriteRecord
	// Message is the server acknowledgement for direct sends.
	Message string
}

// SyncStatus is a read-only snapshot for status indicators.
type SyncStatus struct {
	Online             bool `json:"online"`
	PendingSyncCount   int  `json:"pendingSyncCount"`
	TotalFavorites     int  `json:"totalFavorites"`
	TotalRecords       int  `json:"totalRecords"`
	StalePendingTokens int  `json:"stalePendingTokens"`
}

// Coordinator decides per creation whether to call the service directly or
// persist locally and defer, and replays the pending queue on every
// connectivity-restored edge.
type Coordinator struct {
	store     *storage.Store
	api       *api.Client
	monitor   Monitor
	notifier  Notifier
	alerter   Alerter
	registrar BackgroundRegistrar
	log       zerolog.Logger

	// replayMu serializes replay passes; overlapping online edges must not
	// double-send a pending record.
	replayMu sync.Mutex

	stopOnce sync.Once
	stop     func()
}

// Option configures a Coordinator during construction.
type Option func(*Coordinator)

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithAlerter(a Alerter) Option {
	return func(c *Coordinator) { c.alerter = a }
}

func WithBackgroundRegistrar(r BackgroundRegistrar) Option {
	return func(c *Coordinator) { c.registrar = r }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// New wires a Coordinator. Store, client, and monitor are required; the
// notifier and alerter default to no-ops.
func New(store *storage.Store, client *api.Client, monitor Monitor, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		api:      client,
		monitor:  monitor,
		notifier: NopNotifier{},
		alerter:  NopAlerter{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the connectivity signal and replays the pending queue
// on every offline-to-online transition until ctx ends or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	ch, cancel := c.monitor.Subscribe()
	done := make(chan struct{})
	c.stop = func() {
		cancel()
		<-done
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-ch:
				if !ok {
					return
				}
				if online {
					c.alerter.Alert("Back online", "success")
					if err := c.Replay(ctx); err != nil {
						c.log.Error().Err(err).Msg("replay pass failed")
					}
				} else {
					c.alerter.Alert("Offline. New stories will be saved locally.", "warning")
				}
			}
		}
	}()
}

// Stop detaches from the connectivity signal. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
	})
}

// CreateStory submits a story. Online, the request goes straight to the
// service and a rejection is a hard ErrCreateFailed. Offline, the payload
// and credential are persisted as a pending record and the call succeeds
// from the caller's perspective.
func (c *Coordinator) CreateStory(ctx context.Context, draft api.StoryDraft, token string) (*CreateResult, error) {
	if c.monitor.Online() {
		message, err := c.api.AddStory(ctx, token, draft)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
		}
		return &CreateResult{Message: message}, nil
	}
	return c.createOffline(draft, token)
}

func (c *Coordinator) createOffline(draft api.StoryDraft, token string) (*CreateResult, error) {
	now := time.Now().UTC()
	record := &storage.FavoriteRecord{
		Story: storage.Story{
			ID:          "off_" + uuid.NewString(),
			Description: draft.Description,
			Lat:         draft.Lat,
			Lon:         draft.Lon,
			CreatedAt:   now.Format(time.RFC3339),
		},
		IsFav:       false,
		IsSynced:    false,
		PendingSync: true,
		Token:       token,
		LocalData: &storage.LocalData{
			Description: draft.Description,
			Photo:       draft.Photo,
			PhotoName:   draft.PhotoName,
			Lat:         draft.Lat,
			Lon:         draft.Lon,
		},
	}

	if err := c.store.Put(record); err != nil {
		// Neither sent nor durably queued: the one genuine data-loss risk,
		// surfaced as a hard failure.
		return nil, fmt.Errorf("queueing story offline: %w", err)
	}
	offlineCreatesTotal.Inc()

	if c.registrar != nil {
		if err := c.registrar.RegisterReplay(SyncTag); err != nil {
			c.log.Warn().Err(err).Msg("background replay registration failed")
		}
	}

	c.log.Info().Str("id", record.ID).Msg("story saved offline")
	c.notifier.Publish(Event{Name: EventStorySavedOffline, Record: record})
	c.alerter.Alert("Story saved. It will be uploaded when you are back online.", "info")

	return &CreateResult{Deferred: true, Pending: record}, nil
}

// Replay sends every pending record once, in insertion order. A failed
// record stays pending and does not abort the rest of the pass; it is
// retried on the next connectivity-restored edge, never sooner.
func (c *Coordinator) Replay(ctx context.Context) error {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()

	pending, err := c.store.ListPendingSync()
	if err != nil {
		return fmt.Errorf("listing pending records: %w", err)
	}
	if len(pending) == 0 {
		pendingRecords.Set(0)
		return nil
	}

	c.log.Info().Int("count", len(pending)).Msg("replaying pending stories")

	synced := 0
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.replayOne(ctx, record) {
			synced++
		}
	}

	pendingRecords.Set(float64(len(pending) - synced))
	c.notifier.Publish(Event{
		Name:      EventSyncCompleted,
		Processed: len(pending),
		Synced:    synced,
	})
	return nil
}

// replayOne re-issues one deferred creation and marks the record synced in
// place on success. Returns true when the record was synced.
func (c *Coordinator) replayOne(ctx context.Context, record *storage.FavoriteRecord) bool {
	if record.LocalData == nil {
		c.log.Warn().Str("id", record.ID).Msg("pending record has no payload, skipping")
		return false
	}
	if tokenExpired(record.Token, time.Now()) {
		c.log.Warn().Str("id", record.ID).Msg("pending record credential expired, replay will be rejected")
	}

	draft := api.StoryDraft{
		Description: record.LocalData.Description,
		Photo:       record.LocalData.Photo,
		PhotoName:   record.LocalData.PhotoName,
		Lat:         record.LocalData.Lat,
		Lon:         record.LocalData.Lon,
	}

	if _, err := c.api.AddStory(ctx, record.Token, draft); err != nil {
		replaysTotal.WithLabelValues("failure").Inc()
		c.log.Warn().Err(err).Str("id", record.ID).Bool("recoverable", api.IsRecoverable(err)).
			Msg("replay failed, record stays pending")
		return false
	}

	now := time.Now().UTC()
	updated, err := c.store.Update(record.ID, func(r *storage.FavoriteRecord) error {
		r.IsSynced = true
		r.PendingSync = false
		r.SyncedAt = &now
		return nil
	})
	if err != nil {
		replaysTotal.WithLabelValues("failure").Inc()
		c.log.Error().Err(err).Str("id", record.ID).Msg("marking record synced failed")
		return false
	}

	replaysTotal.WithLabelValues("success").Inc()
	c.log.Info().Str("id", record.ID).Msg("story synced")
	c.notifier.Publish(Event{Name: EventStorySynced, Record: updated})
	return true
}

// GetSyncStatus returns connectivity, queue depth, and favorite counts.
func (c *Coordinator) GetSyncStatus() (*SyncStatus, error) {
	favorites, pendingCount, total, err := c.store.Counts()
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	stale := 0
	if pendingCount > 0 {
		pending, err := c.store.ListPendingSync()
		if err != nil {
			return nil, fmt.Errorf("listing pending records: %w", err)
		}
		now := time.Now()
		for _, record := range pending {
			if tokenExpired(record.Token, now) {
				stale++
			}
		}
	}

	return &SyncStatus{
		Online:             c.monitor.Online(),
		PendingSyncCount:   pendingCount,
		TotalFavorites:     favorites,
		TotalRecords:       total,
		StalePendingTokens: stale,
	}, nil
}
