// Package registry holds the live in-memory mirror of the contact store.
// It bootstraps from a one-shot query, then applies the store's change feed
// to stay eventually consistent, serving filtered and paginated views to the
// admin surface. The store remains the single source of truth: mutating
// operations go to the store and local state changes only when the
// subscription echoes them back, which avoids double-apply races between an
// in-flight mutation and its echoed event.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"contacthub/internal/contact/models"
	"contacthub/internal/contact/store"
	"contacthub/internal/platform/metrics"
	dErrors "contacthub/pkg/domain-errors"
)

// Notification types delivered to listeners.
const (
	// NoteNewContact announces a contact never seen before in this session.
	NoteNewContact = "new_contact"
	// NoteRefresh tells consumers to re-derive their view; it follows every
	// applied change batch.
	NoteRefresh = "refresh"
)

// Notification is the registry's outbound event. Record is set for
// NoteNewContact only.
type Notification struct {
	Type   string                `json:"type"`
	Record *models.ContactRecord `json:"record,omitempty"`
	Stats  Stats                 `json:"stats"`
}

// Stats are the aggregate counters shown on the dashboard. They are
// recomputed from the full set on every mutation; at hundreds to low
// thousands of records that is simpler than incremental bookkeeping.
type Stats struct {
	Total    int                   `json:"total"`
	ByStatus map[models.Status]int `json:"byStatus"`
	Today    int                   `json:"today"`
}

const listenerBuffer = 64

// Registry mirrors the contact collection in memory, most-recent-first.
type Registry struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	mu      sync.RWMutex
	records []models.ContactRecord
	present map[string]struct{}

	events <-chan []models.ChangeEvent

	listenerMu sync.Mutex
	listeners  map[uint64]chan Notification
	nextID     uint64

	readMu    sync.Mutex
	readFlips map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New creates a Registry over the given store. Call Open, then Load, then
// Run.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:     st,
		logger:    logger,
		clock:     time.Now,
		present:   make(map[string]struct{}),
		listeners: make(map[uint64]chan Notification),
		readFlips: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open establishes the change-event subscription. It runs before Load so a
// record arriving between the bulk fetch and the feed cannot be missed; the
// overlap case (a record present in both) is absorbed by the idempotent
// add.
func (r *Registry) Open(ctx context.Context) error {
	events, err := r.store.Subscribe(ctx)
	if err != nil {
		r.logger.Error("subscribing to contact feed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to subscribe to contact feed")
	}
	r.events = events
	return nil
}

// Load performs the one-shot bootstrap query. On failure the set stays
// empty; no stale data from a previous run is retained.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.GetAll(ctx)
	if err != nil {
		r.logger.Error("loading contacts", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load contacts")
	}

	r.mu.Lock()
	r.records = records
	r.present = make(map[string]struct{}, len(records))
	for _, rec := range records {
		r.present[rec.ID] = struct{}{}
	}
	r.mu.Unlock()

	r.gaugeSize()
	r.logger.Info("contact registry loaded", "count", len(records))
	return nil
}

// Run consumes the change feed opened by Open until ctx is cancelled. A
// failed or closed feed is logged and leaves the registry with whatever
// state it last held; there is no reconnect.
func (r *Registry) Run(ctx context.Context) error {
	if r.events == nil {
		return dErrors.New(dErrors.CodeInternal, "registry not opened")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-r.events:
			if !ok {
				r.logger.Error("contact feed closed; registry state is frozen")
				return nil
			}
			r.applyBatch(batch)
		}
	}
}

// applyBatch applies one delivered batch and notifies listeners afterward,
// so a reader never observes a partially-applied batch.
func (r *Registry) applyBatch(batch []models.ChangeEvent) {
	var fresh []models.ContactRecord

	r.mu.Lock()
	for _, ev := range batch {
		switch ev.Type {
		case models.ChangeAdded:
			if _, exists := r.present[ev.ID]; exists {
				// Replay of bootstrap data; adds are idempotent on id.
				continue
			}
			r.insertOrdered(ev.Record)
			r.present[ev.ID] = struct{}{}
			fresh = append(fresh, ev.Record)
			r.countEvent("added")
		case models.ChangeModified:
			if i := r.indexOf(ev.ID); i >= 0 {
				r.records[i] = ev.Record
				r.countEvent("modified")
			}
		case models.ChangeRemoved:
			if i := r.indexOf(ev.ID); i >= 0 {
				r.records = append(r.records[:i], r.records[i+1:]...)
				delete(r.present, ev.ID)
				r.countEvent("removed")
			}
		}
	}
	r.mu.Unlock()

	r.gaugeSize()
	stats := r.Stats()
	for i := range fresh {
		r.notify(Notification{Type: NoteNewContact, Record: &fresh[i], Stats: stats})
	}
	r.notify(Notification{Type: NoteRefresh, Stats: stats})
}

// insertOrdered places rec by recency; a genuinely new record lands at the
// head. Must be called holding r.mu.
func (r *Registry) insertOrdered(rec models.ContactRecord) {
	i := sort.Search(len(r.records), func(i int) bool {
		return !r.records[i].CreatedAt.After(rec.CreatedAt)
	})
	r.records = append(r.records, models.ContactRecord{})
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = rec
}

func (r *Registry) indexOf(id string) int {
	if _, ok := r.present[id]; !ok {
		return -1
	}
	for i := range r.records {
		if r.records[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns one record from the mirror.
func (r *Registry) Get(id string) (models.ContactRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.records[i], true
	}
	return models.ContactRecord{}, false
}

// Stats recomputes the aggregate counters from the full set.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:    len(r.records),
		ByStatus: make(map[models.Status]int, len(models.Statuses)),
	}
	for _, s := range models.Statuses {
		stats.ByStatus[s] = 0
	}

	now := r.clock()
	y, m, d := now.Date()
	for _, rec := range r.records {
		stats.ByStatus[rec.Status.Display()]++
		ry, rm, rd := rec.CreatedAt.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			stats.Today++
		}
	}
	return stats
}

// UpdateStatus validates the new status and issues the store update. The
// mirror is not touched here; the echoed change event applies it.
func (r *Registry) UpdateStatus(ctx context.Context, id, rawStatus string) error {
	status, err := models.ParseStatus(rawStatus)
	if err != nil {
		return err
	}
	err = r.store.UpdateFields(ctx, id, map[string]any{
		"status":    string(status),
		"updatedAt": r.clock(),
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update contact status")
	}
	return nil
}

// Delete removes a contact permanently. The caller must have confirmed the
// action explicitly; removal from the mirror arrives via the echo.
func (r *Registry) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return dErrors.New(dErrors.CodeBadRequest, "deletion requires explicit confirmation")
	}
	if err := r.store.Delete(ctx, id); err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to delete contact")
	}
	return nil
}

// MarkRead flips the read flag, best effort. Errors are logged, never
// surfaced; concurrent flips for the same id are deduplicated so a burst of
// views issues a single store write.
func (r *Registry) MarkRead(ctx context.Context, id string) {
	rec, ok := r.Get(id)
	if !ok || rec.Read {
		return
	}

	r.readMu.Lock()
	if _, inflight := r.readFlips[id]; inflight {
		r.readMu.Unlock()
		return
	}
	r.readFlips[id] = struct{}{}
	r.readMu.Unlock()

	defer func() {
		r.readMu.Lock()
		delete(r.readFlips, id)
		r.readMu.Unlock()
	}()

	if err := r.store.UpdateFields(ctx, id, map[string]any{"read": true}); err != nil {
		r.logger.Error("marking contact read", "id", id, "error", err)
	}
}

// Listen registers a notification channel, removed when ctx ends. A
// listener that stops draining loses notifications, not the registry.
func (r *Registry) Listen(ctx context.Context) <-chan Notification {
	r.listenerMu.Lock()
	r.nextID++
	id := r.nextID
	ch := make(chan Notification, listenerBuffer)
	r.listeners[id] = ch
	r.listenerMu.Unlock()

	go func() {
		<-ctx.Done()
		r.listenerMu.Lock()
		defer r.listenerMu.Unlock()
		if l, ok := r.listeners[id]; ok {
			delete(r.listeners, id)
			close(l)
		}
	}()

	return ch
}

func (r *Registry) notify(n Notification) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	for _, ch := range r.listeners {
		select {
		case ch <- n:
		default:
		}
	}
}

func (r *Registry) countEvent(kind string) {
	if r.metrics != nil {
		r.metrics.EventsApplied.WithLabelValues(kind).Inc()
	}
}

func (r *Registry) gaugeSize() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	n := len(r.records)
	r.mu.RUnlock()
	r.metrics.RegistrySize.Set(float64(n))
}
