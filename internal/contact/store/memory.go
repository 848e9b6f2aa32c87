package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"contacthub/internal/contact/models"
)

// subscriberBuffer bounds how far a slow subscriber may lag before its feed
// is dropped. A dropped feed closes the channel; consumers treat that as a
// subscription failure.
const subscriberBuffer = 256

// Memory is the in-memory Store used as the default backend and in tests.
// It favors clarity over performance.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]models.ContactRecord
	seq   map[string]uint64
	next  uint64
	subs  map[uint64]chan []models.ChangeEvent
	subID uint64
	clock func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		docs:  make(map[string]models.ContactRecord),
		seq:   make(map[string]uint64),
		subs:  make(map[uint64]chan []models.ChangeEvent),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Store = (*Memory)(nil)

func (m *Memory) Insert(_ context.Context, rec models.ContactRecord) (models.ContactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = uuid.NewString()
	rec.CreatedAt = m.clock()
	if rec.Status == "" {
		rec.Status = models.StatusNew
	}
	m.next++
	m.docs[rec.ID] = rec
	m.seq[rec.ID] = m.next

	m.broadcast([]models.ChangeEvent{{Type: models.ChangeAdded, ID: rec.ID, Record: rec}})
	return rec, nil
}

func (m *Memory) GetAll(_ context.Context) ([]models.ContactRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]models.ContactRecord, 0, len(m.docs))
	for _, rec := range m.docs {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return m.seq[a.ID] > m.seq[b.ID]
	})
	return records, nil
}

func (m *Memory) GetByID(_ context.Context, id string) (models.ContactRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.docs[id]; ok {
		return rec, nil
	}
	return models.ContactRecord{}, ErrNotFound
}

func (m *Memory) UpdateFields(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}

	doc := rec.Document()
	for k, v := range fields {
		doc[k] = v
	}
	updated, err := models.ParseDocument(id, doc)
	if err != nil {
		return err
	}
	m.docs[id] = updated

	m.broadcast([]models.ChangeEvent{{Type: models.ChangeModified, ID: id, Record: updated}})
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.seq, id)

	m.broadcast([]models.ChangeEvent{{Type: models.ChangeRemoved, ID: id}})
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan []models.ChangeEvent, error) {
	m.mu.Lock()
	m.subID++
	id := m.subID
	ch := make(chan []models.ChangeEvent, subscriberBuffer)
	m.subs[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}()

	return ch, nil
}

// broadcast fans a batch out to every subscriber. Must be called while
// holding m.mu. A subscriber that cannot keep up loses its feed rather than
// stalling mutations.
func (m *Memory) broadcast(events []models.ChangeEvent) {
	for id, ch := range m.subs {
		select {
		case ch <- events:
		default:
			delete(m.subs, id)
			close(ch)
		}
	}
}
