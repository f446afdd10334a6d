package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rezonia/stock-intake/internal/model"
)

// Store is durable, ordered storage for batches and their events
type Store interface {
	// Append records ev and assigns its Seq. The batch must exist. A store
	// shared between processes may replay the batch again inside its own
	// transaction and reject ev with the Replay error.
	Append(ctx context.Context, ev *model.ShelvingEvent) error

	// Events returns every event of a batch in append order
	Events(ctx context.Context, batchID uuid.UUID) ([]model.ShelvingEvent, error)

	// CreateBatch records a new batch
	CreateBatch(ctx context.Context, b *model.Batch) error

	// Batch returns a batch or model.ErrBatchNotFound
	Batch(ctx context.Context, id uuid.UUID) (*model.Batch, error)

	// BatchesByProduct returns every batch of a product
	BatchesByProduct(ctx context.Context, productID int64) ([]model.Batch, error)
}

// MemoryStore keeps the ledger in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]model.Batch
	events  map[uuid.UUID][]model.ShelvingEvent
	seq     int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[uuid.UUID]model.Batch),
		events:  make(map[uuid.UUID][]model.ShelvingEvent),
	}
}

func (s *MemoryStore) Append(ctx context.Context, ev *model.ShelvingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[ev.BatchID]; !ok {
		return model.ErrBatchNotFound
	}
	s.seq++
	ev.Seq = s.seq
	s.events[ev.BatchID] = append(s.events[ev.BatchID], *ev)
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, batchID uuid.UUID) ([]model.ShelvingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[batchID]
	out := make([]model.ShelvingEvent, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = *b
	return nil
}

func (s *MemoryStore) Batch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, model.ErrBatchNotFound
	}
	return &b, nil
}

func (s *MemoryStore) BatchesByProduct(ctx context.Context, productID int64) ([]model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Batch
	for _, b := range s.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
