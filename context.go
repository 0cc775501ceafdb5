package warpdrive

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// cancelStore keeps the cancel function of the backend call each
// statement has in flight, keyed by statement id.
type cancelStore interface {
	start(ctx context.Context, id uuid.UUID) (context.Context, context.CancelFunc)
	cancel(id uuid.UUID) bool
	remove(id uuid.UUID)
}

// ctxStore is a thread-safe cancelStore over a map.
type ctxStore struct {
	mu    sync.Mutex
	store map[uuid.UUID]context.CancelFunc
}

func newContextStore() *ctxStore {
	return &ctxStore{
		store: make(map[uuid.UUID]context.CancelFunc),
	}
}

// start derives a cancellable context for a call of statement id. The
// returned release function must be called once the call returns.
func (s *ctxStore) start(ctx context.Context, id uuid.UUID) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.store[id] = cancel
	s.mu.Unlock()
	return ctx, func() {
		s.remove(id)
		cancel()
	}
}

// cancel aborts the call in flight for id and reports whether there was one.
func (s *ctxStore) cancel(id uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.store[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *ctxStore) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, id)
}
