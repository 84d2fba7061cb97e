package signalbus

import (
	"context"
	"sync"

	"go.pilab.hu/trustgate/domain"
)

// MemoryBus is an in-process Bus for tests and single-process deployments.
type MemoryBus struct {
	mu          sync.Mutex
	flag        *domain.RemoteSignOutFlag
	subscribers map[int]func(domain.RemoteSignOutFlag)
	nextID      int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscribers: make(map[int]func(domain.RemoteSignOutFlag))}
}

func (b *MemoryBus) Publish(_ context.Context, flag domain.RemoteSignOutFlag) error {
	b.mu.Lock()
	f := flag
	b.flag = &f
	fns := make([]func(domain.RemoteSignOutFlag), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(flag)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, fn func(domain.RemoteSignOutFlag)) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}, nil
}

func (b *MemoryBus) Consume(_ context.Context) (*domain.RemoteSignOutFlag, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	flag := b.flag
	b.flag = nil
	return flag, nil
}
