package eventbus

import (
	"context"
	"sync"
)

// SequenceAllocator hands out per-aggregate sequence numbers.
//
// Next must return last+1 for the key and remember it. Seed raises the stored
// value to last when it is lower and is used to rehydrate counters from the
// event log at startup.
type SequenceAllocator interface {
	Next(ctx context.Context, key string) (int64, error)
	Seed(ctx context.Context, key string, last int64) error
}

// releaser is implemented by allocators that can take back the number they
// just issued, so a failed insert does not leave a gap.
type releaser interface {
	Release(ctx context.Context, key string, n int64)
}

// PartitionKey is the ordering partition of an aggregate.
func PartitionKey(aggregateType, aggregateID string) string {
	return aggregateType + ":" + aggregateID
}

// MemoryAllocator keeps counters in process memory. Counters are lost on
// restart and are not shared between processes.
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryAllocator returns an empty allocator.
func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters[key]++
	return a.counters[key], nil
}

func (a *MemoryAllocator) Seed(_ context.Context, key string, last int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counters[key] < last {
		a.counters[key] = last
	}
	return nil
}

// Release undoes n if it is still the latest number issued for key.
func (a *MemoryAllocator) Release(_ context.Context, key string, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counters[key] == n {
		a.counters[key] = n - 1
	}
}

// current returns the last issued number for key.
func (a *MemoryAllocator) current(key string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[key]
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
