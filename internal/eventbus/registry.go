package eventbus

import (
	"context"
	"sort"
	"sync"

	"github.com/richardliu001/lending-eventbus/internal/model"
)

// HandlerFunc reacts to one stored event. Returned errors and panics are
// recorded against the handler and never reach the publisher.
//
// Handlers can run again for the same event during Replay, so they should be
// idempotent when that matters to them.
type HandlerFunc func(ctx context.Context, evt *model.DomainEvent) error

// Registration subscribes one named handler to one event type.
type Registration struct {
	HandlerName string
	EventType   string
	Handler     HandlerFunc
	// Priority orders handlers ascending. Nil means model.DefaultPriority;
	// any other value, zero and negatives included, is used as given.
	Priority *int
	// Disabled registrations are stored but never executed.
	Disabled bool
	// PreserveEnabled keeps the enabled flag of an already stored row, so a
	// restart does not undo an operator's disable. Disabled then only applies
	// to a handler seen for the first time.
	PreserveEnabled bool
}

// PriorityOf returns p for Registration.Priority.
func PriorityOf(p int) *int { return &p }

// priority resolves the effective priority of a registration.
func (reg Registration) priority() int {
	if reg.Priority == nil {
		return model.DefaultPriority
	}
	return *reg.Priority
}

type entry struct {
	Registration
	prio  int
	order uint64
}

// registry is the in-memory side of the handler registry. The database row is
// a mirror for statistics and administration.
type registry struct {
	mu     sync.RWMutex
	byType map[string]map[string]*entry
	byName map[string]*entry
	next   uint64
}

func newRegistry() *registry {
	return &registry{
		byType: make(map[string]map[string]*entry),
		byName: make(map[string]*entry),
	}
}

// put replaces whatever was registered under the handler name.
func (r *registry) put(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(reg.HandlerName)
	r.next++
	e := &entry{Registration: reg, prio: reg.priority(), order: r.next}
	if r.byType[reg.EventType] == nil {
		r.byType[reg.EventType] = make(map[string]*entry)
	}
	r.byType[reg.EventType][reg.HandlerName] = e
	r.byName[reg.HandlerName] = e
}

func (r *registry) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(name)
}

func (r *registry) removeLocked(name string) bool {
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	delete(r.byName, name)
	handlers := r.byType[e.EventType]
	delete(handlers, name)
	if len(handlers) == 0 {
		delete(r.byType, e.EventType)
	}
	return true
}

func (r *registry) setEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if ok {
		e.Disabled = !enabled
	}
	return ok
}

// active reports whether name is still registered and enabled.
func (r *registry) active(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return ok && !e.Disabled
}

// dispatchable returns the enabled registrations of an event type ordered by
// priority, then registration order.
func (r *registry) dispatchable(eventType string) []Registration {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.byType[eventType]))
	for _, e := range r.byType[eventType] {
		if !e.Disabled {
			entries = append(entries, *e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].prio != entries[j].prio {
			return entries[i].prio < entries[j].prio
		}
		return entries[i].order < entries[j].order
	})
	regs := make([]Registration, len(entries))
	for i := range entries {
		regs[i] = entries[i].Registration
	}
	return regs
}
