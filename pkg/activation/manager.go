package activation

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrDuplicate is returned when registering an activation whose id is
// already known to the Manager.
var ErrDuplicate = errors.New("activation: duplicate id")

// Manager owns the parent activation and the ordered secondary activations.
//
// Readers never block: every mutation publishes a fresh immutable snapshot
// that the capture worker picks up on its next frame.
//
// Secondary activations dropped by [Manager.Replace] or [Manager.Unregister]
// are queued until the worker collects them with [Manager.Retired], so a
// stream that was open when its activation went away can still be ended.
type Manager struct {
	mu      sync.Mutex // serialises writers
	parent  atomic.Pointer[Activation]
	list    atomic.Pointer[[]*Activation]
	retired atomic.Pointer[[]*Activation]
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	m := &Manager{}
	m.list.Store(&[]*Activation{})
	return m
}

// SetParent installs a as the parent activation. Nil clears it.
func (m *Manager) SetParent(a *Activation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parent.Store(a)
}

// Parent returns the parent activation, or nil when none is set.
func (m *Manager) Parent() *Activation {
	return m.parent.Load()
}

// Register appends a to the ordered list.
func (m *Manager) Register(a *Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.list.Load()
	for _, x := range cur {
		if x.ID() == a.ID() {
			return fmt.Errorf("%w: %s", ErrDuplicate, a.ID())
		}
	}
	next := append(slices.Clip(cur), a)
	m.list.Store(&next)
	return nil
}

// Unregister removes the activation with id. It reports whether one was found.
func (m *Manager) Unregister(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.list.Load()
	i := slices.IndexFunc(cur, func(a *Activation) bool { return a.ID() == id })
	if i < 0 {
		return false
	}
	gone := cur[i]
	next := slices.Delete(slices.Clone(cur), i, i+1)
	m.list.Store(&next)
	if gone != m.parent.Load() {
		m.retire(gone)
	}
	return true
}

// Replace installs a new parent and ordered list. The list is published as a
// single snapshot, so the worker never iterates a partly updated list.
func (m *Manager) Replace(parent *Activation, list []*Activation) error {
	seen := make(map[uuid.UUID]bool, len(list))
	for _, a := range list {
		if seen[a.ID()] {
			return fmt.Errorf("%w: %s", ErrDuplicate, a.ID())
		}
		seen[a.ID()] = true
	}
	next := slices.Clone(list)
	if next == nil {
		next = []*Activation{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	oldParent := m.parent.Load()
	var gone []*Activation
	for _, a := range *m.list.Load() {
		if a != oldParent && a != parent && !slices.Contains(next, a) {
			gone = append(gone, a)
		}
	}
	m.list.Store(&next)
	m.parent.Store(parent)
	m.retire(gone...)
	return nil
}

// Retired returns the secondary activations removed since the last call and
// clears the queue. The parent of the set that was replaced is not included;
// it never transmits.
func (m *Manager) Retired() []*Activation {
	if p := m.retired.Swap(nil); p != nil {
		return *p
	}
	return nil
}

// retire queues dropped activations. Must be called with m.mu held.
func (m *Manager) retire(gone ...*Activation) {
	if len(gone) == 0 {
		return
	}
	for {
		cur := m.retired.Load()
		var next []*Activation
		if cur != nil {
			next = slices.Clone(*cur)
		}
		next = append(next, gone...)
		if m.retired.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Get looks up an activation by id, including the parent.
func (m *Manager) Get(id uuid.UUID) (*Activation, bool) {
	if p := m.parent.Load(); p != nil && p.ID() == id {
		return p, true
	}
	for _, a := range *m.list.Load() {
		if a.ID() == id {
			return a, true
		}
	}
	return nil, false
}

// Activations returns the current ordered snapshot. Callers must not modify
// the returned slice.
func (m *Manager) Activations() []*Activation {
	return *m.list.Load()
}

// Dispatch evaluates the secondary activations for one frame and calls visit
// with each result, in order.
//
// Disabled activations and parent itself are skipped. Inherit and voice
// types ride along with parentResult; independent ones run their own
// detector on samples. Evaluation stops after the first non-transitive
// activation that was visited.
func (m *Manager) Dispatch(parent *Activation, parentResult Result, samples []int16, visit func(*Activation, Result)) {
	for _, a := range m.Activations() {
		if a.Disabled() || a == parent {
			continue
		}
		var r Result
		if a.Type().RidesAlong() {
			r = a.RideAlong(parentResult)
		} else {
			r = a.Process(samples)
		}
		visit(a, r)
		if !a.Transitive() {
			break
		}
	}
}
