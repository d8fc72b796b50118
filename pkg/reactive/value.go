// Package reactive provides a minimal observable value used to connect the
// dashboard components without tying them to a UI framework.
package reactive

import "sync"

// Value holds a value of type T and notifies subscribers on every Set.
// Listeners run synchronously on the caller of Set, in subscription order.
type Value[T any] struct {
	mu        sync.RWMutex
	current   T
	nextID    uint64
	listeners []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{current: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.current = val
	ls := make([]listener[T], len(v.listeners))
	copy(ls, v.listeners)
	v.mu.Unlock()

	for _, l := range ls {
		l.fn(val)
	}
}

// Subscribe registers fn and returns a function that removes it.
// fn is not called with the current value.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.listeners = append(v.listeners, listener[T]{id: id, fn: fn})
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, l := range v.listeners {
				if l.id == id {
					v.listeners = append(v.listeners[:i], v.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Listeners reports the number of active subscriptions.
func (v *Value[T]) Listeners() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.listeners)
}

// Notifier is a payload-free broadcast used by components that publish
// "something changed" and let readers pull a snapshot.
type Notifier struct {
	v *Value[struct{}]
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{v: NewValue(struct{}{})}
}

// Notify calls every subscriber.
func (n *Notifier) Notify() {
	n.v.Set(struct{}{})
}

// Subscribe registers fn and returns its cancel function.
func (n *Notifier) Subscribe(fn func()) (cancel func()) {
	return n.v.Subscribe(func(struct{}) { fn() })
}
