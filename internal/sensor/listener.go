package sensor

import (
	"fmt"
	"reflect"
	"sync"

	"codeberg.org/mutker/sensorsim/internal/errors"
)

// Listener receives each new measurement. Implementations must return
// promptly: they run on the sampling goroutine.
type Listener interface {
	OnMeasurement(m Measurement) error
}

type funcListener struct {
	fn func(Measurement) error
}

func (f *funcListener) OnMeasurement(m Measurement) error {
	return f.fn(m)
}

// ListenerFunc wraps fn in a Listener. Every call returns a distinct
// listener, so the result can be passed to RemoveListener.
func ListenerFunc(fn func(Measurement) error) Listener {
	return &funcListener{fn: fn}
}

// Registry is an ordered set of listeners, safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends l. Registering the same listener twice delivers twice.
func (r *Registry) Add(l Listener) {
	if l == nil {
		return
	}

	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Remove drops the first registration identical to l and reports whether
// one was found.
func (r *Registry) Remove(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, candidate := range r.listeners {
		if sameListener(candidate, l) {
			// Copy on removal: Dispatch may still be iterating the old slice.
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return true
		}
	}

	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Dispatch delivers m to every listener registered when the call begins, in
// registration order. Failures are collected rather than propagated.
func (r *Registry) Dispatch(m Measurement) []error {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	var errs []error
	for i, l := range listeners {
		if err := invoke(i, l, m); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func invoke(index int, l Listener, m Measurement) (err error) {
	errFactory := errors.New()

	defer func() {
		if r := recover(); r != nil {
			err = errFactory.WithData(errors.ErrListenerPanic, listenerFailure{
				Index:    index,
				Listener: fmt.Sprintf("%T", l),
				Reason:   fmt.Sprint(r),
			})
		}
	}()

	if lerr := l.OnMeasurement(m); lerr != nil {
		return errFactory.Wrap(errors.ErrListenerFailed, lerr).WithData(listenerFailure{
			Index:    index,
			Listener: fmt.Sprintf("%T", l),
			Reason:   lerr.Error(),
		})
	}

	return nil
}

type listenerFailure struct {
	Index    int
	Listener string
	Reason   string
}

func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.TypeOf(a).Comparable() || reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}

	return a == b
}
