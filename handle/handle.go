// Package handle is the runtime support for generated wrapper packages:
// ownership-aware references to shim objects, the live-instance counter
// used by factory classes, and the connection registry behind generated
// signal methods.
//
// Generated code is the only intended caller. Nothing here is concurrent
// except the connection registry; a single wrapper value must not be
// mutated from two goroutines at once.
package handle

import (
	"sync/atomic"
	"unsafe"
)

// Mode is how a wrapper holds its underlying object.
type Mode int

const (
	// ModeOwned references are the sole owner and free the object exactly
	// once on Close.
	ModeOwned Mode = iota
	// ModeBorrowed references never free and must not outlive the owner
	// they were obtained from.
	ModeBorrowed
	// ModeShared references belong to a factory-managed lifetime; Close
	// releases their share of the factory's live count instead of freeing.
	ModeShared
)

// Destructor frees one shim object.
type Destructor func(unsafe.Pointer)

// Ref is the wrapper-side reference to one shim object.
type Ref struct {
	ptr     unsafe.Pointer
	mode    Mode
	destroy Destructor
	count   *LiveCounter
	weight  int64
	closed  atomic.Bool
}

// Own wraps a pointer the wrapper is responsible for freeing. A nil
// destroy is legal for classes whose destructor is inaccessible; Close is
// then a no-op beyond marking the reference dead.
func Own(ptr unsafe.Pointer, destroy Destructor) *Ref {
	return &Ref{ptr: ptr, mode: ModeOwned, destroy: destroy}
}

// Borrow wraps a pointer owned by someone else.
func Borrow(ptr unsafe.Pointer) *Ref {
	return &Ref{ptr: ptr, mode: ModeBorrowed}
}

// Share wraps a pointer whose lifetime a factory tracks. The weight is
// how many live-count units this reference holds; Close gives exactly
// that many back.
func Share(ptr unsafe.Pointer, count *LiveCounter, weight int64) *Ref {
	return &Ref{ptr: ptr, mode: ModeShared, count: count, weight: weight}
}

// Ptr returns the underlying shim pointer.
func (r *Ref) Ptr() unsafe.Pointer {
	return r.ptr
}

// Mode returns how this reference holds its object.
func (r *Ref) Mode() Mode {
	return r.mode
}

// Closed reports whether Close has run.
func (r *Ref) Closed() bool {
	return r.closed.Load()
}

// Close releases the reference according to its mode. It is idempotent;
// only the first call has an effect.
func (r *Ref) Close() {
	if r.closed.Swap(true) {
		return
	}
	switch r.mode {
	case ModeOwned:
		if r.destroy != nil {
			r.destroy(r.ptr)
		}
	case ModeShared:
		if r.count != nil {
			r.count.Release(r.weight)
		}
	}
}
