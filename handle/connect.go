package handle

import (
	"sync"
	"unsafe"
)

// Event identifies one signal of one class. Identities are allocated by
// the generator, not derived from source-level names, so renaming a
// signal in the model cannot silently retarget a connection.
type Event uint32

// Callback receives a pointer to the shim-side argument pack of one
// signal emission. Generated code wraps it around a typed closure.
type Callback func(args unsafe.Pointer)

// Conn identifies one connection. The zero Conn is never issued.
type Conn struct {
	id uint64
}

// Valid reports whether c was issued by a Connect call.
func (c Conn) Valid() bool { return c.id != 0 }

type connKey struct {
	source unsafe.Pointer
	event  Event
}

type connEntry struct {
	id       uint64
	receiver unsafe.Pointer
	fn       Callback
}

// Registry is the callback table behind generated Connect and Disconnect
// methods. Registrations are keyed by source object and event identity;
// raising an event invokes a snapshot of the matching callbacks, so a
// callback may connect or disconnect freely without deadlocking, and a
// concurrent Raise never observes a half-applied update.
//
// The zero Registry is ready to use.
type Registry struct {
	mu    sync.Mutex
	next  uint64
	conns map[connKey][]connEntry
	byID  map[uint64]connKey
}

// Connect registers fn for emissions of event on source. The receiver is
// recorded for DisconnectObject and may be nil for free-standing
// closures.
func (r *Registry) Connect(source unsafe.Pointer, event Event, receiver unsafe.Pointer, fn Callback) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns == nil {
		r.conns = make(map[connKey][]connEntry)
		r.byID = make(map[uint64]connKey)
	}
	r.next++
	key := connKey{source: source, event: event}
	r.conns[key] = append(r.conns[key], connEntry{id: r.next, receiver: receiver, fn: fn})
	r.byID[r.next] = key
	return Conn{id: r.next}
}

// Disconnect removes one connection. It reports whether the connection
// was still registered.
func (r *Registry) Disconnect(c Conn) bool {
	if !c.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byID[c.id]
	if !ok {
		return false
	}
	delete(r.byID, c.id)
	r.conns[key] = removeEntry(r.conns[key], func(e connEntry) bool { return e.id == c.id })
	if len(r.conns[key]) == 0 {
		delete(r.conns, key)
	}
	return true
}

// DisconnectObject removes every connection whose recorded receiver is
// obj and returns how many it removed.
func (r *Registry) DisconnectObject(obj unsafe.Pointer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, entries := range r.conns {
		kept := removeEntry(entries, func(e connEntry) bool {
			if e.receiver != obj {
				return false
			}
			delete(r.byID, e.id)
			removed++
			return true
		})
		if len(kept) == 0 {
			delete(r.conns, key)
		} else {
			r.conns[key] = kept
		}
	}
	return removed
}

// DisconnectSource removes every connection whose source is obj and
// returns how many it removed. Generated Close methods call it when an
// owned object goes away, so a later allocation at the same address
// cannot inherit stale callbacks.
func (r *Registry) DisconnectSource(obj unsafe.Pointer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, entries := range r.conns {
		if key.source != obj {
			continue
		}
		for _, e := range entries {
			delete(r.byID, e.id)
			removed++
		}
		delete(r.conns, key)
	}
	return removed
}

// Count returns how many connections are registered for event on source.
// Generated code uses it to keep exactly one shim-side registration alive
// while any wrapper-side connection exists.
func (r *Registry) Count(source unsafe.Pointer, event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[connKey{source: source, event: event}])
}

// Raise invokes, in registration order, every callback connected to
// event on source. Callbacks run outside the registry lock against the
// set of connections present when Raise began.
func (r *Registry) Raise(source unsafe.Pointer, event Event, args unsafe.Pointer) {
	r.mu.Lock()
	entries := r.conns[connKey{source: source, event: event}]
	snapshot := make([]Callback, len(entries))
	for i, e := range entries {
		snapshot[i] = e.fn
	}
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn(args)
	}
}

func removeEntry(entries []connEntry, drop func(connEntry) bool) []connEntry {
	kept := entries[:0]
	for _, e := range entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	return kept
}
