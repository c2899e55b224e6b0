/* Copyright 2023 The modlink Authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package delegate provides a one-to-many notification primitive.
//
// A Delegate holds an ordered collection of listeners.  Broadcast
// invokes every listener in registration order, and listeners may
// register or unregister other listeners (or themselves) while a
// broadcast is in progress without corrupting the iteration.
package delegate

import "sync"

// Handle identifies a registered listener within one Delegate.
//
// Handles are unique per Delegate instance and are never reused while
// the instance lives.
type Handle int64

// Listener is a callback that receives broadcast arguments.
type Listener func(args ...interface{})

type entry struct {
	h Handle
	f Listener
}

// Delegate multiplexes broadcasts to an ordered set of listeners.
//
// The zero value is not usable; call New.
type Delegate struct {
	sync.Mutex
	next    Handle
	entries []entry
}

// New makes an empty Delegate.
func New() *Delegate {
	return &Delegate{
		entries: make([]entry, 0, 8),
	}
}

// Register adds the listener and returns its Handle.
//
// A nil listener is a programmer error and panics.
func (d *Delegate) Register(f Listener) Handle {
	if f == nil {
		panic("delegate: listener must be invocable")
	}
	d.Lock()
	d.next++
	h := d.next
	d.entries = append(d.entries, entry{h: h, f: f})
	d.Unlock()
	return h
}

// Unregister removes the listener with the given Handle.
//
// Unknown handles are ignored.  Safe to call from within a listener
// during a Broadcast.
func (d *Delegate) Unregister(h Handle) {
	d.Lock()
	for i, e := range d.entries {
		if e.h == h {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			break
		}
	}
	d.Unlock()
}

// Broadcast invokes every currently-registered listener, in
// registration order, with the given arguments.
//
// The iteration runs over a snapshot taken at the start of the call,
// and each entry's liveness is re-checked against the live set just
// before it is invoked.  A listener registered during the broadcast
// does not fire in the same pass; a listener unregistered before its
// turn is skipped.
func (d *Delegate) Broadcast(args ...interface{}) {
	d.Lock()
	snapshot := make([]entry, len(d.entries))
	copy(snapshot, d.entries)
	d.Unlock()

	for _, e := range snapshot {
		if !d.has(e.h) {
			continue
		}
		e.f(args...)
	}
}

// has reports whether the handle is still registered.
func (d *Delegate) has(h Handle) bool {
	d.Lock()
	defer d.Unlock()
	for _, e := range d.entries {
		if e.h == h {
			return true
		}
	}
	return false
}

// Clear removes all listeners.
func (d *Delegate) Clear() {
	d.Lock()
	d.entries = d.entries[:0]
	d.Unlock()
}

// Size returns the current listener count.
func (d *Delegate) Size() int {
	d.Lock()
	defer d.Unlock()
	return len(d.entries)
}
