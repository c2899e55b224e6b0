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

// Package async promotes ordinary functions into spawned tasks whose
// single result is consumed exactly once.
//
// Spawn wraps a function; calling the wrapper starts the function on
// its own goroutine immediately and returns a Task.  The Task's
// result is claimed either with OnComplete (callback style) or Await
// (blocking style), but never both and never twice: a second
// consumption is a programmer error and panics.
package async

import "sync"

// Fn is a function whose packed return values flow through a Task.
type Fn func(args ...interface{}) []interface{}

// Task is the single-consumption result of a spawned function.
type Task struct {
	mu       sync.Mutex
	done     chan struct{}
	vals     []interface{}
	consumed bool
}

// Spawn wraps f.  Each call of the returned function runs f with the
// given arguments on a new goroutine (the caller does not block) and
// returns the Task holding its eventual result.
func Spawn(f Fn) func(args ...interface{}) *Task {
	if f == nil {
		panic("async: function must be invocable")
	}
	return func(args ...interface{}) *Task {
		t := &Task{
			done: make(chan struct{}),
		}
		go func() {
			vals := f(args...)
			t.vals = vals
			close(t.done)
		}()
		return t
	}
}

// claim marks the task consumed, panicking on a second claim.
func (t *Task) claim() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		panic("async: task result can only be consumed once")
	}
	t.consumed = true
}

// OnComplete registers cb to receive the function's packed return
// values.  If the function already finished, cb runs synchronously
// before OnComplete returns; otherwise it runs when the function
// finishes.
func (t *Task) OnComplete(cb func(vals ...interface{})) {
	if cb == nil {
		panic("async: callback must be invocable")
	}
	t.claim()
	select {
	case <-t.done:
		cb(t.vals...)
	default:
		go func() {
			<-t.done
			cb(t.vals...)
		}()
	}
}

// Await blocks until the function finishes and returns its packed
// return values.  Returns immediately if the result is already
// available.
func (t *Task) Await() []interface{} {
	t.claim()
	<-t.done
	return t.vals
}
