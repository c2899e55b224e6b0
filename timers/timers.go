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

// Package timers provides single-shot and repeating scheduled tasks,
// plus a Group that drives many handlers from one shared repeating
// task.
//
// A Task runs its handler on its own goroutine.  Destroy is the only
// shutdown signal: a task mid-wait completes its current wait, checks
// liveness, and suppresses the handler if the task was destroyed in
// the meantime.  Handler panics are not caught here.
package timers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorhill/cronexpr"
)

const (
	dead = int64(iota)
	live
)

// Task represents a single-shot or repeating deferred invocation.
type Task struct {
	d      time.Duration
	repeat bool
	cron   *cronexpr.Expression
	alive  int64
}

// Schedule begins a timer that invokes f after delay.
//
// With repeating false, f fires exactly once and the task then
// destroys itself.  With repeating true, f fires every delay until
// Destroy is called or ctx is done.  A zero delay repeating task
// fires as fast as the scheduler allows but still yields between
// firings.
func Schedule(ctx context.Context, f func(), delay time.Duration, repeating bool) *Task {
	t := &Task{
		d:      delay,
		repeat: repeating,
		alive:  live,
	}
	go t.run(ctx, f)
	return t
}

// ScheduleCron begins a repeating task driven by a crontab
// expression.  The task fires at each time the expression yields,
// until destroyed.
func ScheduleCron(ctx context.Context, f func(), expr string) (*Task, error) {
	c, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, err
	}
	t := &Task{
		repeat: true,
		cron:   c,
		alive:  live,
	}
	go t.run(ctx, f)
	return t, nil
}

func (t *Task) run(ctx context.Context, f func()) {
	for {
		d := t.d
		if t.cron != nil {
			d = t.cron.Next(time.Now()).Sub(time.Now())
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.Destroy()
			return
		case <-timer.C:
		}

		// The wait is over, but Destroy may have happened
		// during it.
		if !t.Alive() {
			return
		}

		f()

		if !t.repeat {
			t.Destroy()
			return
		}
		if !t.Alive() {
			return
		}
	}
}

// Destroy marks the task dead.  Idempotent.
//
// A destroyed task completes any wait in progress but never invokes
// its handler again.
func (t *Task) Destroy() {
	atomic.StoreInt64(&t.alive, dead)
}

// Alive reports whether the task has not been destroyed.
func (t *Task) Alive() bool {
	return atomic.LoadInt64(&t.alive) == live
}

// Group drives a set of independent handlers from one shared
// repeating Task, to avoid one task per handler.
//
// The shared task is created lazily by the first Add and destroyed
// when a firing finds no handlers left.
type Group struct {
	sync.Mutex

	interval time.Duration
	ctx      context.Context

	next     int64
	handlers map[int64]func()

	// cache is the flattened invocation list; dirty marks it
	// stale.  The cache is rebuilt at the start of the next
	// firing, never mid-iteration.
	cache []func()
	dirty bool

	task *Task
}

// NewGroup makes an idle Group whose shared task, once created, fires
// every interval.
func NewGroup(ctx context.Context, interval time.Duration) *Group {
	return &Group{
		interval: interval,
		ctx:      ctx,
		handlers: make(map[int64]func(), 8),
	}
}

// Add inserts a handler and returns its id.  The shared task is
// created if this is the first handler.
func (g *Group) Add(f func()) int64 {
	g.Lock()
	g.next++
	id := g.next
	g.handlers[id] = f
	g.dirty = true
	if g.task == nil {
		g.task = Schedule(g.ctx, g.fire, g.interval, true)
	}
	g.Unlock()
	return id
}

// Remove deletes the handler with the given id, if present.
func (g *Group) Remove(id int64) {
	g.Lock()
	if _, have := g.handlers[id]; have {
		delete(g.handlers, id)
		g.dirty = true
	}
	g.Unlock()
}

// fire is the shared task's handler.
func (g *Group) fire() {
	g.Lock()
	if g.dirty {
		g.cache = make([]func(), 0, len(g.handlers))
		for _, f := range g.handlers {
			g.cache = append(g.cache, f)
		}
		g.dirty = false
	}
	if len(g.cache) == 0 {
		// Nobody left: stop the shared task.  Add will
		// recreate it.
		task := g.task
		g.task = nil
		g.Unlock()
		if task != nil {
			task.Destroy()
		}
		return
	}
	fs := g.cache
	g.Unlock()

	for _, f := range fs {
		f()
	}
}

// Clear removes all handlers.  The shared task notices at its next
// firing and destroys itself.
func (g *Group) Clear() {
	g.Lock()
	g.handlers = make(map[int64]func(), 8)
	g.dirty = true
	g.Unlock()
}

// Destroy clears the group and terminates the shared task
// immediately, without waiting for the next firing.  Idempotent.
func (g *Group) Destroy() {
	g.Clear()
	g.Lock()
	task := g.task
	g.task = nil
	g.Unlock()
	if task != nil {
		task.Destroy()
	}
}

// Size returns the current handler count.
func (g *Group) Size() int {
	g.Lock()
	defer g.Unlock()
	return len(g.handlers)
}
