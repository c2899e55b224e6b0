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

package timers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleOneShot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan bool, 8)
	task := Schedule(ctx, func() {
		fired <- true
	}, 50*time.Millisecond, false)

	select {
	case <-fired:
	case <-time.NewTimer(2 * time.Second).C:
		t.Fatal("one-shot never fired")
	}

	// One-shot self-destroys after its single invocation.
	if task.Alive() {
		// The flag is set by the task goroutine right after
		// the handler runs; give it a moment.
		time.Sleep(50 * time.Millisecond)
		if task.Alive() {
			t.Fatal("one-shot still alive after firing")
		}
	}

	select {
	case <-fired:
		t.Fatal("one-shot fired twice")
	case <-time.NewTimer(200 * time.Millisecond).C:
	}
}

func TestScheduleRepeating(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int64
	task := Schedule(ctx, func() {
		atomic.AddInt64(&n, 1)
	}, 20*time.Millisecond, true)

	time.Sleep(300 * time.Millisecond)
	task.Destroy()

	if atomic.LoadInt64(&n) < 3 {
		t.Fatalf("repeating task fired only %d times", n)
	}

	// No firings after Destroy (beyond at most the wait already
	// in progress, which is suppressed).
	settled := atomic.LoadInt64(&n)
	time.Sleep(200 * time.Millisecond)
	if got := atomic.LoadInt64(&n); got != settled {
		t.Fatalf("fired after Destroy: %d then %d", settled, got)
	}
}

func TestDestroySuppressesPendingFiring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := Schedule(ctx, func() {
		t.Error("handler ran after Destroy")
	}, 100*time.Millisecond, false)

	task.Destroy()
	time.Sleep(300 * time.Millisecond)
}

func TestDestroyIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := Schedule(ctx, func() {}, time.Hour, true)
	task.Destroy()
	task.Destroy()
	if task.Alive() {
		t.Fatal("alive after Destroy")
	}
}

func TestZeroDelayRepeatingYields(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int64
	task := Schedule(ctx, func() {
		atomic.AddInt64(&n, 1)
	}, 0, true)

	time.Sleep(100 * time.Millisecond)
	task.Destroy()

	if atomic.LoadInt64(&n) == 0 {
		t.Fatal("zero-delay task never fired")
	}
}

func TestScheduleCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every second.
	fired := make(chan bool, 8)
	task, err := ScheduleCron(ctx, func() {
		fired <- true
	}, "* * * * * * *")
	if err != nil {
		t.Fatal(err)
	}
	defer task.Destroy()

	select {
	case <-fired:
	case <-time.NewTimer(3 * time.Second).C:
		t.Fatal("cron task never fired")
	}
}

func TestScheduleCronBad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := ScheduleCron(ctx, func() {}, "not a crontab"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestGroupFiresAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGroup(ctx, 20*time.Millisecond)
	defer g.Destroy()

	var a, b int64
	g.Add(func() { atomic.AddInt64(&a, 1) })
	g.Add(func() { atomic.AddInt64(&b, 1) })

	time.Sleep(300 * time.Millisecond)

	if atomic.LoadInt64(&a) == 0 || atomic.LoadInt64(&b) == 0 {
		t.Fatalf("handlers fired a=%d b=%d", a, b)
	}
}

func TestGroupTeardown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGroup(ctx, 20*time.Millisecond)

	var n int64
	id1 := g.Add(func() { atomic.AddInt64(&n, 1) })
	id2 := g.Add(func() { atomic.AddInt64(&n, 1) })

	time.Sleep(100 * time.Millisecond)

	g.Remove(id1)
	g.Remove(id2)
	if g.Size() != 0 {
		t.Fatal(g.Size())
	}

	// The shared task notices the empty map at its next firing
	// and stops.  No invocations after that.
	time.Sleep(100 * time.Millisecond)
	settled := atomic.LoadInt64(&n)
	time.Sleep(200 * time.Millisecond)
	if got := atomic.LoadInt64(&n); got != settled {
		t.Fatalf("group fired after all handlers removed: %d then %d", settled, got)
	}
}

func TestGroupRecreatesTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGroup(ctx, 20*time.Millisecond)
	defer g.Destroy()

	id := g.Add(func() {})
	g.Remove(id)
	time.Sleep(100 * time.Millisecond) // let the task self-destroy

	fired := make(chan bool, 8)
	g.Add(func() {
		select {
		case fired <- true:
		default:
		}
	})

	select {
	case <-fired:
	case <-time.NewTimer(2 * time.Second).C:
		t.Fatal("group went idle and never came back")
	}
}

func TestGroupDestroyIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGroup(ctx, 20*time.Millisecond)
	g.Add(func() {})
	g.Destroy()
	g.Destroy()
	if g.Size() != 0 {
		t.Fatal(g.Size())
	}
}
