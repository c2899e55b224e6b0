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

package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modlink/modlink/async"
)

// pair couples a "server" and a "client" bridge over a Loopback.
func pair(t *testing.T, timeout time.Duration) (*Bridge, *Bridge, *Loopback) {
	t.Helper()
	bus := NewLoopback()

	server, err := New(Conf{Identity: "server", Timeout: timeout}, bus.Endpoint("server"))
	if err != nil {
		t.Fatal(err)
	}
	client, err := New(Conf{Identity: "client", Timeout: timeout}, bus.Endpoint("client"))
	if err != nil {
		t.Fatal(err)
	}
	return server, client, bus
}

func TestRoundTrip(t *testing.T) {
	server, client, bus := pair(t, 5*time.Second)
	defer bus.Close()

	err := server.Register("sum", func(args ...interface{}) []interface{} {
		return []interface{}{args[0].(int) + args[1].(int)}
	})
	if err != nil {
		t.Fatal(err)
	}

	vals := client.Call(context.Background(), "sum", 2, 3).Await()
	if len(vals) != 2 || vals[0] != true || vals[1] != 5 {
		t.Fatalf("got %#v", vals)
	}
}

func TestRoundTripMultipleResults(t *testing.T) {
	server, client, bus := pair(t, 5*time.Second)
	defer bus.Close()

	if err := server.Register("divmod", func(args ...interface{}) []interface{} {
		a, b := args[0].(int), args[1].(int)
		return []interface{}{a / b, a % b}
	}); err != nil {
		t.Fatal(err)
	}

	vals := client.Call(context.Background(), "divmod", 17, 5).Await()
	if len(vals) != 3 || vals[0] != true || vals[1] != 3 || vals[2] != 2 {
		t.Fatalf("got %#v", vals)
	}
}

func TestRoundTripOnComplete(t *testing.T) {
	server, client, bus := pair(t, 5*time.Second)
	defer bus.Close()

	if err := server.Register("echo", func(args ...interface{}) []interface{} {
		return args
	}); err != nil {
		t.Fatal(err)
	}

	got := make(chan []interface{}, 1)
	client.Call(context.Background(), "echo", "hi").OnComplete(func(vals ...interface{}) {
		got <- vals
	})

	select {
	case vals := <-got:
		if len(vals) != 2 || vals[0] != true || vals[1] != "hi" {
			t.Fatalf("got %#v", vals)
		}
	case <-time.NewTimer(5 * time.Second).C:
		t.Fatal("no reply")
	}
}

func TestTimeoutWithoutResponder(t *testing.T) {
	_, client, bus := pair(t, 200*time.Millisecond)
	defer bus.Close()

	started := time.Now()
	vals := client.Call(context.Background(), "nobody-home").Await()
	elapsed := time.Since(started)

	if len(vals) != 1 || vals[0] != false {
		t.Fatalf("got %#v", vals)
	}
	if elapsed < 200*time.Millisecond {
		t.Fatalf("resolved in %s, before the timeout", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("took %s to time out", elapsed)
	}
	if n := client.Pending(); n != 0 {
		t.Fatalf("%d pending entries left after timeout", n)
	}
}

func TestLateReplyAfterTimeoutIsDropped(t *testing.T) {
	server, client, bus := pair(t, 100*time.Millisecond)
	defer bus.Close()

	if err := server.Register("slow", func(args ...interface{}) []interface{} {
		time.Sleep(400 * time.Millisecond)
		return []interface{}{"too late"}
	}); err != nil {
		t.Fatal(err)
	}

	vals := client.Call(context.Background(), "slow").Await()
	if len(vals) != 1 || vals[0] != false {
		t.Fatalf("got %#v", vals)
	}

	// The reply eventually arrives on the wire; nothing should
	// blow up and the pending table stays clean.
	time.Sleep(600 * time.Millisecond)
	if n := client.Pending(); n != 0 {
		t.Fatalf("%d pending entries after late reply", n)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	server, client, bus := pair(t, 5*time.Second)
	defer bus.Close()

	if err := server.Register("who", func(args ...interface{}) []interface{} {
		return []interface{}{"first"}
	}); err != nil {
		t.Fatal(err)
	}
	if err := server.Register("who", func(args ...interface{}) []interface{} {
		return []interface{}{"second"}
	}); err != nil {
		t.Fatal(err)
	}

	vals := client.Call(context.Background(), "who").Await()
	if len(vals) != 2 || vals[0] != true || vals[1] != "second" {
		t.Fatalf("got %#v", vals)
	}
}

func TestSelfEchoIgnored(t *testing.T) {
	server, client, bus := pair(t, 300*time.Millisecond)
	defer bus.Close()

	// Both roles serve the same event.  The caller's own
	// subscription hears its own request as a local echo and must
	// ignore it, so the answer always comes from the other role.
	if err := server.Register("tag", func(args ...interface{}) []interface{} {
		return []interface{}{"server"}
	}); err != nil {
		t.Fatal(err)
	}
	if err := client.Register("tag", func(args ...interface{}) []interface{} {
		return []interface{}{"client"}
	}); err != nil {
		t.Fatal(err)
	}

	vals := client.Call(context.Background(), "tag").Await()
	if len(vals) != 2 || vals[0] != true || vals[1] != "server" {
		t.Fatalf("client got %#v", vals)
	}

	vals = server.Call(context.Background(), "tag").Await()
	if len(vals) != 2 || vals[0] != true || vals[1] != "client" {
		t.Fatalf("server got %#v", vals)
	}
}

func TestDeregister(t *testing.T) {
	server, client, bus := pair(t, 200*time.Millisecond)
	defer bus.Close()

	if err := server.Register("gone", func(args ...interface{}) []interface{} {
		return []interface{}{1}
	}); err != nil {
		t.Fatal(err)
	}
	if err := server.Deregister("gone"); err != nil {
		t.Fatal(err)
	}

	vals := client.Call(context.Background(), "gone").Await()
	if len(vals) != 1 || vals[0] != false {
		t.Fatalf("got %#v", vals)
	}
}

func TestMintUniqueness(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()

	b, err := New(Conf{Identity: "a"}, bus.Endpoint("a"))
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool, 1000)
	b.Lock()
	for i := 0; i < 1000; i++ {
		id := b.mint("ev")
		if seen[id] {
			t.Fatalf("duplicate id '%s'", id)
		}
		seen[id] = true
		b.pending[id] = func(vals []interface{}) {}
		if !strings.HasPrefix(id, "ev:") || !strings.HasSuffix(id, ":a") {
			t.Fatalf("bad id shape '%s'", id)
		}
	}
	b.Unlock()
}

func TestBadIdentity(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()

	if _, err := New(Conf{Identity: ""}, bus.Endpoint("x")); err != BadIdentity {
		t.Fatal(err)
	}
	if _, err := New(Conf{Identity: "a:b"}, bus.Endpoint("x")); err != BadIdentity {
		t.Fatal(err)
	}
}

func TestNilResponderPanics(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()

	b, err := New(Conf{Identity: "a"}, bus.Endpoint("a"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("no panic for nil responder")
		}
	}()
	b.Register("ev", nil)
}

func TestClose(t *testing.T) {
	server, client, bus := pair(t, 100*time.Millisecond)
	defer bus.Close()

	if err := server.Register("sum", func(args ...interface{}) []interface{} {
		return []interface{}{0}
	}); err != nil {
		t.Fatal(err)
	}
	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	if err := server.Register("again", func(args ...interface{}) []interface{} {
		return nil
	}); err != Closed {
		t.Fatal(err)
	}

	// The responder is gone, so the call times out softly.
	vals := client.Call(context.Background(), "sum", 1).Await()
	if len(vals) != 1 || vals[0] != false {
		t.Fatalf("got %#v", vals)
	}
}

func TestConcurrentCalls(t *testing.T) {
	server, client, bus := pair(t, 5*time.Second)
	defer bus.Close()

	if err := server.Register("double", func(args ...interface{}) []interface{} {
		return []interface{}{args[0].(int) * 2}
	}); err != nil {
		t.Fatal(err)
	}

	const n = 50
	tasks := make([]*async.Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = client.Call(context.Background(), "double", i)
	}
	for i := 0; i < n; i++ {
		vals := tasks[i].Await()
		if len(vals) != 2 || vals[0] != true || vals[1] != i*2 {
			t.Fatalf("call %d got %#v", i, vals)
		}
	}
}
