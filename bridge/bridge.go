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

// Package bridge implements a correlated request/response protocol
// between two cooperating processes over a pub/sub Transport.
//
// A caller invokes Call with an event name and arguments.  The
// bridge mints a correlation id, records a pending entry, and
// publishes the request on "<prefix>:<event>".  The remote process's
// Responder for that event computes reply values, which travel back
// on the caller's reply channel "<prefix>.invoke:<identity>" tagged
// with the same id.  A timeout races the reply; callers must treat
// "no reply" as an ordinary outcome.
//
// Replies whose correlation id is unknown (already consumed, timed
// out, or forged) are dropped silently.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modlink/modlink/async"
	"github.com/modlink/modlink/util"
)

var (
	// BadIdentity is returned by New for an empty identity or one
	// containing ':' (which would corrupt correlation ids).
	BadIdentity = errors.New("identity must be non-empty and must not contain ':'")

	// Closed is returned by operations on a closed bridge.
	Closed = errors.New("bridge is closed")
)

const (
	// DefaultPrefix namespaces the bridge's channels.
	DefaultPrefix = "cb"

	// DefaultTimeout bounds how long a Call waits for a reply.
	DefaultTimeout = 10 * time.Second

	// saltLen is the length of a correlation id's random salt.
	saltLen = 8
)

// Responder computes the reply values for an in-bound request.  Its
// return values become the reply payload (zero values are fine).
type Responder func(args ...interface{}) []interface{}

// Conf provides the bridge's parameters.
type Conf struct {
	// Prefix namespaces all channels.  Defaults to DefaultPrefix.
	Prefix string

	// Timeout bounds a Call's wait for a reply.  Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	// Identity uniquely names this process instance.  Required;
	// must not contain ':'.
	Identity string
}

// Bridge is one process's end of the request/response protocol.
type Bridge struct {
	// Verbose turns on debug logging.
	Verbose bool

	conf      Conf
	transport Transport

	sync.Mutex

	// pending maps in-flight correlation ids to their response
	// handlers.  Entries are consumed exactly once: by a matching
	// reply, or purged when the timeout fires.
	pending map[string]func(vals []interface{})

	// responders maps event names to their subscriptions.  Last
	// registration wins.
	responders map[string]Subscription

	replySub Subscription
	closed   bool
}

// New makes a Bridge with the given configuration and transport, and
// subscribes its reply channel.
func New(conf Conf, t Transport) (*Bridge, error) {
	if conf.Identity == "" || strings.Contains(conf.Identity, ":") {
		return nil, BadIdentity
	}
	if conf.Prefix == "" {
		conf.Prefix = DefaultPrefix
	}
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultTimeout
	}

	b := &Bridge{
		conf:       conf,
		transport:  t,
		pending:    make(map[string]func(vals []interface{}), 8),
		responders: make(map[string]Subscription, 8),
	}

	sub, err := t.Subscribe(conf.Prefix+".invoke:"+conf.Identity, b.onReply)
	if err != nil {
		return nil, err
	}
	b.replySub = sub

	return b, nil
}

// Logf logs at debug level if b.Verbose.
func (b *Bridge) Logf(format string, args ...interface{}) {
	if !b.Verbose {
		return
	}
	util.Debugf(format, args...)
}

// onReply handles the reply channel: (correlationId, results...).
func (b *Bridge) onReply(msg *Message) {
	if msg.Local {
		// Our own publish echoed back by the transport.
		return
	}
	if len(msg.Args) == 0 {
		util.Warnf("bridge %s heard an empty reply", b.conf.Identity)
		return
	}
	id, is := msg.Args[0].(string)
	if !is {
		util.Warnf("bridge %s heard a reply with a %T correlation id", b.conf.Identity, msg.Args[0])
		return
	}

	b.Lock()
	h, have := b.pending[id]
	delete(b.pending, id)
	b.Unlock()

	if !have {
		// Stale or unknown: already consumed, timed out, or
		// never ours.
		b.Logf("bridge %s dropping reply for '%s'", b.conf.Identity, id)
		return
	}

	b.Logf("bridge %s resolving '%s' with %s", b.conf.Identity, id, util.JS(msg.Args[1:]))
	h(msg.Args[1:])
}

// Register installs r as the responder for the given event name on
// this process.  The last registration for an event wins; the
// previous responder's subscription is cancelled.
//
// A nil responder is a programmer error and panics.
func (b *Bridge) Register(event string, r Responder) error {
	if r == nil {
		panic("bridge: responder must be invocable")
	}

	b.Lock()
	if b.closed {
		b.Unlock()
		return Closed
	}
	old := b.responders[event]
	delete(b.responders, event)
	b.Unlock()

	if old != nil {
		if err := old.Cancel(); err != nil {
			return err
		}
	}

	sub, err := b.transport.Subscribe(b.conf.Prefix+":"+event, func(msg *Message) {
		b.serve(event, r, msg)
	})
	if err != nil {
		return err
	}

	b.Lock()
	b.responders[event] = sub
	b.Unlock()

	return nil
}

// Deregister removes the responder for the given event name, if any.
func (b *Bridge) Deregister(event string) error {
	b.Lock()
	sub := b.responders[event]
	delete(b.responders, event)
	b.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

// serve handles one in-bound request: (correlationId, args...).
func (b *Bridge) serve(event string, r Responder, msg *Message) {
	if msg.Local {
		return
	}
	if len(msg.Args) == 0 {
		util.Warnf("bridge %s heard an empty request for '%s'", b.conf.Identity, event)
		return
	}
	id, is := msg.Args[0].(string)
	if !is {
		util.Warnf("bridge %s heard a request with a %T correlation id", b.conf.Identity, msg.Args[0])
		return
	}

	caller, err := callerOf(id)
	if err != nil {
		util.Warnf("bridge %s: %s", b.conf.Identity, err)
		return
	}

	b.Logf("bridge %s serving '%s' (%s)", b.conf.Identity, event, id)

	vals := r(msg.Args[1:]...)

	payload := append([]interface{}{id}, vals...)
	channel := b.conf.Prefix + ".invoke:" + caller
	if err := b.transport.Publish(context.Background(), channel, payload...); err != nil {
		util.Errorf("bridge %s reply publish: %s", b.conf.Identity, err)
	}
}

// callerOf extracts the caller identity from a correlation id of the
// form "<event>:<salt>:<identity>".
func callerOf(id string) (string, error) {
	i := strings.LastIndex(id, ":")
	if i < 0 || i == len(id)-1 {
		return "", fmt.Errorf("malformed correlation id '%s'", id)
	}
	return id[i+1:], nil
}

// mint generates a correlation id unique among this bridge's pending
// entries.  Caller must hold the lock.
func (b *Bridge) mint(event string) string {
	for {
		id := event + ":" + util.Gensym(saltLen) + ":" + b.conf.Identity
		if _, have := b.pending[id]; !have {
			return id
		}
	}
}

// forget drops a pending entry, if still present.
func (b *Bridge) forget(id string) {
	b.Lock()
	delete(b.pending, id)
	b.Unlock()
}

// Call sends a request for the given event to the remote process and
// returns a Task for the outcome.
//
// Awaiting the task yields (true, results...) when the reply arrives
// in time and (false) when the timeout or ctx wins the race.  Timeout
// is a soft failure, not an error: the pending entry is purged, and a
// reply arriving later is dropped like any other unmatched reply.
func (b *Bridge) Call(ctx context.Context, event string, args ...interface{}) *async.Task {
	run := async.Spawn(func(callArgs ...interface{}) []interface{} {
		return b.request(ctx, event, callArgs)
	})
	return run(args...)
}

func (b *Bridge) request(ctx context.Context, event string, args []interface{}) []interface{} {
	done := make(chan []interface{}, 1)

	b.Lock()
	if b.closed {
		b.Unlock()
		return []interface{}{false}
	}
	id := b.mint(event)
	b.pending[id] = func(vals []interface{}) {
		done <- vals
	}
	b.Unlock()

	b.Logf("bridge %s calling '%s' (%s) with %s", b.conf.Identity, event, id, util.JS(args))

	payload := append([]interface{}{id}, args...)
	if err := b.transport.Publish(ctx, b.conf.Prefix+":"+event, payload...); err != nil {
		b.forget(id)
		util.Errorf("bridge %s request publish: %s", b.conf.Identity, err)
		return []interface{}{false}
	}

	timer := time.NewTimer(b.conf.Timeout)
	defer timer.Stop()

	select {
	case vals := <-done:
		return append([]interface{}{true}, vals...)
	case <-timer.C:
		b.Logf("bridge %s call '%s' (%s) timed out", b.conf.Identity, event, id)
		b.forget(id)
		return []interface{}{false}
	case <-ctx.Done():
		b.forget(id)
		return []interface{}{false}
	}
}

// Pending returns the number of in-flight requests.
func (b *Bridge) Pending() int {
	b.Lock()
	defer b.Unlock()
	return len(b.pending)
}

// Close cancels the reply subscription and all responder
// subscriptions.  In-flight calls resolve via their timeouts.
func (b *Bridge) Close() error {
	b.Lock()
	if b.closed {
		b.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]Subscription, 0, len(b.responders)+1)
	if b.replySub != nil {
		subs = append(subs, b.replySub)
	}
	for _, sub := range b.responders {
		subs = append(subs, sub)
	}
	b.responders = make(map[string]Subscription)
	b.Unlock()

	var err error
	for _, sub := range subs {
		if e := sub.Cancel(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
