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
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// BusClosed is returned by Loopback operations after Close.
var BusClosed = errors.New("loopback is closed")

// Loopback is an in-process Transport for coupling roles within one
// process.  Each role gets its own Endpoint.  A publish is delivered,
// in publish order, to every subscription on the channel across all
// endpoints, and the publisher's own echo is marked Local.
//
// Delivery runs on a single dispatch goroutine, so handlers for one
// Loopback never run concurrently with each other.  The pending
// queue is unbounded, which lets a handler publish (a responder
// sending its reply) without deadlocking the dispatcher.
type Loopback struct {
	sync.Mutex
	cond   *sync.Cond
	subs   map[string][]*loopSub
	q      *queue.Queue
	closed bool
}

type delivery struct {
	from    *Endpoint
	channel string
	args    []interface{}
}

// Endpoint is one role's connection to a Loopback.
type Endpoint struct {
	bus  *Loopback
	name string
}

type loopSub struct {
	bus     *Loopback
	ep      *Endpoint
	channel string
	h       Handler
	dead    bool
}

// NewLoopback makes a Loopback and starts its dispatcher.
func NewLoopback() *Loopback {
	l := &Loopback{
		subs: make(map[string][]*loopSub, 8),
		q:    queue.New(),
	}
	l.cond = sync.NewCond(&l.Mutex)
	go l.dispatch()
	return l
}

// Endpoint makes a named endpoint on the bus.
func (l *Loopback) Endpoint(name string) *Endpoint {
	return &Endpoint{bus: l, name: name}
}

func (l *Loopback) dispatch() {
	for {
		l.Lock()
		for l.q.Length() == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.q.Length() == 0 && l.closed {
			l.Unlock()
			return
		}
		d := l.q.Remove().(*delivery)
		subs := append([]*loopSub(nil), l.subs[d.channel]...)
		l.Unlock()

		for _, s := range subs {
			l.Lock()
			dead := s.dead
			l.Unlock()
			if dead {
				continue
			}
			s.h(&Message{
				Channel: d.channel,
				Args:    d.args,
				Local:   s.ep == d.from,
			})
		}
	}
}

// Close shuts down the bus after draining already-queued deliveries.
func (l *Loopback) Close() error {
	l.Lock()
	l.closed = true
	l.cond.Signal()
	l.Unlock()
	return nil
}

// Publish queues the message for in-order delivery to the channel's
// subscribers on all endpoints.
func (ep *Endpoint) Publish(ctx context.Context, channel string, args ...interface{}) error {
	l := ep.bus
	l.Lock()
	if l.closed {
		l.Unlock()
		return BusClosed
	}
	l.q.Add(&delivery{
		from:    ep,
		channel: channel,
		args:    args,
	})
	l.cond.Signal()
	l.Unlock()
	return nil
}

// Subscribe registers a handler for the channel.
func (ep *Endpoint) Subscribe(channel string, h Handler) (Subscription, error) {
	if h == nil {
		panic("bridge: handler must be invocable")
	}
	l := ep.bus
	l.Lock()
	if l.closed {
		l.Unlock()
		return nil, BusClosed
	}
	s := &loopSub{
		bus:     l,
		ep:      ep,
		channel: channel,
		h:       h,
	}
	l.subs[channel] = append(l.subs[channel], s)
	l.Unlock()
	return s, nil
}

// Cancel stops delivery to this subscription.  Idempotent.
func (s *loopSub) Cancel() error {
	l := s.bus
	l.Lock()
	s.dead = true
	subs := l.subs[s.channel]
	for i, x := range subs {
		if x == s {
			l.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	l.Unlock()
	return nil
}
