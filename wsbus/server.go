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

// Package wsbus provides a bridge.Transport over WebSocket.
//
// A Server is a hub: every message it hears from a peer is delivered
// to its own local subscriptions and forwarded to all other peers.  A
// Client dials a hub.  Both are bridge.Transports, so either side of
// a bridge can live on either end of the socket.
//
// The wire format is a JSON envelope {from, channel, args}.  As with
// any JSON transit, numbers arrive as float64.
package wsbus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/util"
)

// envelope is the wire format.
type envelope struct {
	From    string        `json:"from"`
	Channel string        `json:"channel"`
	Args    []interface{} `json:"args"`
}

// Server is a WebSocket hub implementing bridge.Transport.
type Server struct {
	// Verbose turns on debug logging.
	Verbose bool

	name     string
	upgrader websocket.Upgrader

	sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	subs   map[string][]*serverSub
	conns  map[string]chan []byte
	closed bool
}

type serverSub struct {
	s       *Server
	channel string
	h       bridge.Handler
	dead    bool
}

// NewServer makes a hub tagged with the given name (its
// echo-detection id) and starts its dispatcher.
func NewServer(name string) *Server {
	s := &Server{
		name:  name,
		q:     queue.New(),
		subs:  make(map[string][]*serverSub, 8),
		conns: make(map[string]chan []byte, 8),
	}
	s.cond = sync.NewCond(&s.Mutex)
	go s.dispatch()
	return s
}

// Logf logs at debug level if s.Verbose.
func (s *Server) Logf(format string, args ...interface{}) {
	if !s.Verbose {
		return
	}
	util.Debugf(format, args...)
}

type event struct {
	env      envelope
	fromConn string // "" when published by the hub itself
}

func (s *Server) dispatch() {
	for {
		s.Lock()
		for s.q.Length() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.q.Length() == 0 && s.closed {
			s.Unlock()
			return
		}
		e := s.q.Remove().(*event)
		subs := append([]*serverSub(nil), s.subs[e.env.Channel]...)
		s.Unlock()

		// Local subscriptions.
		for _, sub := range subs {
			s.Lock()
			dead := sub.dead
			s.Unlock()
			if dead {
				continue
			}
			sub.h(&bridge.Message{
				Channel: e.env.Channel,
				Args:    e.env.Args,
				Local:   e.env.From == s.name,
			})
		}

		// Fan out to peers, except the one it came from.
		js, err := json.Marshal(&e.env)
		if err != nil {
			util.Errorf("wsbus %s marshal: %s", s.name, err)
			continue
		}
		s.Lock()
		for id, out := range s.conns {
			if id == e.fromConn {
				continue
			}
			select {
			case out <- js:
			default:
				util.Warnf("wsbus %s conn %s blocked", s.name, id)
			}
		}
		s.Unlock()
	}
}

func (s *Server) enqueue(e *event) {
	s.Lock()
	if !s.closed {
		s.q.Add(e)
		s.cond.Signal()
	}
	s.Unlock()
}

// Publish delivers the args to the channel's subscribers here and on
// every connected peer.
func (s *Server) Publish(ctx context.Context, channel string, args ...interface{}) error {
	s.enqueue(&event{
		env: envelope{
			From:    s.name,
			Channel: channel,
			Args:    args,
		},
	})
	return nil
}

// Subscribe registers a local handler for the channel.
func (s *Server) Subscribe(channel string, h bridge.Handler) (bridge.Subscription, error) {
	if h == nil {
		panic("wsbus: handler must be invocable")
	}
	sub := &serverSub{
		s:       s,
		channel: channel,
		h:       h,
	}
	s.Lock()
	s.subs[channel] = append(s.subs[channel], sub)
	s.Unlock()
	return sub, nil
}

// Cancel stops delivery to this subscription.  Idempotent.
func (sub *serverSub) Cancel() error {
	s := sub.s
	s.Lock()
	sub.dead = true
	subs := s.subs[sub.channel]
	for i, x := range subs {
		if x == sub {
			s.subs[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.Unlock()
	return nil
}

// Handler returns the http.Handler that accepts peer connections.
// Mount it wherever you like, e.g. at "/ws".
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			util.Errorf("wsbus %s upgrade: %s", s.name, err)
			return
		}
		defer c.Close()

		s.Lock()
		id := c.RemoteAddr().String() + "/" + util.Gensym(4)
		out := make(chan []byte, 32)
		s.conns[id] = out
		s.Unlock()

		s.Logf("wsbus %s peer %s connected", s.name, id)

		defer func() {
			s.Lock()
			delete(s.conns, id)
			s.Unlock()
			close(out)
		}()

		ctl := make(chan bool)
		defer close(ctl)

		go func() {
			for {
				select {
				case <-ctl:
					return
				case js, ok := <-out:
					if !ok {
						return
					}
					if err := c.WriteMessage(websocket.TextMessage, js); err != nil {
						util.Warnf("wsbus %s write to %s: %s", s.name, id, err)
						return
					}
				}
			}
		}()

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				s.Logf("wsbus %s peer %s gone: %s", s.name, id, err)
				return
			}
			var env envelope
			if err := json.Unmarshal(message, &env); err != nil {
				util.Warnf("wsbus %s can't parse %s from %s", s.name, message, id)
				continue
			}
			s.enqueue(&event{
				env:      env,
				fromConn: id,
			})
		}
	})
}

// Close shuts down the dispatcher.  Connections unwind as their
// sockets close.
func (s *Server) Close() error {
	s.Lock()
	s.closed = true
	s.cond.Signal()
	s.Unlock()
	return nil
}
