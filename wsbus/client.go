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

package wsbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/util"
)

// Client is a bridge.Transport that dials a wsbus hub.
type Client struct {
	// Verbose turns on debug logging.
	Verbose bool

	name string
	conn *websocket.Conn

	sync.Mutex
	writeMu sync.Mutex
	subs    map[string][]*clientSub
	closed  bool
}

type clientSub struct {
	c       *Client
	channel string
	h       bridge.Handler
	dead    bool
}

// Dial connects to a hub and starts the read loop.  The name tags
// this peer's publishes for echo detection.
func Dial(ctx context.Context, urls, name string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(urls, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		name: name,
		conn: conn,
		subs: make(map[string][]*clientSub, 8),
	}

	go c.readLoop(ctx)

	util.Infof("wsbus %s connected to %s", name, urls)

	return c, nil
}

// Logf logs at debug level if c.Verbose.
func (c *Client) Logf(format string, args ...interface{}) {
	if !c.Verbose {
		return
	}
	util.Debugf(format, args...)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.Lock()
			closed := c.closed
			c.Unlock()
			if !closed {
				util.Warnf("wsbus %s read: %s", c.name, err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			util.Warnf("wsbus %s can't parse %s", c.name, message)
			continue
		}

		c.Lock()
		subs := append([]*clientSub(nil), c.subs[env.Channel]...)
		c.Unlock()

		for _, sub := range subs {
			c.Lock()
			dead := sub.dead
			c.Unlock()
			if dead {
				continue
			}
			sub.h(&bridge.Message{
				Channel: env.Channel,
				Args:    env.Args,
				Local:   env.From == c.name,
			})
		}
	}
}

// Publish writes the args to the hub as a JSON envelope.
func (c *Client) Publish(ctx context.Context, channel string, args ...interface{}) error {
	env := envelope{
		From:    c.name,
		Channel: channel,
		Args:    args,
	}
	js, err := json.Marshal(&env)
	if err != nil {
		return err
	}

	c.Logf("wsbus %s publishing %s", c.name, js)

	// gorilla allows one concurrent writer.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, js)
}

// Subscribe registers a local handler for the channel.
//
// The hub forwards all traffic to every peer, so no subscription
// message crosses the wire; filtering happens here.
func (c *Client) Subscribe(channel string, h bridge.Handler) (bridge.Subscription, error) {
	if h == nil {
		panic("wsbus: handler must be invocable")
	}
	sub := &clientSub{
		c:       c,
		channel: channel,
		h:       h,
	}
	c.Lock()
	c.subs[channel] = append(c.subs[channel], sub)
	c.Unlock()
	return sub, nil
}

// Cancel stops delivery to this subscription.  Idempotent.
func (sub *clientSub) Cancel() error {
	c := sub.c
	c.Lock()
	sub.dead = true
	subs := c.subs[sub.channel]
	for i, x := range subs {
		if x == sub {
			c.subs[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	c.Unlock()
	return nil
}

// Close closes the socket.
func (c *Client) Close() error {
	c.Lock()
	if c.closed {
		c.Unlock()
		return nil
	}
	c.closed = true
	c.Unlock()
	return c.conn.Close()
}
