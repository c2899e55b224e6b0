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

// Package stdiobus is a bridge.Transport over a line-oriented
// reader/writer pair.
//
// Each published message is one JSON object per line, so a pair of
// processes connected by pipes (or a shell user typing JSON by hand)
// can talk to a bridge.Bridge.  Lines that are blank or start with
// '#' are ignored, which makes canned input files pleasant to write.
//
// Note that args travel as JSON, so numbers arrive as float64s.
package stdiobus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/util"
)

// Bus reads envelopes from In and writes them to Out.
//
// A Bus is a bridge.Transport.
type Bus struct {
	// Verbose turns on some logging.
	Verbose bool

	name string

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex

	sync.Mutex
	subs   map[string][]*sub
	closed bool

	// Done is closed on EOF from In.
	Done chan struct{}
}

type sub struct {
	bus     *Bus
	channel string
	handler bridge.Handler
}

type envelope struct {
	From    string        `json:"from"`
	Channel string        `json:"channel"`
	Args    []interface{} `json:"args"`
}

// New creates a Bus over the given reader and writer and starts its
// read loop.
//
// The name tags outgoing envelopes and marks incoming envelopes with
// the same tag as local.  Typically in and out are os.Stdin and
// os.Stdout (or the two ends of a pipe to a child process).
func New(in io.Reader, out io.Writer, name string) *Bus {
	b := &Bus{
		name: name,
		in:   in,
		out:  out,
		subs: make(map[string][]*sub),
		Done: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *Bus) logf(format string, args ...interface{}) {
	if b.Verbose {
		util.Debugf("stdiobus "+format, args...)
	}
}

func (b *Bus) readLoop() {
	r := bufio.NewReader(b.in)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				util.Warnf("stdiobus read error: %s", err)
			}
			close(b.Done)
			return
		}
		if strings.HasPrefix(line, "#") || len(strings.TrimSpace(line)) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			util.Warnf("stdiobus bad input: %s", err)
			continue
		}
		b.logf("heard %s %s", env.Channel, util.JS(env.Args))

		b.Lock()
		targets := make([]*sub, 0, len(b.subs[env.Channel]))
		targets = append(targets, b.subs[env.Channel]...)
		b.Unlock()

		for _, s := range targets {
			s.handler(&bridge.Message{
				Channel: env.Channel,
				Args:    env.Args,
				Local:   env.From == b.name,
			})
		}
	}
}

// Publish writes one envelope line to Out.
func (b *Bus) Publish(ctx context.Context, channel string, args ...interface{}) error {
	b.Lock()
	if b.closed {
		b.Unlock()
		return fmt.Errorf("stdiobus: bus is closed")
	}
	b.Unlock()

	js, err := json.Marshal(&envelope{
		From:    b.name,
		Channel: channel,
		Args:    args,
	})
	if err != nil {
		return err
	}
	b.logf("publish %s %s", channel, util.JS(args))

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err = fmt.Fprintf(b.out, "%s\n", js)
	return err
}

// Subscribe registers a handler for a channel.
func (b *Bus) Subscribe(channel string, handler bridge.Handler) (bridge.Subscription, error) {
	if handler == nil {
		panic("stdiobus: nil handler")
	}
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return nil, fmt.Errorf("stdiobus: bus is closed")
	}
	s := &sub{
		bus:     b,
		channel: channel,
		handler: handler,
	}
	b.subs[channel] = append(b.subs[channel], s)
	return s, nil
}

// Cancel removes the subscription.  Safe to call more than once.
func (s *sub) Cancel() error {
	b := s.bus
	b.Lock()
	defer b.Unlock()
	subs := b.subs[s.channel]
	for i, candidate := range subs {
		if candidate == s {
			b.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

// Close stops accepting publishes and drops all subscriptions.
//
// Close does not close In or Out; the caller owns those.
func (b *Bus) Close() error {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return fmt.Errorf("stdiobus: bus is closed")
	}
	b.closed = true
	b.subs = make(map[string][]*sub)
	return nil
}
