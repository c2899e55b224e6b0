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

// Package mqttbus provides a bridge.Transport backed by an MQTT
// broker.
//
// Channels map directly to MQTT topics.  Payloads are JSON envelopes
// carrying the publisher's client id, which lets a subscriber detect
// its own echoes (an MQTT broker delivers a publish back to the
// publisher when it subscribes to the same topic).
//
// Note that JSON transit turns numbers into float64.  Responders and
// callers exchanging numbers over this transport should expect that.
package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/util"
)

// Conf provides broker session parameters.
//
// Field names follow mosquitto client conventions.
type Conf struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string

	// ClientId identifies this session.  Required: it is also
	// the echo-detection tag.
	ClientId string

	Username string
	Password string

	// KeepAlive in seconds.  Defaults to 10.
	KeepAlive int

	// QoS for publishes and subscriptions.
	QoS byte

	// Quiesce is the disconnection quiescence in milliseconds.
	// Defaults to 100.
	Quiesce uint

	// Reconnect enables automatic reconnection.
	Reconnect bool
}

// envelope is the wire format.
type envelope struct {
	From string        `json:"from"`
	Args []interface{} `json:"args"`
}

// Bus is a bridge.Transport over one MQTT session.
type Bus struct {
	// Verbose turns on debug logging.
	Verbose bool

	client  mqtt.Client
	conf    *Conf
	quiesce uint
}

// New connects to the broker and returns the Bus.
func New(conf *Conf) (*Bus, error) {
	if conf.ClientId == "" {
		return nil, fmt.Errorf("mqttbus: ClientId is required")
	}
	if conf.Broker == "" {
		conf.Broker = "tcp://localhost:1883"
	}
	if conf.KeepAlive == 0 {
		conf.KeepAlive = 10
	}
	if conf.Quiesce == 0 {
		conf.Quiesce = 100
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(conf.ClientId)
	opts.SetKeepAlive(time.Second * time.Duration(conf.KeepAlive))
	opts.Username = conf.Username
	opts.Password = conf.Password
	opts.AutoReconnect = conf.Reconnect
	opts.CleanSession = true

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		util.Warnf("mqttbus %s connection lost: %s", conf.ClientId, err)
	}

	b := &Bus{
		client:  mqtt.NewClient(opts),
		conf:    conf,
		quiesce: conf.Quiesce,
	}

	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	util.Infof("mqttbus %s connected to %s", conf.ClientId, conf.Broker)

	return b, nil
}

// Logf logs at debug level if b.Verbose.
func (b *Bus) Logf(format string, args ...interface{}) {
	if !b.Verbose {
		return
	}
	util.Debugf(format, args...)
}

// Publish sends the args to the channel's topic as a JSON envelope.
func (b *Bus) Publish(ctx context.Context, channel string, args ...interface{}) error {
	env := envelope{
		From: b.conf.ClientId,
		Args: args,
	}
	js, err := json.Marshal(&env)
	if err != nil {
		return err
	}

	b.Logf("mqttbus %s publishing %s to %s", b.conf.ClientId, js, channel)

	token := b.client.Publish(channel, b.conf.QoS, false, js)
	token.Wait()
	return token.Error()
}

type sub struct {
	bus     *Bus
	channel string
}

// Subscribe registers a handler for the channel's topic.
func (b *Bus) Subscribe(channel string, h bridge.Handler) (bridge.Subscription, error) {
	if h == nil {
		panic("mqttbus: handler must be invocable")
	}

	f := func(client mqtt.Client, msg mqtt.Message) {
		var env envelope
		if err := json.Unmarshal(msg.Payload(), &env); err != nil {
			util.Warnf("mqttbus %s couldn't parse payload on %s: %s", b.conf.ClientId, msg.Topic(), err)
			return
		}
		h(&bridge.Message{
			Channel: channel,
			Args:    env.Args,
			Local:   env.From == b.conf.ClientId,
		})
	}

	if token := b.client.Subscribe(channel, b.conf.QoS, f); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	b.Logf("mqttbus %s subscribed to %s", b.conf.ClientId, channel)

	return &sub{bus: b, channel: channel}, nil
}

// Cancel unsubscribes from the channel's topic.
func (s *sub) Cancel() error {
	token := s.bus.client.Unsubscribe(s.channel)
	token.Wait()
	return token.Error()
}

// Stop disconnects from the broker.
func (b *Bus) Stop() {
	b.client.Disconnect(b.quiesce)
}
