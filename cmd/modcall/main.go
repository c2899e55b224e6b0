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

// Package main is modcall, a little client that issues one request
// and prints the reply.
//
// Arguments after the flags are the event name and then the request
// arguments.  Each argument is parsed as JSON when possible and
// passed as a plain string otherwise:
//
//	modcall sum 2 3
//	modcall -transport ws -dial ws://localhost:8372/ws greet '"ada"'
//
// Exits 0 when a reply arrives and 1 on timeout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/mqttbus"
	"github.com/modlink/modlink/util"
	"github.com/modlink/modlink/wsbus"
)

func main() {
	var (
		transport = flag.String("transport", "mqtt", "Transport: mqtt or ws")

		broker   = flag.String("h", "tcp://localhost", "Broker hostname")
		port     = flag.Int("p", 1883, "Broker port")
		userName = flag.String("u", "", "Username")
		password = flag.String("P", "", "Password")
		qos      = flag.Int("qos", 0, "QoS")

		dial = flag.String("dial", "", "WebSocket hub URL")

		identity = flag.String("id", "", "Caller identity (default: random)")
		prefix   = flag.String("prefix", "", "Channel prefix")
		timeout  = flag.Duration("timeout", bridge.DefaultTimeout, "Reply timeout")
		verbose  = flag.Bool("v", false, "Verbosity")
	)
	flag.Parse()

	if *verbose {
		util.Logging = util.DEBUG
	}

	if flag.NArg() < 1 {
		log.Fatal("usage: modcall [flags] EVENT [ARG ...]")
	}
	event := flag.Arg(0)

	args := make([]interface{}, 0, flag.NArg()-1)
	for _, s := range flag.Args()[1:] {
		args = append(args, dwimjs(s))
	}

	id := *identity
	if id == "" {
		id = "modcall-" + util.Gensym(8)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var t bridge.Transport
	switch *transport {
	case "mqtt":
		bus, err := mqttbus.New(&mqttbus.Conf{
			Broker:   fmt.Sprintf("%s:%d", *broker, *port),
			ClientId: id,
			Username: *userName,
			Password: *password,
			QoS:      byte(*qos),
		})
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Stop()
		t = bus
	case "ws":
		if *dial == "" {
			log.Fatal("ws transport needs -dial")
		}
		c, err := wsbus.Dial(ctx, *dial, id)
		if err != nil {
			log.Fatal(err)
		}
		defer c.Close()
		t = c
	default:
		log.Fatalf("unknown transport '%s'", *transport)
	}

	b, err := bridge.New(bridge.Conf{
		Prefix:   *prefix,
		Timeout:  *timeout,
		Identity: id,
	}, t)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()
	b.Verbose = *verbose

	// Give the subscriptions a beat to land before publishing.
	time.Sleep(100 * time.Millisecond)

	vals := b.Call(ctx, event, args...).Await()
	if len(vals) == 0 || vals[0] != true {
		fmt.Println("timeout")
		os.Exit(1)
	}

	fmt.Println(util.JS(vals[1:]))
}

// dwimjs parses s as JSON when it can and returns s itself when it
// can't.
func dwimjs(s string) interface{} {
	var x interface{}
	if err := json.Unmarshal([]byte(s), &x); err != nil {
		return s
	}
	return x
}
