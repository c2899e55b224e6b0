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

// Package main is modbridge, a daemon that serves scripted
// responders over a transport.
//
// A YAML config file maps event names to ECMAScript responder
// sources:
//
//	identity: server
//	prefix: cb
//	timeout: 10s
//	responders:
//	  sum: |
//	    return _.args[0] + _.args[1];
//
// Usage:
//
//	modbridge -c conf.yaml                     # MQTT at localhost
//	modbridge -c conf.yaml -h tcp://broker -p 1883
//	modbridge -c conf.yaml -transport ws -listen :8372
//	modbridge -c conf.yaml -transport ws -dial ws://host:8372/ws
//	modbridge -c conf.yaml -transport stdio < requests.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/mqttbus"
	"github.com/modlink/modlink/script"
	"github.com/modlink/modlink/stdiobus"
	"github.com/modlink/modlink/util"
	"github.com/modlink/modlink/wsbus"
)

// Conf is the YAML config file.
type Conf struct {
	Identity   string            `yaml:"identity"`
	Prefix     string            `yaml:"prefix"`
	Timeout    string            `yaml:"timeout"`
	Responders map[string]string `yaml:"responders"`
}

func main() {
	var (
		// Follow mosquitto_sub command line args for the
		// broker options.
		confFile  = flag.String("c", "modbridge.yaml", "Config filename")
		transport = flag.String("transport", "mqtt", "Transport: mqtt, ws, or stdio")

		broker    = flag.String("h", "tcp://localhost", "Broker hostname")
		port      = flag.Int("p", 1883, "Broker port")
		clientId  = flag.String("i", "", "MQTT client id (defaults to the identity)")
		userName  = flag.String("u", "", "Username")
		password  = flag.String("P", "", "Password")
		keepAlive = flag.Int("k", 10, "Keep-alive in seconds")
		qos       = flag.Int("qos", 0, "QoS")

		listen = flag.String("listen", "", "WebSocket listen address (hub mode)")
		dial   = flag.String("dial", "", "WebSocket hub URL (peer mode)")

		verbose = flag.Bool("v", false, "Verbosity")
	)
	flag.Parse()

	if *verbose {
		util.Logging = util.DEBUG
	}

	conf, err := readConf(*confFile)
	if err != nil {
		log.Fatal(err)
	}

	timeout := bridge.DefaultTimeout
	if conf.Timeout != "" {
		if timeout, err = time.ParseDuration(conf.Timeout); err != nil {
			log.Fatalf("bad timeout '%s': %s", conf.Timeout, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var t bridge.Transport
	switch *transport {
	case "mqtt":
		id := *clientId
		if id == "" {
			id = conf.Identity
		}
		bus, err := mqttbus.New(&mqttbus.Conf{
			Broker:    fmt.Sprintf("%s:%d", *broker, *port),
			ClientId:  id,
			Username:  *userName,
			Password:  *password,
			KeepAlive: *keepAlive,
			QoS:       byte(*qos),
			Reconnect: true,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer bus.Stop()
		t = bus
	case "ws":
		switch {
		case *listen != "":
			s := wsbus.NewServer(conf.Identity)
			defer s.Close()
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/ws", s.Handler())
				util.Infof("modbridge listening on %s", *listen)
				if err := http.ListenAndServe(*listen, mux); err != nil {
					log.Fatal(err)
				}
			}()
			t = s
		case *dial != "":
			c, err := wsbus.Dial(ctx, *dial, conf.Identity)
			if err != nil {
				log.Fatal(err)
			}
			defer c.Close()
			t = c
		default:
			log.Fatal("ws transport needs -listen or -dial")
		}
	case "stdio":
		bus := stdiobus.New(os.Stdin, os.Stdout, conf.Identity)
		bus.Verbose = *verbose
		go func() {
			<-bus.Done
			util.Infof("modbridge stdin closed")
			cancel()
		}()
		t = bus
	default:
		log.Fatalf("unknown transport '%s'", *transport)
	}

	b, err := bridge.New(bridge.Conf{
		Prefix:   conf.Prefix,
		Timeout:  timeout,
		Identity: conf.Identity,
	}, t)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()
	b.Verbose = *verbose

	for event, src := range conf.Responders {
		r, err := script.Responder(src)
		if err != nil {
			log.Fatalf("responder '%s': %s", event, err)
		}
		if err := b.Register(event, r); err != nil {
			log.Fatalf("register '%s': %s", event, err)
		}
		util.Infof("modbridge serving '%s'", event)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	util.Infof("modbridge shutting down")
}

func readConf(filename string) (*Conf, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var conf Conf
	if err := yaml.Unmarshal(bs, &conf); err != nil {
		return nil, err
	}
	if conf.Identity == "" {
		return nil, fmt.Errorf("%s: identity is required", filename)
	}
	return &conf, nil
}
