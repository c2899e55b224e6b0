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

// Package util provides leveled, colored logging and small helpers
// shared across the library.
package util

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
)

// Level selects the lowest level that gets logged.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// Logging is the current log level.  Messages below this level are
// dropped.
var Logging = INFO

// Color turns ANSI color codes on or off for level tags.
var Color = true

var (
	levelTags = map[Level]string{
		DEBUG: "debug",
		INFO:  "info",
		WARN:  "warn",
		ERROR: "error",
	}

	// ANSI SGR codes per level: gray, green, yellow, red.
	levelColors = map[Level]string{
		DEBUG: "90",
		INFO:  "32",
		WARN:  "33",
		ERROR: "31",
	}
)

func logf(level Level, format string, args ...interface{}) {
	if level < Logging {
		return
	}
	tag := levelTags[level]
	if Color {
		tag = "\033[" + levelColors[level] + "m" + tag + "\033[0m"
	}
	log.Printf(tag+" "+format, args...)
}

// Debugf logs at DEBUG.
func Debugf(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Infof logs at INFO.
func Infof(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Warnf logs at WARN.
func Warnf(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Errorf logs at ERROR.
func Errorf(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// alphabet is used by Gensym.
var alphabet = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// Gensym makes a random string of the given length.
func Gensym(n int) string {
	bs := make([]byte, n)
	for i := 0; i < len(bs); i++ {
		bs[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(bs)
}

// JS renders its argument as JSON or as '%#v'.
func JS(x interface{}) string {
	if x == nil {
		return "null"
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}
