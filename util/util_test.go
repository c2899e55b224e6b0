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

package util

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	old, oldColor := Logging, Color
	defer func() { Logging, Color = old, oldColor }()
	Logging = WARN
	Color = false

	Debugf("quiet %d", 1)
	Infof("quiet %d", 2)
	Warnf("loud %d", 3)
	Errorf("loud %d", 4)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("low-level messages leaked: %q", out)
	}
	if !strings.Contains(out, "warn loud 3") || !strings.Contains(out, "error loud 4") {
		t.Fatalf("missing messages: %q", out)
	}
}

func TestColorTags(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	old, oldColor := Logging, Color
	defer func() { Logging, Color = old, oldColor }()
	Logging = DEBUG
	Color = true

	Errorf("boom")
	if !strings.Contains(buf.String(), "\033[31merror\033[0m") {
		t.Fatalf("no color tag in %q", buf.String())
	}
}

func TestJS(t *testing.T) {
	if got := JS(map[string]interface{}{"a": 1}); got != `{"a":1}` {
		t.Fatal(got)
	}
	if got := JS(nil); got != "null" {
		t.Fatal(got)
	}
}
