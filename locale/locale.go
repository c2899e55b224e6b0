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

// Package locale provides string tables with token substitution and
// digit grouping for user-facing text.
package locale

import (
	"fmt"
	"regexp"
	"strings"
)

// tokens matches substitution markers like {{name}}.
var tokens = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Substitute replaces each {{token}} in s with the corresponding
// value from vars.  Unknown tokens are left as-is.
func Substitute(s string, vars map[string]interface{}) string {
	return tokens.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-2]
		if v, have := vars[name]; have {
			return fmt.Sprintf("%v", v)
		}
		return m
	})
}

// Table is a string table for one language.
type Table struct {
	// Lang names the language, e.g. "en".
	Lang string

	entries  map[string]string
	fallback *Table
}

// NewTable makes a Table with the given entries.
func NewTable(lang string, entries map[string]string) *Table {
	t := &Table{
		Lang:    lang,
		entries: make(map[string]string, len(entries)),
	}
	for k, v := range entries {
		t.entries[k] = v
	}
	return t
}

// WithFallback sets the table consulted for missing keys and returns
// the receiver.
func (t *Table) WithFallback(fallback *Table) *Table {
	t.fallback = fallback
	return t
}

// Get returns the entry for the key with vars substituted.  A
// missing key falls through to the fallback chain and finally to the
// key itself, so a misconfigured table still renders something
// identifiable.
func (t *Table) Get(key string, vars map[string]interface{}) string {
	if s, have := t.entries[key]; have {
		return Substitute(s, vars)
	}
	if t.fallback != nil {
		return t.fallback.Get(key, vars)
	}
	return key
}

// Group formats n with a separator between each group of three
// digits, e.g. Group(1234567, ",") is "1,234,567".
func Group(n int64, sep string) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	out := strings.Join(parts, sep)
	if neg {
		out = "-" + out
	}
	return out
}
