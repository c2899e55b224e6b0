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

// Package container provides small data structures: an
// insertion-ordered map, a set, and a weighted-chance pool.
package container

// OrderedMap is a map that remembers insertion order.  Re-setting an
// existing key keeps its original position.
//
// Not safe for concurrent use.
type OrderedMap struct {
	m    map[interface{}]interface{}
	keys []interface{}
}

// NewOrderedMap makes an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{
		m:    make(map[interface{}]interface{}, 8),
		keys: make([]interface{}, 0, 8),
	}
}

// Set inserts or updates the value for the key.
func (om *OrderedMap) Set(key, value interface{}) {
	if _, have := om.m[key]; !have {
		om.keys = append(om.keys, key)
	}
	om.m[key] = value
}

// Get returns the value for the key and whether it exists.
func (om *OrderedMap) Get(key interface{}) (interface{}, bool) {
	v, have := om.m[key]
	return v, have
}

// Delete removes the key, if present.
func (om *OrderedMap) Delete(key interface{}) {
	if _, have := om.m[key]; !have {
		return
	}
	delete(om.m, key)
	for i, k := range om.keys {
		if k == key {
			om.keys = append(om.keys[:i], om.keys[i+1:]...)
			break
		}
	}
}

// Len returns the entry count.
func (om *OrderedMap) Len() int {
	return len(om.m)
}

// Keys returns the keys in insertion order.
func (om *OrderedMap) Keys() []interface{} {
	keys := make([]interface{}, len(om.keys))
	copy(keys, om.keys)
	return keys
}

// Range calls f for each entry in insertion order, stopping if f
// returns false.
func (om *OrderedMap) Range(f func(key, value interface{}) bool) {
	for _, k := range om.keys {
		if !f(k, om.m[k]) {
			return
		}
	}
}
