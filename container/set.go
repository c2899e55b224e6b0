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

package container

// Set is a collection of distinct values.
//
// Not safe for concurrent use.
type Set struct {
	m map[interface{}]struct{}
}

// NewSet makes a Set containing the given values.
func NewSet(values ...interface{}) *Set {
	s := &Set{
		m: make(map[interface{}]struct{}, 8),
	}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts the value.  Reports whether it was newly added.
func (s *Set) Add(v interface{}) bool {
	if _, have := s.m[v]; have {
		return false
	}
	s.m[v] = struct{}{}
	return true
}

// Has reports membership.
func (s *Set) Has(v interface{}) bool {
	_, have := s.m[v]
	return have
}

// Remove deletes the value.  Reports whether it was present.
func (s *Set) Remove(v interface{}) bool {
	if _, have := s.m[v]; !have {
		return false
	}
	delete(s.m, v)
	return true
}

// Len returns the member count.
func (s *Set) Len() int {
	return len(s.m)
}

// Values returns the members in no particular order.
func (s *Set) Values() []interface{} {
	vs := make([]interface{}, 0, len(s.m))
	for v := range s.m {
		vs = append(vs, v)
	}
	return vs
}

// Clear removes all members.
func (s *Set) Clear() {
	s.m = make(map[interface{}]struct{}, 8)
}
