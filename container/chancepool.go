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

import "math/rand"

// ChancePool picks items at random with probability proportional to
// their weights.
//
// Not safe for concurrent use.
type ChancePool struct {
	items   []interface{}
	weights []float64
	total   float64
}

// NewChancePool makes an empty pool.
func NewChancePool() *ChancePool {
	return &ChancePool{
		items:   make([]interface{}, 0, 8),
		weights: make([]float64, 0, 8),
	}
}

// Add inserts an item with the given weight.  Non-positive weights
// are a programmer error and panic.
func (p *ChancePool) Add(item interface{}, weight float64) {
	if weight <= 0 {
		panic("container: chance weight must be positive")
	}
	p.items = append(p.items, item)
	p.weights = append(p.weights, weight)
	p.total += weight
}

// Len returns the item count.
func (p *ChancePool) Len() int {
	return len(p.items)
}

// Pick returns a random item, weighted.  Returns nil for an empty
// pool.
func (p *ChancePool) Pick() interface{} {
	return p.PickWith(rand.Float64)
}

// PickWith is Pick with a caller-supplied source of uniform [0,1)
// randoms, which makes selection testable.
func (p *ChancePool) PickWith(random func() float64) interface{} {
	if len(p.items) == 0 {
		return nil
	}
	x := random() * p.total
	for i, w := range p.weights {
		x -= w
		if x < 0 {
			return p.items[i]
		}
	}
	// Rounding pushed us past the end.
	return p.items[len(p.items)-1]
}
