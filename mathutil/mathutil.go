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

// Package mathutil provides small numeric helpers: clamping,
// interpolation, rounding, and piecewise-linear curves.
package mathutil

import (
	"math"
	"sort"
)

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Lerp interpolates linearly from a to b by t in [0,1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}

// Point is one control point of a Curve.
type Point struct {
	X float64
	Y float64
}

// Curve is a piecewise-linear function given by control points.
type Curve struct {
	points []Point
}

// NewCurve makes a Curve from the given points, sorted by X.  At
// least one point is required; fewer is a programmer error and
// panics.
func NewCurve(points ...Point) *Curve {
	if len(points) == 0 {
		panic("mathutil: a curve needs at least one point")
	}
	ps := make([]Point, len(points))
	copy(ps, points)
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].X < ps[j].X
	})
	return &Curve{points: ps}
}

// Eval returns the curve's value at x.  Outside the control range
// the nearest endpoint's Y is returned.
func (c *Curve) Eval(x float64) float64 {
	ps := c.points
	if x <= ps[0].X {
		return ps[0].Y
	}
	if x >= ps[len(ps)-1].X {
		return ps[len(ps)-1].Y
	}
	i := sort.Search(len(ps), func(i int) bool {
		return ps[i].X >= x
	})
	a, b := ps[i-1], ps[i]
	t := (x - a.X) / (b.X - a.X)
	return Lerp(a.Y, b.Y, t)
}
