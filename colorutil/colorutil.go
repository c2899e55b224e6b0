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

// Package colorutil provides color conversion and blending on 8-bit
// RGB values, backed by go-colorful.
package colorutil

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

func toColorful(c RGB) colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

func fromColorful(c colorful.Color) RGB {
	c = c.Clamped()
	return RGB{
		R: uint8(c.R*255.0 + 0.5),
		G: uint8(c.G*255.0 + 0.5),
		B: uint8(c.B*255.0 + 0.5),
	}
}

// ParseHex parses "#rrggbb".
func ParseHex(s string) (RGB, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, err
	}
	return fromColorful(c), nil
}

// Hex renders the color as "#rrggbb".
func (c RGB) Hex() string {
	return toColorful(c).Hex()
}

// HSV returns hue in [0,360), saturation and value in [0,1].
func (c RGB) HSV() (h, s, v float64) {
	return toColorful(c).Hsv()
}

// FromHSV makes a color from hue in [0,360), saturation and value in
// [0,1].
func FromHSV(h, s, v float64) RGB {
	return fromColorful(colorful.Hsv(h, s, v))
}

// Blend mixes a toward b by t in [0,1] in HCL space, which keeps the
// intermediate colors perceptually sane.
func Blend(a, b RGB, t float64) RGB {
	return fromColorful(toColorful(a).BlendHcl(toColorful(b), t))
}
