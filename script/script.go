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

// Package script compiles ECMAScript source into bridge Responders
// using Goja, a Go implementation of ECMAScript 5.1+.
//
// The source runs with an environment object at _:
//
//	_.args: the request arguments (an array).
//	_.log(x): log x at debug level.
//
// The script's value becomes the reply payload: an array is spread
// into multiple reply values, any other non-null value becomes a
// single reply value, and null/undefined yields an empty reply.
package script

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/modlink/modlink/bridge"
	"github.com/modlink/modlink/util"
)

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// Compile precompiles the given source.
func Compile(src string) (*goja.Program, error) {
	code := wrapSrc(src)
	p, err := goja.Compile("", code, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", err, code)
	}
	return p, nil
}

// Responder compiles src into a bridge.Responder.
//
// Each invocation runs on a fresh runtime, so responders are safe to
// invoke from any goroutine.  A runtime error logs and yields an
// empty reply (the bridge's caller still gets its reply message).
func Responder(src string) (bridge.Responder, error) {
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}

	return func(args ...interface{}) []interface{} {
		o := goja.New()

		env := map[string]interface{}{
			"args": args,
			"log": func(x interface{}) {
				util.Debugf("script: %s", util.JS(x))
			},
		}
		o.Set("_", env)

		v, err := o.RunProgram(p)
		if err != nil {
			util.Errorf("script error: %s", err)
			return nil
		}

		x := v.Export()
		switch vv := x.(type) {
		case nil:
			return nil
		case []interface{}:
			return vv
		default:
			return []interface{}{vv}
		}
	}, nil
}
