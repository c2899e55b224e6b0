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

package bridge

import "context"

// Message is one unit of pub/sub traffic as seen by a subscriber.
type Message struct {
	// Channel is the logical channel the message arrived on.
	Channel string

	// Args is the message payload.
	Args []interface{}

	// Local reports whether this message originated at the
	// receiving endpoint.  Transports that echo a publisher's own
	// messages back to it set this so the bridge can ignore the
	// loopback.
	Local bool
}

// Handler receives messages for a subscription.
//
// A transport invokes a subscription's handlers sequentially, in
// message arrival order.
type Handler func(msg *Message)

// Subscription represents an active subscription.
type Subscription interface {
	// Cancel stops delivery.  Idempotent.
	Cancel() error
}

// Transport is the publish/subscribe layer the bridge runs on.
//
// Implementations must deliver messages to a channel's subscribers in
// arrival order and may deliver to both local and remote processes.
type Transport interface {
	Publish(ctx context.Context, channel string, args ...interface{}) error
	Subscribe(channel string, h Handler) (Subscription, error)
}
