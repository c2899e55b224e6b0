// Package modlink provides building blocks for event-driven mod
// scripting: listener multiplexing, timers, one-shot async tasks, and
// correlated request/response calls between processes over pub/sub
// transports.
//
// The core code is in packages 'delegate', 'timers', 'async', and
// 'bridge', and some command-line tools are in `cmd`.
package modlink
