// Package audit delivers session events (handshakes, issuance, revocations,
// magic token use, fast path rejections) to a [Sink] off the request path.
//
// [Dispatcher] queues events in a bounded channel drained by one goroutine.
// With DropIfFull a full queue discards ordinary events and counts them;
// events matched by Config.Retain, such as stamp rotations, wait for space
// instead. Close drains whatever is queued.
//
// Events never carry tokens, stamps or raw init data. The engine decides
// which events exist; this package only moves them.
package audit
