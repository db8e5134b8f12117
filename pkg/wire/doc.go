// Package wire defines the Zik control-channel wire format.
//
// The Parrot Zik exposes an HTTP-ish request/reply API over its RFCOMM
// control channel. Requests are single ASCII lines:
//
//	GET /api/system/battery/get
//	SET /api/audio/noise_cancellation/enabled/set?arg=true
//
// Replies and unsolicited events are small XML documents:
//
//	<answer path="/api/system/battery/get">
//	  <system><battery state="in-use" level="82"/></system>
//	</answer>
//
//	<notify path="/api/system/battery/get"/>
//
// The answer's path attribute echoes the request path and is the
// correlation token for matching replies to in-flight requests. A
// notify carries no values; clients re-query the notified path.
//
// # Forward compatibility
//
// Firmware revisions add elements and attributes freely. Decoding
// ignores anything unknown; only a missing path attribute or
// structurally broken XML fails a decode, and such a failure is fatal
// to that single message only.
//
// The codec is purely functional: no I/O, no shared state, and
// deterministic output for a given input.
package wire
