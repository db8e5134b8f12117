// Package connection drives redialing for callers that want to stay
// attached to a headset.
//
// The transport session itself never reconnects; when the headset
// walks out of range the session dies and every call on it fails. This
// package is the owner-side policy for that event: dial again with
// exponential backoff and jitter, reset the backoff once a session
// comes up, and keep going until the context ends.
package connection
