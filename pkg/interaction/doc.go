// Package interaction matches device answers to outstanding requests.
//
// The protocol carries no request identifier. An answer echoes the path
// of the request it replies to, so the path is the correlation key.
// Identical requests issued concurrently for the same path share a
// single wire exchange; a conflicting request on a busy path is
// rejected rather than queued, because its answer would be
// indistinguishable from the first one.
//
// Messages that match no outstanding request, including all
// notifications, are handed to the unsolicited callback.
package interaction
