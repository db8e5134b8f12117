// Package zik is the typed control surface for a Parrot Zik headset.
//
// A Client wraps a connected byte stream, usually an RFCOMM socket,
// and exposes the headset's features as plain getters and setters:
// battery, firmware version, noise cancellation, Lou Reed mode, the
// equalizer, head detection, and automatic connection.
//
// Reads are served from a cache of the last observed values when they
// are still fresh; otherwise the device is queried. Writes go to the
// device and the cache adopts the value once the device confirms it.
// Unsolicited device notifications invalidate the affected cache entry,
// trigger a background re-query, and are republished on the
// Notifications channel.
//
// A Client never reconnects. When the transport drops, every call
// fails and the owner decides whether to dial again, for example with
// the connection package.
package zik
