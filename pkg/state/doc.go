// Package state caches the last observed values of device attributes.
//
// The headset reports its state through answers to explicit queries and
// through unsolicited notifications. Answers carry values, notifications
// do not, so a notification marks the affected attribute stale until the
// next answer arrives. Writes are last-write-wins by observation time:
// a late answer that raced a newer one never rolls the cache back.
package state
