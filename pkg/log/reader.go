package log

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrNotCapture indicates a file that does not carry the .zlog header.
var ErrNotCapture = errors.New("not a protocol capture file")

// Filter selects events while reading a capture. The zero value matches
// everything; set fields combine with AND.
type Filter struct {
	// SessionID matches the transport session, exactly.
	SessionID string

	// Direction, Layer, and Category match the event envelope. Nil
	// means any.
	Direction *Direction
	Layer     *Layer
	Category  *Category

	// Path matches decoded messages whose API path starts with it, so
	// "/api/system/battery" selects both the get and the notify
	// traffic for that endpoint. Events without a decoded message
	// never match a path filter.
	Path string

	// Since and Until bound the event timestamp, half-open.
	Since *time.Time
	Until *time.Time
}

func (f *Filter) matches(event Event) bool {
	switch {
	case f.SessionID != "" && event.SessionID != f.SessionID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.Since != nil && event.Timestamp.Before(*f.Since):
		return false
	case f.Until != nil && !event.Timestamp.Before(*f.Until):
		return false
	}
	if f.Path != "" {
		if event.Message == nil {
			return false
		}
		return strings.HasPrefix(event.Message.Path, f.Path)
	}
	return true
}

// Reader streams events out of a .zlog capture file.
type Reader struct {
	file   *os.File
	dec    *cbor.Decoder
	filter Filter
}

// NewReader creates a Reader that reads all events from the specified log file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture and returns only events matching
// the filter. Fails with ErrNotCapture when the header is missing or
// from an unknown format version.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, len(zlogHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotCapture, path)
	}
	if !bytes.Equal(header, zlogHeader) {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotCapture, path)
	}

	return &Reader{
		file:   f,
		dec:    decMode.NewDecoder(f),
		filter: filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the
// capture.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
