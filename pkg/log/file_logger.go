package log

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Capture files start with a fixed header so tooling can refuse files
// that are not protocol captures. The trailing byte is the format
// version.
var zlogHeader = []byte("ZIKLOG\x01")

// FileLogger appends protocol events to a .zlog capture file.
// Safe for concurrent use; a capture survives process crashes up to the
// last completely written event.
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *cbor.Encoder
	err  error // first write failure, reported by Close
}

// NewFileLogger opens path for appending, creating it (with the capture
// header) if it does not exist.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if _, err := f.Write(zlogHeader); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &FileLogger{
		file: f,
		enc:  encMode.NewEncoder(f),
	}, nil
}

// Log appends one event. Write failures are remembered and surfaced by
// Close; logging never disrupts the session it records.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	if err := l.enc.Encode(event); err != nil && l.err == nil {
		l.err = err
	}
}

// Close syncs and closes the capture file, returning the first error
// seen while writing. Subsequent Log calls are ignored; Close is
// idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.err
	if syncErr := l.file.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
