package log

// MultiLogger fans one event stream out to several sinks, typically a
// .zlog capture file plus console output via SlogAdapter.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger builds a MultiLogger from the given sinks. Nil and
// NoopLogger entries are dropped so callers can pass optional loggers
// without guarding.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	m := &MultiLogger{sinks: make([]Logger, 0, len(sinks))}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if _, noop := s.(NoopLogger); noop {
			continue
		}
		m.sinks = append(m.sinks, s)
	}
	return m
}

// Log delivers the event to every sink, in registration order.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
