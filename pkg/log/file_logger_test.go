package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(sessionID string, dir Direction, layer Layer) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: dir,
		Layer:     layer,
		Category:  CategoryMessage,
		Message: &MessageEvent{
			Type:   MessageTypeRequest,
			Method: "GET",
			Path:   "/api/system/battery/get",
		},
	}
}

func readAll(t *testing.T, reader *Reader) []Event {
	t.Helper()
	var got []Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, e)
	}
	return got
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.zlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	events := []Event{
		testEvent("s-1", DirectionOut, LayerWire),
		testEvent("s-1", DirectionIn, LayerTransport),
		testEvent("s-2", DirectionOut, LayerWire),
	}
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	got := readAll(t, reader)
	require.Len(t, got, len(events))
	for i, e := range got {
		assert.Equal(t, events[i].SessionID, e.SessionID, "event %d", i)
		require.NotNil(t, e.Message, "event %d", i)
		assert.Equal(t, events[i].Message.Path, e.Message.Path, "event %d", i)
	}
}

func TestFileLoggerLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.zlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	// Must not panic or write.
	logger.Log(testEvent("s-1", DirectionIn, LayerWire))

	assert.NoError(t, logger.Close())
}

func TestReaderRejectsNonCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "random.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a capture at all"), 0644))

	_, err := NewReader(path)
	require.ErrorIs(t, err, ErrNotCapture)

	empty := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = NewReader(empty)
	require.ErrorIs(t, err, ErrNotCapture)
}

func TestFileLoggerAppendKeepsHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.zlog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Log(testEvent("s-1", DirectionOut, LayerWire))
		require.NoError(t, logger.Close())
	}

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()
	assert.Len(t, readAll(t, reader), 2)
}

func TestFilterByPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paths.zlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	battery := testEvent("s-1", DirectionOut, LayerWire)
	nc := testEvent("s-1", DirectionOut, LayerWire)
	nc.Message.Path = "/api/audio/noise_cancellation/enabled/get"
	state := testEvent("s-1", DirectionIn, LayerSession)
	state.Message = nil
	state.Category = CategoryState
	state.StateChange = &StateChangeEvent{OldState: "CONNECTING", NewState: "READY"}
	for _, e := range []Event{battery, nc, state} {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())

	reader, err := NewFilteredReader(path, Filter{Path: "/api/system/battery"})
	require.NoError(t, err)
	defer reader.Close()

	got := readAll(t, reader)
	require.Len(t, got, 1)
	assert.Equal(t, "/api/system/battery/get", got[0].Message.Path)
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.zlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	logger.Log(testEvent("s-1", DirectionOut, LayerWire))
	logger.Log(testEvent("s-2", DirectionIn, LayerWire))
	logger.Log(testEvent("s-2", DirectionOut, LayerTransport))
	require.NoError(t, logger.Close())

	in := DirectionIn
	reader, err := NewFilteredReader(path, Filter{SessionID: "s-2", Direction: &in})
	require.NoError(t, err)
	defer reader.Close()

	got := readAll(t, reader)
	require.Len(t, got, 1)
	assert.Equal(t, "s-2", got[0].SessionID)
	assert.Equal(t, DirectionIn, got[0].Direction)
}
