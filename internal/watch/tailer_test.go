package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter("test", io.Discard)
}

func writeLine(t *testing.T, path, display string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = fmt.Fprintf(f, `{"display":%q,"timestamp":1714000000000,"project":"p","sessionId":"s"}`+"\n", display)
	require.NoError(t, err)
}

func writeRaw(t *testing.T, path, raw string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(raw)
	require.NoError(t, err)
}

func TestTailerStartsAtEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	writeLine(t, path, "old event")

	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	events, err := tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events, "events before attach must not replay")

	writeLine(t, path, "new event")
	events, err = tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new event", events[0].Display)
}

func TestTailerEmitsOnceInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		writeLine(t, path, fmt.Sprintf("event %d", i))
	}

	events, err := tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprintf("event %d", i), ev.Display)
	}

	// Second poll with no new data yields nothing.
	events, err = tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTailerSkipsMalformedAndAdvances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	writeLine(t, path, "good one")
	writeRaw(t, path, "this is not json\n")
	writeRaw(t, path, `{"timestamp":1714000000000}`+"\n")
	writeLine(t, path, "good two")

	events, err := tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "good one", events[0].Display)
	assert.Equal(t, "good two", events[1].Display)

	// The bad lines were consumed; nothing is re-read.
	events, err = tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTailerCRLFLinesEmitOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	write := func(from, to int) {
		for i := from; i < to; i++ {
			writeRaw(t, path, fmt.Sprintf(
				`{"display":"event %d","timestamp":1714000000000,"project":"p","sessionId":"s"}`+"\r\n", i))
		}
	}

	// The two-byte delimiter must not drift the offset, even across many
	// lines and repeated polls.
	seen := map[string]int{}
	write(0, 150)
	events, err := tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 150)
	for _, ev := range events {
		seen[ev.Display]++
	}

	write(150, 300)
	events, err = tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 150)
	for _, ev := range events {
		seen[ev.Display]++
	}

	for display, n := range seen {
		assert.Equalf(t, 1, n, "%q emitted %d times", display, n)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), tailer.Offset())

	events, err = tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTailerHoldsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	writeRaw(t, path, `{"display":"half`)
	events, err := tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events, "a line without a newline may still be mid-append")

	writeRaw(t, path, ` written","timestamp":1714000000000}`+"\n")
	events, err = tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "half written", events[0].Display)
}

func TestTailerResetsOnTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	writeLine(t, path, "before truncate")
	_, err = tailer.Poll()
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, 0))
	events, err := tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, tailer.Offset())

	writeLine(t, path, "after truncate")
	events, err = tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "after truncate", events[0].Display)
}

func TestTailerMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	tailer, err := NewTailer(path, testLogger())
	require.NoError(t, err)

	events, err := tailer.Poll()
	require.NoError(t, err)
	assert.Empty(t, events)

	// File appears later; its contents are new data.
	writeLine(t, path, "first ever")
	events, err = tailer.Poll()
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestSourcePollingMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	source, err := NewSource(path, 10*time.Millisecond, true, testLogger())
	require.NoError(t, err)

	got := make(chan domain.HistoryEvent, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = source.Run(ctx, func(ev domain.HistoryEvent) { got <- ev })
	}()

	writeLine(t, path, "polled event")

	select {
	case ev := <-got:
		assert.Equal(t, "polled event", ev.Display)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polled event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("source did not stop after cancel")
	}
}
