// Package watch tails the agent's append-only history log and emits parsed
// events exactly once, in file order.
package watch

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
)

// Tailer reads newly appended history lines from a single JSONL file.
// It tracks a persistent byte offset; the offset always advances past data it
// has seen, including lines that failed to parse, so corrupt records are
// never reprocessed.
type Tailer struct {
	path   string
	offset int64
	log    *logging.Logger

	// OnMalformed, when set, is called once per skipped malformed line.
	OnMalformed func()
}

// NewTailer creates a tailer positioned at the current end of file, so
// history written before attach is never replayed. A missing file is not an
// error; the offset starts at zero and the file is picked up when it appears.
func NewTailer(path string, log *logging.Logger) (*Tailer, error) {
	t := &Tailer{path: path, log: log}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("stat history file: %w", err)
	}
	t.offset = info.Size()
	return t, nil
}

// Offset returns the current read position (for tests and diagnostics).
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Poll reads from the stored offset to the current end of file and returns
// every well-formed event in file order. Malformed lines are logged and
// skipped. Transient read failures leave the offset untouched so the next
// tick retries the same range.
func (t *Tailer) Poll() ([]domain.HistoryEvent, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat history file: %w", err)
	}

	// Truncation or rotation: everything we knew about is gone.
	if info.Size() < t.offset {
		t.log.Warn("history_truncated", map[string]interface{}{
			"old_offset": t.offset,
			"new_size":   info.Size(),
		}, nil)
		t.offset = info.Size()
		return nil, nil
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek history file: %w", err)
	}

	var events []domain.HistoryEvent
	consumed := int64(0)

	// The offset advances by the exact bytes each line occupies on disk,
	// delimiter included, so CRLF endings never drift the position.
	reader := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// A line with no trailing newline yet may still be mid-append;
			// leave it for the next poll.
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read history file: %w", err)
		}
		consumed += int64(len(line))

		record := bytes.TrimRight(line, "\r\n")
		if len(record) == 0 {
			continue
		}

		ev, err := domain.ParseHistoryLine(record)
		if err != nil {
			t.log.Warn("history_line_skipped", map[string]interface{}{
				"offset": t.offset + consumed,
			}, err)
			if t.OnMalformed != nil {
				t.OnMalformed()
			}
			continue
		}
		events = append(events, ev)
	}

	t.offset += consumed
	return events, nil
}
