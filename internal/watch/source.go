package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/logging"
)

// EmitFunc receives each new event in file order.
type EmitFunc func(domain.HistoryEvent)

// Source drives a Tailer in one of two modes: fixed-interval polling, or
// file-system notification. Both modes deliver the same events in the same
// order; notification mode just reacts sooner.
type Source struct {
	tailer   *Tailer
	interval time.Duration
	usePoll  bool
	log      *logging.Logger
}

// NewSource creates an event source over the history file at path.
func NewSource(path string, interval time.Duration, usePoll bool, log *logging.Logger) (*Source, error) {
	tailer, err := NewTailer(path, log)
	if err != nil {
		return nil, err
	}
	return &Source{
		tailer:   tailer,
		interval: interval,
		usePoll:  usePoll,
		log:      log,
	}, nil
}

// OnMalformed registers a callback invoked for every skipped malformed line.
func (s *Source) OnMalformed(fn func()) {
	s.tailer.OnMalformed = fn
}

// Run blocks, delivering events to emit until ctx is cancelled. A failed poll
// is logged and retried on the next tick; it never stops the loop.
func (s *Source) Run(ctx context.Context, emit EmitFunc) error {
	if s.usePoll {
		return s.runPolling(ctx, emit)
	}
	return s.runNotify(ctx, emit)
}

func (s *Source) runPolling(ctx context.Context, emit EmitFunc) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.drain(emit)
		}
	}
}

// runNotify watches the history file's parent directory so the watch survives
// the file being replaced or created after startup. A slow fallback ticker
// covers editors and network filesystems that coalesce or drop write events.
func (s *Source) runNotify(ctx context.Context, emit EmitFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.tailer.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	fallback := time.NewTicker(s.interval * 4)
	defer fallback.Stop()

	target := filepath.Clean(s.tailer.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fs watcher closed")
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.drain(emit)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fs watcher closed")
			}
			s.log.Warn("fs_watch_error", nil, err)
		case <-fallback.C:
			s.drain(emit)
		}
	}
}

func (s *Source) drain(emit EmitFunc) {
	events, err := s.tailer.Poll()
	if err != nil {
		s.log.Warn("history_poll_failed", nil, err)
		return
	}
	for _, ev := range events {
		emit(ev)
	}
}
