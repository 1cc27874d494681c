// Package memory holds the sliding task context the classifier judges
// against: the active instruction, todo lists, and a bounded window of the
// most recent agent events.
package memory

import (
	"sync"

	"github.com/joss/hawtch/internal/domain"
)

// ContextBuffer is a fixed-capacity, insertion-ordered window of recent
// events plus the active task state. Append and Snapshot are safe to call
// from different goroutines.
type ContextBuffer struct {
	mu sync.Mutex

	instruction    string
	currentTodos   []string
	completedTodos []string

	// ring of the last `capacity` events; start points at the oldest.
	events   []domain.HistoryEvent
	start    int
	count    int
	capacity int
}

// NewContextBuffer creates a buffer holding at most capacity events.
func NewContextBuffer(capacity int) *ContextBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ContextBuffer{
		events:   make([]domain.HistoryEvent, capacity),
		capacity: capacity,
	}
}

// SetInstruction sets the task instruction and resets the todo lists.
func (b *ContextBuffer) SetInstruction(instruction string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instruction = instruction
	b.currentTodos = nil
	b.completedTodos = nil
}

// Instruction returns the active task instruction, empty until set or
// inferred.
func (b *ContextBuffer) Instruction() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.instruction
}

// SetTodos replaces the todo lists. A nil slice leaves the corresponding
// list unchanged.
func (b *ContextBuffer) SetTodos(current, completed []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current != nil {
		b.currentTodos = append([]string(nil), current...)
	}
	if completed != nil {
		b.completedTodos = append([]string(nil), completed...)
	}
}

// Append adds an event to the window, evicting the oldest when full. If no
// instruction is known yet, the first event's display text is adopted as the
// instruction (one-time heuristic).
func (b *ContextBuffer) Append(ev domain.HistoryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.instruction == "" {
		b.instruction = ev.Display
	}

	if b.count < b.capacity {
		b.events[(b.start+b.count)%b.capacity] = ev
		b.count++
		return
	}
	b.events[b.start] = ev
	b.start = (b.start + 1) % b.capacity
}

// Len returns the number of buffered events.
func (b *ContextBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Snapshot returns an immutable copy of the current task context. The copy is
// taken under the lock, so a concurrent Append can never leave a partially
// appended event visible to the classifier.
func (b *ContextBuffer) Snapshot() domain.TaskContext {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := make([]domain.HistoryEvent, b.count)
	for i := 0; i < b.count; i++ {
		events[i] = b.events[(b.start+i)%b.capacity]
	}

	return domain.TaskContext{
		Instruction:    b.instruction,
		RecentEvents:   events,
		CurrentTodos:   append([]string(nil), b.currentTodos...),
		CompletedTodos: append([]string(nil), b.completedTodos...),
	}
}
