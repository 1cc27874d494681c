package trigger

import "strings"

// Result says whether to invoke the classifier for the current event.
// Forced triggers bypass the intervention confidence gate downstream.
type Result struct {
	Fire   bool
	Forced bool
}

// Policy fires the classifier on suspicious phrasing immediately, otherwise
// on a fixed cadence of every Nth event. Not safe for concurrent use; the
// ingestion loop owns it.
type Policy struct {
	frequency int
	phrases   []string
	counter   int
}

// NewPolicy creates a policy checking every frequency-th event, with the
// given suspicious phrases (matched case-insensitively as substrings).
func NewPolicy(frequency int, phrases []string) *Policy {
	if frequency < 1 {
		frequency = 1
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &Policy{frequency: frequency, phrases: lowered}
}

// Observe counts an event that is handled elsewhere, so the cadence stays
// aligned with the event stream without triggering analysis.
func (p *Policy) Observe() {
	p.counter++
}

// Evaluate records one event and decides whether to trigger analysis.
// No trigger fires while no task instruction is known.
func (p *Policy) Evaluate(display string, haveInstruction bool) Result {
	p.counter++

	if !haveInstruction {
		return Result{}
	}

	if p.suspicious(display) {
		return Result{Fire: true, Forced: true}
	}
	if p.counter%p.frequency == 0 {
		return Result{Fire: true}
	}
	return Result{}
}

func (p *Policy) suspicious(display string) bool {
	lower := strings.ToLower(display)
	for _, phrase := range p.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
