package certify

import "time"

// Entry records one criterion evaluation.
type Entry struct {
	Criterion string        `json:"criterion"`
	Tier      Tier          `json:"tier"`
	Verdict   Verdict       `json:"verdict"`
	Failure   *ToolFailure  `json:"failure,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Failed reports whether the entry holds an infrastructure failure.
func (e Entry) Failed() bool { return e.Failure != nil }

// Trail is the ordered justification of a certification run.
type Trail []Entry

// Names returns the criterion names in evaluation order.
func (t Trail) Names() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.Criterion
	}
	return out
}

// Failures returns the infrastructure failures in evaluation order.
func (t Trail) Failures() []*ToolFailure {
	var out []*ToolFailure
	for _, e := range t {
		if e.Failure != nil {
			out = append(out, e.Failure)
		}
	}
	return out
}

// Find returns the entry for the named criterion.
func (t Trail) Find(name string) (Entry, bool) {
	for _, e := range t {
		if e.Criterion == name {
			return e, true
		}
	}
	return Entry{}, false
}

// cause derives the Undetermined cause from the recorded failures.
func (t Trail) cause() Cause {
	failures := t.Failures()
	if len(failures) == 0 {
		return MathematicallyInconclusive
	}
	for _, f := range failures {
		if f.Class != ToolNotFound {
			return ToolsFailed
		}
	}
	return ToolsUnavailable
}
