// Package certify runs an ordered battery of hyperbolicity criteria against a
// one-relator presentation and folds their verdicts into a single answer with
// a justification trail.
package certify

import (
	"fmt"
	"maps"
)

// Outcome is the value of a verdict.
type Outcome string

const (
	Hyperbolic    Outcome = "hyperbolic"
	NotHyperbolic Outcome = "not_hyperbolic"
	Undetermined  Outcome = "undetermined"
)

// Conclusive reports whether o is Hyperbolic or NotHyperbolic.
func (o Outcome) Conclusive() bool {
	return o == Hyperbolic || o == NotHyperbolic
}

// Cause qualifies an Undetermined verdict.
type Cause string

const (
	// MathematicallyInconclusive means every criterion that ran, ran
	// correctly and could not decide.
	MathematicallyInconclusive Cause = "mathematically_inconclusive"
	// ToolsUnavailable means every infrastructure failure was ToolNotFound.
	ToolsUnavailable Cause = "tools_unavailable"
	// ToolsFailed means at least one infrastructure failure was not
	// ToolNotFound.
	ToolsFailed Cause = "tools_failed"
	// CriterionConflict marks the partial result of a run aborted because
	// two conclusive criteria disagreed.
	CriterionConflict Cause = "criterion_conflict"
)

// Reason identifies the criterion behind a verdict and any supporting data.
type Reason struct {
	Criterion   string            `json:"criterion"`
	Detail      string            `json:"detail,omitempty"`
	Certificate map[string]string `json:"certificate,omitempty"`
}

// Verdict is the answer of one criterion, or of the whole pipeline.
type Verdict struct {
	Outcome Outcome `json:"outcome"`
	Cause   Cause   `json:"cause,omitempty"`
	Reason  Reason  `json:"reason"`
}

// NewVerdict returns a verdict with the given outcome. Undetermined verdicts
// get the MathematicallyInconclusive cause.
func NewVerdict(outcome Outcome, criterion, detail string) Verdict {
	v := Verdict{
		Outcome: outcome,
		Reason:  Reason{Criterion: criterion, Detail: detail},
	}
	if outcome == Undetermined {
		v.Cause = MathematicallyInconclusive
	}
	return v
}

// Inconclusive is shorthand for NewVerdict(Undetermined, criterion, detail).
func Inconclusive(criterion, detail string) Verdict {
	return NewVerdict(Undetermined, criterion, detail)
}

// WithCertificate returns a copy of v carrying an extra certificate entry.
func (v Verdict) WithCertificate(key, value string) Verdict {
	cert := maps.Clone(v.Reason.Certificate)
	if cert == nil {
		cert = make(map[string]string, 1)
	}
	cert[key] = value
	v.Reason.Certificate = cert
	return v
}

// IsConclusive reports whether the verdict is Hyperbolic or NotHyperbolic.
func (v Verdict) IsConclusive() bool { return v.Outcome.Conclusive() }

func (v Verdict) String() string {
	s := string(v.Outcome)
	if v.Outcome == Undetermined && v.Cause != "" {
		s += " (" + string(v.Cause) + ")"
	}
	if v.Reason.Criterion != "" {
		s += fmt.Sprintf(" by %s", v.Reason.Criterion)
	}
	if v.Reason.Detail != "" {
		s += ": " + v.Reason.Detail
	}
	return s
}

// normalize fills the fields a criterion may have left empty.
func (v Verdict) normalize(criterion string) Verdict {
	if v.Outcome == "" {
		v.Outcome = Undetermined
	}
	if v.Outcome == Undetermined {
		if v.Cause == "" {
			v.Cause = MathematicallyInconclusive
		}
	} else {
		v.Cause = ""
	}
	if v.Reason.Criterion == "" {
		v.Reason.Criterion = criterion
	}
	return v
}
