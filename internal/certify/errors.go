package certify

import (
	"errors"
	"fmt"
)

// FailureClass classifies an infrastructure failure of an external tool.
type FailureClass string

const (
	ToolNotFound      FailureClass = "tool_not_found"
	ToolCrashed       FailureClass = "tool_crashed"
	ToolTimedOut      FailureClass = "tool_timed_out"
	UnparseableOutput FailureClass = "unparseable_output"
)

// Sentinels matched by errors.Is against a *ToolFailure of the same class,
// and against a *ConflictError.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolCrashed       = errors.New("tool crashed")
	ErrToolTimedOut      = errors.New("tool timed out")
	ErrUnparseableOutput = errors.New("unparseable tool output")
	ErrCriterionConflict = errors.New("criterion conflict")
)

func (c FailureClass) sentinel() error {
	switch c {
	case ToolNotFound:
		return ErrToolNotFound
	case ToolCrashed:
		return ErrToolCrashed
	case ToolTimedOut:
		return ErrToolTimedOut
	case UnparseableOutput:
		return ErrUnparseableOutput
	default:
		return nil
	}
}

// ToolFailure is an infrastructure failure reported by a criterion. It is
// recorded in the trail and never aborts the pipeline.
type ToolFailure struct {
	Tool   string       `json:"tool"`
	Class  FailureClass `json:"class"`
	Detail string       `json:"detail,omitempty"`
	Err    error        `json:"-"`
}

// NewToolFailure builds a ToolFailure. err may be nil.
func NewToolFailure(tool string, class FailureClass, detail string, err error) *ToolFailure {
	return &ToolFailure{Tool: tool, Class: class, Detail: detail, Err: err}
}

func (f *ToolFailure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Tool, f.Class)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *ToolFailure) Unwrap() error { return f.Err }

// Is matches the sentinel of the failure class.
func (f *ToolFailure) Is(target error) bool {
	s := f.Class.sentinel()
	return s != nil && target == s
}

// ConflictError reports two conclusive criteria that disagree. It indicates
// a bug in a criterion and always aborts the certification.
type ConflictError struct {
	First  Entry
	Second Entry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("criterion conflict: %s says %s, %s says %s",
		e.First.Criterion, e.First.Verdict.Outcome,
		e.Second.Criterion, e.Second.Verdict.Outcome)
}

func (e *ConflictError) Is(target error) bool { return target == ErrCriterionConflict }

// verdict is the pipeline verdict carried by the partial result of a
// conflicting run.
func (e *ConflictError) verdict() Verdict {
	return Verdict{
		Outcome: Undetermined,
		Cause:   CriterionConflict,
		Reason: Reason{
			Criterion: PipelineName,
			Detail:    e.Error(),
			Certificate: map[string]string{
				e.First.Criterion:  string(e.First.Verdict.Outcome),
				e.Second.Criterion: string(e.Second.Verdict.Outcome),
			},
		},
	}
}
