package certify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hypcert/internal/presentation"
)

// Tier is the cost class of a criterion. Tiers run in ascending order.
type Tier int

const (
	Cheap Tier = iota
	Moderate
	External
)

func (t Tier) String() string {
	switch t {
	case Cheap:
		return "cheap"
	case Moderate:
		return "moderate"
	case External:
		return "external"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "cheap":
		*t = Cheap
	case "moderate":
		*t = Moderate
	case "external":
		*t = External
	default:
		return fmt.Errorf("unknown tier %q", string(b))
	}
	return nil
}

// Descriptor describes a registered criterion.
type Descriptor struct {
	Name string
	Tier Tier
	// Timeout bounds one evaluation; zero means none. External criteria
	// enforce their own timeout, the pipeline enforces it for the others.
	Timeout time.Duration
}

// Criterion decides hyperbolicity for some class of presentations.
//
// Evaluate must not mutate p. Internal criteria return Undetermined when they
// do not apply and never return an error. External criteria report
// infrastructure failures as a *ToolFailure error.
type Criterion interface {
	Describe() Descriptor
	Evaluate(ctx context.Context, p *presentation.Presentation) (Verdict, error)
}

// EvaluateFunc is the signature of a criterion body.
type EvaluateFunc func(ctx context.Context, p *presentation.Presentation) (Verdict, error)

type funcCriterion struct {
	desc Descriptor
	fn   EvaluateFunc
}

// NewFunc adapts a function into a Criterion.
func NewFunc(desc Descriptor, fn EvaluateFunc) Criterion {
	return &funcCriterion{desc: desc, fn: fn}
}

func (c *funcCriterion) Describe() Descriptor { return c.desc }

func (c *funcCriterion) Evaluate(ctx context.Context, p *presentation.Presentation) (Verdict, error) {
	return c.fn(ctx, p)
}
