package certify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hypcert/internal/freegroup"
	"hypcert/internal/logging"
	"hypcert/internal/presentation"
)

// PipelineName is the criterion name on verdicts the pipeline itself
// produces.
const PipelineName = "pipeline"

// ErrNilPresentation is returned by Certify for a nil or empty presentation.
var ErrNilPresentation = errors.New("presentation is nil or empty")

// Options configures a Pipeline.
type Options struct {
	// EnableExternalTools allows the External tier to run.
	EnableExternalTools bool
	// Order, when non-nil, replaces the registered criteria and their tier
	// ordering entirely. Intended for tests.
	Order []Criterion
	// CrossCheck runs every internal criterion even after a conclusive
	// verdict and fails with a *ConflictError if two disagree.
	CrossCheck bool
	// Parallel evaluates the criteria of each internal tier concurrently.
	// Results are folded in registration order.
	Parallel bool
	// Minimize replaces the relator by a Whitehead-minimal representative
	// before any criterion runs.
	Minimize bool
}

// DefaultOptions enables external tools and Whitehead minimisation.
func DefaultOptions() Options {
	return Options{EnableExternalTools: true, Minimize: true}
}

// Pipeline evaluates criteria in tier order and stops at the first
// conclusive verdict. A Pipeline is safe for concurrent use.
type Pipeline struct {
	criteria []Criterion
	opts     Options
}

// New builds a pipeline. Criteria are stably sorted by tier, so each tier
// keeps its registration order.
func New(criteria []Criterion, opts Options) *Pipeline {
	var ordered []Criterion
	if opts.Order != nil {
		ordered = slices.Clone(opts.Order)
	} else {
		ordered = slices.Clone(criteria)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Describe().Tier < ordered[j].Describe().Tier
		})
	}
	opts.Order = nil
	return &Pipeline{criteria: ordered, opts: opts}
}

// Descriptors returns the criteria in evaluation order.
func (p *Pipeline) Descriptors() []Descriptor {
	out := make([]Descriptor, len(p.criteria))
	for i, c := range p.criteria {
		out[i] = c.Describe()
	}
	return out
}

// Options returns the options the pipeline was built with.
func (p *Pipeline) Options() Options { return p.opts }

// Fingerprint identifies the settings that can change a verdict: the
// criteria in evaluation order and the external, cross-check and minimise
// switches. Parallel evaluation folds to the same result and is left out.
func (p *Pipeline) Fingerprint() string {
	names := make([]string, len(p.criteria))
	for i, c := range p.criteria {
		names[i] = c.Describe().Name
	}
	return fmt.Sprintf("external=%t cross_check=%t minimize=%t criteria=%s",
		p.opts.EnableExternalTools, p.opts.CrossCheck, p.opts.Minimize, strings.Join(names, ","))
}

// Result is the outcome of one certification run.
type Result struct {
	RunID string `json:"run_id"`
	// Input is the presentation passed to Certify.
	Input *presentation.Presentation `json:"input"`
	// Evaluated is the presentation the criteria saw, after minimisation.
	Evaluated *presentation.Presentation `json:"evaluated"`
	// Minimal reports that Evaluated is known to be Whitehead-minimal.
	Minimal bool          `json:"minimal"`
	Verdict Verdict       `json:"verdict"`
	Trail   Trail         `json:"trail"`
	Elapsed time.Duration `json:"elapsed_ns"`
	// Fingerprint is the Fingerprint of the pipeline that produced the
	// result.
	Fingerprint string `json:"fingerprint"`
}

// Certify runs the pipeline on pres. The returned error is nil, a
// *ConflictError, or wraps ctx.Err() when the caller cancelled; in the last
// two cases the partial result is returned alongside it.
func (p *Pipeline) Certify(ctx context.Context, pres *presentation.Presentation) (*Result, error) {
	if pres == nil || pres.Len() == 0 {
		return nil, ErrNilPresentation
	}

	r := &run{
		p:     p,
		res:   &Result{RunID: uuid.NewString(), Input: pres, Evaluated: pres, Fingerprint: p.Fingerprint()},
		start: time.Now(),
	}
	r.log = logging.Get(logging.CategoryPipeline).With("run_id", r.res.RunID)
	r.log.Info("certifying %s", pres)

	if err := ctx.Err(); err != nil {
		return r.abort(err)
	}
	r.minimize()

	if err := r.execute(ctx); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			r.res.Verdict = conflict.verdict()
			r.res.Elapsed = time.Since(r.start)
			r.log.Error("%v", conflict)
			return r.res, conflict
		}
		return r.abort(err)
	}
	r.finish()
	return r.res, nil
}

type run struct {
	p     *Pipeline
	res   *Result
	log   *logging.Logger
	start time.Time

	first          *Entry
	internalFailed bool
}

func (r *run) minimize() {
	if !r.p.opts.Minimize {
		return
	}
	rel := r.res.Input.Relator()
	m, certain := freegroup.Minimize(rel)
	r.res.Minimal = certain
	if !certain {
		r.log.Warn("rank %d exceeds the Whitehead search bound, relator not minimised", len(rel.Generators()))
	}
	if m.Equal(rel) {
		return
	}
	q, err := r.res.Input.WithRelator(m)
	if err != nil {
		r.log.Warn("discarding minimised relator %s: %v", m, err)
		return
	}
	r.log.Debug("minimised %s to %s", r.res.Input.FormatWord(rel), q.FormatWord(m))
	r.res.Evaluated = q
}

type group struct {
	tier     Tier
	criteria []Criterion
}

// groupByTier splits the ordered criteria into runs of equal tier.
func groupByTier(cs []Criterion) []group {
	var out []group
	for _, c := range cs {
		t := c.Describe().Tier
		if n := len(out); n > 0 && out[n-1].tier == t {
			out[n-1].criteria = append(out[n-1].criteria, c)
			continue
		}
		out = append(out, group{tier: t, criteria: []Criterion{c}})
	}
	return out
}

func (r *run) execute(ctx context.Context) error {
	for _, g := range groupByTier(r.p.criteria) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			done bool
			err  error
		)
		switch {
		case g.tier == External:
			if r.first != nil {
				return nil
			}
			if !r.p.opts.EnableExternalTools {
				r.log.Debug("external tools disabled, skipping %d criteria", len(g.criteria))
				continue
			}
			if r.internalFailed {
				r.log.Warn("an internal criterion failed, skipping external tools")
				continue
			}
			done, err = r.sequential(ctx, g.criteria, true)
		case r.first != nil && !r.p.opts.CrossCheck:
			return nil
		case r.p.opts.Parallel && len(g.criteria) > 1:
			done, err = r.parallel(ctx, g.criteria)
		default:
			done, err = r.sequential(ctx, g.criteria, false)
		}
		if err != nil || done {
			return err
		}
	}
	return nil
}

// sequential evaluates criteria one at a time. External criteria stop at the
// first conclusive verdict even in cross-check mode.
func (r *run) sequential(ctx context.Context, cs []Criterion, external bool) (bool, error) {
	for _, c := range cs {
		e, err := r.evaluate(ctx, c)
		if err != nil {
			r.res.Trail = append(r.res.Trail, e)
			return true, err
		}
		stop, err := r.record(e)
		if err != nil {
			return true, err
		}
		if stop || (external && e.Verdict.IsConclusive()) {
			return true, nil
		}
	}
	return false, nil
}

type slot struct {
	entry   Entry
	started bool
	err     error
}

// parallel evaluates a tier concurrently. A conclusive verdict cancels only
// the siblings registered after it, since earlier ones take precedence in
// the fold.
func (r *run) parallel(ctx context.Context, cs []Criterion) (bool, error) {
	n := len(cs)
	ctxs := make([]context.Context, n)
	cancels := make([]context.CancelFunc, n)
	for i := range cs {
		ctxs[i], cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	slots := make([]slot, n)
	var g errgroup.Group
	for i, c := range cs {
		g.Go(func() error {
			if ctxs[i].Err() != nil {
				return nil
			}
			slots[i].started = true
			e, err := r.evaluate(ctxs[i], c)
			slots[i].entry, slots[i].err = e, err
			if err == nil && e.Verdict.IsConclusive() && !r.p.opts.CrossCheck {
				for j := i + 1; j < n; j++ {
					cancels[j]()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for _, s := range slots {
			if s.started {
				r.res.Trail = append(r.res.Trail, s.entry)
			}
		}
		return true, err
	}

	done := false
	for _, s := range slots {
		if !s.started || s.err != nil {
			continue
		}
		if done {
			if s.entry.Verdict.IsConclusive() && s.entry.Verdict.Outcome != r.first.Verdict.Outcome {
				r.res.Trail = append(r.res.Trail, s.entry)
				return true, &ConflictError{First: *r.first, Second: s.entry}
			}
			continue
		}
		stop, err := r.record(s.entry)
		if err != nil {
			return true, err
		}
		done = stop
	}
	return done, nil
}

// record appends e to the trail and reports whether evaluation should stop.
func (r *run) record(e Entry) (bool, error) {
	r.res.Trail = append(r.res.Trail, e)
	if e.Failure != nil {
		r.log.Warn("%s (%s) failed after %s: %v", e.Criterion, e.Tier, e.Elapsed, e.Failure)
		if e.Tier != External {
			r.internalFailed = true
		}
	} else {
		r.log.Debug("%s (%s) -> %s in %s", e.Criterion, e.Tier, e.Verdict.Outcome, e.Elapsed)
	}

	if !e.Verdict.IsConclusive() {
		return false, nil
	}
	if r.first == nil {
		saved := e
		r.first = &saved
		return !r.p.opts.CrossCheck, nil
	}
	if r.first.Verdict.Outcome != e.Verdict.Outcome {
		return true, &ConflictError{First: *r.first, Second: e}
	}
	return false, nil
}

// evaluate runs one criterion. The error is non-nil only when ctx was
// cancelled; criterion failures are returned inside the entry.
func (r *run) evaluate(ctx context.Context, c Criterion) (Entry, error) {
	desc := c.Describe()
	e := Entry{Criterion: desc.Name, Tier: desc.Tier}

	cctx := ctx
	if desc.Timeout > 0 && desc.Tier != External {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := c.Evaluate(cctx, r.res.Evaluated)
	e.Elapsed = time.Since(start)

	if err == nil {
		e.Verdict = v.normalize(desc.Name)
		return e, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.Verdict = Inconclusive(desc.Name, "canceled")
		return e, ctxErr
	}

	var failure *ToolFailure
	switch {
	case errors.As(err, &failure):
	case errors.Is(err, context.DeadlineExceeded):
		failure = NewToolFailure(desc.Name, ToolTimedOut, fmt.Sprintf("exceeded %s", desc.Timeout), err)
	default:
		failure = NewToolFailure(desc.Name, ToolCrashed, "criterion returned an error", err)
	}
	e.Failure = failure
	e.Verdict = Inconclusive(desc.Name, failure.Error())
	if failure.Class == ToolNotFound {
		e.Verdict.Cause = ToolsUnavailable
	} else {
		e.Verdict.Cause = ToolsFailed
	}
	return e, nil
}

func (r *run) finish() {
	r.res.Elapsed = time.Since(r.start)
	if r.first != nil {
		r.res.Verdict = r.first.Verdict
		r.log.Info("%s in %s", r.res.Verdict, r.res.Elapsed)
		return
	}

	cause := r.res.Trail.cause()
	var detail string
	switch cause {
	case ToolsUnavailable, ToolsFailed:
		failed := make([]string, 0, len(r.res.Trail))
		for _, f := range r.res.Trail.Failures() {
			failed = append(failed, fmt.Sprintf("%s (%s)", f.Tool, f.Class))
		}
		detail = "infrastructure failures: " + strings.Join(failed, ", ")
	default:
		detail = "no criterion was conclusive"
		if !r.p.opts.EnableExternalTools {
			detail += "; external tools disabled"
		}
	}
	r.res.Verdict = Verdict{
		Outcome: Undetermined,
		Cause:   cause,
		Reason:  Reason{Criterion: PipelineName, Detail: detail},
	}
	r.log.Info("%s in %s", r.res.Verdict, r.res.Elapsed)
}

func (r *run) abort(err error) (*Result, error) {
	r.res.Elapsed = time.Since(r.start)
	r.res.Verdict = Inconclusive(PipelineName, "canceled")
	r.log.Warn("canceled after %d criteria: %v", len(r.res.Trail), err)
	return r.res, fmt.Errorf("certification %s canceled: %w", r.res.RunID, err)
}
