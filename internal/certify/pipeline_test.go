package certify

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hypcert/internal/presentation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubCriterion struct {
	desc  Descriptor
	calls atomic.Int32
	fn    func(ctx context.Context, p *presentation.Presentation) (Verdict, error)
}

func (s *stubCriterion) Describe() Descriptor { return s.desc }

func (s *stubCriterion) Evaluate(ctx context.Context, p *presentation.Presentation) (Verdict, error) {
	s.calls.Add(1)
	return s.fn(ctx, p)
}

func returning(name string, tier Tier, outcome Outcome) *stubCriterion {
	return &stubCriterion{
		desc: Descriptor{Name: name, Tier: tier},
		fn: func(context.Context, *presentation.Presentation) (Verdict, error) {
			return NewVerdict(outcome, name, "stub"), nil
		},
	}
}

func failing(name string, tier Tier, err error) *stubCriterion {
	return &stubCriterion{
		desc: Descriptor{Name: name, Tier: tier},
		fn: func(context.Context, *presentation.Presentation) (Verdict, error) {
			return Verdict{}, err
		},
	}
}

func testPresentation(t *testing.T) *presentation.Presentation {
	t.Helper()
	p, err := presentation.Parse("abAB", nil)
	require.NoError(t, err)
	return p
}

func noMinimize(o Options) Options {
	o.Minimize = false
	return o
}

func TestNew_StableTierOrder(t *testing.T) {
	ext := returning("ext", External, Undetermined)
	mod1 := returning("mod1", Moderate, Undetermined)
	cheap1 := returning("cheap1", Cheap, Undetermined)
	mod2 := returning("mod2", Moderate, Undetermined)
	cheap2 := returning("cheap2", Cheap, Undetermined)

	p := New([]Criterion{ext, mod1, cheap1, mod2, cheap2}, DefaultOptions())

	var names []string
	for _, d := range p.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"cheap1", "cheap2", "mod1", "mod2", "ext"}, names)
}

func TestCertify_ShortCircuit(t *testing.T) {
	first := returning("first", Cheap, Undetermined)
	decisive := returning("decisive", Cheap, Hyperbolic)
	later := returning("later", Moderate, NotHyperbolic)
	ext := returning("ext", External, Hyperbolic)

	p := New([]Criterion{first, decisive, later, ext}, noMinimize(DefaultOptions()))
	res, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	assert.Equal(t, Hyperbolic, res.Verdict.Outcome)
	assert.Equal(t, "decisive", res.Verdict.Reason.Criterion)
	if diff := cmp.Diff([]string{"first", "decisive"}, res.Trail.Names()); diff != "" {
		t.Errorf("trail mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, later.calls.Load())
	assert.Zero(t, ext.calls.Load())
}

func TestCertify_ExternalFallThrough(t *testing.T) {
	internal := returning("internal", Moderate, Undetermined)
	walrus := failing("walrus", External, NewToolFailure("walrus", ToolNotFound, "gap not on PATH", nil))
	kbmag := returning("kbmag", External, Hyperbolic)

	p := New([]Criterion{internal, walrus, kbmag}, noMinimize(DefaultOptions()))
	res, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	assert.Equal(t, Hyperbolic, res.Verdict.Outcome)
	require.Len(t, res.Trail, 3)
	assert.Equal(t, "walrus", res.Trail[1].Criterion)
	require.NotNil(t, res.Trail[1].Failure)
	assert.ErrorIs(t, res.Trail[1].Failure, ErrToolNotFound)
	assert.Equal(t, ToolsUnavailable, res.Trail[1].Verdict.Cause)
	assert.Equal(t, "kbmag", res.Trail[2].Criterion)
	assert.Equal(t, Hyperbolic, res.Trail[2].Verdict.Outcome)
}

func TestCertify_UndeterminedCauses(t *testing.T) {
	tests := []struct {
		name      string
		walrusErr error
		kbmagErr  error
		external  bool
		wantCause Cause
		wantCalls int32
	}{
		{
			name:      "both tools fail",
			walrusErr: NewToolFailure("walrus", ToolCrashed, "signal: killed", nil),
			kbmagErr:  NewToolFailure("kbmag", ToolTimedOut, "exceeded 10s", nil),
			external:  true,
			wantCause: ToolsFailed,
			wantCalls: 1,
		},
		{
			name:      "both tools missing",
			walrusErr: NewToolFailure("walrus", ToolNotFound, "", nil),
			kbmagErr:  NewToolFailure("kbmag", ToolNotFound, "", nil),
			external:  true,
			wantCause: ToolsUnavailable,
			wantCalls: 1,
		},
		{
			name:      "one missing one unparseable",
			walrusErr: NewToolFailure("walrus", ToolNotFound, "", nil),
			kbmagErr:  NewToolFailure("kbmag", UnparseableOutput, "", nil),
			external:  true,
			wantCause: ToolsFailed,
			wantCalls: 1,
		},
		{
			name:      "external disabled",
			walrusErr: NewToolFailure("walrus", ToolCrashed, "", nil),
			kbmagErr:  NewToolFailure("kbmag", ToolCrashed, "", nil),
			external:  false,
			wantCause: MathematicallyInconclusive,
			wantCalls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			walrus := failing("walrus", External, tt.walrusErr)
			kbmag := failing("kbmag", External, tt.kbmagErr)
			opts := noMinimize(DefaultOptions())
			opts.EnableExternalTools = tt.external

			p := New([]Criterion{returning("internal", Cheap, Undetermined), walrus, kbmag}, opts)
			res, err := p.Certify(context.Background(), testPresentation(t))
			require.NoError(t, err)

			assert.Equal(t, Undetermined, res.Verdict.Outcome)
			assert.Equal(t, tt.wantCause, res.Verdict.Cause)
			assert.Equal(t, PipelineName, res.Verdict.Reason.Criterion)
			assert.Equal(t, tt.wantCalls, walrus.calls.Load())
			assert.Equal(t, tt.wantCalls, kbmag.calls.Load())
		})
	}
}

func TestCertify_InternalErrorGatesExternal(t *testing.T) {
	broken := failing("broken", Moderate, errors.New("index out of range"))
	ext := returning("ext", External, Hyperbolic)

	p := New([]Criterion{broken, ext}, noMinimize(DefaultOptions()))
	res, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	assert.Zero(t, ext.calls.Load())
	assert.Equal(t, Undetermined, res.Verdict.Outcome)
	assert.Equal(t, ToolsFailed, res.Verdict.Cause)
	require.Len(t, res.Trail, 1)
	require.NotNil(t, res.Trail[0].Failure)
	assert.Equal(t, ToolCrashed, res.Trail[0].Failure.Class)
	assert.EqualError(t, errors.Unwrap(res.Trail[0].Failure), "index out of range")
}

func TestCertify_InternalTimeout(t *testing.T) {
	slow := &stubCriterion{
		desc: Descriptor{Name: "slow", Tier: Moderate, Timeout: 50 * time.Millisecond},
		fn: func(ctx context.Context, _ *presentation.Presentation) (Verdict, error) {
			<-ctx.Done()
			return Verdict{}, ctx.Err()
		},
	}

	p := New([]Criterion{slow}, noMinimize(DefaultOptions()))
	start := time.Now()
	res, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Trail, 1)
	require.NotNil(t, res.Trail[0].Failure)
	assert.ErrorIs(t, res.Trail[0].Failure, ErrToolTimedOut)
	assert.Equal(t, ToolsFailed, res.Verdict.Cause)
}

func TestCertify_Conflict(t *testing.T) {
	yes := returning("yes", Cheap, Hyperbolic)
	no := returning("no", Moderate, NotHyperbolic)
	ext := returning("ext", External, Hyperbolic)

	opts := noMinimize(DefaultOptions())
	opts.Order = []Criterion{no, yes, ext}
	opts.CrossCheck = true

	res, err := New(nil, opts).Certify(context.Background(), testPresentation(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriterionConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "no", conflict.First.Criterion)
	assert.Equal(t, "yes", conflict.Second.Criterion)

	require.NotNil(t, res)
	assert.Equal(t, Undetermined, res.Verdict.Outcome)
	assert.Equal(t, CriterionConflict, res.Verdict.Cause)
	assert.Equal(t, PipelineName, res.Verdict.Reason.Criterion)
	assert.Equal(t, map[string]string{
		"no":  string(NotHyperbolic),
		"yes": string(Hyperbolic),
	}, res.Verdict.Reason.Certificate)
	assert.Equal(t, []string{"no", "yes"}, res.Trail.Names())
	assert.Zero(t, ext.calls.Load())
}

func TestPipeline_Fingerprint(t *testing.T) {
	a := returning("a", Moderate, Undetermined)
	b := returning("b", Cheap, Undetermined)

	p := New([]Criterion{a, b}, DefaultOptions())
	assert.Equal(t, "external=true cross_check=false minimize=true criteria=b,a", p.Fingerprint())

	par := DefaultOptions()
	par.Parallel = true
	assert.Equal(t, p.Fingerprint(), New([]Criterion{a, b}, par).Fingerprint())

	offline := DefaultOptions()
	offline.EnableExternalTools = false
	assert.NotEqual(t, p.Fingerprint(), New([]Criterion{a, b}, offline).Fingerprint())
	assert.NotEqual(t, p.Fingerprint(), New([]Criterion{a}, DefaultOptions()).Fingerprint())

	res, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	assert.Equal(t, p.Fingerprint(), res.Fingerprint)
}

func TestCertify_CrossCheckAgreement(t *testing.T) {
	a := returning("a", Cheap, Hyperbolic)
	b := returning("b", Cheap, Undetermined)
	c := returning("c", Moderate, Hyperbolic)

	opts := noMinimize(DefaultOptions())
	opts.CrossCheck = true

	res, err := New([]Criterion{a, b, c}, opts).Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	assert.Equal(t, Hyperbolic, res.Verdict.Outcome)
	assert.Equal(t, "a", res.Verdict.Reason.Criterion)
	assert.Equal(t, []string{"a", "b", "c"}, res.Trail.Names())
}

func TestCertify_OrderOverride(t *testing.T) {
	mod := returning("mod", Moderate, NotHyperbolic)
	cheap := returning("cheap", Cheap, Hyperbolic)

	opts := noMinimize(DefaultOptions())
	opts.Order = []Criterion{mod, cheap}

	res, err := New([]Criterion{cheap, mod}, opts).Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	assert.Equal(t, NotHyperbolic, res.Verdict.Outcome)
	assert.Equal(t, []string{"mod"}, res.Trail.Names())
	assert.Zero(t, cheap.calls.Load())
}

func TestCertify_CanceledBeforeStart(t *testing.T) {
	c := returning("c", Cheap, Hyperbolic)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New([]Criterion{c}, DefaultOptions()).Certify(ctx, testPresentation(t))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Trail)
	assert.Zero(t, c.calls.Load())
}

func TestCertify_CanceledDuringRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := &stubCriterion{
		desc: Descriptor{Name: "cancelling", Tier: Cheap},
		fn: func(ctx context.Context, _ *presentation.Presentation) (Verdict, error) {
			cancel()
			return Verdict{}, ctx.Err()
		},
	}
	later := returning("later", Moderate, Hyperbolic)

	res, err := New([]Criterion{cancelling, later}, noMinimize(DefaultOptions())).Certify(ctx, testPresentation(t))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, []string{"cancelling"}, res.Trail.Names())
	assert.Nil(t, res.Trail[0].Failure)
	assert.Zero(t, later.calls.Load())
}

func TestCertify_ParallelFoldsInOrder(t *testing.T) {
	slowUndetermined := &stubCriterion{
		desc: Descriptor{Name: "slow", Tier: Moderate},
		fn: func(context.Context, *presentation.Presentation) (Verdict, error) {
			time.Sleep(50 * time.Millisecond)
			return Inconclusive("slow", ""), nil
		},
	}
	fast := returning("fast", Moderate, Hyperbolic)
	blocked := &stubCriterion{
		desc: Descriptor{Name: "blocked", Tier: Moderate},
		fn: func(ctx context.Context, _ *presentation.Presentation) (Verdict, error) {
			<-ctx.Done()
			return Verdict{}, ctx.Err()
		},
	}
	next := returning("next", External, NotHyperbolic)

	opts := noMinimize(DefaultOptions())
	opts.Parallel = true

	res, err := New([]Criterion{slowUndetermined, fast, blocked, next}, opts).Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	assert.Equal(t, Hyperbolic, res.Verdict.Outcome)
	assert.Equal(t, []string{"slow", "fast"}, res.Trail.Names())
	assert.Zero(t, next.calls.Load())
}

func TestCertify_ParallelMatchesSequential(t *testing.T) {
	build := func() []Criterion {
		return []Criterion{
			returning("c1", Cheap, Undetermined),
			returning("c2", Cheap, Undetermined),
			returning("m1", Moderate, Undetermined),
			returning("m2", Moderate, NotHyperbolic),
			returning("m3", Moderate, Undetermined),
		}
	}
	seq, err := New(build(), noMinimize(DefaultOptions())).Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	opts := noMinimize(DefaultOptions())
	opts.Parallel = true
	par, err := New(build(), opts).Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	assert.Equal(t, seq.Verdict, par.Verdict)
	assert.Equal(t, seq.Trail.Names(), par.Trail.Names())
}

func TestCertify_ParallelConflict(t *testing.T) {
	secondDone := make(chan struct{})
	first := &stubCriterion{
		desc: Descriptor{Name: "first", Tier: Cheap},
		fn: func(context.Context, *presentation.Presentation) (Verdict, error) {
			<-secondDone
			return NewVerdict(Hyperbolic, "first", ""), nil
		},
	}
	second := &stubCriterion{
		desc: Descriptor{Name: "second", Tier: Cheap},
		fn: func(context.Context, *presentation.Presentation) (Verdict, error) {
			defer close(secondDone)
			return NewVerdict(NotHyperbolic, "second", ""), nil
		},
	}

	opts := noMinimize(DefaultOptions())
	opts.Parallel = true

	_, err := New([]Criterion{first, second}, opts).Certify(context.Background(), testPresentation(t))
	require.ErrorIs(t, err, ErrCriterionConflict)
}

func TestCertify_Minimize(t *testing.T) {
	var seen int
	spy := &stubCriterion{
		desc: Descriptor{Name: "spy", Tier: Cheap},
		fn: func(_ context.Context, p *presentation.Presentation) (Verdict, error) {
			seen = p.Len()
			return Inconclusive("spy", ""), nil
		},
	}
	input, err := presentation.Parse("abc", nil)
	require.NoError(t, err)

	res, err := New([]Criterion{spy}, DefaultOptions()).Certify(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
	assert.Equal(t, 3, res.Input.Len())
	assert.Equal(t, 1, res.Evaluated.Len())
	assert.True(t, res.Minimal)

	res, err = New([]Criterion{spy}, noMinimize(DefaultOptions())).Certify(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 3, seen)
	assert.Same(t, input, res.Evaluated)
}

func TestCertify_NormalizesVerdicts(t *testing.T) {
	empty := &stubCriterion{
		desc: Descriptor{Name: "empty", Tier: Cheap},
		fn: func(context.Context, *presentation.Presentation) (Verdict, error) {
			return Verdict{}, nil
		},
	}
	res, err := New([]Criterion{empty}, noMinimize(DefaultOptions())).Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	require.Len(t, res.Trail, 1)
	assert.Equal(t, Undetermined, res.Trail[0].Verdict.Outcome)
	assert.Equal(t, MathematicallyInconclusive, res.Trail[0].Verdict.Cause)
	assert.Equal(t, "empty", res.Trail[0].Verdict.Reason.Criterion)
}

func TestCertify_RunIDsAndNil(t *testing.T) {
	p := New([]Criterion{returning("c", Cheap, Undetermined)}, DefaultOptions())
	a, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	b, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)

	_, err = p.Certify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilPresentation)
}

func TestResult_JSON(t *testing.T) {
	p := New([]Criterion{returning("c", Cheap, Hyperbolic)}, noMinimize(DefaultOptions()))
	res, err := p.Certify(context.Background(), testPresentation(t))
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded struct {
		Verdict struct {
			Outcome string `json:"outcome"`
		} `json:"verdict"`
		Trail []struct {
			Criterion string `json:"criterion"`
			Tier      string `json:"tier"`
		} `json:"trail"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "hyperbolic", decoded.Verdict.Outcome)
	require.Len(t, decoded.Trail, 1)
	assert.Equal(t, "cheap", decoded.Trail[0].Tier)
}
