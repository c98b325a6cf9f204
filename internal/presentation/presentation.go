// Package presentation holds the immutable one-relator presentation
// <X | r> consumed by every criterion, and the parser that builds one from
// text.
package presentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hypcert/internal/freegroup"
)

// Validation and parse errors. Returned errors wrap one of these.
var (
	ErrNoGenerators         = errors.New("presentation has no generators")
	ErrDuplicateGenerator   = errors.New("duplicate generator name")
	ErrEmptyRelator         = errors.New("relator is empty")
	ErrUnknownGenerator     = errors.New("relator uses an unknown generator")
	ErrNotCyclicallyReduced = errors.New("relator is not cyclically reduced")
	ErrProperPower          = errors.New("relator is a proper power")
	ErrSyntax               = errors.New("syntax error")
)

// Presentation is a one-relator group presentation. It is never mutated
// after construction; accessors return copies.
type Presentation struct {
	generators  []string
	relator     freegroup.Word
	properPower bool
}

type options struct {
	allowProperPower bool
}

// Option configures New.
type Option func(*options)

// AllowProperPower accepts a relator that is a proper power of a shorter word.
func AllowProperPower() Option {
	return func(o *options) { o.allowProperPower = true }
}

// New validates and builds a presentation. Letter i of the relator refers to
// generators[i-1].
func New(generators []string, relator freegroup.Word, opts ...Option) (*Presentation, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if len(generators) == 0 {
		return nil, ErrNoGenerators
	}
	seen := make(map[string]bool, len(generators))
	for _, g := range generators {
		if g == "" {
			return nil, fmt.Errorf("%w: empty generator name", ErrSyntax)
		}
		if seen[g] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateGenerator, g)
		}
		seen[g] = true
	}

	if len(relator) == 0 {
		return nil, ErrEmptyRelator
	}
	for i, l := range relator {
		if l == 0 || l.Generator() > len(generators) {
			return nil, fmt.Errorf("%w: letter %d at position %d", ErrUnknownGenerator, int(l), i)
		}
	}
	if !freegroup.IsCyclicallyReduced(relator) {
		return nil, fmt.Errorf("%w: %s", ErrNotCyclicallyReduced, relator)
	}
	power := freegroup.IsProperPower(relator)
	if power && !o.allowProperPower {
		return nil, fmt.Errorf("%w: %s", ErrProperPower, relator)
	}

	gens := make([]string, len(generators))
	copy(gens, generators)
	return &Presentation{
		generators:  gens,
		relator:     relator.Clone(),
		properPower: power,
	}, nil
}

// MustNew is like New but panics on error. Intended for fixed presentations
// in tests and examples.
func MustNew(generators []string, relator freegroup.Word, opts ...Option) *Presentation {
	p, err := New(generators, relator, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Generators returns a copy of the generator names.
func (p *Presentation) Generators() []string {
	out := make([]string, len(p.generators))
	copy(out, p.generators)
	return out
}

// Rank returns the number of generators.
func (p *Presentation) Rank() int { return len(p.generators) }

// Relator returns a copy of the relator.
func (p *Presentation) Relator() freegroup.Word { return p.relator.Clone() }

// Len returns the length of the relator.
func (p *Presentation) Len() int { return len(p.relator) }

// ProperPowerFlagged reports whether the relator is an accepted proper power.
func (p *Presentation) ProperPowerFlagged() bool { return p.properPower }

// WithRelator returns a presentation over the same generators with a new
// relator, such as a Whitehead-minimal representative.
func (p *Presentation) WithRelator(r freegroup.Word) (*Presentation, error) {
	return New(p.generators, r, AllowProperPower())
}

// compact reports whether every generator is a single lower-case letter, in
// which case inverses render as the upper-case letter.
func (p *Presentation) compact() bool {
	for _, g := range p.generators {
		if len(g) != 1 || g[0] < 'a' || g[0] > 'z' {
			return false
		}
	}
	return true
}

// FormatWord renders w using the generator names.
func (p *Presentation) FormatWord(w freegroup.Word) string {
	if len(w) == 0 {
		return "1"
	}
	if p.compact() {
		var sb strings.Builder
		for _, l := range w {
			name := p.generators[l.Generator()-1]
			if l.IsInverse() {
				name = strings.ToUpper(name)
			}
			sb.WriteString(name)
		}
		return sb.String()
	}
	parts := make([]string, len(w))
	for i, l := range w {
		parts[i] = p.generators[l.Generator()-1]
		if l.IsInverse() {
			parts[i] += "^-1"
		}
	}
	return strings.Join(parts, "*")
}

// String renders the presentation as <a, b | aabb>.
func (p *Presentation) String() string {
	return fmt.Sprintf("<%s | %s>", strings.Join(p.generators, ", "), p.FormatWord(p.relator))
}

type presentationJSON struct {
	Generators  []string `json:"generators"`
	Relator     string   `json:"relator"`
	Letters     []int    `json:"letters"`
	ProperPower bool     `json:"proper_power,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p *Presentation) MarshalJSON() ([]byte, error) {
	return json.Marshal(presentationJSON{
		Generators:  p.generators,
		Relator:     p.FormatWord(p.relator),
		Letters:     p.relator.Ints(),
		ProperPower: p.properPower,
	})
}
