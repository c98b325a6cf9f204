package criteria

import (
	"context"
	"fmt"
	"strconv"

	"hypcert/internal/certify"
	"hypcert/internal/freegroup"
	"hypcert/internal/presentation"
)

// Torsion decides every relator that is a proper power: one-relator groups
// with torsion are hyperbolic.
type Torsion struct{}

func (Torsion) Describe() certify.Descriptor {
	return certify.Descriptor{Name: NameTorsion, Tier: certify.Cheap}
}

func (Torsion) Evaluate(_ context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	root, n := freegroup.MaxRoot(p.Relator())
	if n <= 1 {
		return certify.Inconclusive(NameTorsion, "relator is not a proper power"), nil
	}
	return certify.NewVerdict(certify.Hyperbolic, NameTorsion,
		fmt.Sprintf("relator is (%s)^%d", p.FormatWord(root), n)).
		WithCertificate("root", p.FormatWord(root)).
		WithCertificate("exponent", strconv.Itoa(n)), nil
}

// Free decides relators in which some generator occurs exactly once. Such a
// relator is primitive and the group is free.
type Free struct{}

func (Free) Describe() certify.Descriptor {
	return certify.Descriptor{Name: NameFree, Tier: certify.Cheap}
}

func (Free) Evaluate(_ context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	r := p.Relator()
	for _, g := range r.Generators() {
		if r.Count(g) == 1 {
			name := p.Generators()[g-1]
			return certify.NewVerdict(certify.Hyperbolic, NameFree,
				fmt.Sprintf("generator %s occurs once, the group is free", name)).
				WithCertificate("primitive_generator", name), nil
		}
	}
	return certify.Inconclusive(NameFree, "every generator occurs at least twice"), nil
}

// CyclicallyPinched decides relators with a cyclic permutation UV where U and
// V involve disjoint sets of generators. The group is then an amalgam of free
// groups over a cyclic subgroup, hyperbolic unless both U and V are proper
// powers.
type CyclicallyPinched struct{}

func (CyclicallyPinched) Describe() certify.Descriptor {
	return certify.Descriptor{Name: NameCyclicallyPinched, Tier: certify.Cheap}
}

func (CyclicallyPinched) Evaluate(_ context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	u, v, ok := pinch(p.Relator())
	if !ok {
		return certify.Inconclusive(NameCyclicallyPinched, "no splitting over disjoint generators"), nil
	}
	du, dv := freegroup.Degree(u), freegroup.Degree(v)
	outcome := certify.Hyperbolic
	detail := "relator splits as U*V over disjoint generators"
	if du > 1 && dv > 1 {
		outcome = certify.NotHyperbolic
		detail += fmt.Sprintf(", both proper powers (%d, %d)", du, dv)
	}
	return certify.NewVerdict(outcome, NameCyclicallyPinched, detail).
		WithCertificate("u", p.FormatWord(u)).
		WithCertificate("v", p.FormatWord(v)), nil
}

// pinch finds the first cyclic permutation r' = UV, scanning start offsets and
// then lengths of U, with U and V over disjoint generators.
func pinch(r freegroup.Word) (freegroup.Word, freegroup.Word, bool) {
	n := len(r)
	rr := make(freegroup.Word, 0, 2*n)
	rr = append(rr, r...)
	rr = append(rr, r...)
	for s := 0; s < n; s++ {
		for l := 1; l < n; l++ {
			u, v := rr[s:s+l], rr[s+l:s+n]
			if disjoint(u.GeneratorSet(), v.GeneratorSet()) {
				return u.Clone(), v.Clone(), true
			}
		}
	}
	return nil, nil, false
}

func disjoint(a, b map[int]bool) bool {
	for g := range a {
		if b[g] {
			return false
		}
	}
	return true
}
