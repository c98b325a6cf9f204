package criteria

import (
	"context"

	"hypcert/internal/certify"
	"hypcert/internal/freegroup"
	"hypcert/internal/presentation"
)

// IvanovSchupp applies theorems 3 and 4 of Ivanov and Schupp, "On the
// hyperbolicity of small cancellation groups and one-relator groups". They
// decide relators in which some generator occurs two or three times, and
// relators in which some generator occurs at least four times with a single
// sign and distinct intermediate words.
type IvanovSchupp struct{}

func (IvanovSchupp) Describe() certify.Descriptor {
	return certify.Descriptor{Name: NameIvanovSchupp, Tier: certify.Moderate}
}

func (IvanovSchupp) Evaluate(_ context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	outcome, theorem := ivanovSchupp(p.Relator())
	if outcome == certify.Undetermined {
		return certify.Inconclusive(NameIvanovSchupp, "no generator satisfies theorem 3 or 4"), nil
	}
	return certify.NewVerdict(outcome, NameIvanovSchupp, "Ivanov-Schupp "+theorem).
		WithCertificate("case", theorem), nil
}

// ivanovSchupp returns the verdict and the case of the theorem that decided
// r, or Undetermined. r must be cyclically reduced.
func ivanovSchupp(r freegroup.Word) (certify.Outcome, string) {
	if len(r) == 0 {
		return certify.Hyperbolic, "free"
	}
	if freegroup.Degree(r) > 1 {
		return certify.Hyperbolic, "torsion"
	}

	for gen := 1; gen <= r.Rank(); gen++ {
		a := freegroup.Letter(gen)
		switch count := r.Count(gen); {
		case count == 0:
			continue
		case count == 1:
			return certify.Hyperbolic, "free"
		case count == 2:
			return theorem3Twice(r, a)
		case count == 3:
			return theorem3Thrice(r, a)
		default:
			if outcome, theorem, ok := theorem4(r, a); ok {
				return outcome, theorem
			}
		}
	}
	return certify.Undetermined, ""
}

// theorem3Twice handles a generator occurring exactly twice.
func theorem3Twice(r freegroup.Word, a freegroup.Letter) (certify.Outcome, string) {
	rel := r
	if r.CountLetter(a) == 0 {
		rel = r.Inverse()
	}
	rel = rel.Rotate(rel.Index(a, 0))

	if next := rel.Index(a, 1); next > 0 {
		// Case 1: r = a B a C.
		b := freegroup.NewWord(rel[1:next]...)
		c := freegroup.NewWord(rel[next+1:]...)
		if freegroup.Degree(b.Mul(c.Inverse())) > 1 {
			return certify.NotHyperbolic, "Thm3(1)"
		}
		return certify.Hyperbolic, "Thm3(1)"
	}

	// Case 2: r = a B a^-1 C.
	next := rel.Index(a.Inverse(), 1)
	b := freegroup.NewWord(rel[1:next]...)
	c := freegroup.NewWord(rel[next+1:]...)
	switch {
	case freegroup.Degree(b) > 1 && freegroup.Degree(c) > 1:
		return certify.NotHyperbolic, "Thm3(2b)"
	case freegroup.IsConjugateInto(b, c) || freegroup.IsConjugateInto(c, b):
		return certify.NotHyperbolic, "Thm3(2a)"
	default:
		return certify.Hyperbolic, "Thm3(2)"
	}
}

// theorem3Thrice handles a generator occurring exactly three times.
func theorem3Thrice(r freegroup.Word, a freegroup.Letter) (certify.Outcome, string) {
	rel := r
	if r.CountLetter(a.Inverse()) > r.CountLetter(a) {
		rel = r.Inverse()
	}

	if rel.CountLetter(a.Inverse()) > 0 {
		// Case 4: r = a B a C a^-1 D.
		first := rel.Index(a, 0)
		second := rel.Index(a, first+1)
		neg := rel.Index(a.Inverse(), 0)
		if neg > second || neg < first {
			rel = rel.Rotate(first)
		} else {
			rel = rel.Rotate(second)
		}
		first = rel.Index(a, 0)
		second = rel.Index(a, first+1)
		neg = rel.Index(a.Inverse(), 0)

		b := freegroup.NewWord(rel[first+1 : second]...)
		c := freegroup.NewWord(rel[second+1 : neg]...)
		d := freegroup.NewWord(rel[neg+1:]...)
		z1, n1 := freegroup.MaxRoot(b.Inverse().Mul(c).Mul(b))
		z2, n2 := freegroup.MaxRoot(d)
		if z2.Equal(z1.Inverse()) {
			z2, n2 = z1, -n2
		}
		if z1.Equal(z2) || z1.IsEmpty() || z2.IsEmpty() {
			switch {
			case abs(n1) == abs(n2):
				return certify.NotHyperbolic, "Thm3(4a)"
			case n1 == -2*n2 || n2 == -2*n1:
				return certify.NotHyperbolic, "Thm3(4b)"
			}
		}
		return certify.Hyperbolic, "Thm3(4)"
	}

	// Case 3: r = a B a C a D.
	rel = rel.Rotate(rel.Index(a, 0))
	second := rel.Index(a, 1)
	third := rel.Index(a, second+1)
	b := freegroup.NewWord(rel[1:second]...)
	c := freegroup.NewWord(rel[second+1 : third]...)
	d := freegroup.NewWord(rel[third+1:]...)
	z1, n1 := freegroup.MaxRoot(c.Mul(b.Inverse()))
	z2, n2 := freegroup.MaxRoot(d.Mul(b.Inverse()))
	if z2.Equal(z1.Inverse()) {
		z2, n2 = z1, -n2
	}
	if z1.Equal(z2) || z1.IsEmpty() || z2.IsEmpty() {
		switch {
		case (n1 == 0 && abs(n2) > 1) || (n2 == 0 && abs(n1) > 1):
			return certify.NotHyperbolic, "Thm3(3a)"
		case abs(n1) == abs(n2) && abs(n1) > 1:
			return certify.NotHyperbolic, "Thm3(3b)"
		case n1 != 0 && n1 == -n2:
			return certify.NotHyperbolic, "Thm3(3c)"
		case n1 != 0 && (n1 == 2*n2 || n2 == 2*n1):
			return certify.NotHyperbolic, "Thm3(3d)"
		}
	}
	return certify.Hyperbolic, "Thm3(3)"
}

// theorem4 handles a generator occurring at least four times, all with the
// same sign. ok is false when the theorem does not apply to a.
func theorem4(r freegroup.Word, a freegroup.Letter) (certify.Outcome, string, bool) {
	rel := r
	if r.CountLetter(a) == 0 {
		rel = r.Inverse()
	}
	if rel.CountLetter(a) == 0 || rel.CountLetter(a.Inverse()) > 0 {
		return certify.Undetermined, "", false
	}

	rel = rel.Rotate(rel.Index(a, 0))
	var (
		between []freegroup.Word
		current freegroup.Word
	)
	for i := 1; i < len(rel); i++ {
		if rel[i] == a {
			between = append(between, freegroup.NewWord(current...))
			current = nil
		} else {
			current = append(current, rel[i])
		}
		if i == len(rel)-1 {
			between = append(between, freegroup.NewWord(current...))
		}
	}

	for i := range between {
		for j := i + 1; j < len(between); j++ {
			if between[i].Equal(between[j]) {
				return certify.Undetermined, "", false
			}
		}
	}

	if rel.CountLetter(a) > 4 {
		return certify.Hyperbolic, "Thm4", true
	}
	for i := 0; i < 4; i++ {
		w := between[i%4].
			Mul(between[(i+1)%4].Inverse()).
			Mul(between[(i+2)%4]).
			Mul(between[(i+3)%4].Inverse())
		if w.IsEmpty() {
			return certify.NotHyperbolic, "Thm4(3)", true
		}
	}
	return certify.Hyperbolic, "Thm4", true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
