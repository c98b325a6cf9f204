package freegroup

// MaxMinimizeRank bounds the exhaustive Whitehead search. Words over more
// generators are returned cyclically reduced but not minimised.
const MaxMinimizeRank = 6

// WhiteheadAutomorphism is the type II Whitehead automorphism (A, a). It
// fixes the multiplier a and sends every other generator g to a^-1 g, g a or
// a^-1 g a according to whether g^-1, g or both lie in Set.
type WhiteheadAutomorphism struct {
	Multiplier Letter
	Set        map[Letter]bool
}

// image returns the image of a single letter.
func (wa WhiteheadAutomorphism) image(l Letter) Word {
	g := Letter(l.Generator())
	var img Word
	if g.Generator() == wa.Multiplier.Generator() {
		img = Word{g}
	} else {
		if wa.Set[g.Inverse()] {
			img = append(img, wa.Multiplier.Inverse())
		}
		img = append(img, g)
		if wa.Set[g] {
			img = append(img, wa.Multiplier)
		}
	}
	if l.IsInverse() {
		return img.Inverse()
	}
	return img
}

// Apply returns the cyclic reduction of the image of w.
func (wa WhiteheadAutomorphism) Apply(w Word) Word {
	out := make(Word, 0, len(w)*3)
	for _, l := range w {
		out = append(out, wa.image(l)...)
	}
	return CyclicReduce(out)
}

// Minimize returns a Whitehead-minimal representative of the automorphic
// orbit of the cyclic word w, and whether minimality is certain. It applies
// the first strictly shortening automorphism until none exists; by
// Whitehead's theorem the result then has minimal length in its orbit.
func Minimize(w Word) (Word, bool) {
	cur := CyclicReduce(w)
	for {
		gens := cur.Generators()
		if len(gens) > MaxMinimizeRank {
			return cur, false
		}
		if len(cur) <= 1 {
			return cur, true
		}
		next, ok := shorten(cur, gens)
		if !ok {
			return cur, true
		}
		cur = next
	}
}

// shorten searches for an automorphism that strictly reduces the length of w.
func shorten(w Word, gens []int) (Word, bool) {
	letters := make([]Letter, 0, 2*len(gens))
	for _, g := range gens {
		letters = append(letters, Letter(g), Letter(-g))
	}
	for _, a := range letters {
		others := make([]Letter, 0, len(letters)-2)
		for _, l := range letters {
			if l.Generator() != a.Generator() {
				others = append(others, l)
			}
		}
		for mask := 0; mask < 1<<len(others); mask++ {
			set := make(map[Letter]bool, len(others))
			for i, l := range others {
				if mask>>i&1 == 1 {
					set[l] = true
				}
			}
			v := WhiteheadAutomorphism{Multiplier: a, Set: set}.Apply(w)
			if len(v) < len(w) {
				return v, true
			}
		}
	}
	return nil, false
}
