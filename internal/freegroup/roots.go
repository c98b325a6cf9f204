package freegroup

// period returns the smallest d dividing len(c) such that c is (c[:d])^(n/d).
func period(c Word) int {
	n := len(c)
	for d := 1; d <= n; d++ {
		if n%d != 0 {
			continue
		}
		ok := true
		for i := d; i < n; i++ {
			if c[i] != c[i-d] {
				ok = false
				break
			}
		}
		if ok {
			return d
		}
	}
	return n
}

// MaxRoot returns the maximal root z of w and the exponent n with w = z^n.
// The identity has root 1 and exponent 0.
func MaxRoot(w Word) (Word, int) {
	r := Reduce(w)
	if len(r) == 0 {
		return Word{}, 0
	}
	c := CyclicReduce(r)
	k := (len(r) - len(c)) / 2
	u := r[:k]
	d := period(c)

	root := make(Word, 0, 2*k+d)
	root = append(root, u...)
	root = append(root, c[:d]...)
	root = append(root, u.Inverse()...)
	return Reduce(root), len(c) / d
}

// Degree returns the largest n such that w is an n-th power. The identity has
// degree 0.
func Degree(w Word) int {
	_, n := MaxRoot(w)
	return n
}

// IsProperPower reports whether w = z^n for some n > 1.
func IsProperPower(w Word) bool {
	return Degree(w) > 1
}

// IsCyclicPermutation reports whether v is a rotation of u.
func IsCyclicPermutation(u, v Word) bool {
	if len(u) != len(v) {
		return false
	}
	if len(u) == 0 {
		return true
	}
	for i := range v {
		match := true
		for j := range u {
			if v[(i+j)%len(v)] != u[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// IsConjugate reports whether u and v represent conjugate elements.
func IsConjugate(u, v Word) bool {
	return IsCyclicPermutation(CyclicReduce(u), CyclicReduce(v))
}

// IsConjugateInto reports whether b is conjugate to a power of c.
func IsConjugateInto(b, c Word) bool {
	cb, cc := CyclicReduce(b), CyclicReduce(c)
	if len(cb) == 0 {
		return true
	}
	if len(cc) == 0 || len(cb)%len(cc) != 0 {
		return false
	}
	k := len(cb) / len(cc)
	if IsCyclicPermutation(cb, cc.Pow(k)) {
		return true
	}
	return IsCyclicPermutation(cb, cc.Inverse().Pow(k))
}
