// Package freegroup implements reduced words in a finitely generated free
// group: free and cyclic reduction, products, powers and roots, conjugacy,
// the Whitehead graph of a cyclic word and Whitehead minimisation.
//
// Letters are encoded as non-zero integers. The letter +i is the i-th free
// generator (1-based) and -i is its inverse, so the word a b a^-1 b^-1 is
// Word{1, 2, -1, -2}.
package freegroup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Letter is a free generator or its inverse.
type Letter int

// Inverse returns the inverse letter.
func (l Letter) Inverse() Letter { return -l }

// Generator returns the 1-based index of the generator underlying l.
func (l Letter) Generator() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}

// IsInverse reports whether l is the inverse of a generator.
func (l Letter) IsInverse() bool { return l < 0 }

// String renders l in the a/A notation for the first 26 generators and as
// x<i> / X<i> beyond that.
func (l Letter) String() string {
	g := l.Generator()
	if g >= 1 && g <= 26 {
		if l.IsInverse() {
			return string(rune('A' + g - 1))
		}
		return string(rune('a' + g - 1))
	}
	if l.IsInverse() {
		return "X" + strconv.Itoa(g)
	}
	return "x" + strconv.Itoa(g)
}

// Word is a sequence of letters. Constructors and arithmetic in this package
// always return freely reduced words; a Word built by hand may not be.
type Word []Letter

// NewWord returns the free reduction of the given letters.
func NewWord(letters ...Letter) Word {
	return Reduce(Word(letters))
}

// Len returns the number of letters in w.
func (w Word) Len() int { return len(w) }

// IsEmpty reports whether w is the identity word.
func (w Word) IsEmpty() bool { return len(w) == 0 }

// Clone returns a copy of w that shares no storage with it.
func (w Word) Clone() Word {
	if w == nil {
		return nil
	}
	out := make(Word, len(w))
	copy(out, w)
	return out
}

// Equal reports whether w and v are letter-for-letter identical.
func (w Word) Equal(v Word) bool {
	if len(w) != len(v) {
		return false
	}
	for i := range w {
		if w[i] != v[i] {
			return false
		}
	}
	return true
}

// Inverse returns w^-1.
func (w Word) Inverse() Word {
	out := make(Word, len(w))
	for i, l := range w {
		out[len(w)-1-i] = l.Inverse()
	}
	return out
}

// Mul returns the reduced product w·v.
func (w Word) Mul(v Word) Word {
	out := make(Word, 0, len(w)+len(v))
	out = append(out, w...)
	out = append(out, v...)
	return Reduce(out)
}

// Pow returns the reduced word w^n. Negative n raises the inverse.
func (w Word) Pow(n int) Word {
	base := w
	if n < 0 {
		base = w.Inverse()
		n = -n
	}
	out := make(Word, 0, len(w)*n)
	for i := 0; i < n; i++ {
		out = append(out, base...)
	}
	return Reduce(out)
}

// Rotate returns the cyclic permutation of w that starts at index i.
func (w Word) Rotate(i int) Word {
	if len(w) == 0 {
		return Word{}
	}
	i %= len(w)
	if i < 0 {
		i += len(w)
	}
	out := make(Word, 0, len(w))
	out = append(out, w[i:]...)
	out = append(out, w[:i]...)
	return out
}

// Count returns the number of occurrences of generator gen or its inverse.
func (w Word) Count(gen int) int {
	n := 0
	for _, l := range w {
		if l.Generator() == gen {
			n++
		}
	}
	return n
}

// CountLetter returns the number of occurrences of exactly l.
func (w Word) CountLetter(l Letter) int {
	n := 0
	for _, x := range w {
		if x == l {
			n++
		}
	}
	return n
}

// Index returns the position of the first occurrence of l at or after from,
// or -1.
func (w Word) Index(l Letter, from int) int {
	for i := from; i < len(w); i++ {
		if w[i] == l {
			return i
		}
	}
	return -1
}

// Generators returns the sorted set of generators that occur in w.
func (w Word) Generators() []int {
	seen := make(map[int]bool)
	for _, l := range w {
		seen[l.Generator()] = true
	}
	out := make([]int, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// GeneratorSet returns the set of generators that occur in w.
func (w Word) GeneratorSet() map[int]bool {
	seen := make(map[int]bool)
	for _, l := range w {
		seen[l.Generator()] = true
	}
	return seen
}

// Rank returns the largest generator index occurring in w, or 0.
func (w Word) Rank() int {
	r := 0
	for _, l := range w {
		if g := l.Generator(); g > r {
			r = g
		}
	}
	return r
}

// String renders w in letter notation, e.g. "abAB". The empty word is "1".
func (w Word) String() string {
	if len(w) == 0 {
		return "1"
	}
	var sb strings.Builder
	wide := w.Rank() > 26
	for i, l := range w {
		if wide && i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(l.String())
	}
	return sb.String()
}

// Ints returns the integer encoding of w.
func (w Word) Ints() []int {
	out := make([]int, len(w))
	for i, l := range w {
		out[i] = int(l)
	}
	return out
}

// Reduce returns the free reduction of w.
func Reduce(w Word) Word {
	out := make(Word, 0, len(w))
	for _, l := range w {
		if n := len(out); n > 0 && out[n-1] == l.Inverse() {
			out = out[:n-1]
			continue
		}
		out = append(out, l)
	}
	return out
}

// CyclicReduce returns the cyclic reduction of w: the free reduction with
// mutually inverse first and last letters stripped until none remain.
func CyclicReduce(w Word) Word {
	r := Reduce(w)
	i, j := 0, len(r)-1
	for i < j && r[i] == r[j].Inverse() {
		i++
		j--
	}
	return r[i : j+1].Clone()
}

// IsReduced reports whether w contains no cancelling pair.
func IsReduced(w Word) bool {
	for i := 1; i < len(w); i++ {
		if w[i] == w[i-1].Inverse() {
			return false
		}
	}
	return true
}

// IsCyclicallyReduced reports whether w is reduced and its first and last
// letters do not cancel.
func IsCyclicallyReduced(w Word) bool {
	if !IsReduced(w) {
		return false
	}
	return len(w) < 2 || w[0] != w[len(w)-1].Inverse()
}

// CommonPrefix returns the length of the longest common prefix of u and v.
func CommonPrefix(u, v Word) int {
	n := 0
	for n < len(u) && n < len(v) && u[n] == v[n] {
		n++
	}
	return n
}

// ParseLetters reads a word in a/A notation exactly as written, without
// reducing it.
func ParseLetters(s string) (Word, error) {
	out := make(Word, 0, len(s))
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, Letter(r-'a'+1))
		case r >= 'A' && r <= 'Z':
			out = append(out, Letter(-(r - 'A' + 1)))
		default:
			return nil, fmt.Errorf("invalid letter %q at offset %d", r, i)
		}
	}
	return out, nil
}

// MustParseLetters is like ParseLetters but panics on invalid input.
func MustParseLetters(s string) Word {
	w, err := ParseLetters(s)
	if err != nil {
		panic(err)
	}
	return w
}
