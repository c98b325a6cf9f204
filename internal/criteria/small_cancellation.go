package criteria

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"hypcert/internal/certify"
	"hypcert/internal/freegroup"
	"hypcert/internal/presentation"
)

// MaxPieceLength returns the length of the longest piece of the cyclic word
// r: the longest common prefix of two distinct cyclic permutations of r or
// r^-1.
func MaxPieceLength(r freegroup.Word) int {
	n := len(r)
	perms := make([]freegroup.Word, 0, 2*n)
	inv := r.Inverse()
	for i := 0; i < n; i++ {
		perms = append(perms, r.Rotate(i), inv.Rotate(i))
	}
	slices.SortFunc(perms, func(x, y freegroup.Word) int { return slices.Compare(x, y) })
	perms = slices.CompactFunc(perms, func(x, y freegroup.Word) bool { return x.Equal(y) })

	// In lexicographic order the longest common prefix is attained by
	// neighbours.
	longest := 0
	for i := 1; i < len(perms); i++ {
		if l := freegroup.CommonPrefix(perms[i-1], perms[i]); l > longest {
			longest = l
		}
	}
	return longest
}

// PieceRatio returns MaxPieceLength(r) / |r|.
func PieceRatio(r freegroup.Word) *big.Rat {
	if len(r) == 0 {
		return new(big.Rat)
	}
	return big.NewRat(int64(MaxPieceLength(r)), int64(len(r)))
}

// SmallCancellation decides relators satisfying C'(1/6): every piece is
// shorter than a sixth of the relator.
type SmallCancellation struct{}

func (SmallCancellation) Describe() certify.Descriptor {
	return certify.Descriptor{Name: NameSmallCancellation, Tier: certify.Moderate}
}

func (SmallCancellation) Evaluate(_ context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	ratio := PieceRatio(p.Relator())
	if ratio.Cmp(big.NewRat(1, 6)) >= 0 {
		return certify.Inconclusive(NameSmallCancellation,
			fmt.Sprintf("piece ratio %s is not below 1/6", ratio.RatString())), nil
	}
	return certify.NewVerdict(certify.Hyperbolic, NameSmallCancellation,
		fmt.Sprintf("C'(1/6) with piece ratio %s", ratio.RatString())).
		WithCertificate("piece_ratio", ratio.RatString()), nil
}

// BlufsteinMinian decides relators satisfying C'(1/4) together with the
// triangle condition T' of Blufstein and Minian.
type BlufsteinMinian struct{}

func (BlufsteinMinian) Describe() certify.Descriptor {
	return certify.Descriptor{Name: NameBlufsteinMinian, Tier: certify.Moderate}
}

func (BlufsteinMinian) Evaluate(_ context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	r := p.Relator()
	ratio := PieceRatio(r)
	if ratio.Cmp(big.NewRat(1, 4)) >= 0 {
		return certify.Inconclusive(NameBlufsteinMinian,
			fmt.Sprintf("piece ratio %s is not below 1/4", ratio.RatString())), nil
	}
	if !satisfiesTPrime(r) {
		return certify.Inconclusive(NameBlufsteinMinian, "condition T' fails"), nil
	}
	return certify.NewVerdict(certify.Hyperbolic, NameBlufsteinMinian,
		fmt.Sprintf("C'(1/4) and T' with piece ratio %s", ratio.RatString())).
		WithCertificate("piece_ratio", ratio.RatString()), nil
}

// turn is an occurrence of a two-letter cyclic subword, at position pos of
// r (sign 1) or of r^-1 (sign -1).
type turn struct {
	pos  int
	sign int
}

// satisfiesTPrime checks condition T': for every triangle of the Whitehead
// graph, in both orientations, and every choice of turns realising its three
// edges, twice the total overlap of consecutive turns is less than |r|.
func satisfiesTPrime(r freegroup.Word) bool {
	c := freegroup.CyclicReduce(r)
	n := len(c)
	inv := c.Inverse()
	rr := append(c.Clone(), c...)
	ii := append(inv.Clone(), inv...)

	overlap := func(x, y turn) int {
		from, to := rr, ii
		if x.sign < 0 {
			from = ii
		}
		if y.sign < 0 {
			to = rr
		}
		return freegroup.CommonPrefix(from[x.pos+1:], to[n-1-y.pos:])
	}

	turns := func(x, y freegroup.Letter) []turn {
		var out []turn
		for h := 0; h < n; h++ {
			if rr[h] == x.Inverse() && rr[h+1] == y {
				out = append(out, turn{pos: h, sign: 1})
			}
		}
		for h := 0; h < n; h++ {
			if ii[h] == x.Inverse() && ii[h+1] == y {
				out = append(out, turn{pos: h, sign: -1})
			}
		}
		return out
	}

	for _, tri := range freegroup.NewWhiteheadGraph(c).Triangles() {
		for _, o := range [][3]freegroup.Letter{
			{tri[0], tri[1], tri[2]},
			{tri[0], tri[2], tri[1]},
		} {
			for _, f := range turns(o[0], o[1]) {
				for _, s := range turns(o[1], o[2]) {
					for _, t := range turns(o[2], o[0]) {
						if 2*(overlap(f, s)+overlap(s, t)+overlap(t, f)) >= n {
							return false
						}
					}
				}
			}
		}
	}
	return true
}
