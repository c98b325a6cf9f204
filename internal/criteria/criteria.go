// Package criteria implements the built-in hyperbolicity criteria for
// one-relator groups. Every criterion here is internal: it is deterministic,
// never returns an error and answers Undetermined when it does not apply.
package criteria

import (
	"hypcert/internal/certify"
)

// Criterion names, as they appear in verdicts and trails.
const (
	NameTorsion           = "torsion"
	NameFree              = "free"
	NameCyclicallyPinched = "cyclically-pinched"
	NameIvanovSchupp      = "ivanov-schupp"
	NameSmallCancellation = "small-cancellation"
	NameBlufsteinMinian   = "blufstein-minian"
)

// Default returns the built-in criteria in evaluation order:
//
//  1. torsion             (Cheap)    relator is a proper power
//  2. free                (Cheap)    some generator occurs exactly once
//  3. cyclically-pinched  (Cheap)    relator splits over disjoint generators
//  4. ivanov-schupp       (Moderate) Ivanov-Schupp theorems 3 and 4
//  5. small-cancellation  (Moderate) C'(1/6)
//  6. blufstein-minian    (Moderate) C'(1/4) and T'
//
// The external adapters are appended by the caller.
func Default() []certify.Criterion {
	return []certify.Criterion{
		Torsion{},
		Free{},
		CyclicallyPinched{},
		IvanovSchupp{},
		SmallCancellation{},
		BlufsteinMinian{},
	}
}
