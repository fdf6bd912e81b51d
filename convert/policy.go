package convert

// Policy is a bitmask of independently grantable conversion allowances.
// Policies are monotone: anything that succeeds under P succeeds, with an
// identical result, under any P2 that is a superset of P.
type Policy uint32

const PolicyNone Policy = 0

const (
	// PolicyBool allows numeric<->bool conversions (nonzero -> true).
	PolicyBool Policy = 1 << iota

	// PolicyInts allows widening among integer widths: c->i, c->I, i->I.
	PolicyInts

	// PolicyIntsNarrowing allows the reverse of PolicyInts, checking the
	// source value's range when bytes are available.
	PolicyIntsNarrowing

	// PolicyDouble allows integer<->double and bool<->double conversions.
	PolicyDouble

	// PolicyAny allows wrapping T into `a` and unwrapping `a` back to a
	// compatible T.
	PolicyAny

	// PolicyExpected allows decaying xT back to T, X<->xT
	// interconversion, and `e`-to-expected embedding. Lifting T into xT
	// needs no policy bit.
	PolicyExpected

	// PolicyAux allows auxiliary container-shape adjustments: unwrapping
	// oT to T when present (using the target's default when absent), and,
	// together with PolicyAny, converting la to lxT with each element
	// that fails to convert embedded as an error.
	PolicyAux
)

// PolicyAll is the union of every allowance above.
const PolicyAll = PolicyBool | PolicyInts | PolicyIntsNarrowing | PolicyDouble |
	PolicyAny | PolicyExpected | PolicyAux

// Has reports whether p grants every bit set in other.
func (p Policy) Has(other Policy) bool { return p&other == other }

// With returns p with other's bits additionally set.
func (p Policy) With(other Policy) Policy { return p | other }
