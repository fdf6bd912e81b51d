package convert

import (
	"strconv"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
)

type opKind int

const (
	opCopy opKind = iota
	opWidenInt
	opNarrowInt
	opIntToDouble
	opDoubleToInt
	opNumericToBool
	opBoolToNumeric
	opDoubleToBool
	opBoolToDouble
	opWrapAny
	opUnwrapAny
	opList
	opMap
	opTuple
	opOptionalElem
	opExpectedElem
	opListOfAnyToListOfExpected
	opExpectedToExpectedVoid
	opExpectedVoidToExpected
	opErrorToExpected
	opErrorToExpectedVoid
)

// plan is a tree of per-node operations produced by buildPlan's type-only
// feasibility walk and consumed by execute. It carries enough of source
// and target's shape that execute never has to re-parse a type string.
type plan struct {
	op     opKind
	source *grammar.Node
	target *grammar.Node
	elem   *plan
	key    *plan
	val    *plan
	fields []*plan
}

// numericRank orders the strict-integer kinds for widening/narrowing.
func numericRank(k grammar.Kind) (rank int, ok bool) {
	switch k {
	case grammar.Byte:
		return 1, true
	case grammar.Int32:
		return 2, true
	case grammar.Int64:
		return 3, true
	}
	return 0, false
}

func isNumeric(k grammar.Kind) bool {
	_, ok := numericRank(k)
	return ok
}

// buildPlan performs the type-only feasibility walk of spec.md §4.E and
// produces a transform plan. pos is the byte offset of source's rendered
// type string within the outermost source type, used only to recompute
// TypeMismatchError.Pos as the recursion unwinds.
func buildPlan(source, target *grammar.Node, policy Policy) (*plan, error) {
	return buildPlanAt(source, target, policy, 0)
}

func buildPlanAt(s, t *grammar.Node, policy Policy, pos int) (*plan, error) {
	// la -> l(xT) gets dedicated, localized handling ahead of the generic
	// List/List recursion below: per-element failures must become
	// embedded tag0 errors rather than aborting the whole list (§7).
	if s.Kind == grammar.List && t.Kind == grammar.List &&
		s.Elem.Kind == grammar.Any && t.Elem.Kind == grammar.Expected {
		if !policy.Has(PolicyAny) || !policy.Has(PolicyAux) {
			return nil, mismatch(s, t, pos, "la -> l(xT) requires PolicyAny and PolicyAux")
		}
		return &plan{op: opListOfAnyToListOfExpected, source: s, target: t}, nil
	}

	if s.Equal(t) {
		return &plan{op: opCopy, source: s, target: t}, nil
	}

	switch {
	case s.Kind == grammar.Tuple && t.Kind == grammar.Tuple:
		if len(s.Fields) != len(t.Fields) {
			return nil, mismatch(s, t, pos, "tuple arity differs")
		}
		fields := make([]*plan, len(s.Fields))
		off := pos + 1 + len(strconv.Itoa(len(s.Fields))) // skip "t" and the arity digits
		for i := range s.Fields {
			fp, err := buildPlanAt(s.Fields[i], t.Fields[i], policy, off)
			if err != nil {
				return nil, err
			}
			fields[i] = fp
			off += len(s.Fields[i].String())
		}
		return &plan{op: opTuple, source: s, target: t, fields: fields}, nil

	case s.Kind == grammar.List && t.Kind == grammar.List:
		ep, err := buildPlanAt(s.Elem, t.Elem, policy, pos+1)
		if err != nil {
			return nil, err
		}
		return &plan{op: opList, source: s, target: t, elem: ep}, nil

	case s.Kind == grammar.Map && t.Kind == grammar.Map:
		kp, err := buildPlanAt(s.Key, t.Key, policy, pos+1)
		if err != nil {
			return nil, err
		}
		vp, err := buildPlanAt(s.Val, t.Val, policy, pos+1+len(s.Key.String()))
		if err != nil {
			return nil, err
		}
		return &plan{op: opMap, source: s, target: t, key: kp, val: vp}, nil

	case s.Kind == grammar.Optional && t.Kind == grammar.Optional:
		ep, err := buildPlanAt(s.Elem, t.Elem, policy, pos+1)
		if err != nil {
			return nil, err
		}
		return &plan{op: opOptionalElem, source: s, target: t, elem: ep}, nil

	case s.Kind == grammar.Expected && t.Kind == grammar.Expected:
		ep, err := buildPlanAt(s.Elem, t.Elem, policy, pos+1)
		if err != nil {
			return nil, err
		}
		return &plan{op: opExpectedElem, source: s, target: t, elem: ep}, nil

	case isNumeric(s.Kind) && isNumeric(t.Kind):
		sr, _ := numericRank(s.Kind)
		tr, _ := numericRank(t.Kind)
		if sr < tr {
			if !policy.Has(PolicyInts) {
				return nil, mismatch(s, t, pos, "integer widening requires PolicyInts")
			}
			return &plan{op: opWidenInt, source: s, target: t}, nil
		}
		if !policy.Has(PolicyIntsNarrowing) {
			return nil, mismatch(s, t, pos, "integer narrowing requires PolicyIntsNarrowing")
		}
		return &plan{op: opNarrowInt, source: s, target: t}, nil

	case isNumeric(s.Kind) && t.Kind == grammar.Double:
		if !policy.Has(PolicyDouble) {
			return nil, mismatch(s, t, pos, "integer-to-double requires PolicyDouble")
		}
		return &plan{op: opIntToDouble, source: s, target: t}, nil

	case s.Kind == grammar.Double && isNumeric(t.Kind):
		if !policy.Has(PolicyDouble) {
			return nil, mismatch(s, t, pos, "double-to-integer requires PolicyDouble")
		}
		return &plan{op: opDoubleToInt, source: s, target: t}, nil

	case s.Kind == grammar.Bool && t.Kind == grammar.Double:
		if !policy.Has(PolicyDouble) {
			return nil, mismatch(s, t, pos, "bool-to-double requires PolicyDouble")
		}
		return &plan{op: opBoolToDouble, source: s, target: t}, nil

	case s.Kind == grammar.Double && t.Kind == grammar.Bool:
		if !policy.Has(PolicyDouble) {
			return nil, mismatch(s, t, pos, "double-to-bool requires PolicyDouble")
		}
		return &plan{op: opDoubleToBool, source: s, target: t}, nil

	case isNumeric(s.Kind) && t.Kind == grammar.Bool:
		if !policy.Has(PolicyBool) {
			return nil, mismatch(s, t, pos, "numeric-to-bool requires PolicyBool")
		}
		return &plan{op: opNumericToBool, source: s, target: t}, nil

	case s.Kind == grammar.Bool && isNumeric(t.Kind):
		if !policy.Has(PolicyBool) {
			return nil, mismatch(s, t, pos, "bool-to-numeric requires PolicyBool")
		}
		return &plan{op: opBoolToNumeric, source: s, target: t}, nil

	case t.Kind == grammar.Any && s.Kind != grammar.Any:
		if !policy.Has(PolicyAny) {
			return nil, mismatch(s, t, pos, "wrapping into `a` requires PolicyAny")
		}
		return &plan{op: opWrapAny, source: s, target: t}, nil

	case s.Kind == grammar.Any && t.Kind != grammar.Any:
		if !policy.Has(PolicyAny) {
			return nil, mismatch(s, t, pos, "unwrapping `a` requires PolicyAny")
		}
		return &plan{op: opUnwrapAny, source: s, target: t}, nil

	case t.Kind == grammar.Optional && s.Kind != grammar.Optional:
		// T -> oT always allowed (lift).
		ep, err := buildPlanAt(s, t.Elem, policy, pos)
		if err != nil {
			return nil, err
		}
		return &plan{op: opOptionalElem, source: s, target: t, elem: ep}, nil

	case s.Kind == grammar.Optional && t.Kind != grammar.Optional:
		if !policy.Has(PolicyAux) {
			return nil, mismatch(s, t, pos, "decaying optional requires PolicyAux")
		}
		ep, err := buildPlanAt(s.Elem, t, policy, pos+1)
		if err != nil {
			return nil, err
		}
		return &plan{op: opOptionalElem, source: s, target: t, elem: ep}, nil

	case t.Kind == grammar.Expected && s.Kind != grammar.Expected && s.Kind != grammar.Error && s.Kind != grammar.ExpectedVoid:
		// T -> xT always allowed (lift).
		ep, err := buildPlanAt(s, t.Elem, policy, pos)
		if err != nil {
			return nil, err
		}
		return &plan{op: opExpectedElem, source: s, target: t, elem: ep}, nil

	case s.Kind == grammar.Expected && t.Kind != grammar.Expected && t.Kind != grammar.ExpectedVoid:
		if !policy.Has(PolicyExpected) {
			return nil, mismatch(s, t, pos, "decaying expected requires PolicyExpected")
		}
		ep, err := buildPlanAt(s.Elem, t, policy, pos+1)
		if err != nil {
			return nil, err
		}
		return &plan{op: opExpectedElem, source: s, target: t, elem: ep}, nil

	case s.Kind == grammar.Expected && t.Kind == grammar.ExpectedVoid:
		if !policy.Has(PolicyExpected) {
			return nil, mismatch(s, t, pos, "xT -> X requires PolicyExpected")
		}
		return &plan{op: opExpectedToExpectedVoid, source: s, target: t}, nil

	case s.Kind == grammar.ExpectedVoid && t.Kind == grammar.Expected:
		if !policy.Has(PolicyExpected) {
			return nil, mismatch(s, t, pos, "X -> xT requires PolicyExpected")
		}
		return &plan{op: opExpectedVoidToExpected, source: s, target: t}, nil

	case s.Kind == grammar.Error && t.Kind == grammar.Expected:
		if !policy.Has(PolicyExpected) {
			return nil, mismatch(s, t, pos, "e -> xT requires PolicyExpected")
		}
		return &plan{op: opErrorToExpected, source: s, target: t}, nil

	case s.Kind == grammar.Error && t.Kind == grammar.ExpectedVoid:
		if !policy.Has(PolicyExpected) {
			return nil, mismatch(s, t, pos, "e -> X requires PolicyExpected")
		}
		return &plan{op: opErrorToExpectedVoid, source: s, target: t}, nil
	}

	return nil, mismatch(s, t, pos, "no conversion rule applies")
}

func mismatch(s, t *grammar.Node, pos int, reason string) error {
	return &errs.TypeMismatchError{Source: s.String(), Target: t.String(), Pos: pos, Reason: reason}
}
