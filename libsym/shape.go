package libsym

import (
	"github.com/2x3systems/gosym/gosym"
)

// classify computes and caches the Shape of T and everything under it.
//
// An array indexed by a free type takes the shape of its element.  An array indexed by a scalarset is
// SymmetricArrayFree or SymmetricArrayOfSymmetric depending on whether its element is Free or SymmetricScalar,
// and Complex otherwise.  Multisets follow the same rule.  A record takes the highest shape of its fields.
func classify(T *Type) gosym.Shape {
	if T.classified {
		return T.shape
	}

	var shape gosym.Shape
	switch T.Kind {
	case KindBool, KindEnum, KindRange:
		shape = gosym.Free
	case KindScalarset:
		shape = gosym.SymmetricScalar
	case KindArray:
		elem := classify(T.Elem)
		if T.Index.Kind != KindScalarset {
			shape = elem
		} else {
			switch elem {
			case gosym.Free:
				shape = gosym.SymmetricArrayFree
			case gosym.SymmetricScalar:
				shape = gosym.SymmetricArrayOfSymmetric
			default:
				shape = gosym.Complex
			}
		}
	case KindMultiset:
		switch classify(T.Elem) {
		case gosym.Free:
			shape = gosym.MultisetFree
		case gosym.SymmetricScalar:
			shape = gosym.MultisetOfSymmetric
		default:
			shape = gosym.Complex
		}
	case KindRecord:
		shape = gosym.Free
		for _, fi := range T.Fields {
			if fs := classify(fi.Type); fs > shape {
				shape = fs
			}
		}
	default:
		shape = gosym.Complex
	}

	T.shape = shape
	T.classified = true
	return shape
}

// refineLevel is how much structure a refinement pass may exploit.
// Each level includes everything the levels below it handle.
type refineLevel byte

const (
	levelScalar   refineLevel = iota // scalarset leaves
	levelArray                       // scalarset-indexed arrays of free elements
	levelGraph                       // scalarset-indexed arrays of symmetric elements
	levelMultiset                    // multisets of symmetric elements
)

// levelFor returns the refinement level needed by a node of the given type, and false if no level handles it.
func levelFor(T *Type) (refineLevel, bool) {
	switch T.Kind {
	case KindArray:
		if T.Index.Kind == KindScalarset {
			switch classify(T.Elem) {
			case gosym.Free:
				return levelArray, true
			case gosym.SymmetricScalar:
				return levelGraph, true
			}
			return levelMultiset, false
		}
	case KindMultiset:
		switch classify(T.Elem) {
		case gosym.Free:
			return levelScalar, true
		case gosym.SymmetricScalar:
			return levelMultiset, true
		}
		return levelMultiset, false
	}
	return levelScalar, true
}
