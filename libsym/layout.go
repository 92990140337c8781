package libsym

import (
	"bytes"
	"encoding/binary"

	"github.com/2x3systems/gosym/gosym"
)

// Node is one instance of a Type at a fixed place in the packed state.
//
// Kids are array elements in index order, record fields in declaration order, or multiset slots.  The presence
// byte of a multiset slot sits just before the slot's element.
type Node struct {
	Type   *Type
	Offset int
	Kids   []*Node
}

func (n *Node) End() int {
	return n.Offset + n.Type.size
}

// Bytes returns the subslice of S holding n.
func (n *Node) Bytes(S []byte) []byte {
	return S[n.Offset:n.End()]
}

func layoutNode(T *Type, offset int) *Node {
	n := &Node{
		Type:   T,
		Offset: offset,
	}
	switch T.Kind {
	case KindArray:
		N := T.Index.NumValues()
		n.Kids = make([]*Node, N)
		for i := range n.Kids {
			n.Kids[i] = layoutNode(T.Elem, offset+i*T.Elem.size)
		}
	case KindMultiset:
		slot := 1 + T.Elem.size
		n.Kids = make([]*Node, T.Max)
		for i := range n.Kids {
			n.Kids[i] = layoutNode(T.Elem, offset+i*slot+1)
		}
	case KindRecord:
		n.Kids = make([]*Node, len(T.Fields))
		for i, fi := range T.Fields {
			n.Kids[i] = layoutNode(fi.Type, offset)
			offset += fi.Type.size
		}
	}
	return n
}

// getCode reads the leaf code at n: 0 is undefined, otherwise one more than the value's index.
func getCode(S []byte, n *Node) uint32 {
	switch n.Type.width {
	case 1:
		return uint32(S[n.Offset])
	case 2:
		return uint32(binary.BigEndian.Uint16(S[n.Offset:]))
	}
	return binary.BigEndian.Uint32(S[n.Offset:])
}

func setCode(S []byte, n *Node, code uint32) {
	switch n.Type.width {
	case 1:
		S[n.Offset] = byte(code)
	case 2:
		binary.BigEndian.PutUint16(S[n.Offset:], uint16(code))
	default:
		binary.BigEndian.PutUint32(S[n.Offset:], code)
	}
}

func appendCode(buf []byte, width int, code uint32) []byte {
	switch width {
	case 1:
		return append(buf, byte(code))
	case 2:
		return binary.BigEndian.AppendUint16(buf, uint16(code))
	}
	return binary.BigEndian.AppendUint32(buf, code)
}

func slotPresent(S []byte, slot *Node) bool {
	return S[slot.Offset-1] != 0
}

// Perm maps each element of each domain to its image: Perm[D.ID][e] is the new index of e.
type Perm [][]int

// NewPerm returns the identity permutation for M's domains.
func (M *Model) NewPerm() Perm {
	P := make(Perm, len(M.Domains))
	for i, D := range M.Domains {
		P[i] = make([]int, D.Size)
		for e := range P[i] {
			P[i][e] = e
		}
	}
	return P
}

// permuteNode writes the image of src's sn under P into dst at dn.  dn and sn have the same type and dst must
// not alias src.
func permuteNode(dn, sn *Node, P Perm, dst, src []byte) {
	T := sn.Type
	if !T.symmetric {
		copy(dst[dn.Offset:dn.End()], src[sn.Offset:sn.End()])
		return
	}

	switch T.Kind {
	case KindScalarset:
		code := getCode(src, sn)
		if code != 0 {
			code = uint32(P[T.Domain.ID][code-1]) + 1
		}
		setCode(dst, dn, code)

	case KindRecord:
		for i, kid := range sn.Kids {
			permuteNode(dn.Kids[i], kid, P, dst, src)
		}

	case KindArray:
		if T.Index.Kind == KindScalarset {
			Pi := P[T.Index.Domain.ID]
			for i, kid := range sn.Kids {
				permuteNode(dn.Kids[Pi[i]], kid, P, dst, src)
			}
		} else {
			for i, kid := range sn.Kids {
				permuteNode(dn.Kids[i], kid, P, dst, src)
			}
		}

	case KindMultiset:
		for i, kid := range sn.Kids {
			dst[dn.Kids[i].Offset-1] = src[kid.Offset-1]
			permuteNode(dn.Kids[i], kid, P, dst, src)
		}
		sortMultisetNode(dn, dst)
	}
}

// Permute writes the image of src under P into dst (resized as needed) and returns it.
func (M *Model) Permute(dst, src gosym.State, P Perm) gosym.State {
	dst = M.resize(dst)
	for _, v := range M.Vars {
		permuteNode(v.Root, v.Root, P, dst, src)
	}
	return dst
}

func (M *Model) resize(S gosym.State) gosym.State {
	if cap(S) < M.StateSize {
		return make(gosym.State, M.StateSize)
	}
	return S[:M.StateSize]
}

// sortMultisetNode puts the slots of n into canonical order: present slots ascending by raw element bytes,
// then absent slots.  Multisets nested within elements are sorted first.
func sortMultisetNode(n *Node, S []byte) {
	if len(n.Kids) == 0 {
		return
	}
	stride := 1 + n.Type.Elem.size
	base := n.Kids[0].Offset - 1

	// Insertion sort in place; slot counts are small
	for i := 1; i < len(n.Kids); i++ {
		for j := i; j > 0; j-- {
			a := S[base+(j-1)*stride : base+j*stride]
			b := S[base+j*stride : base+(j+1)*stride]
			if compareSlots(a, b) <= 0 {
				break
			}
			for k := range a {
				a[k], b[k] = b[k], a[k]
			}
		}
	}
}

// compareSlots orders present slots before absent ones, then by element bytes.
func compareSlots(a, b []byte) int {
	if a[0] != b[0] {
		if a[0] != 0 {
			return -1
		}
		return 1
	}
	return bytes.Compare(a[1:], b[1:])
}

// sortMultisets brings every multiset under n into canonical slot order, innermost first.
func sortMultisets(n *Node, S []byte) {
	if n.Type.Kind == KindMultiset {
		for _, kid := range n.Kids {
			if !slotPresent(S, kid) {
				clear(S[kid.Offset:kid.End()])
			} else if kid.Type.hasMultiset() {
				sortMultisets(kid, S)
			}
		}
		sortMultisetNode(n, S)
		return
	}
	if !n.Type.hasMultiset() {
		return
	}
	for _, kid := range n.Kids {
		sortMultisets(kid, S)
	}
}

func (T *Type) hasMultiset() bool {
	switch T.Kind {
	case KindMultiset:
		return true
	case KindArray:
		return T.Elem.hasMultiset()
	case KindRecord:
		for _, fi := range T.Fields {
			if fi.Type.hasMultiset() {
				return true
			}
		}
	}
	return false
}

// SortMultisets brings every multiset in S into canonical slot order.
func (M *Model) SortMultisets(S gosym.State) {
	for _, v := range M.Vars {
		sortMultisets(v.Root, S)
	}
}

// appendWeight appends a key for n that is invariant under every permutation: scalarset leaves contribute only
// whether they are defined, and scalarset-indexed arrays and multisets contribute their sorted member keys.
func appendWeight(buf []byte, n *Node, S []byte) []byte {
	T := n.Type
	if !T.symmetric && !T.hasMultiset() {
		return append(buf, S[n.Offset:n.End()]...)
	}

	switch T.Kind {
	case KindBool, KindEnum, KindRange:
		return append(buf, S[n.Offset:n.End()]...)
	case KindScalarset:
		if getCode(S, n) != 0 {
			return append(buf, 1)
		}
		return append(buf, 0)
	case KindRecord:
		for _, kid := range n.Kids {
			buf = appendWeight(buf, kid, S)
		}
		return buf
	case KindArray:
		if T.Index.Kind != KindScalarset {
			for _, kid := range n.Kids {
				buf = appendWeight(buf, kid, S)
			}
			return buf
		}
		return appendSortedWeights(buf, n.Kids, S, false)
	case KindMultiset:
		return appendSortedWeights(buf, n.Kids, S, true)
	}
	return buf
}

func appendSortedWeights(buf []byte, kids []*Node, S []byte, presentOnly bool) []byte {
	keys := make([][]byte, 0, len(kids))
	for _, kid := range kids {
		if presentOnly && !slotPresent(S, kid) {
			continue
		}
		keys = append(keys, appendWeight(nil, kid, S))
	}
	sortKeys(keys)
	buf = appendCode(buf, 2, uint32(len(keys)))
	for _, k := range keys {
		buf = append(buf, k...)
	}
	return buf
}

func sortKeys(keys [][]byte) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && bytes.Compare(keys[j-1], keys[j]) > 0; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// CompareWeight orders two instances of the same type while treating every scalarset value as interchangeable.
func CompareWeight(na *Node, A []byte, nb *Node, B []byte) int {
	return bytes.Compare(appendWeight(nil, na, A), appendWeight(nil, nb, B))
}
