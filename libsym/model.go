package libsym

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/2x3systems/gosym/gosym"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
)

// Kind tags the variants of a Type.
type Kind byte

const (
	KindBool Kind = iota
	KindEnum
	KindRange
	KindScalarset
	KindArray
	KindRecord
	KindMultiset
)

// Domain is a declared scalarset: a finite set of interchangeable elements.
//
// Elements are numbered 0..Size-1 within the domain and Offset..Offset+Size-1 across all domains.
type Domain struct {
	ID     int
	Name   string
	Size   int
	Offset int

	tablesOnce sync.Once
	tables     permTables
}

// ElementName returns the literal used for element e of this domain.
func (D *Domain) ElementName(e int) string {
	return fmt.Sprintf("%s_%d", D.Name, e)
}

// Field is a named record member.
type Field struct {
	Name string
	Type *Type
}

// Type is a node of a variable's type tree.
type Type struct {
	Kind   Kind
	Name   string   // declared name, if any
	Lo, Hi int      // KindRange
	Values []string // KindEnum
	Domain *Domain  // KindScalarset
	Index  *Type    // KindArray
	Elem   *Type    // KindArray, KindMultiset
	Max    int      // KindMultiset
	Fields []Field  // KindRecord

	classified bool
	shape      gosym.Shape
	size       int  // packed byte size
	width      int  // leaf byte width
	symmetric  bool // some leaf is a scalarset
	symLeaves  int  // number of scalarset leaves in one instance
	domains    []*Domain
}

// IsLeaf returns true for types stored as a single code.
func (T *Type) IsLeaf() bool {
	return T.Kind <= KindScalarset
}

// NumValues returns the number of defined values of a leaf type (excluding undefined).
func (T *Type) NumValues() int {
	switch T.Kind {
	case KindBool:
		return 2
	case KindEnum:
		return len(T.Values)
	case KindRange:
		return T.Hi - T.Lo + 1
	case KindScalarset:
		return T.Domain.Size
	}
	return 0
}

// Shape returns the cached symmetry classification of T.
func (T *Type) Shape() gosym.Shape {
	return classify(T)
}

// HasSymmetry returns true if some leaf under T belongs to a symmetric domain.
func (T *Type) HasSymmetry() bool {
	return T.symmetric
}

// RefersTo returns true if some leaf under T is an element of D.
func (T *Type) RefersTo(D *Domain) bool {
	for _, Di := range T.domains {
		if Di == D {
			return true
		}
	}
	return false
}

// Size returns the number of bytes T occupies in a packed state.
func (T *Type) Size() int {
	return T.size
}

func (T *Type) String() string {
	if T.Name != "" {
		return T.Name
	}
	return T.describe()
}

// describe spells out T structurally, ignoring declared names of T itself.
func (T *Type) describe() string {
	switch T.Kind {
	case KindBool:
		return "boolean"
	case KindEnum:
		return "enum {" + strings.Join(T.Values, ", ") + "}"
	case KindRange:
		return fmt.Sprintf("%d..%d", T.Lo, T.Hi)
	case KindScalarset:
		return T.Domain.Name
	case KindArray:
		return fmt.Sprintf("array [%v] of %v", T.Index, T.Elem)
	case KindMultiset:
		return fmt.Sprintf("multiset [%d] of %v", T.Max, T.Elem)
	case KindRecord:
		buf := strings.Builder{}
		buf.WriteString("record {")
		for _, fi := range T.Fields {
			fmt.Fprintf(&buf, " %s : %v;", fi.Name, fi.Type)
		}
		buf.WriteString(" }")
		return buf.String()
	}
	return "?"
}

// finish computes packed sizes and symmetry summaries bottom-up.
func (T *Type) finish() {
	if T.size > 0 {
		return
	}
	switch T.Kind {
	case KindBool, KindEnum, KindRange, KindScalarset:
		T.width = leafWidth(T.NumValues())
		T.size = T.width
		if T.Kind == KindScalarset {
			T.symmetric = true
			T.symLeaves = 1
			T.domains = []*Domain{T.Domain}
		}
	case KindArray:
		T.Index.finish()
		T.Elem.finish()
		N := T.Index.NumValues()
		T.size = N * T.Elem.size
		T.symmetric = T.Index.symmetric || T.Elem.symmetric
		T.symLeaves = N * T.Elem.symLeaves
		T.domains = mergeDomains(T.Index.domains, T.Elem.domains)
	case KindMultiset:
		T.Elem.finish()
		T.size = T.Max * (1 + T.Elem.size)
		T.symmetric = T.Elem.symmetric
		T.symLeaves = T.Max * T.Elem.symLeaves
		T.domains = T.Elem.domains
	case KindRecord:
		for _, fi := range T.Fields {
			fi.Type.finish()
			T.size += fi.Type.size
			T.symmetric = T.symmetric || fi.Type.symmetric
			T.symLeaves += fi.Type.symLeaves
			T.domains = mergeDomains(T.domains, fi.Type.domains)
		}
	}
}

func mergeDomains(A, B []*Domain) []*Domain {
	out := append([]*Domain(nil), A...)
	for _, Db := range B {
		dupe := false
		for _, Da := range out {
			if Da == Db {
				dupe = true
				break
			}
		}
		if !dupe {
			out = append(out, Db)
		}
	}
	return out
}

func leafWidth(numValues int) int {
	switch {
	case numValues < 0xFF:
		return 1
	case numValues < 0xFFFF:
		return 2
	}
	return 4
}

// Var is a declared state variable.
type Var struct {
	Name  string
	Type  *Type
	Index int // position in priority order
	Decl  int // position in declaration order
	Root  *Node
}

func (v *Var) Shape() gosym.Shape {
	return v.Type.Shape()
}

// Model holds the read-only metadata shared by every canonicalization: domains, types, and the variables in
// priority order with their packed layout.
type Model struct {
	Opts      gosym.Opts
	Domains   []*Domain
	Vars      []*Var // priority order
	Decls     []*Var // declaration order
	StateSize int

	types      map[string]*Type
	domains    map[string]*Domain
	varsByName map[string]*Var

	groupOrder     uint64 // product of per-domain factorials, saturated at ceiling+1
	needsEnumerate bool   // some variable may leave a residual after refinement
	symmetric      bool   // some variable holds a scalarset value
	canonPool      sync.Pool
	statePool      sync.Pool
}

func newModel() *Model {
	return &Model{
		types:      make(map[string]*Type),
		domains:    make(map[string]*Domain),
		varsByName: make(map[string]*Var),
	}
}

// Var returns the variable with the given name, or nil.
func (M *Model) Var(name string) *Var {
	return M.varsByName[name]
}

// Domain returns the domain with the given name, or nil.
func (M *Model) Domain(name string) *Domain {
	return M.domains[name]
}

// GroupOrder returns the order of the full permutation group, saturated just above the explicit ceiling.
func (M *Model) GroupOrder() uint64 {
	return M.groupOrder
}

// HasSymmetry returns true if any variable is touched by a permutation.
func (M *Model) HasSymmetry() bool {
	return M.symmetric
}

// NeedsEnumeration returns true if some variable can leave a residual that refinement alone cannot settle.
func (M *Model) NeedsEnumeration() bool {
	return M.needsEnumerate
}

func (M *Model) addDomain(name string, size int) (*Domain, error) {
	if err := M.checkName(name); err != nil {
		return nil, err
	}
	if size < 1 || size > 0xFFFF {
		return nil, errors.Wrapf(gosym.ErrBadModel, "scalarset %s has size %d", name, size)
	}
	D := &Domain{
		ID:   len(M.Domains),
		Name: name,
		Size: size,
	}
	if D.ID > 0 {
		prev := M.Domains[D.ID-1]
		D.Offset = prev.Offset + prev.Size
	}
	M.Domains = append(M.Domains, D)
	M.domains[name] = D
	M.types[name] = &Type{
		Kind:   KindScalarset,
		Name:   name,
		Domain: D,
	}
	return D, nil
}

func (M *Model) addType(name string, T *Type) error {
	if err := M.checkName(name); err != nil {
		return err
	}
	if T.Name == "" {
		T.Name = name
	}
	M.types[name] = T
	return nil
}

func (M *Model) addVar(name string, T *Type) error {
	if _, exists := M.varsByName[name]; exists {
		return errors.Wrapf(gosym.ErrDuplicateName, "var %s", name)
	}
	v := &Var{
		Name: name,
		Type: T,
		Decl: len(M.Vars),
	}
	M.Vars = append(M.Vars, v)
	M.Decls = append(M.Decls, v)
	M.varsByName[name] = v
	return nil
}

func (M *Model) checkName(name string) error {
	if _, exists := M.types[name]; exists || name == "boolean" {
		return errors.Wrapf(gosym.ErrDuplicateName, "%s", name)
	}
	return nil
}

// finish classifies every variable, fixes the priority order and layout, and checks the enumeration ceiling
// required by the configured strategy.
func (M *Model) finish(opts gosym.Opts) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	M.Opts = opts

	for _, v := range M.Vars {
		v.Type.finish()
		classify(v.Type)
	}

	// Priority order: ascending shape, declaration order within a shape
	sort.SliceStable(M.Vars, func(i, j int) bool {
		return M.Vars[i].Shape() < M.Vars[j].Shape()
	})

	offset := 0
	for i, v := range M.Vars {
		v.Index = i
		v.Root = layoutNode(v.Type, offset)
		offset += v.Type.size
		if v.Type.symmetric {
			M.symmetric = true
			if !v.Shape().IsSimple() {
				M.needsEnumerate = true
			}
		}
	}
	M.StateSize = offset

	M.groupOrder = 1
	for _, D := range M.Domains {
		M.groupOrder = satMul(M.groupOrder, factorial(D.Size))
	}

	M.canonPool.New = func() interface{} {
		return M.newCanonicalizer()
	}

	for _, D := range M.Domains {
		klog.V(2).Infof("scalarset %-12s size %3d offset %3d", D.Name, D.Size, D.Offset)
	}
	for _, v := range M.Vars {
		klog.V(2).Infof("var %3d %-16s %-26v %d bytes", v.Index, v.Name, v.Shape(), v.Type.size)
	}
	klog.V(2).Infof("strategy %v, symmetry %v, group order %s, state %d bytes",
		opts.Strategy, opts.Symmetry, groupOrderString(M.groupOrder), M.StateSize)

	if opts.PermLimit > 0 && opts.Strategy == gosym.HeuristicSmallMem {
		klog.Warningf("perm_limit %d: heuristic_small_mem results are no longer guaranteed canonical", opts.PermLimit)
	}

	return M.checkCeiling()
}

// checkCeiling fails if the configured strategy must materialize a permutation set larger than the ceiling.
func (M *Model) checkCeiling() error {
	if !M.Opts.Symmetry || !M.HasSymmetry() {
		return nil
	}
	need := false
	switch M.Opts.Strategy {
	case gosym.Exhaustive:
		need = true
	case gosym.HeuristicFast:
		need = M.needsEnumerate
	}
	if need && M.groupOrder > gosym.MaxExplicitPermutations {
		return M.ceilingError()
	}
	return nil
}

func (M *Model) ceilingError() error {
	names := make([]string, 0, len(M.Domains))
	for _, D := range M.Domains {
		if D.Size > 1 {
			names = append(names, fmt.Sprintf("%s(%d)", D.Name, D.Size))
		}
	}
	return errors.Wrapf(gosym.ErrPermutationCeiling,
		"strategy %v needs %s permutations over scalarsets %s (limit %d); use heuristic_small_mem or heuristic_normalize",
		M.Opts.Strategy, groupOrderString(M.groupOrder), strings.Join(names, ", "), gosym.MaxExplicitPermutations)
}

func describeDeep(T *Type) string {
	switch T.Kind {
	case KindArray:
		return fmt.Sprintf("array [%s] of %s", describeDeep(T.Index), describeDeep(T.Elem))
	case KindMultiset:
		return fmt.Sprintf("multiset [%d] of %s", T.Max, describeDeep(T.Elem))
	case KindRecord:
		buf := strings.Builder{}
		buf.WriteString("record {")
		for _, fi := range T.Fields {
			fmt.Fprintf(&buf, " %s : %s;", fi.Name, describeDeep(fi.Type))
		}
		buf.WriteString(" }")
		return buf.String()
	case KindScalarset:
		return T.Domain.Name
	}
	return T.describe()
}

func groupOrderString(order uint64) string {
	if order > gosym.MaxExplicitPermutations {
		return fmt.Sprintf("more than %d", gosym.MaxExplicitPermutations)
	}
	return fmt.Sprintf("%d", order)
}

// factorial saturates just above the explicit ceiling.
func factorial(n int) uint64 {
	f := uint64(1)
	for i := 2; i <= n; i++ {
		f = satMul(f, uint64(i))
	}
	return f
}

func satMul(a, b uint64) uint64 {
	const limit = gosym.MaxExplicitPermutations + 1
	if a >= limit || b >= limit || a*b >= limit {
		return limit
	}
	return a * b
}

// Signature describes the layout-relevant parts of the model.
// Two models with equal signatures produce interchangeable states.
func (M *Model) Signature() string {
	buf := strings.Builder{}
	for _, D := range M.Domains {
		fmt.Fprintf(&buf, "scalarset %s : %d;\n", D.Name, D.Size)
	}
	for _, v := range M.Vars {
		fmt.Fprintf(&buf, "var %s : %s;\n", v.Name, describeDeep(v.Type))
	}
	return buf.String()
}
