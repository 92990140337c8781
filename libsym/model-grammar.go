package libsym

import (
	"os"
	"strconv"
	"strings"

	"github.com/2x3systems/gosym/gosym"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

var modelLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Range", Pattern: `\.\.`},
	{Name: "MsOpen", Pattern: `\{\|`},
	{Name: "MsClose", Pattern: `\|\}`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[\[\]{}():;,=|]`},
})

type ModelExpr struct {
	Decls []*DeclExpr `@@*`
}

type DeclExpr struct {
	Scalarset *ScalarsetDecl `  "scalarset" @@`
	Enum      *EnumDecl      `| "enum" @@`
	Type      *NamedTypeExpr `| "type" @@`
	Var       *NamedTypeExpr `| "var" @@`
}

type ScalarsetDecl struct {
	Name string `@Ident ":"`
	Size int    `@Int ";"`
}

type EnumDecl struct {
	Name   string    `@Ident`
	Values *EnumExpr `@@ ";"?`
}

type NamedTypeExpr struct {
	Name string    `@Ident ":"`
	Type *TypeExpr `@@ ";"`
}

type TypeExpr struct {
	Array    *ArrayExpr    `  "array" @@`
	Multiset *MultisetExpr `| "multiset" @@`
	Record   *RecordExpr   `| "record" @@`
	Enum     *EnumExpr     `| "enum" @@`
	Range    *RangeExpr    `| @@`
	Named    string        `| @Ident`
}

type ArrayExpr struct {
	Index *TypeExpr `"[" @@ "]" "of"`
	Elem  *TypeExpr `@@`
}

type MultisetExpr struct {
	Max  int       `"[" @Int "]" "of"`
	Elem *TypeExpr `@@`
}

type RecordExpr struct {
	Fields []*NamedTypeExpr `"{" @@* "}"`
}

type EnumExpr struct {
	Values []string `"{" @Ident ("," @Ident)* "}"`
}

type RangeExpr struct {
	Lo int `@Int ".."`
	Hi int `@Int`
}

// StateExpr lists state literals, each a record of variable values.
type StateExpr struct {
	States []*RecordLit `@@*`
}

type ValueLit struct {
	Undefined bool         `  @"undefined"`
	Int       *int         `| @Int`
	Ident     *string      `| @Ident`
	Array     *ArrayLit    `| @@`
	Multiset  *MultisetLit `| @@`
	Record    *RecordLit   `| @@`
}

type ArrayLit struct {
	Elems []*ValueLit `"[" (@@ ("," @@)*)? "]"`
}

type MultisetLit struct {
	Elems []*ValueLit `"{|" (@@ ("," @@)*)? "|}"`
}

type RecordLit struct {
	Fields []*FieldLit `"{" (@@ ("," @@)*)? "}"`
}

type FieldLit struct {
	Name  string    `@Ident ":"`
	Value *ValueLit `@@`
}

var (
	parseModelExpr = participle.MustBuild[ModelExpr](
		participle.Lexer(modelLexer),
		participle.Elide("Comment", "Whitespace"),
	)
	parseStateExpr = participle.MustBuild[StateExpr](
		participle.Lexer(modelLexer),
		participle.Elide("Comment", "Whitespace"),
	)
)

// LoadModel parses a model description, classifies and lays out its variables, and checks that opts' strategy
// can run on it.
func LoadModel(modelDesc string, opts gosym.Opts) (*Model, error) {
	expr, err := parseModelExpr.ParseString("", modelDesc)
	if err != nil {
		return nil, errors.Wrapf(gosym.ErrBadModel, "%v", err)
	}

	M := newModel()
	for _, decl := range expr.Decls {
		switch {
		case decl.Scalarset != nil:
			_, err = M.addDomain(decl.Scalarset.Name, decl.Scalarset.Size)
		case decl.Enum != nil:
			var T *Type
			if T, err = M.buildEnum(decl.Enum.Values); err == nil {
				err = M.addType(decl.Enum.Name, T)
			}
		case decl.Type != nil:
			var T *Type
			if T, err = M.buildType(decl.Type.Type); err == nil {
				err = M.addType(decl.Type.Name, T)
			}
		case decl.Var != nil:
			var T *Type
			if T, err = M.buildType(decl.Var.Type); err == nil {
				err = M.addVar(decl.Var.Name, T)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if len(M.Vars) == 0 {
		return nil, errors.Wrap(gosym.ErrBadModel, "no state variables declared")
	}

	if err = M.finish(opts); err != nil {
		return nil, err
	}
	return M, nil
}

// LoadModelFile reads and loads the model description at pathname.
func LoadModelFile(pathname string, opts gosym.Opts) (*Model, error) {
	buf, err := os.ReadFile(pathname)
	if err != nil {
		return nil, err
	}
	M, err := LoadModel(string(buf), opts)
	if err != nil {
		return nil, errors.Wrap(err, pathname)
	}
	return M, nil
}

func (M *Model) buildEnum(expr *EnumExpr) (*Type, error) {
	for i, vi := range expr.Values {
		for _, vj := range expr.Values[:i] {
			if vi == vj {
				return nil, errors.Wrapf(gosym.ErrDuplicateName, "enum value %s", vi)
			}
		}
	}
	return &Type{
		Kind:   KindEnum,
		Values: expr.Values,
	}, nil
}

func (M *Model) buildType(expr *TypeExpr) (*Type, error) {
	switch {
	case expr.Array != nil:
		index, err := M.buildType(expr.Array.Index)
		if err != nil {
			return nil, err
		}
		if !index.IsLeaf() {
			return nil, errors.Wrapf(gosym.ErrBadIndexType, "%v", index)
		}
		elem, err := M.buildType(expr.Array.Elem)
		if err != nil {
			return nil, err
		}
		return &Type{
			Kind:  KindArray,
			Index: index,
			Elem:  elem,
		}, nil

	case expr.Multiset != nil:
		if expr.Multiset.Max < 1 {
			return nil, errors.Wrapf(gosym.ErrBadModel, "multiset bound %d", expr.Multiset.Max)
		}
		elem, err := M.buildType(expr.Multiset.Elem)
		if err != nil {
			return nil, err
		}
		return &Type{
			Kind: KindMultiset,
			Max:  expr.Multiset.Max,
			Elem: elem,
		}, nil

	case expr.Record != nil:
		T := &Type{
			Kind: KindRecord,
		}
		for _, fi := range expr.Record.Fields {
			for _, prev := range T.Fields {
				if prev.Name == fi.Name {
					return nil, errors.Wrapf(gosym.ErrDuplicateName, "field %s", fi.Name)
				}
			}
			FT, err := M.buildType(fi.Type)
			if err != nil {
				return nil, err
			}
			T.Fields = append(T.Fields, Field{
				Name: fi.Name,
				Type: FT,
			})
		}
		if len(T.Fields) == 0 {
			return nil, errors.Wrap(gosym.ErrBadModel, "empty record")
		}
		return T, nil

	case expr.Enum != nil:
		return M.buildEnum(expr.Enum)

	case expr.Range != nil:
		if expr.Range.Lo > expr.Range.Hi {
			return nil, errors.Wrapf(gosym.ErrBadModel, "empty range %d..%d", expr.Range.Lo, expr.Range.Hi)
		}
		return &Type{
			Kind: KindRange,
			Lo:   expr.Range.Lo,
			Hi:   expr.Range.Hi,
		}, nil
	}

	if expr.Named == "boolean" {
		return &Type{
			Kind: KindBool,
			Name: "boolean",
		}, nil
	}
	if T := M.types[expr.Named]; T != nil {
		return T, nil
	}
	return nil, errors.Wrapf(gosym.ErrUnknownType, "%q", expr.Named)
}

// ParseStates parses zero or more state literals.
// Omitted variables, fields and elements are undefined.
func (M *Model) ParseStates(statesDesc string) ([]gosym.State, error) {
	expr, err := parseStateExpr.ParseString("", statesDesc)
	if err != nil {
		return nil, errors.Wrapf(gosym.ErrBadValue, "%v", err)
	}
	states := make([]gosym.State, 0, len(expr.States))
	for _, lit := range expr.States {
		S := make(gosym.State, M.StateSize)
		for _, fi := range lit.Fields {
			v := M.Var(fi.Name)
			if v == nil {
				return nil, errors.Wrapf(gosym.ErrBadValue, "unknown variable %q", fi.Name)
			}
			if err = M.assign(v.Root, fi.Value, S); err != nil {
				return nil, errors.Wrap(err, fi.Name)
			}
		}
		M.SortMultisets(S)
		states = append(states, S)
	}
	return states, nil
}

// ParseState parses exactly one state literal.
func (M *Model) ParseState(stateDesc string) (gosym.State, error) {
	states, err := M.ParseStates(stateDesc)
	if err != nil {
		return nil, err
	}
	if len(states) != 1 {
		return nil, errors.Wrapf(gosym.ErrBadValue, "expected one state, got %d", len(states))
	}
	return states[0], nil
}

// MustParseState is ParseState for literals known to be valid.
func (M *Model) MustParseState(stateDesc string) gosym.State {
	S, err := M.ParseState(stateDesc)
	if err != nil {
		panic(err)
	}
	return S
}

func (M *Model) assign(n *Node, val *ValueLit, S []byte) error {
	T := n.Type
	if val.Undefined {
		clear(n.Bytes(S))
		return nil
	}

	if T.IsLeaf() {
		code, err := leafCode(T, val)
		if err != nil {
			return err
		}
		setCode(S, n, code)
		return nil
	}

	switch T.Kind {
	case KindArray:
		if val.Array == nil || len(val.Array.Elems) != len(n.Kids) {
			return errors.Wrapf(gosym.ErrBadValue, "%v needs %d elements", T, len(n.Kids))
		}
		for i, ei := range val.Array.Elems {
			if err := M.assign(n.Kids[i], ei, S); err != nil {
				return err
			}
		}
	case KindMultiset:
		if val.Multiset == nil || len(val.Multiset.Elems) > len(n.Kids) {
			return errors.Wrapf(gosym.ErrBadValue, "%v holds at most %d elements", T, len(n.Kids))
		}
		clear(n.Bytes(S))
		for i, ei := range val.Multiset.Elems {
			slot := n.Kids[i]
			S[slot.Offset-1] = 1
			if err := M.assign(slot, ei, S); err != nil {
				return err
			}
		}
	case KindRecord:
		if val.Record == nil {
			return errors.Wrapf(gosym.ErrBadValue, "%v needs a record literal", T)
		}
	nextField:
		for _, fi := range val.Record.Fields {
			for i, fj := range T.Fields {
				if fj.Name == fi.Name {
					if err := M.assign(n.Kids[i], fi.Value, S); err != nil {
						return errors.Wrap(err, fi.Name)
					}
					continue nextField
				}
			}
			return errors.Wrapf(gosym.ErrBadValue, "%v has no field %q", T, fi.Name)
		}
	}
	return nil
}

func leafCode(T *Type, val *ValueLit) (uint32, error) {
	switch T.Kind {
	case KindRange:
		if val.Int != nil && *val.Int >= T.Lo && *val.Int <= T.Hi {
			return uint32(*val.Int-T.Lo) + 1, nil
		}
	case KindBool:
		if val.Ident != nil {
			switch *val.Ident {
			case "false":
				return 1, nil
			case "true":
				return 2, nil
			}
		}
	case KindEnum:
		if val.Ident != nil {
			for i, vi := range T.Values {
				if vi == *val.Ident {
					return uint32(i) + 1, nil
				}
			}
		}
	case KindScalarset:
		if val.Ident != nil {
			D := T.Domain
			if suffix, ok := strings.CutPrefix(*val.Ident, D.Name+"_"); ok {
				e, err := strconv.Atoi(suffix)
				if err == nil && e >= 0 && e < D.Size {
					return uint32(e) + 1, nil
				}
			}
		}
	}
	return 0, errors.Wrapf(gosym.ErrBadValue, "not a %v value", T)
}
