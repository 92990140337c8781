package gosym

import "errors"

// Errors
var (
	ErrPermutationCeiling   = errors.New("permutation set exceeds the explicit enumeration ceiling")
	ErrBadModel             = errors.New("bad model description")
	ErrUnknownType          = errors.New("unknown type name")
	ErrDuplicateName        = errors.New("name already declared")
	ErrBadIndexType         = errors.New("array index must be a finite free type or a scalarset")
	ErrBadValue             = errors.New("bad value literal")
	ErrBadState             = errors.New("state does not fit the model layout")
	ErrBadStrategy          = errors.New("unknown symmetry strategy")
	ErrBadConfig            = errors.New("bad configuration")
	ErrInternal             = errors.New("internal symmetry dispatch error")
	ErrBadCatalogParam      = errors.New("bad catalog param")
	ErrCatalogModelMismatch = errors.New("catalog was created for a different model")
)
