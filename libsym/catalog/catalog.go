package catalog

import (
	"bytes"
	"runtime"
	"sync"

	"github.com/2x3systems/gosym/gosym"
	"github.com/2x3systems/gosym/libsym"
	"github.com/dgraph-io/badger/v3"
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
)

/***

Catalog database format:

	gCatalogStateKey => CatalogState (varint fields: major, minor, signature, forms, state count)

	kStatePrefix, CanonicState => WitnessState
	...

A CanonicState is the packed representative produced by the catalog's strategy.  Its witness is the first state
added that canonicalized to it.  Since keys sort by raw bytes, Select emits representatives in state order.

***/

var (
	gCatalogStateKey = []byte{0x00, 0x00, 0x01}
)

const (
	kStatePrefix = 0x01

	kMajorVers = 2026
	kMinorVers = 1
)

// CatalogOpts specifies how a catalog is opened.
type CatalogOpts struct {
	DbPathName string // empty for an in-memory catalog
	ReadOnly   bool
}

// CatalogState is the header persisted with each catalog.
type CatalogState struct {
	MajorVers uint64
	MinorVers uint64
	Signature string // model layout the states were packed with
	Forms     string // which canonical forms the states are in
	NumStates uint64
}

func (st *CatalogState) Marshal() ([]byte, error) {
	buf := proto.NewBuffer(make([]byte, 0, 64+len(st.Signature)))
	for _, err := range []error{
		buf.EncodeVarint(st.MajorVers),
		buf.EncodeVarint(st.MinorVers),
		buf.EncodeStringBytes(st.Signature),
		buf.EncodeStringBytes(st.Forms),
		buf.EncodeVarint(st.NumStates),
	} {
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (st *CatalogState) Unmarshal(val []byte) error {
	var err error
	buf := proto.NewBuffer(val)
	if st.MajorVers, err = buf.DecodeVarint(); err != nil {
		return err
	}
	if st.MinorVers, err = buf.DecodeVarint(); err != nil {
		return err
	}
	if st.Signature, err = buf.DecodeStringBytes(); err != nil {
		return err
	}
	if st.Forms, err = buf.DecodeStringBytes(); err != nil {
		return err
	}
	st.NumStates, err = buf.DecodeVarint()
	return err
}

// Catalog persists the distinct canonical states of one model in a badger db.
type Catalog struct {
	M          *libsym.Model
	readOnly   bool
	state      CatalogState
	stateDirty bool
	db         *badger.DB

	mu    sync.Mutex
	canon gosym.Canonicalizer
	key   []byte
}

// canonicForms names the family of representatives M's options produce.  Every exact strategy without a perm
// limit yields the orbit minimum, so their catalogs are interchangeable.
func canonicForms(opts gosym.Opts) string {
	switch {
	case !opts.Symmetry:
		return "sorted"
	case opts.Strategy.IsExact() && !(opts.Strategy == gosym.HeuristicSmallMem && opts.PermLimit > 0):
		return "exact"
	}
	return opts.Strategy.String()
}

func OpenCatalog(M *libsym.Model, opts CatalogOpts) (*Catalog, error) {
	cat := &Catalog{
		M:        M,
		readOnly: opts.ReadOnly,
		canon:    M.NewCanonicalizer(),
	}

	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false // single writer
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	// Badger for windows does not support read-only mode
	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, errors.Wrap(gosym.ErrBadCatalogParam, "DbPathName must be specified for read-only catalog")
		}
		dbOpts.InMemory = true
	}

	var err error
	cat.db, err = badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	err = cat.loadState()
	if err == badger.ErrKeyNotFound {
		err = nil
		cat.stateDirty = !opts.ReadOnly
		cat.state = CatalogState{
			MajorVers: kMajorVers,
			MinorVers: kMinorVers,
			Signature: M.Signature(),
			Forms:     canonicForms(M.Opts),
		}
	}

	if err == nil {
		switch {
		case cat.state.MajorVers != kMajorVers || cat.state.MinorVers != kMinorVers:
			err = errors.Wrapf(gosym.ErrBadCatalogParam, "catalog version %d.%d is incompatible", cat.state.MajorVers, cat.state.MinorVers)
		case cat.state.Signature != M.Signature():
			err = errors.Wrap(gosym.ErrCatalogModelMismatch, "model layout differs")
		case cat.state.Forms != canonicForms(M.Opts):
			err = errors.Wrapf(gosym.ErrCatalogModelMismatch, "catalog holds %s forms, options produce %s forms",
				cat.state.Forms, canonicForms(M.Opts))
		}
	}

	if err != nil {
		cat.db.Close()
		return nil, err
	}

	klog.V(2).Infof("opened catalog %q holding %d states", opts.DbPathName, cat.state.NumStates)
	return cat, nil
}

func (cat *Catalog) loadState() error {
	return cat.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gCatalogStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cat.state.Unmarshal(val)
		})
	})
}

func (cat *Catalog) flushState() error {
	if !cat.stateDirty {
		return nil
	}
	err := cat.db.Update(func(txn *badger.Txn) error {
		stateBuf, err := cat.state.Marshal()
		if err != nil {
			return err
		}
		return txn.Set(gCatalogStateKey, stateBuf)
	})
	if err == nil {
		cat.stateDirty = false
	}
	return err
}

func (cat *Catalog) Close() error {
	cat.mu.Lock()
	defer cat.mu.Unlock()

	if cat.db == nil {
		return nil
	}
	err := cat.flushState()
	if closeErr := cat.db.Close(); err == nil {
		err = closeErr
	}
	cat.db = nil
	return err
}

func (cat *Catalog) IsReadOnly() bool {
	return cat.readOnly
}

// NumStates returns the number of distinct canonical states in this catalog.
func (cat *Catalog) NumStates() int64 {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return int64(cat.state.NumStates)
}

func (cat *Catalog) formKey(S gosym.State) []byte {
	canonic := cat.canon.Canonicalize(nil, S)
	cat.key = append(append(cat.key[:0], kStatePrefix), canonic...)
	return cat.key
}

// TryAddState adds S's representative if it is not already present, returning true if it was added.
// The first state added for a representative is kept as its witness.
func (cat *Catalog) TryAddState(S gosym.State) (bool, error) {
	if cat.readOnly {
		return false, errors.Wrap(gosym.ErrBadCatalogParam, "catalog is read-only")
	}
	cat.mu.Lock()
	defer cat.mu.Unlock()

	key := cat.formKey(S)

	txn := cat.db.NewTransaction(true)
	defer txn.Discard()

	_, err := txn.Get(key)
	if err == nil {
		return false, nil
	}
	if err != badger.ErrKeyNotFound {
		return false, err
	}
	if err = txn.Set(key, S.Clone()); err != nil {
		return false, err
	}
	if err = txn.Commit(); err != nil {
		return false, err
	}
	cat.state.NumStates++
	cat.stateDirty = true
	return true, nil
}

// Lookup returns the witness recorded for S's representative.
func (cat *Catalog) Lookup(S gosym.State) (witness gosym.State, found bool, err error) {
	cat.mu.Lock()
	defer cat.mu.Unlock()

	key := cat.formKey(S)
	err = cat.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		witness, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	return witness, err == nil, err
}

// Select pushes every canonical state in ascending order to onHit, stopping early if done is closed.
func (cat *Catalog) Select(onHit chan<- gosym.State, done <-chan struct{}) error {
	txn := cat.db.NewTransaction(false)
	defer txn.Discard()

	prefix := []byte{kStatePrefix}
	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: false,
		Prefix:         prefix,
	})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		S := gosym.State(append([]byte(nil), key[1:]...))
		select {
		case onHit <- S:
		case <-done:
			return nil
		}
	}
	return nil
}
