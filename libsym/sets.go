package libsym

import (
	"bytes"

	"github.com/2x3systems/gosym/gosym"
	"github.com/dgraph-io/badger/v3"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// OrderedSet holds distinct states in ascending byte order.
type OrderedSet struct {
	tree redblacktree.Tree
}

func NewOrderedSet() *OrderedSet {
	return &OrderedSet{
		tree: redblacktree.Tree{
			Comparator: func(A, B interface{}) int {
				return bytes.Compare(A.(gosym.State), B.(gosym.State))
			},
		},
	}
}

// TryAdd adds a copy of S if it is not already present.
func (set *OrderedSet) TryAdd(S gosym.State) bool {
	if _, found := set.tree.Get(S); found {
		return false
	}
	set.tree.Put(S.Clone(), nil)
	return true
}

func (set *OrderedSet) Len() int {
	return set.tree.Size()
}

// Min returns the smallest state, or nil if the set is empty.
func (set *OrderedSet) Min() gosym.State {
	node := set.tree.Left()
	if node == nil {
		return nil
	}
	return node.Key.(gosym.State)
}

// States returns every state in ascending order.
func (set *OrderedSet) States() []gosym.State {
	states := make([]gosym.State, 0, set.tree.Size())
	itr := set.tree.Iterator()
	for itr.Next() {
		states = append(states, itr.Key().(gosym.State))
	}
	return states
}

func (set *OrderedSet) Close() {
	set.tree.Clear()
}

// NewCanonicSet returns a StateSet that canonicalizes each state before adding it, so that TryAdd returns false
// for any state whose representative was already added.
//
// The returned set owns a Canonicalizer and is not safe for concurrent use.
func NewCanonicSet(M *Model) gosym.StateSet {
	return &canonicSet{
		canon: M.NewCanonicalizer(),
	}
}

type canonicSet struct {
	keys  keySet
	canon gosym.Canonicalizer
	buf   gosym.State
}

func (set *canonicSet) TryAdd(S gosym.State) bool {
	set.buf = set.canon.Canonicalize(set.buf, S)
	added, err := set.keys.add(set.buf)
	if err != nil {
		panic(err)
	}
	return added
}

func (set *canonicSet) Len() int {
	return set.keys.count
}

func (set *canonicSet) Close() {
	set.keys.close()
}

// keySet is a set of byte keys held in an in-memory badger db, opened on first add.
type keySet struct {
	db    *badger.DB
	count int
}

// add inserts key, returning false if it was already present.
func (set *keySet) add(key []byte) (bool, error) {
	if set.db == nil {
		db, err := badger.Open(badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(nil).
			WithMetricsEnabled(false))
		if err != nil {
			return false, err
		}
		set.db = db
	}

	added := false
	err := set.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err != badger.ErrKeyNotFound {
			return err
		}
		added = true
		return txn.Set(key, nil)
	})
	if err != nil {
		return false, err
	}
	if added {
		set.count++
	}
	return added, nil
}

func (set *keySet) close() {
	if set.db != nil {
		set.db.Close()
		set.db = nil
	}
	set.count = 0
}
