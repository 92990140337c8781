package libsym

import (
	"bytes"
	"sort"
)

// partition is an ordered partition of one domain's elements.
//
// elems lists the elements in position order.  Each cell occupies a contiguous run of elems, kept in ascending
// element order, and is identified by its first position: cell[e] is the id of e's cell and end[c] is one past
// the last position of cell c.  The last cell holds the elements not yet committed to a class.  Any permutation
// respecting the partition sends the members of cell c onto positions [c, end[c]).
type partition struct {
	elems []int
	index []int // index[e] is the position of e within elems
	cell  []int
	end   []int // only meaningful at cell ids
	cells int
	last  int

	mark  []bool // scratch
	order []int  // scratch
	buf   []int  // scratch
}

func (p *partition) reset(n int) {
	if cap(p.elems) < n {
		p.elems = make([]int, n)
		p.index = make([]int, n)
		p.cell = make([]int, n)
		p.end = make([]int, n)
		p.mark = make([]bool, n)
	}
	p.elems = p.elems[:n]
	p.index = p.index[:n]
	p.cell = p.cell[:n]
	p.end = p.end[:n]
	p.mark = p.mark[:n]
	for e := range p.elems {
		p.elems[e] = e
		p.index[e] = e
		p.cell[e] = 0
	}
	p.end[0] = n
	p.cells = 1
	p.last = 0
}

func (p *partition) copyFrom(src *partition) {
	n := len(src.elems)
	if cap(p.elems) < n {
		p.elems = make([]int, n)
		p.index = make([]int, n)
		p.cell = make([]int, n)
		p.end = make([]int, n)
		p.mark = make([]bool, n)
	}
	p.elems = p.elems[:n]
	p.index = p.index[:n]
	p.cell = p.cell[:n]
	p.end = p.end[:n]
	p.mark = p.mark[:n]
	copy(p.elems, src.elems)
	copy(p.index, src.index)
	copy(p.cell, src.cell)
	copy(p.end, src.end)
	p.cells = src.cells
	p.last = src.last
}

// numClasses returns the number of cells.
func (p *partition) numClasses() int {
	return p.cells
}

// isDiscrete returns true if every cell is a singleton.
func (p *partition) isDiscrete() bool {
	return p.cells >= len(p.elems)
}

func (p *partition) size(c int) int {
	return p.end[c] - c
}

// position returns the position e must take if its cell is a singleton, else the first position of its cell.
func (p *partition) position(e int) int {
	return p.cell[e]
}

func (p *partition) isSingleton(e int) bool {
	return p.size(p.cell[e]) == 1
}

// cellAt returns the cell covering pos.
func (p *partition) cellAt(pos int) int {
	return p.cell[p.elems[pos]]
}

// members appends the elements of cell c in element order.
func (p *partition) members(c int, out []int) []int {
	return append(out, p.elems[c:p.end[c]]...)
}

// rank returns the number of cells before cell c.
func (p *partition) rank(c int) int {
	r := 0
	for s := 0; s < c; s = p.end[s] {
		r++
	}
	return r
}

// place writes run into positions [at, at+len(run)).
func (p *partition) place(at int, run []int) {
	for i, e := range run {
		p.elems[at+i] = e
		p.index[e] = at + i
	}
}

// cut starts a new cell at position at, splitting the cell covering it.  at must not already start a cell.
func (p *partition) cut(at int) {
	c := p.cellAt(at)
	p.end[at] = p.end[c]
	p.end[c] = at
	for _, e := range p.elems[at:p.end[at]] {
		p.cell[e] = at
	}
	if p.last == c {
		p.last = at
	}
	p.cells++
}

// individualize moves e to the front of its cell as a singleton.  Returns false if e was already a singleton.
func (p *partition) individualize(e int) bool {
	c := p.cell[e]
	if p.size(c) == 1 {
		return false
	}
	i := p.index[e]
	copy(p.elems[c+1:i+1], p.elems[c:i])
	p.elems[c] = e
	for q := c; q <= i; q++ {
		p.index[p.elems[q]] = q
	}
	p.cut(c + 1)
	return true
}

// splitFront splits cell c so that the listed members come first.  Returns false if the split changes nothing.
func (p *partition) splitFront(c int, front []int) bool {
	inFront := 0
	for _, e := range front {
		if p.cell[e] == c && !p.mark[e] {
			p.mark[e] = true
			inFront++
		}
	}
	changed := inFront > 0 && inFront < p.size(c)
	if changed {
		run := p.buf[:0]
		for _, e := range p.elems[c:p.end[c]] {
			if p.mark[e] {
				run = append(run, e)
			}
		}
		for _, e := range p.elems[c:p.end[c]] {
			if !p.mark[e] {
				run = append(run, e)
			}
		}
		p.place(c, run)
		p.buf = run
		p.cut(c + inFront)
	}
	for _, e := range front {
		p.mark[e] = false
	}
	return changed
}

// splitByKeys splits the cell whose members are listed (in element order) into consecutive cells ordered by
// ascending key.  keys[i] belongs to members[i].
func (p *partition) splitByKeys(members []int, keys [][]byte) bool {
	if len(members) < 2 {
		return false
	}
	order := p.order[:0]
	for i := range members {
		order = append(order, i)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return bytes.Compare(keys[order[i]], keys[order[j]]) < 0
	})
	p.order = order

	c := p.cell[members[0]]
	run := p.buf[:0]
	for _, i := range order {
		run = append(run, members[i])
	}
	p.place(c, run)
	p.buf = run

	changed := false
	for k := len(order) - 1; k > 0; k-- {
		if !bytes.Equal(keys[order[k]], keys[order[k-1]]) {
			p.cut(c + k)
			changed = true
		}
	}
	return changed
}
