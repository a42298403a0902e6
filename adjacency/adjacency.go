// Package adjacency implements the small, sorted, deduplicated records each
// interface keeps of its observed neighbors: prev-2 (predecessor,
// pre-predecessor) pairs and prev-1/next-1 single-hop records. Most
// interfaces hold only a handful of these, so the container is a plain
// slice sized for the common case rather than a tree or map.
package adjacency

import (
	"sort"

	"github.com/maxmouchet/kapar/addr"
)

// Pair is a prev-2 record: (predecessor, pre-predecessor). Missing is
// represented by addr 0, matching the source's convention.
type Pair struct {
	A, B addr.Address
}

func lessPair(x, y Pair) bool {
	if x.A != y.A {
		return x.A < y.A
	}
	return x.B < y.B
}

// PairVec is a sorted, deduplicated vector of Pair records.
type PairVec struct {
	items []Pair
}

// Insert adds p if not already present, keeping the vector sorted. Reports
// whether p was newly inserted.
func (v *PairVec) Insert(p Pair) bool {
	i := sort.Search(len(v.items), func(i int) bool { return !lessPair(v.items[i], p) })
	if i < len(v.items) && v.items[i] == p {
		return false
	}
	v.items = append(v.items, Pair{})
	copy(v.items[i+1:], v.items[i:])
	v.items[i] = p
	return true
}

// Contains reports whether p is present.
func (v *PairVec) Contains(p Pair) bool {
	i := sort.Search(len(v.items), func(i int) bool { return !lessPair(v.items[i], p) })
	return i < len(v.items) && v.items[i] == p
}

// Items returns the sorted, deduplicated records.
func (v *PairVec) Items() []Pair { return v.items }

// Len returns the number of distinct records stored.
func (v *PairVec) Len() int { return len(v.items) }

// Clear releases the backing storage, matching the "clear-and-deallocate"
// contract used once adjacency is no longer needed (next-hop adjacency is
// freed after alias inference).
func (v *PairVec) Clear() { v.items = nil }

// AddrVec is a sorted, deduplicated vector of single addresses: used for
// prev-1 (anonymous interfaces) and next-1 (named interfaces) records.
type AddrVec struct {
	items []addr.Address
}

// Insert adds a if not already present. Reports whether a was newly
// inserted.
func (v *AddrVec) Insert(a addr.Address) bool {
	i := sort.Search(len(v.items), func(i int) bool { return v.items[i] >= a })
	if i < len(v.items) && v.items[i] == a {
		return false
	}
	v.items = append(v.items, 0)
	copy(v.items[i+1:], v.items[i:])
	v.items[i] = a
	return true
}

// Contains reports whether a is present.
func (v *AddrVec) Contains(a addr.Address) bool {
	i := sort.Search(len(v.items), func(i int) bool { return v.items[i] >= a })
	return i < len(v.items) && v.items[i] == a
}

// Items returns the sorted, deduplicated addresses.
func (v *AddrVec) Items() []addr.Address { return v.items }

// Len returns the number of distinct addresses stored.
func (v *AddrVec) Len() int { return len(v.items) }

// Clear releases the backing storage.
func (v *AddrVec) Clear() { v.items = nil }

// ByteSize estimates the vector's heap footprint, for the diagnostics
// accessor the spec requires (C4: "a byte-size accessor for diagnostics").
func (v *AddrVec) ByteSize() int { return cap(v.items) * 4 }

// ByteSize estimates the vector's heap footprint.
func (v *PairVec) ByteSize() int { return cap(v.items) * 8 }
