// Package iface implements the named and anonymous interface tables (C5):
// the sorted set of explicit, address-keyed interfaces, and the dense
// vector of synthetic interfaces allocated for non-responding hops.
//
// Both tables hand out interfaces from a slab allocator rather than one
// heap allocation per interface: per-object overhead is the spec's only
// hard constraint (roughly one pointer), and a growable backing array of
// structs, returning pointers into it, meets that without reimplementing a
// C++-style placement-new arena.
package iface

import (
	"sort"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/adjacency"
	"github.com/maxmouchet/kapar/idset"
)

// NodeID and LinkID are 1-based; 0 means "not yet on a node/link", matching
// the source's convention of using id 0 as a sentinel.
type NodeID uint32
type LinkID uint32

// NamedIface is an explicit, addressed interface observed in at least one
// trace.
type NamedIface struct {
	Addr Address

	NodeID NodeID
	LinkID LinkID

	Prev adjacency.PairVec // prev-2 records: (hop-1, hop-2)
	Next adjacency.AddrVec // next-1 records

	TraceIDs idset.Set

	MinTTL, MaxTTL []uint8 // optional per-vantage-point TTL bounds

	SeenAsTransit bool
	SeenAsDest    bool
	PreAliased    bool // set by loadAliases (external ingester); consulted by negative-alias
}

// Address is a re-export of addr.Address for ergonomic field access from
// callers that only import iface.
type Address = addr.Address

// Endpoint is the interface graph.setAlias/setLink operate over: any
// explicit interface, named or anonymous, can be merged into a node or
// link.
type Endpoint interface {
	GetNodeID() NodeID
	SetNodeID(NodeID)
	GetLinkID() LinkID
	SetLinkID(LinkID)
	IsNamed() bool
	GetAddr() Address
}

func (n *NamedIface) GetNodeID() NodeID    { return n.NodeID }
func (n *NamedIface) SetNodeID(id NodeID)  { n.NodeID = id }
func (n *NamedIface) GetLinkID() LinkID    { return n.LinkID }
func (n *NamedIface) SetLinkID(id LinkID)  { n.LinkID = id }
func (n *NamedIface) IsNamed() bool        { return true }
func (n *NamedIface) GetAddr() Address     { return n.Addr }

func (a *AnonIface) GetNodeID() NodeID   { return a.NodeID }
func (a *AnonIface) SetNodeID(id NodeID) { a.NodeID = id }
func (a *AnonIface) GetLinkID() LinkID   { return a.LinkID }
func (a *AnonIface) SetLinkID(id LinkID) { a.LinkID = id }
func (a *AnonIface) IsNamed() bool       { return false }
func (a *AnonIface) GetAddr() Address    { return a.Addr }
func (a *AnonIface) GetRedundant() bool  { return a.Redundant }

// AnonIface is a synthetic interface standing in for a non-responding hop.
// Its address is assigned from the reserved anonymous block.
type AnonIface struct {
	Addr Address

	NodeID NodeID
	LinkID LinkID

	Prev adjacency.AddrVec // prev-1 records

	TraceIDs idset.Set

	SeenAsTransit bool
	SeenAsDest    bool

	// RedundantOf is set once link completion determines this anonymous
	// interface shares both a node and a link with another interface;
	// it is then suppressed from output.
	RedundantOf Address
	Redundant   bool
}

// slab is a minimal arena: interfaces are appended to a growable backing
// slice and handed out as stable pointers, giving O(1) amortized
// allocation with no per-object bookkeeping beyond the slice header.
type namedSlab struct {
	chunks [][]NamedIface
	cur    []NamedIface
}

const slabChunkSize = 4096

func (s *namedSlab) alloc(a Address) *NamedIface {
	if len(s.cur) == cap(s.cur) {
		s.cur = make([]NamedIface, 0, slabChunkSize)
		s.chunks = append(s.chunks, s.cur)
	}
	s.cur = s.cur[:len(s.cur)+1]
	n := &s.cur[len(s.cur)-1]
	*n = NamedIface{Addr: a}
	s.chunks[len(s.chunks)-1] = s.cur
	return n
}

// NamedTable is the sorted set of named interfaces, keyed by address.
type NamedTable struct {
	slab  namedSlab
	byKey []*NamedIface // sorted by Addr
}

// FindOrInsert returns the named interface for a, creating it if absent.
// inserted reports whether a new interface was created.
func (t *NamedTable) FindOrInsert(a Address) (iface *NamedIface, inserted bool) {
	i := sort.Search(len(t.byKey), func(i int) bool { return t.byKey[i].Addr >= a })
	if i < len(t.byKey) && t.byKey[i].Addr == a {
		return t.byKey[i], false
	}
	n := t.slab.alloc(a)
	t.byKey = append(t.byKey, nil)
	copy(t.byKey[i+1:], t.byKey[i:])
	t.byKey[i] = n
	return n, true
}

// Find returns the named interface for a, or nil if none exists.
func (t *NamedTable) Find(a Address) *NamedIface {
	i := sort.Search(len(t.byKey), func(i int) bool { return t.byKey[i].Addr >= a })
	if i < len(t.byKey) && t.byKey[i].Addr == a {
		return t.byKey[i]
	}
	return nil
}

// Len returns the number of named interfaces.
func (t *NamedTable) Len() int { return len(t.byKey) }

// All returns interfaces in sorted-by-address order: this is exactly the
// "sorted named-interface address space" that subnet inference recurses
// over.
func (t *NamedTable) All() []*NamedIface { return t.byKey }

// AnonTable is the dense vector of anonymous interfaces, indexed by
// addr - addr.AnonBase.
type AnonTable struct {
	slots []*AnonIface
	chunk []AnonIface
	next  uint32
}

// Allocate reserves n consecutive anonymous addresses and returns the
// first one. It panics if doing so would exceed addr.AnonBlockSize;
// ingestion does not recover the panic, and cmd/kapar's recoverFatal turns
// it into the fatal "anonymous address space exhausted" exit of the error
// taxonomy's data-range-saturation tier.
func (t *AnonTable) Allocate(n int) Address {
	if uint64(t.next)+uint64(n) > addr.AnonBlockSize {
		panic("anonymous address space exhausted")
	}
	first := addr.AnonBase + Address(t.next)
	for i := 0; i < n; i++ {
		if len(t.chunk) == cap(t.chunk) {
			t.chunk = make([]AnonIface, 0, slabChunkSize)
		}
		t.chunk = t.chunk[:len(t.chunk)+1]
		iface := &t.chunk[len(t.chunk)-1]
		*iface = AnonIface{Addr: first + Address(i)}
		t.slots = append(t.slots, iface)
	}
	t.next += uint32(n)
	return first
}

// Get returns the anonymous interface at a, which must have been returned
// (directly or by offset) from a prior Allocate call.
func (t *AnonTable) Get(a Address) *AnonIface {
	idx := a - addr.AnonBase
	return t.slots[idx]
}

// Len returns the number of allocated anonymous interfaces.
func (t *AnonTable) Len() int { return len(t.slots) }

// All returns anonymous interfaces in allocation (address) order.
func (t *AnonTable) All() []*AnonIface { return t.slots }
