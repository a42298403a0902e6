// Package graph implements the node and link tables (C6): the two graph
// entities that alias and link inference mutate, with union-by-merge
// semantics and interface back-pointers maintained by id rather than by
// pointer (so that merging one side of a relation never invalidates a
// pointer some other interface is holding).
package graph

import (
	"fmt"
	"log"

	"github.com/maxmouchet/kapar/iface"
)

// Node is a router: the equivalence class of its interfaces under the
// alias relation.
type Node struct {
	ID         iface.NodeID
	Interfaces []iface.Endpoint
	MinTTL     []uint8
	MaxTTL     []uint8
}

// Link is the set of interfaces sharing a layer-2 medium, plus implicit
// node slots for members whose interface on this link was never observed
// directly (destination hops).
type Link struct {
	ID            iface.LinkID
	Interfaces    []iface.Endpoint
	ImplicitNodes []iface.NodeID
}

// NodeSet owns all nodes, indexed by monotonically assigned id.
type NodeSet struct {
	byID  map[iface.NodeID]*Node
	nextID iface.NodeID
}

func NewNodeSet() *NodeSet { return &NodeSet{byID: make(map[iface.NodeID]*Node)} }

func (s *NodeSet) add() *Node {
	s.nextID++
	n := &Node{ID: s.nextID}
	s.byID[n.ID] = n
	return n
}

// Get returns the node with the given id, or nil.
func (s *NodeSet) Get(id iface.NodeID) *Node {
	if id == 0 {
		return nil
	}
	return s.byID[id]
}

// Len returns the number of live nodes.
func (s *NodeSet) Len() int { return len(s.byID) }

// All returns every live node. Order is unspecified; callers that need
// deterministic output order sort by ID.
func (s *NodeSet) All() []*Node {
	out := make([]*Node, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, n)
	}
	return out
}

func (s *NodeSet) erase(id iface.NodeID) { delete(s.byID, id) }

// Add creates and returns a new, empty node.
func (s *NodeSet) Add() *Node { return s.add() }

// LinkSet owns all links, indexed by monotonically assigned id.
type LinkSet struct {
	byID   map[iface.LinkID]*Link
	nextID iface.LinkID
}

func NewLinkSet() *LinkSet { return &LinkSet{byID: make(map[iface.LinkID]*Link)} }

func (s *LinkSet) add() *Link {
	s.nextID++
	l := &Link{ID: s.nextID}
	s.byID[l.ID] = l
	return l
}

// Get returns the link with the given id, or nil.
func (s *LinkSet) Get(id iface.LinkID) *Link {
	if id == 0 {
		return nil
	}
	return s.byID[id]
}

// Len returns the number of live links.
func (s *LinkSet) Len() int { return len(s.byID) }

// All returns every live link.
func (s *LinkSet) All() []*Link {
	out := make([]*Link, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, l)
	}
	return out
}

func (s *LinkSet) erase(id iface.LinkID) { delete(s.byID, id) }

// Add creates and returns a new, empty link.
func (s *LinkSet) Add() *Link { return s.add() }

// Graph bundles the node and link tables together with the policy bit that
// controls the shared-node/shared-link merge warning, since both setAlias
// and setLink need it.
type Graph struct {
	Nodes *NodeSet
	Links *LinkSet

	// AnonSharedNodeLink, when false (CLI flag -N), suppresses the
	// "merging nodes/links that already share a link/node" warning for
	// pairs where at least one interface is anonymous; when true (the
	// default) such pairs are warned about like any other.
	AnonSharedNodeLink bool
}

func New() *Graph {
	return &Graph{Nodes: NewNodeSet(), Links: NewLinkSet(), AnonSharedNodeLink: true}
}

func addIfaceToNode(n *Node, e iface.Endpoint) {
	n.Interfaces = append(n.Interfaces, e)
	e.SetNodeID(n.ID)
}

func addIfaceToLink(l *Link, e iface.Endpoint) {
	l.Interfaces = append(l.Interfaces, e)
	e.SetLinkID(l.ID)
}

// SetAlias declares a and b aliases of the same router, merging their
// nodes if both already have one.
//
// Unlike the source (which always folds b's node into a's with no size
// comparison), the smaller of the two interface lists is folded into the
// larger one, matching this specification's explicit merge-direction
// requirement; which side is "a" and which is "b" therefore no longer
// determines which node id survives a merge.
func (g *Graph) SetAlias(a, b iface.Endpoint) {
	an, bn := a.GetNodeID(), b.GetNodeID()
	if an != 0 && bn != 0 {
		if an == bn {
			return
		}
		keep, dead := g.Nodes.Get(an), g.Nodes.Get(bn)
		if len(dead.Interfaces) > len(keep.Interfaces) {
			keep, dead = dead, keep
		}
		g.warnSharedLink(dead, keep)
		for _, e := range dead.Interfaces {
			e.SetNodeID(keep.ID)
		}
		keep.Interfaces = append(keep.Interfaces, dead.Interfaces...)
		keep.MinTTL = mergeMin(keep.MinTTL, dead.MinTTL)
		keep.MaxTTL = mergeMax(keep.MaxTTL, dead.MaxTTL)
		g.Nodes.erase(dead.ID)
		return
	}
	if an != 0 {
		addIfaceToNode(g.Nodes.Get(an), b)
		return
	}
	if bn != 0 {
		addIfaceToNode(g.Nodes.Get(bn), a)
		return
	}
	n := g.Nodes.add()
	addIfaceToNode(n, a)
	addIfaceToNode(n, b)
}

func (g *Graph) warnSharedLink(dead, keep *Node) {
	for _, i := range dead.Interfaces {
		if !g.AnonSharedNodeLink && !i.IsNamed() {
			continue
		}
		for _, j := range keep.Interfaces {
			if !g.AnonSharedNodeLink && !j.IsNamed() {
				continue
			}
			if i.GetLinkID() != 0 && i.GetLinkID() == j.GetLinkID() {
				log.Printf("WARNING: merging nodes N%d and N%d with shared link L%d (%v, %v)",
					keep.ID, dead.ID, i.GetLinkID(), i.GetAddr(), j.GetAddr())
			}
		}
	}
}

// SetLink declares a and b share a layer-2 medium, merging their links if
// both already have one.
func (g *Graph) SetLink(a, b iface.Endpoint) {
	al, bl := a.GetLinkID(), b.GetLinkID()
	if al != 0 && bl != 0 {
		if al == bl {
			return
		}
		keep, dead := g.Links.Get(al), g.Links.Get(bl)
		g.warnSharedNode(dead, keep)
		for _, e := range dead.Interfaces {
			e.SetLinkID(keep.ID)
		}
		keep.Interfaces = append(keep.Interfaces, dead.Interfaces...)
		keep.ImplicitNodes = append(keep.ImplicitNodes, dead.ImplicitNodes...)
		g.Links.erase(dead.ID)
		return
	}
	if al != 0 {
		addIfaceToLink(g.Links.Get(al), b)
		return
	}
	if bl != 0 {
		addIfaceToLink(g.Links.Get(bl), a)
		return
	}
	l := g.Links.add()
	addIfaceToLink(l, a)
	addIfaceToLink(l, b)
}

func (g *Graph) warnSharedNode(dead, keep *Link) {
	for _, i := range dead.Interfaces {
		if !g.AnonSharedNodeLink && !i.IsNamed() {
			continue
		}
		for _, j := range keep.Interfaces {
			if !g.AnonSharedNodeLink && !j.IsNamed() {
				continue
			}
			if i.GetNodeID() != 0 && i.GetNodeID() == j.GetNodeID() {
				log.Printf("WARNING: merging links L%d and L%d with shared node N%d (%v, %v)",
					keep.ID, dead.ID, i.GetNodeID(), i.GetAddr(), j.GetAddr())
			}
		}
	}
}

// SetLinkImplicit records n as an implicit node on a's link, first creating
// a link holding only a if a does not yet have one.
func (g *Graph) SetLinkImplicit(a iface.Endpoint, n *Node) {
	if a.GetLinkID() != 0 {
		link := g.Links.Get(a.GetLinkID())
		link.ImplicitNodes = append(link.ImplicitNodes, n.ID)
		return
	}
	l := g.Links.add()
	addIfaceToLink(l, a)
	l.ImplicitNodes = append(l.ImplicitNodes, n.ID)
}

// SameNode reports whether a and b are already aliases (on the same node).
func SameNode(a, b iface.Endpoint) bool {
	return a.GetNodeID() != 0 && a.GetNodeID() == b.GetNodeID()
}

// EnsureNode returns e's node, creating a new singleton node for it first
// if it doesn't have one yet.
func (g *Graph) EnsureNode(e iface.Endpoint) *Node {
	if e.GetNodeID() != 0 {
		return g.Nodes.Get(e.GetNodeID())
	}
	n := g.Nodes.add()
	addIfaceToNode(n, e)
	return n
}

// AttachToNode adds e to n directly, bypassing the alias-merge logic in
// SetAlias. Used where the caller has already decided e belongs on n (link
// completion's node creation for previously orphaned interfaces).
func (g *Graph) AttachToNode(n *Node, e iface.Endpoint) { addIfaceToNode(n, e) }

// NewImplicitLink creates a link whose only members are implicit node
// slots, used when link completion infers that two nodes share a link but
// neither side's interface on that link was ever directly observed.
func (g *Graph) NewImplicitLink(n1, n2 *Node) *Link {
	l := g.Links.add()
	l.ImplicitNodes = append(l.ImplicitNodes, n1.ID, n2.ID)
	return l
}

func mergeMin(a, b []uint8) []uint8 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		if a[i] < b[i] {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out
}

func mergeMax(a, b []uint8) []uint8 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		if a[i] > b[i] {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out
}

// String renders a node as "N<id>: <addr> <addr> ..." matching the
// *.aliases output line format.
func (n *Node) String() string {
	s := fmt.Sprintf("N%d:", n.ID)
	for _, e := range n.Interfaces {
		if ai, ok := e.(interface{ GetRedundant() bool }); ok && ai.GetRedundant() {
			continue
		}
		s += fmt.Sprintf(" %v", e.GetAddr())
	}
	return s
}
