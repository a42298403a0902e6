package graph

import (
	"fmt"
	"testing"

	bgraph "github.com/Emeline-1/basic_graph"
	"github.com/maxmouchet/kapar/iface"
)

func namedAt(a iface.Address) *iface.NamedIface {
	return &iface.NamedIface{Addr: a}
}

func TestSetAliasCreatesNode(t *testing.T) {
	g := New()
	a, b := namedAt(1), namedAt(2)
	g.SetAlias(a, b)
	if !SameNode(a, b) {
		t.Fatal("a and b must be on the same node after SetAlias")
	}
	if g.Nodes.Len() != 1 {
		t.Fatalf("Nodes.Len() = %d, want 1", g.Nodes.Len())
	}
}

func TestSetAliasIdempotent(t *testing.T) {
	g := New()
	a, b := namedAt(1), namedAt(2)
	g.SetAlias(a, b)
	nodesBefore := g.Nodes.Len()
	g.SetAlias(a, b)
	g.SetAlias(b, a)
	if g.Nodes.Len() != nodesBefore {
		t.Fatalf("SetAlias must be idempotent, got %d nodes, want %d", g.Nodes.Len(), nodesBefore)
	}
}

func TestSetAliasMergesNodesAndBackpointers(t *testing.T) {
	g := New()
	a, b, c := namedAt(1), namedAt(2), namedAt(3)
	g.SetAlias(a, b)
	g.SetAlias(b, c)
	if !SameNode(a, c) {
		t.Fatal("alias relation must be transitive under merges")
	}
	node := g.Nodes.Get(a.GetNodeID())
	if len(node.Interfaces) != 3 {
		t.Fatalf("merged node has %d interfaces, want 3", len(node.Interfaces))
	}
	for _, e := range node.Interfaces {
		if g.Nodes.Get(e.GetNodeID()) != node {
			t.Fatal("back-pointer mismatch after merge")
		}
	}
}

// TestSetAliasEquivalenceMatchesIndependentGraph checks the node partition
// SetAlias produces against an independent oracle: a plain graph built from
// exactly the same set-alias edges, whose connected components should be the
// same equivalence classes, computed a completely different way.
func TestSetAliasEquivalenceMatchesIndependentGraph(t *testing.T) {
	g := New()
	ifaces := make([]*iface.NamedIface, 7)
	for i := range ifaces {
		ifaces[i] = namedAt(iface.Address(i + 1))
	}
	edges := [][2]int{{0, 1}, {1, 2}, {3, 4}, {5, 6}, {2, 3}}

	oracle := bgraph.New()
	for _, e := range edges {
		a, b := ifaces[e[0]], ifaces[e[1]]
		g.SetAlias(a, b)
		oracle.Add_edge(fmt.Sprint(a.Addr), fmt.Sprint(b.Addr))
	}

	oracle.Set_iterator()
	for oracle.Next_connected_component() {
		component := oracle.Connected_component()
		var first iface.Endpoint
		for _, key := range component {
			for _, e := range ifaces {
				if fmt.Sprint(e.Addr) != key {
					continue
				}
				if first == nil {
					first = e
				} else if !SameNode(first, e) {
					t.Fatalf("oracle connected component %v is split across nodes in the real graph", component)
				}
			}
		}
	}

	for _, e := range ifaces {
		if e.GetNodeID() == 0 {
			continue
		}
		for _, o := range ifaces {
			if o.GetNodeID() == 0 || e == o {
				continue
			}
			sameReal := SameNode(e, o)
			sameOracle := false
			oracle.Set_iterator()
			for oracle.Next_connected_component() {
				component := oracle.Connected_component()
				hasE, hasO := false, false
				for _, key := range component {
					if key == fmt.Sprint(e.Addr) {
						hasE = true
					}
					if key == fmt.Sprint(o.Addr) {
						hasO = true
					}
				}
				if hasE && hasO {
					sameOracle = true
				}
			}
			if sameReal != sameOracle {
				t.Fatalf("%v and %v: real graph same-node=%v, oracle same-component=%v", e.Addr, o.Addr, sameReal, sameOracle)
			}
		}
	}
}

func TestSetLinkMergesAndTransfers(t *testing.T) {
	g := New()
	a, b, c := namedAt(1), namedAt(2), namedAt(3)
	g.SetLink(a, b)
	g.SetLink(b, c)
	if a.GetLinkID() != c.GetLinkID() {
		t.Fatal("link must be transitive under merges")
	}
	link := g.Links.Get(a.GetLinkID())
	if len(link.Interfaces) != 3 {
		t.Fatalf("merged link has %d interfaces, want 3", len(link.Interfaces))
	}
}
