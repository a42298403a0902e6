package ingest

import (
	"testing"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/adjacency"
	"github.com/maxmouchet/kapar/bogon"
	"github.com/maxmouchet/kapar/iface"
	"github.com/maxmouchet/kapar/subnet"
)

func ip(a, b, c, d byte) addr.Address {
	return addr.Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

func newIngester(cfg Config) *Ingester {
	// An empty filter, not bogon.New(): the standard bogon list marks all of
	// RFC1918 private space bogus, which would swallow most of the test
	// addresses below. Bogon filtering itself is exercised in package bogon's own tests.
	return New(&iface.NamedTable{}, &iface.AnonTable{}, &bogon.Filter{}, subnet.NewBadSubnets(), cfg)
}

func TestSingleTraceNoLoops(t *testing.T) {
	g := newIngester(Config{MinSubnetLen: 24, InferAliases: true})
	hops := []addr.Address{ip(10, 0, 0, 1), ip(10, 0, 0, 2), ip(10, 1, 0, 1), ip(10, 1, 0, 2)}
	if !g.ProcessTrace(hops, hops[0], hops[3]) {
		t.Fatal("trace must be accepted")
	}
	if g.Named.Len() != 4 {
		t.Fatalf("Named.Len() = %d, want 4", g.Named.Len())
	}
	if g.Bad.Len() != 0 {
		t.Fatalf("Bad.Len() = %d, want 0 (no non-adjacent same-subnet pair)", g.Bad.Len())
	}
}

func TestBadSubnetExclusionScenario(t *testing.T) {
	g := newIngester(Config{MinSubnetLen: 24})
	hops := []addr.Address{
		ip(8, 8, 8, 1),
		ip(10, 0, 0, 1),
		ip(8, 8, 8, 2),
		ip(10, 0, 0, 5),
		ip(8, 8, 8, 5),
	}
	if !g.ProcessTrace(hops, hops[0], hops[4]) {
		t.Fatal("trace must be accepted")
	}
	length := addr.MaxSubnetLen(ip(10, 0, 0, 1), ip(10, 0, 0, 5))
	if length != 29 {
		t.Fatalf("MaxSubnetLen(.1,.5) = %d, want 29", length)
	}
	if !g.Bad.Contains(ip(10, 0, 0, 0), 29) {
		t.Fatal("10.0.0.0/29 must be marked bad")
	}
}

func TestAnonymousCoalescing(t *testing.T) {
	g := newIngester(Config{MinSubnetLen: 24, AnonDups: true})
	x, y := ip(8, 8, 8, 8), ip(9, 9, 9, 9)
	trace := []addr.Address{x, 0, 0, 0, y}

	if !g.ProcessTrace(trace, x, y) {
		t.Fatal("first trace must be accepted")
	}
	if g.Anon.Len() != 3 {
		t.Fatalf("Anon.Len() after first trace = %d, want 3", g.Anon.Len())
	}

	if !g.ProcessTrace(trace, x, y) {
		t.Fatal("second trace must be accepted")
	}
	if g.Anon.Len() != 3 {
		t.Fatalf("Anon.Len() after second (identical) trace = %d, want 3 (reused, not reallocated)", g.Anon.Len())
	}
}

func TestAnonymousRunsNotCoalescedWithoutAnonDups(t *testing.T) {
	g := newIngester(Config{MinSubnetLen: 24, AnonDups: false})
	x, y := ip(8, 8, 8, 8), ip(9, 9, 9, 9)
	trace := []addr.Address{x, 0, 0, 0, y}

	g.ProcessTrace(trace, x, y)
	g.ProcessTrace(trace, x, y)
	if g.Anon.Len() != 6 {
		t.Fatalf("Anon.Len() = %d, want 6 (no reuse without AnonDups)", g.Anon.Len())
	}
}

func TestDestinationLinkRecorded(t *testing.T) {
	g := newIngester(Config{MinSubnetLen: 24, InferLinks: true})
	hops := []addr.Address{ip(10, 0, 0, 1), ip(10, 0, 0, 2), ip(10, 0, 0, 6)}
	dst := hops[2]
	if !g.ProcessTrace(hops, hops[0], dst) {
		t.Fatal("trace must be accepted")
	}
	want := adjacency.Pair{A: hops[1], B: hops[2]}
	if !g.DstLinks.Contains(want) {
		t.Fatal("(second-last, dst) pair must be recorded in DstLinks")
	}
}

func TestOneLoopAnonTreatsRepeatAsBad(t *testing.T) {
	g := newIngester(Config{MinSubnetLen: 24, OneLoopAnon: true})
	hops := []addr.Address{ip(10, 0, 0, 1), ip(10, 0, 0, 2), ip(10, 0, 0, 2), ip(10, 0, 0, 3)}
	g.ProcessTrace(hops, hops[0], hops[3])
	if g.Anon.Len() != 1 {
		t.Fatalf("Anon.Len() = %d, want 1 (the repeated hop becomes anonymous)", g.Anon.Len())
	}
	if g.Named.Find(ip(10, 0, 0, 2)) == nil {
		t.Fatal("the first occurrence context still resolves a named interface elsewhere in the trace")
	}
}
