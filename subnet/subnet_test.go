package subnet

import (
	"testing"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/iface"
)

func ip(a, b, c, d byte) addr.Address {
	return addr.Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

func namedAt(a addr.Address) *iface.NamedIface { return &iface.NamedIface{Addr: a} }

func defaultConfig() Config {
	return Config{
		MinSubnetLen:            24,
		MinCompleteness:         0.5,
		MinSubnetMiddleRequired: 30, // disabled
	}
}

func TestFindSubnetsSimpleP2P(t *testing.T) {
	named := []*iface.NamedIface{
		namedAt(ip(10, 0, 0, 1)),
		namedAt(ip(10, 0, 0, 2)),
	}
	named[0].TraceIDs.Append(1)
	named[1].TraceIDs.Append(1)

	bad := NewBadSubnets()
	res := FindSubnets(named, defaultConfig(), bad)
	if len(res.Subnets) != 1 {
		t.Fatalf("got %d subnets, want 1", len(res.Subnets))
	}
	s := res.Subnets[0]
	if s.Length != 30 {
		t.Fatalf("Length = %d, want 30 (broadcast/network excluded)", s.Length)
	}
	if s.Addr != ip(10, 0, 0, 0) {
		t.Fatalf("Addr = %v, want 10.0.0.0", s.Addr)
	}
	if !s.PointToPoint {
		t.Fatal("a /30 candidate must be marked point-to-point")
	}
}

func TestBadSubnetExcludesCandidate(t *testing.T) {
	named := []*iface.NamedIface{
		namedAt(ip(10, 0, 0, 1)),
		namedAt(ip(10, 0, 0, 5)),
	}
	named[0].TraceIDs.Append(1)
	named[1].TraceIDs.Append(1)

	bad := NewBadSubnets()
	// Simulate ingestion's step-3 marking: these two hops are two apart in
	// a trace, so their /29 (and everything coarser, down to /24) is
	// recorded as bad before subnet inference ever runs.
	len29 := addr.MaxSubnetLen(ip(10, 0, 0, 1), ip(10, 0, 0, 5))
	bad.Mark(ip(10, 0, 0, 1), len29, 24)

	res := FindSubnets(named, defaultConfig(), bad)
	for _, s := range res.Subnets {
		if s.Contains(ip(10, 0, 0, 1)) && s.Contains(ip(10, 0, 0, 5)) {
			t.Fatalf("bad subnet /%d at %v was not excluded", s.Length, s.Addr)
		}
	}
}

func TestBadSubnetsMarkIsExactLength(t *testing.T) {
	bad := NewBadSubnets()
	bad.Mark(ip(10, 0, 0, 0), 29, 24)
	if bad.Contains(ip(10, 0, 0, 0), 30) {
		t.Fatal("a bad /29 must not mark its contained /30 bad")
	}
	if !bad.Contains(ip(10, 0, 0, 0), 29) {
		t.Fatal("the exact /29 must be marked bad")
	}
	if !bad.Contains(ip(10, 0, 0, 0), 24) {
		t.Fatal("marking must enlarge down to minLen")
	}
}

func TestVerifySubnetRejectsKnownAliasPair(t *testing.T) {
	a := namedAt(ip(10, 0, 0, 1))
	b := namedAt(ip(10, 0, 0, 2))
	a.NodeID, b.NodeID = 1, 1 // already known aliases
	named := []*iface.NamedIface{a, b}
	bad := NewBadSubnets()
	if VerifySubnet(named, 0, 30, bad) {
		t.Fatal("verifySubnet must reject a subnet whose members are already aliased")
	}
}

func TestRankPrefersMoreTraces31vs31(t *testing.T) {
	a := &Subnet{Length: 31, NTraces: 5, Addr: ip(10, 0, 0, 4)}
	b := &Subnet{Length: 31, NTraces: 2, Addr: ip(10, 0, 0, 0)}
	if !Rank(a, b, false) {
		t.Fatal("the /31 with more traces must rank first")
	}
}

func TestRankS30BeatsS31(t *testing.T) {
	s30 := &Subnet{Length: 30}
	s31 := &Subnet{Length: 31}
	if Rank(s31, s30, false) == false {
		t.Fatal("without the bug-compat policy, the longer /31 ranks first")
	}
	if !Rank(s30, s31, true) {
		t.Fatal("with S30BeatsS31, the /30 must outrank the /31")
	}
}
