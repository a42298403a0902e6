// Package alias implements the modified APAR alias inference pass (C11)
// and the link-completion pass that follows it (C12): turning ranked
// subnet candidates and each interface's recorded adjacency into node
// merges (same-router aliases) and link merges (shared-medium groupings),
// then filling in the nodes link completion alone would otherwise leave
// orphaned.
package alias

import (
	"sort"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/graph"
	"github.com/maxmouchet/kapar/idset"
	"github.com/maxmouchet/kapar/iface"
	"github.com/maxmouchet/kapar/subnet"
)

// Config bundles the alias/link-inference policy knobs.
type Config struct {
	MinSubnetLen int

	SubnetVerify    bool // re-verify a commonSubnet candidate's accuracy/alias-sanity before accepting it
	SubnetInference bool // search for the specific subnet a B/E pair falls in, rather than just trusting the caller's base subnet
	SubnetRank      bool // reject a commonSubnet candidate that ranks worse than the base subnet it's being compared against
	BugRank         bool // compare by storage order instead of Rank when SubnetRank rejects a worse candidate
	S30BeatsS31     bool
	SubnetLenPolicy bool // reject a commonSubnet candidate shorter than the base subnet (cfg.subnet_len)

	NegativeAlias     bool // skip a candidate pair where both sides were already resolved by an external aliases file
	AliasSubnetVerify bool // require at least one verified B-E subnet before accepting an A=E alias
	BugBELink         bool // suppress the single B-E link fallback when B or E is anonymous
	BugBroadcast      bool // don't shrink generalPass's A=E B-E subnet length to exclude network/broadcast addresses
	MarkNonP2P        bool
}

// Engine holds the tables alias and link inference read and mutate.
type Engine struct {
	Named *iface.NamedTable
	Anon  *iface.AnonTable
	Bad   *subnet.BadSubnets
	Graph *graph.Graph

	Ranked []*subnet.Subnet // best-first, from subnet.Ranked
	ByAddr []*subnet.Subnet // address-sorted, for commonSubnet's containment search

	Cfg Config
}

func isNamedAddr(a addr.Address) bool { return !addr.IsAnonymous(a) }

func (e *Engine) findIface(a addr.Address) iface.Endpoint {
	if addr.IsAnonymous(a) {
		return e.Anon.Get(a)
	}
	if n := e.Named.Find(a); n != nil {
		return n
	}
	return nil
}

// areKnownAliases reports whether a and b are the same interface or
// already on the same node.
func areKnownAliases(a, b iface.Endpoint) bool {
	return a == b || graph.SameNode(a, b)
}

// areKnownAliasesAddr reports whether a, or any interface already known to
// be its alias, has address b.
func (e *Engine) areKnownAliasesAddr(a iface.Endpoint, b addr.Address) bool {
	if a.GetAddr() == b {
		return true
	}
	if a.GetNodeID() == 0 {
		return false
	}
	for _, i := range e.Graph.Nodes.Get(a.GetNodeID()).Interfaces {
		if i.GetAddr() == b {
			return true
		}
	}
	return false
}

// aliasArrays returns every interface that would need to be checked for a
// trace-id overlap against e: its whole node if it has one, or just itself.
func aliasArrays(g *graph.Graph, e iface.Endpoint) []iface.Endpoint {
	if e.GetNodeID() != 0 {
		return g.Nodes.Get(e.GetNodeID()).Interfaces
	}
	return []iface.Endpoint{e}
}

// aliasNoLoopCondition is false if a (or any of its known aliases) and b
// (or any of its known aliases) ever appear together in the same trace,
// since merging them would then put one trace's two distinct hops onto a
// single router.
func aliasNoLoopCondition(g *graph.Graph, a, b iface.Endpoint) bool {
	for _, ai := range aliasArrays(g, a) {
		for _, bi := range aliasArrays(g, b) {
			if traceIDs(ai).Overlaps(traceIDs(bi)) {
				return false
			}
		}
	}
	return true
}

func traceIDs(e iface.Endpoint) *idset.Set {
	switch v := e.(type) {
	case *iface.NamedIface:
		return &v.TraceIDs
	case *iface.AnonIface:
		return &v.TraceIDs
	}
	return &idset.Set{}
}

// commonSubnet looks for an accepted subnet containing both a and b, no
// smaller than base's (or the configured minimum) length. It is the test
// behind the APAR neighbor condition: an inferred B-E subnet only
// discharges a B,D alias candidate if B and E are known to share a real
// subnet, not just a coincidental common prefix.
func (e *Engine) commonSubnet(a, b addr.Address, base *subnet.Subnet) *subnet.Subnet {
	minLen := e.Cfg.MinSubnetLen
	if e.Cfg.SubnetLenPolicy {
		minLen = base.Length
	}
	if !isNamedAddr(a) || !isNamedAddr(b) {
		return nil
	}
	if !addr.SamePrefix(a, b, minLen) {
		return nil
	}
	length := addr.MaxSubnetLen(a, b)
	if length < minLen {
		return nil
	}
	if e.Cfg.SubnetVerify {
		begin := lowerBoundAddr(e.Named.All(), addr.Prefix(a, length))
		if !subnet.VerifySubnet(e.Named.All(), begin, length, e.Bad) {
			return nil
		}
	}
	if !e.Cfg.SubnetInference {
		return base
	}

	key := addr.Prefix(a, length)
	idx := lowerBoundSubnet(e.ByAddr, key, length)
	if idx == len(e.ByAddr) {
		if idx == 0 {
			return nil
		}
		idx--
	}
	minAddr := addr.Prefix(a, minLen)
	for idx >= 0 && e.ByAddr[idx].Addr >= minAddr {
		s := e.ByAddr[idx]
		if s.Contains(a) && s.Contains(b) {
			if e.Cfg.SubnetLenPolicy && s.Length < base.Length {
				// s is shorter than the subnet that justified this search;
				// keep looking.
			} else if !e.Cfg.BugRank && e.Cfg.SubnetRank && subnet.Rank(base, s, e.Cfg.S30BeatsS31) {
				// base outranks s; s is not a good enough match.
			} else if e.Cfg.BugRank && e.Cfg.SubnetRank && addrLess(base, s) {
				// storage-order bug-compat comparison, see Config.BugRank.
			} else {
				return s
			}
		}
		idx--
	}
	return nil
}

func addrLess(a, b *subnet.Subnet) bool {
	if a.Addr != b.Addr {
		return a.Addr < b.Addr
	}
	return a.Length < b.Length
}

func lowerBoundAddr(named []*iface.NamedIface, a addr.Address) int {
	lo, hi := 0, len(named)
	for lo < hi {
		mid := (lo + hi) / 2
		if named[mid].Addr < a {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func lowerBoundSubnet(byAddr []*subnet.Subnet, a addr.Address, length int) int {
	lo, hi := 0, len(byAddr)
	for lo < hi {
		mid := (lo + hi) / 2
		less := byAddr[mid].Addr < a || (byAddr[mid].Addr == a && byAddr[mid].Length < length)
		if less {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// setLinkSubnet links every named interface covered by s together.
func (e *Engine) setLinkSubnet(s *subnet.Subnet) {
	named := e.Named.All()
	var first *iface.NamedIface
	for i := s.Begin; i < s.End; i++ {
		if first == nil {
			first = named[i]
			continue
		}
		e.Graph.SetLink(first, named[i])
	}
}

// markNonP2P clears the point-to-point flag on every accepted subnet
// candidate whose address range lies within s: s itself was found not to
// be a simple point-to-point link, so anything narrower that overlaps it
// (e.g. a /31 carved out of a larger multi-access subnet) can't be either.
func (e *Engine) markNonP2P(s *subnet.Subnet) {
	if !e.Cfg.MarkNonP2P {
		return
	}
	top := addr.MaxAddr(s.Addr, s.Length)
	for _, other := range e.ByAddr {
		if other.Addr < s.Addr {
			continue
		}
		if other.Addr > top {
			break
		}
		other.PointToPoint = false
	}
}

// FindAliases runs one pass of APAR alias inference over the ranked
// subnets: pointToPoint restricts the pass to subnets still flagged
// PointToPoint (/30 or narrower, unless markNonP2P cleared the flag) and
// infers aliases directly from the B-C-D relationship; the general pass
// additionally requires a B-E (or A=E) neighbor condition before accepting
// the same B,D alias.
func (e *Engine) FindAliases(pointToPoint bool) {
	named := e.Named.All()
	for _, s := range e.Ranked {
		if pointToPoint && !s.PointToPoint {
			continue
		}
		for i1 := s.Begin; i1 < s.End; i1++ {
			ifaceC := named[i1]
			var ifaceB iface.Endpoint
			for i2 := s.Begin; i2 < s.End; i2++ {
				if i1 == i2 {
					continue
				}
				ifaceD := named[i2]

				var repeatB addr.Address
				haveRepeat := false
				for _, p := range ifaceC.Prev.Items() {
					if haveRepeat && repeatB == p.A {
						continue
					}
					repeatB, haveRepeat = p.A, true
					if p.A == 0 {
						continue
					}
					if e.areKnownAliasesAddr(ifaceD, p.A) {
						if ifaceD.LinkID == 0 {
							e.setLinkSubnet(s)
						}
						continue
					}
					if s.Contains(p.A) {
						continue
					}
					if ifaceB == nil || ifaceB.GetAddr() != p.A {
						ifaceB = e.findIface(p.A)
					}
					if !aliasNoLoopCondition(e.Graph, ifaceB, ifaceD) {
						continue
					}
					if e.Cfg.NegativeAlias {
						if nb, ok := ifaceB.(*iface.NamedIface); ok && nb.PreAliased && ifaceD.PreAliased {
							continue
						}
					}

					if pointToPoint {
						e.Graph.SetAlias(ifaceD, ifaceB)
						e.Graph.SetLink(ifaceC, ifaceD)
						continue
					}

					e.generalPass(s, ifaceB, ifaceD, p.B)
				}
			}
		}
	}
}

// generalPass implements the non-point-to-point half of findAliases: first
// it looks for an E, next-hop of D, such that B and E share a ranked-ok
// subnet (the right-hand APAR condition); failing that, it falls back to
// looking for an E that is already a known alias of A, the hop before B
// (the A=E condition), optionally requiring the implied B-E subnet to
// verify.
func (e *Engine) generalPass(s *subnet.Subnet, ifaceB, ifaceD iface.Endpoint, addrA addr.Address) {
	var bestLeft *subnet.Subnet
	for _, addrE := range ifaceD.(*iface.NamedIface).Next.Items() {
		left := e.commonSubnet(ifaceB.GetAddr(), addrE, s)
		if left == nil {
			continue
		}
		if bestLeft == nil || left.Length > bestLeft.Length {
			bestLeft = left
		}
	}
	if bestLeft != nil {
		s.UsedRight = true
		bestLeft.UsedLeft = true
		e.Graph.SetAlias(ifaceD, ifaceB)
		e.setLinkSubnet(s)
		if s.Length < 30 {
			e.markNonP2P(s)
		}
		e.setLinkSubnet(bestLeft)
		return
	}

	if addrA == 0 {
		return
	}
	ifaceA := e.findIface(addrA)
	if ifaceA == nil {
		return
	}
	bestE, bestLen := addr.Address(0), -1
	foundAE := false
	for _, addrE := range ifaceD.(*iface.NamedIface).Next.Items() {
		if !e.areKnownAliasesAddr(ifaceA, addrE) {
			continue
		}
		foundAE = true
		if !ifaceB.IsNamed() || addr.IsAnonymous(addrE) {
			if bestLen < 0 {
				bestE, bestLen = addrE, 0
			}
			continue
		}
		length := addr.MaxSubnetLen(ifaceB.GetAddr(), addrE)
		var begin int
		for length >= e.Cfg.MinSubnetLen {
			prefix := addr.Prefix(addrE, length)
			begin = lowerBoundAddr(e.Named.All(), prefix)
			if length == 31 || e.Cfg.BugBroadcast {
				break
			}
			mask := addr.Address(0xFFFFFFFF >> uint(length))
			named := e.Named.All()
			if begin < len(named) && named[begin].Addr&mask == 0 {
				length--
				continue
			}
			hi := prefix | mask
			if e.Named.Find(hi) != nil {
				length--
				continue
			}
			break
		}
		if length < e.Cfg.MinSubnetLen || !subnet.VerifySubnet(e.Named.All(), begin, length, e.Bad) {
			continue
		}
		if length > bestLen {
			bestE, bestLen = addrE, length
		}
	}

	if foundAE && (!e.Cfg.AliasSubnetVerify || bestLen >= 0) {
		s.UsedRight = true
		e.Graph.SetAlias(ifaceD, ifaceB)
		e.setLinkSubnet(s)
		if s.Length < 30 {
			e.markNonP2P(s)
		}
		if bestLen == 0 && !e.Cfg.BugBELink {
			e.Graph.SetLink(ifaceB, e.findIface(bestE))
		} else {
			for _, addrE := range ifaceD.(*iface.NamedIface).Next.Items() {
				if addr.SamePrefix(ifaceB.GetAddr(), addrE, bestLen) {
					e.Graph.SetLink(ifaceB, e.findIface(addrE))
				}
			}
		}
	}
}

// AddrPair is a (second-to-last, last) hop pair from a trace that reached
// its destination, as recorded by ingestion's DstLinks. Link completion
// takes plain pairs rather than importing the ingest package directly,
// since that dependency would run backwards (ingest has no need to know
// about link completion).
type AddrPair struct{ A, B addr.Address }

// linkIfaceToNode links i1 to an implicit slot on i2's node, creating that
// node first if it doesn't have one yet, unless i1 is already linked to
// some interface (explicit or implicit) on i2's node: re-linking that pair
// would be a no-op, and checking first avoids growing a link's implicit
// node list with the same node repeated once per trace that observed it.
func (e *Engine) linkIfaceToNode(i1, i2 iface.Endpoint) {
	if i2 == nil {
		return
	}
	n2 := e.Graph.EnsureNode(i2)
	if i1.GetLinkID() != 0 {
		link := e.Graph.Links.Get(i1.GetLinkID())
		for _, li := range link.Interfaces {
			if li.GetNodeID() == n2.ID {
				return
			}
		}
		for _, nid := range link.ImplicitNodes {
			if nid == n2.ID {
				return
			}
		}
	}
	e.Graph.SetLinkImplicit(i1, n2)
}

// FindLinks creates the links implied by each interface's recorded
// single-hop adjacency but never established during alias inference
// (because no ranked subnet ever covered the pair), plus the links implied
// by destination hops, which ingestion defers rather than resolving
// immediately: a destination is not necessarily seen on the interface that
// would carry its return traffic, so attributing it to a node too eagerly
// risks merging the wrong router.
func (e *Engine) FindLinks(dstLinks []AddrPair) {
	for _, i1 := range e.Named.All() {
		var repeat addr.Address
		haveRepeat := false
		for _, p := range i1.Prev.Items() {
			if haveRepeat && repeat == p.A {
				continue
			}
			repeat, haveRepeat = p.A, true
			e.linkIfaceToNode(i1, e.findIface(p.A))
		}
	}
	for _, i1 := range e.Anon.All() {
		for _, a := range i1.Prev.Items() {
			e.linkIfaceToNode(i1, e.findIface(a))
		}
	}

	if len(dstLinks) == 0 {
		return
	}

	node2linkset := make(map[iface.NodeID]*idset.Set)
	linksetFor := func(n iface.NodeID) *idset.Set {
		s, ok := node2linkset[n]
		if !ok {
			s = &idset.Set{}
			node2linkset[n] = s
		}
		return s
	}
	links := e.Graph.Links.All()
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	for _, l := range links {
		for _, ep := range l.Interfaces {
			if ep.GetNodeID() == 0 {
				e.Graph.AttachToNode(e.Graph.Nodes.Add(), ep)
			}
			linksetFor(ep.GetNodeID()).Append(uint32(l.ID))
		}
		for _, n := range l.ImplicitNodes {
			linksetFor(n).Append(uint32(l.ID))
		}
	}

	for _, dl := range dstLinks {
		iface0 := e.findIface(dl.A)
		if iface0 == nil {
			continue
		}
		iface1, _ := e.Named.FindOrInsert(dl.B)
		n0 := e.Graph.EnsureNode(iface0)
		n1 := e.Graph.EnsureNode(iface1)
		ls0 := linksetFor(n0.ID)
		ls1 := linksetFor(n1.ID)
		if !ls0.Overlaps(ls1) {
			l := e.Graph.NewImplicitLink(n0, n1)
			ls0.Append(uint32(l.ID))
			ls1.Append(uint32(l.ID))
		}
	}
}

// FixOrphans gives a singleton node to every interface that ended up on a
// link without ever being carried onto a node by alias inference: link
// completion attaches interfaces to links directly, so an interface seen
// only as someone else's neighbor, never itself aliased to anything, would
// otherwise have a link but no node at all.
func (e *Engine) FixOrphans() {
	for _, i := range e.Named.All() {
		if i.LinkID != 0 && i.NodeID == 0 {
			e.Graph.AttachToNode(e.Graph.Nodes.Add(), i)
		}
	}
	for _, i := range e.Anon.All() {
		if i.LinkID != 0 && i.NodeID == 0 {
			e.Graph.AttachToNode(e.Graph.Nodes.Add(), i)
		}
	}
}

// MarkRedundantAnon finds, for every node, anonymous interfaces that share
// both that node and a link with another interface on it: such an
// anonymous interface carries no information beyond what its node-and-link
// sibling already does, so it is marked redundant and left out of node
// output (see Node.String).
func (e *Engine) MarkRedundantAnon() int {
	marked := 0
	for _, n := range e.Graph.Nodes.All() {
		for _, i := range n.Interfaces {
			ai, ok := i.(*iface.AnonIface)
			if !ok || ai.Redundant || ai.LinkID == 0 {
				continue
			}
			for _, j := range n.Interfaces {
				if i == j || j.GetLinkID() != ai.LinkID {
					continue
				}
				if aj, ok := j.(*iface.AnonIface); ok && aj.Redundant {
					continue
				}
				ai.RedundantOf = j.GetAddr()
				ai.Redundant = true
				marked++
				break
			}
		}
	}
	return marked
}

// MatchAnonymousIfaces detects, for each named interface C, pairs of
// recorded three-hop sequences X-*-C and X-Y-C (the same named X two hops
// back, an anonymous hop * in one and a named hop Y in the other) that
// would imply the anonymous hop is redundant with Y. It only counts
// matches: the merge this condition would justify is
// deliberately never performed here, preserving the source's own
// unresolved state (the detection was implemented, but the corresponding
// redundancy update was never wired up and left dead).
func (e *Engine) MatchAnonymousIfaces() int {
	matches := 0
	for _, ifaceC := range e.Named.All() {
		for _, p1 := range ifaceC.Prev.Items() {
			if !addr.IsAnonymous(p1.A) || addr.IsAnonymous(p1.B) {
				continue
			}
			addrA := p1.B
			for _, p2 := range ifaceC.Prev.Items() {
				if p2.B == addrA && !addr.IsAnonymous(p2.A) {
					matches++
					break
				}
			}
		}
	}
	return matches
}
