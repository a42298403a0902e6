// Package ingest implements path ingestion (C7): turning one traceroute's
// ordered hop addresses into named/anonymous interface records, adjacency
// entries, and bad-subnet markings, while filtering out hops that cannot be
// trusted (bogons, immediate loops) and coalescing repeated runs of
// non-responding hops into shared synthetic interfaces.
package ingest

import (
	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/adjacency"
	"github.com/maxmouchet/kapar/bogon"
	"github.com/maxmouchet/kapar/iface"
	"github.com/maxmouchet/kapar/subnet"
)

// Config bundles the ingestion-time policy knobs.
type Config struct {
	// OneLoopAnon treats an address immediately repeating itself as
	// untrustworthy, the same as a bogon, rather than as a legitimate
	// interface seen twice.
	OneLoopAnon bool

	// AnonDups coalesces repeated runs of non-responding hops bounded by
	// the same pair of named interfaces into a single shared run of
	// synthetic interfaces, instead of allocating a fresh one per trace.
	AnonDups bool

	// BugRevAnonDup reproduces a naming quirk in anonymous-segment reuse:
	// when the named interface before a run has a numerically larger
	// address than the one after it, the run is canonicalized and filled
	// in reverse so that it still matches a previously seen occurrence of
	// the same bounded run observed in the opposite direction.
	BugRevAnonDup bool

	InferLinks   bool // defer src/dst adjacency into DstLinks for later link completion
	InferAliases bool // store prev-2/next-1 adjacency used by alias inference

	NeedTraceIDs bool // append each accepted trace's id to every hop it touches

	ModeExtract             bool // extraction mode never allocates interfaces for anonymous hops
	MinSubnetLen            int
	MinSubnetMiddleRequired int

	IncludeSrc bool // the path source includes the monitor's own address as hops[0]
}

// Counters tallies ingestion-time diagnostics surfaced in the run log.
type Counters struct {
	TotalHops   int
	Bad31Traces int
	AnonHops    int
	NamedPrev   int
	NamedNext   int
	AnonPrev    int
	GoodTraces  int
}

type anonSegKey struct {
	lo, hi addr.Address
	length int
}

// Ingester accumulates the named/anonymous interface tables from a stream
// of traces. It is not safe for concurrent use: each trace depends on
// state (the bad-subnet set, the anonymous-segment cache, the repeated-hop
// cache) left behind by the one before it.
type Ingester struct {
	Named  *iface.NamedTable
	Anon   *iface.AnonTable
	Bogons *bogon.Filter
	Bad    *subnet.BadSubnets
	Cfg    Config

	// DstLinks records (second-to-last, last) address pairs from traces
	// whose last hop reached the destination, deferred here rather than
	// resolved immediately: a destination is not necessarily seen on the
	// interface that would carry return traffic, so building its node too
	// eagerly would misattribute that interface to the wrong router.
	DstLinks adjacency.PairVec

	anonSegs map[anonSegKey]addr.Address

	cachedHops  []addr.Address
	cachedIhops []iface.Endpoint

	Counters Counters
}

// New returns an Ingester writing into the given tables.
func New(named *iface.NamedTable, anon *iface.AnonTable, bogons *bogon.Filter, bad *subnet.BadSubnets, cfg Config) *Ingester {
	return &Ingester{
		Named:    named,
		Anon:     anon,
		Bogons:   bogons,
		Bad:      bad,
		Cfg:      cfg,
		anonSegs: make(map[anonSegKey]addr.Address),
	}
}

func (g *Ingester) isBadHop(hops []addr.Address, i int) bool {
	if addr.IsAnonymous(hops[i]) || g.Bogons.IsBogus(hops[i]) {
		return true
	}
	return g.Cfg.OneLoopAnon && i < len(hops)-1 && hops[i] == hops[i+1]
}

// ProcessTrace ingests one trace's ordered hop addresses, given the probed
// source and destination. It returns false if the trace was discarded
// outright (the /31 sanity check failed); every other rejection is
// partial, recorded as a bad subnet or a dropped tail hop rather than
// dropping the whole trace.
func (g *Ingester) ProcessTrace(hops []addr.Address, src, dst addr.Address) bool {
	n := len(hops)
	if n == 0 {
		return true
	}

	ihops := make([]iface.Endpoint, n)
	bad := make([]bool, n)

	matchLen := 0
	for matchLen < n && matchLen < len(g.cachedHops) && hops[matchLen] == g.cachedHops[matchLen] {
		matchLen++
	}

	for i := 0; i < n; i++ {
		if g.isBadHop(hops, i) {
			bad[i] = true
			continue
		}
		if i < matchLen {
			ihops[i] = g.cachedIhops[i]
			continue
		}
		nif, _ := g.Named.FindOrInsert(hops[i])
		ihops[i] = nif
	}

	// /31 sanity check: two non-adjacent named hops sharing a /31 can only
	// mean the trace looped back over itself or mangled an address, so the
	// whole trace is untrustworthy.
	for i := 0; i < n; i++ {
		if bad[i] {
			continue
		}
		for j := i + 2; j < n; j++ {
			if bad[j] {
				continue
			}
			if hops[i]&^1 == hops[j]&^1 {
				g.Counters.Bad31Traces++
				g.cachedHops, g.cachedIhops = nil, nil
				return false
			}
		}
	}

	// Bad-subnet marking: two non-adjacent named hops of one trace cannot
	// sit on a common subnet, so the longest prefix that could hold both
	// as host addresses is ruled out, and every coarser one down to
	// MinSubnetLen with it.
	if !g.Cfg.ModeExtract || g.Cfg.MinSubnetMiddleRequired < 30 {
		for i := 0; i < n; i++ {
			if bad[i] {
				continue
			}
			for j := i + 2; j < n; j++ {
				if bad[j] {
					continue
				}
				length := addr.MaxSubnetLen(hops[i], hops[j])
				if length < g.Cfg.MinSubnetLen {
					continue
				}
				g.Bad.Mark(hops[i], length, g.Cfg.MinSubnetLen)
			}
		}
	}

	g.assignAnonymousHops(hops, ihops, bad)
	for _, b := range bad {
		if b {
			g.Counters.AnonHops++
		}
	}

	// Seen-as flags and deferred destination adjacency. The destination
	// hop, once accounted for, is excluded from the hops considered by
	// alias/link inference below.
	firstTransit := 0
	if g.Cfg.IncludeSrc && hops[0] == src {
		firstTransit = 1
	}
	for i := firstTransit; i < n-1; i++ {
		markTransit(ihops[i])
	}
	if hops[n-1] == dst {
		markDest(ihops[n-1])
		if g.Cfg.InferLinks && n > 1 {
			g.DstLinks.Insert(adjacency.Pair{A: hopAddr(hops, ihops, n-2), B: hops[n-1]})
		}
		n--
	}

	g.storeAdjacency(hops, ihops, bad, matchLen, n)

	if g.Cfg.NeedTraceIDs {
		g.Counters.GoodTraces++
		id := uint32(g.Counters.GoodTraces)
		for i := 0; i < len(hops); i++ {
			if ihops[i] == nil {
				continue
			}
			appendTraceID(ihops[i], id)
		}
	}

	g.Counters.TotalHops += n
	g.cachedHops = append(g.cachedHops[:0], hops...)
	g.cachedIhops = append(g.cachedIhops[:0], ihops...)
	return true
}

func (g *Ingester) storeAdjacency(hops []addr.Address, ihops []iface.Endpoint, bad []bool, matchLen, n int) {
	start := matchLen - 1
	if start < 0 {
		start = 0
	}
	for i := start; i < n; i++ {
		if bad[i] {
			if i == 0 {
				continue
			}
			if a, ok := ihops[i].(*iface.AnonIface); ok {
				if a.Prev.Insert(hopAddr(hops, ihops, i-1)) {
					g.Counters.AnonPrev++
				}
			}
			continue
		}
		nif, ok := ihops[i].(*iface.NamedIface)
		if !ok {
			continue
		}
		if i > 0 && i >= start {
			second := addr.Address(0)
			if i > 1 && g.Cfg.InferAliases {
				second = hopAddr(hops, ihops, i-2)
			}
			if nif.Prev.Insert(adjacency.Pair{A: hopAddr(hops, ihops, i-1), B: second}) {
				g.Counters.NamedPrev++
			}
		}
		if i < n-1 && i >= start-1 && g.Cfg.InferAliases {
			if nif.Next.Insert(hopAddr(hops, ihops, i+1)) {
				g.Counters.NamedNext++
			}
		}
	}
}

// hopAddr returns the address of the interface assigned to hop k (the
// synthetic address, for an anonymous hop), or the raw hop address when no
// interface was assigned (extraction mode).
func hopAddr(hops []addr.Address, ihops []iface.Endpoint, k int) addr.Address {
	if ihops[k] != nil {
		return ihops[k].GetAddr()
	}
	return hops[k]
}

func markTransit(e iface.Endpoint) {
	switch v := e.(type) {
	case *iface.NamedIface:
		v.SeenAsTransit = true
	case *iface.AnonIface:
		v.SeenAsTransit = true
	}
}

func markDest(e iface.Endpoint) {
	switch v := e.(type) {
	case *iface.NamedIface:
		v.SeenAsDest = true
	case *iface.AnonIface:
		v.SeenAsDest = true
	}
}

func appendTraceID(e iface.Endpoint, id uint32) {
	switch v := e.(type) {
	case *iface.NamedIface:
		v.TraceIDs.Append(id)
	case *iface.AnonIface:
		v.TraceIDs.Append(id)
	}
}

// assignAnonymousHops replaces every bad[i] position in ihops with a
// synthetic anonymous interface, reusing a previously allocated run when
// AnonDups is set and this run is bounded by the same pair of named
// addresses (in either direction, if BugRevAnonDup applies) as one seen
// before. Extraction mode never allocates interfaces for anonymous hops,
// since it only reports on the raw traces.
func (g *Ingester) assignAnonymousHops(hops []addr.Address, ihops []iface.Endpoint, bad []bool) {
	if g.Cfg.ModeExtract {
		return
	}
	n := len(hops)
	if !g.Cfg.AnonDups {
		for i := 0; i < n; i++ {
			if !bad[i] {
				continue
			}
			first := g.Anon.Allocate(1)
			ihops[i] = g.Anon.Get(first)
		}
		return
	}

	i := 0
	for i < n {
		if !bad[i] {
			i++
			continue
		}
		start := i
		for i < n && bad[i] {
			i++
		}
		runLen := i - start

		if start == 0 || i == n {
			// No named anchor on one side: nothing to key reuse on.
			first := g.Anon.Allocate(runLen)
			g.fillRun(ihops, start, i, false, first)
			continue
		}

		loAnchor, hiAnchor := hops[start-1], hops[i]
		reversed := g.Cfg.BugRevAnonDup && loAnchor > hiAnchor
		lo, hi := loAnchor, hiAnchor
		if reversed {
			lo, hi = hiAnchor, loAnchor
		}

		key := anonSegKey{lo, hi, runLen}
		if first, ok := g.anonSegs[key]; ok {
			g.fillRun(ihops, start, i, reversed, first)
			continue
		}
		first := g.Anon.Allocate(runLen)
		g.anonSegs[key] = first
		g.fillRun(ihops, start, i, reversed, first)
	}
}

func (g *Ingester) fillRun(ihops []iface.Endpoint, start, end int, reversed bool, first addr.Address) {
	n := end - start
	for k := 0; k < n; k++ {
		pos := start + k
		if reversed {
			pos = end - 1 - k
		}
		ihops[pos] = g.Anon.Get(first + addr.Address(k))
	}
}
