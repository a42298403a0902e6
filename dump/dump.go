// Package dump implements the output writers (§6): the final stage that
// turns the node/link graph, the named/anonymous interface tables, and the
// ranked subnet list into the on-disk *.aliases, *.links, *.ifaces,
// *.subnets, *.addrs/*.missing, and *.log files, each opening with the
// common run header (program version, start time, effective command line,
// and input file list).
package dump

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/graph"
	"github.com/maxmouchet/kapar/iface"
	"github.com/maxmouchet/kapar/subnet"
	"github.com/maxmouchet/kapar/tree"
)

// Version is the program version string printed in every output header.
// cmd/kapar copies its own main.version (set at link time via -ldflags)
// into it at startup, the way the teacher's own main.go embeds a
// build-time version rather than hardcoding one.
var Version = "dev"

// Header bundles the fields every output file's leading '#' block repeats.
type Header struct {
	StartTime   time.Time
	CommandLine string
	Files       []string
}

func writeHeader(w io.Writer, h Header) {
	fmt.Fprintf(w, "# kapar %s\n", Version)
	fmt.Fprintf(w, "# start: %d (%s)\n", h.StartTime.Unix(), h.StartTime.Format(time.RFC3339))
	fmt.Fprintf(w, "# command: %s\n", h.CommandLine)
	if len(h.Files) > 0 {
		fmt.Fprintf(w, "# files: %d\n", len(h.Files))
		for _, f := range h.Files {
			fmt.Fprintf(w, "#   %s\n", f)
		}
	}
}

// WriteAliases writes one "N<id>: <addr> <addr> ..." line per node, sorted
// by node id for reproducible output across runs over the same input.
func WriteAliases(w io.Writer, h Header, g *graph.Graph) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, h)
	nodes := g.Nodes.All()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, n := range nodes {
		fmt.Fprintln(bw, n.String())
	}
	return bw.Flush()
}

// WriteLinks writes one "link L<id>: N<id>:<addr> ... N<id>" line per link:
// explicit members show their interface address, implicit members (a
// destination node inferred to share the link but never observed on it)
// show only the bare node id.
func WriteLinks(w io.Writer, h Header, g *graph.Graph) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, h)
	links := g.Links.All()
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	for _, l := range links {
		fmt.Fprintf(bw, "link L%d:", l.ID)
		for _, e := range l.Interfaces {
			if ai, ok := e.(interface{ GetRedundant() bool }); ok && ai.GetRedundant() {
				continue
			}
			fmt.Fprintf(bw, " N%d:%v", e.GetNodeID(), e.GetAddr())
		}
		for _, nid := range l.ImplicitNodes {
			fmt.Fprintf(bw, " N%d", nid)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteIfaces writes one "<addr> [N<id>] [L<id>] [T] [D]" line per named
// interface: the node and link tags are omitted when the interface was
// never resolved onto one, and T/D mark interfaces seen as a transit hop
// or as a trace's destination respectively.
func WriteIfaces(w io.Writer, h Header, named *iface.NamedTable) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, h)
	for _, n := range named.All() {
		fmt.Fprintf(bw, "%v", n.Addr)
		if n.NodeID != 0 {
			fmt.Fprintf(bw, " N%d", n.NodeID)
		}
		if n.LinkID != 0 {
			fmt.Fprintf(bw, " L%d", n.LinkID)
		}
		if n.SeenAsTransit {
			fmt.Fprint(bw, " T")
		}
		if n.SeenAsDest {
			fmt.Fprint(bw, " D")
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteSubnets writes one "<addr>/<len> (<first> - <last>; <completeness>;
// <n-traces>) [CD] [BE]" line per inferred subnet, best-ranked first: CD
// marks a subnet that was used as the C-D anchor of an alias accepted by
// the general pass, BE marks one used as the B-E (common-subnet) anchor.
func WriteSubnets(w io.Writer, h Header, named []*iface.NamedIface, res *subnet.Result, cfg subnet.Config) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, h)
	for _, s := range subnet.Ranked(res, cfg) {
		first, last := named[s.Begin].Addr, named[s.End-1].Addr
		fmt.Fprintf(bw, "%v/%d (%v - %v; %.3f; %d)", s.Addr, s.Length, first, last, s.Completeness, s.NTraces)
		if s.UsedRight {
			fmt.Fprint(bw, " CD")
		}
		if s.UsedLeft {
			fmt.Fprint(bw, " BE")
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteAddrs writes one address per line, in sorted order: the extraction
// mode's *.addrs output (the named addresses seen as transit hops) or *.missing output
// (the addresses findSmallerSubnets determined were missing from an
// otherwise-plausible subnet), depending on which slice the caller passes.
func WriteAddrs(w io.Writer, h Header, addrs []addr.Address) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, h)
	sorted := append([]addr.Address(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, a := range sorted {
		fmt.Fprintln(bw, a)
	}
	return bw.Flush()
}

// Diagnostics bundles the run-level counters and tables the *.log writer
// renders, gathered from whichever pipeline stage produced them.
type Diagnostics struct {
	NTraces      int
	NNamed       int
	NAnon        int
	NNodes       int
	NLinks       int
	NBadSubnets  int
	NRedundant   int
	AnonMatches  int
	NamedAddrs   []addr.Address // for the address-space census tree
}

// WriteLog writes the free-form diagnostics file: the run header, the
// summary counters, and an ASCII tree of the address space actually
// touched, grouped by octet prefix, so a reader can see at a glance which
// ranges a run's traces covered without scanning the full *.ifaces file.
func WriteLog(w io.Writer, h Header, d Diagnostics) error {
	bw := bufio.NewWriter(w)
	writeHeader(bw, h)
	fmt.Fprintf(bw, "traces: %d\n", d.NTraces)
	fmt.Fprintf(bw, "named interfaces: %d\n", d.NNamed)
	fmt.Fprintf(bw, "anonymous interfaces: %d\n", d.NAnon)
	fmt.Fprintf(bw, "nodes: %d\n", d.NNodes)
	fmt.Fprintf(bw, "links: %d\n", d.NLinks)
	fmt.Fprintf(bw, "bad subnets: %d\n", d.NBadSubnets)
	fmt.Fprintf(bw, "redundant anonymous interfaces: %d\n", d.NRedundant)
	fmt.Fprintf(bw, "anonymous-interface match candidates: %d\n", d.AnonMatches)
	if len(d.NamedAddrs) > 0 {
		fmt.Fprintln(bw, "address space census:")
		t, counts := tree.BuildAddressTree(d.NamedAddrs)
		tree.FprintAddressTree(bw, t, counts)
	}
	return bw.Flush()
}
