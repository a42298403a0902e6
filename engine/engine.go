// Package engine wires the pipeline stages together: loading bogon,
// interface, alias, TTL, and path-trace files (bogon and path-trace files
// are read in parallel over independent files via github.com/Emeline-1/pool,
// the same pool.Launch_pool(n, items, fn) pattern the teacher uses for its
// own multi-file warts/RIB loading; interface, alias and TTL files are
// loaded one at a time), ingesting traces sequentially into the
// shared tables (ingestion itself is not safe for concurrent use), running
// subnet inference and alias/link inference, and finally writing the
// output files.
package engine

import (
	"bytes"
	"io"
	"os"
	"time"

	pool "github.com/Emeline-1/pool"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/alias"
	"github.com/maxmouchet/kapar/bogon"
	"github.com/maxmouchet/kapar/config"
	"github.com/maxmouchet/kapar/dump"
	"github.com/maxmouchet/kapar/graph"
	"github.com/maxmouchet/kapar/ingest"
	"github.com/maxmouchet/kapar/iface"
	"github.com/maxmouchet/kapar/pathsrc"
	"github.com/maxmouchet/kapar/subnet"
)

// Engine owns every table the pipeline stages read and mutate, so a
// caller (cmd/kapar, or a test) can run the whole pipeline and then
// inspect the result directly.
type Engine struct {
	Cfg *config.Cfg

	Bogons *bogon.Filter
	Named  *iface.NamedTable
	Anon   *iface.AnonTable
	Bad    *subnet.BadSubnets
	Graph  *graph.Graph

	Ingester *ingest.Ingester
	Subnets  *subnet.Result

	StartTime time.Time
}

// New builds an Engine from a resolved Cfg, with every table freshly
// initialized and the standard bogon list pre-installed.
func New(cfg *config.Cfg) *Engine {
	named := &iface.NamedTable{}
	anon := &iface.AnonTable{}
	bad := subnet.NewBadSubnets()
	bogons := bogon.New()
	g := graph.New()
	config.ApplyToGraph(cfg, g)

	return &Engine{
		Cfg:    cfg,
		Bogons: bogons,
		Named:  named,
		Anon:   anon,
		Bad:    bad,
		Graph:  g,
		Ingester: ingest.New(named, anon, bogons, bad, cfg.Ingest),
	}
}

// indexedJob pairs an arbitrary work item with its position, so parallel
// workers can write their result into a pre-sized slot without contending
// on a shared index. Mirrors the teacher's own warts_parser/bgp_dump_parser
// closures, which capture their shared output set directly rather than
// returning a value pool.Launch_pool would have nowhere to put.
type indexedJob[I any] struct {
	idx  int
	item I
}

// runParallel runs fn over every item in items, up to 16-way concurrent via
// pool.Launch_pool, and returns the per-item results in input order. Every
// item runs; if any failed, the error of the first failing item in input
// order is returned and all results are discarded: a partially loaded run
// is worse than a loud failure at startup.
func runParallel[I, O any](items []I, fn func(I) (O, error)) ([]O, error) {
	jobs := make([]indexedJob[I], len(items))
	for i, it := range items {
		jobs[i] = indexedJob[I]{idx: i, item: it}
	}
	results := make([]O, len(items))
	errs := make([]error, len(items))
	workers := len(jobs)
	if workers > 16 {
		workers = 16
	}
	if workers == 0 {
		return results, nil
	}
	pool.Launch_pool(workers, jobs, func(j indexedJob[I]) {
		r, err := fn(j.item)
		results[j.idx] = r
		errs[j.idx] = err
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// LoadAncillaryFiles reads the bogon, interface, alias, and TTL files named
// in cfg. Bogon files are read in parallel, then folded into the bogon
// filter one at a time in input order; interface, alias and TTL files are
// loaded one at a time (the tables themselves are not safe for concurrent
// mutation).
func (e *Engine) LoadAncillaryFiles() error {
	expandedBogons, err := pathsrc.ExpandFileList(e.Cfg.BogonFiles)
	if err != nil {
		return err
	}
	bogonData, err := runParallel(expandedBogons, readBogonFile)
	if err != nil {
		return err
	}
	for _, data := range bogonData {
		if err := e.Bogons.Load(bytes.NewReader(data)); err != nil {
			return err
		}
	}

	expandedIfaces, err := pathsrc.ExpandFileList(e.Cfg.InterfaceFiles)
	if err != nil {
		return err
	}
	for _, name := range expandedIfaces {
		if err := loadInterfaceFile(e.Named, name); err != nil {
			return err
		}
	}

	expandedAliases, err := pathsrc.ExpandFileList(e.Cfg.AliasFiles)
	if err != nil {
		return err
	}
	for _, name := range expandedAliases {
		if err := loadAliasFile(e.Named, e.Graph, name); err != nil {
			return err
		}
	}

	expandedTTLs, err := pathsrc.ExpandFileList(e.Cfg.TTLFiles)
	if err != nil {
		return err
	}
	for _, name := range expandedTTLs {
		if err := loadTTLFile(e.Named, name); err != nil {
			return err
		}
	}
	return nil
}

// IngestPaths reads every path-source file named in cfg and feeds each
// trace through the Ingester in file order. Parsing itself is fanned out
// in parallel per file (pool.Launch_pool); the sequential Ingester.
// ProcessTrace calls that follow are not.
func (e *Engine) IngestPaths() error {
	files, err := pathsrc.ExpandFileList(e.Cfg.PathFiles)
	if err != nil {
		return err
	}
	perFile, err := runParallel(files, func(name string) ([]pathsrc.Trace, error) {
		src, err := pathsrc.NewTextSource(name)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		var traces []pathsrc.Trace
		for {
			t, ok, err := src.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			traces = append(traces, t)
		}
		return traces, nil
	})
	if err != nil {
		return err
	}
	for _, traces := range perFile {
		for _, t := range traces {
			e.Ingester.ProcessTrace(t.Hops, t.Src, t.Dst)
		}
	}
	return nil
}

// InferTopology runs subnet inference followed by general and then
// point-to-point alias/link inference, then link completion: the ordering
// C9-C12 depend on. A no-aliasing or extraction-mode run stops after
// subnet inference.
func (e *Engine) InferTopology() {
	e.Subnets = subnet.FindSubnets(e.Named.All(), e.Cfg.Subnet, e.Bad)
	if e.Cfg.NoAliasing || e.Cfg.Ingest.ModeExtract {
		return
	}

	eng := &alias.Engine{
		Named: e.Named,
		Anon:  e.Anon,
		Bad:   e.Bad,
		Graph: e.Graph,
		Cfg:   e.Cfg.Alias,
	}
	eng.Ranked = subnet.Ranked(e.Subnets, e.Cfg.Subnet)
	eng.ByAddr = subnet.ByAddr(e.Subnets)

	eng.FindAliases(false)
	eng.FindAliases(true)

	dstLinks := make([]alias.AddrPair, 0, e.Ingester.DstLinks.Len())
	for _, p := range e.Ingester.DstLinks.Items() {
		dstLinks = append(dstLinks, alias.AddrPair{A: p.A, B: p.B})
	}
	eng.FindLinks(dstLinks)
	eng.FixOrphans()
	eng.MarkRedundantAnon()
}

// WriteOutputs writes every output file cfg.OutputSelect asks for (or all
// of them, if unset) under cfg.OutputBase, plus the .addrs (transit
// addresses) and .missing (missing subnet middles) files in extraction
// mode, fanning the independent files out in parallel the same way the
// input side does.
func (e *Engine) WriteOutputs() error {
	h := dump.Header{
		StartTime:   e.StartTime,
		CommandLine: e.Cfg.CommandLine,
		Files:       append(append(append([]string{}, e.Cfg.PathFiles...), e.Cfg.InterfaceFiles...), e.Cfg.AliasFiles...),
	}

	want := func(c byte) bool {
		return e.Cfg.OutputSelect == "" || containsByte(e.Cfg.OutputSelect, c)
	}

	type writer struct {
		suffix string
		fn     func(f *os.File) error
	}
	var writers []writer
	if want('a') {
		writers = append(writers, writer{".aliases", func(f *os.File) error { return dump.WriteAliases(f, h, e.Graph) }})
	}
	if want('l') {
		writers = append(writers, writer{".links", func(f *os.File) error { return dump.WriteLinks(f, h, e.Graph) }})
	}
	if want('i') {
		writers = append(writers, writer{".ifaces", func(f *os.File) error { return dump.WriteIfaces(f, h, e.Named) }})
	}
	if want('s') {
		writers = append(writers, writer{".subnets", func(f *os.File) error {
			return dump.WriteSubnets(f, h, e.Named.All(), e.Subnets, e.Cfg.Subnet)
		}})
	}
	if e.Cfg.Ingest.ModeExtract {
		var transit []addr.Address
		for _, n := range e.Named.All() {
			if n.SeenAsTransit {
				transit = append(transit, n.Addr)
			}
		}
		writers = append(writers,
			writer{".addrs", func(f *os.File) error { return dump.WriteAddrs(f, h, transit) }},
			writer{".missing", func(f *os.File) error { return dump.WriteAddrs(f, h, e.Subnets.Mids) }})
	}

	_, err := runParallel(writers, func(w writer) (struct{}, error) {
		f, err := os.Create(e.Cfg.OutputBase + w.suffix)
		if err != nil {
			return struct{}{}, err
		}
		defer f.Close()
		return struct{}{}, w.fn(f)
	})
	if err != nil {
		return err
	}

	logFile, err := os.Create(e.Cfg.OutputBase + ".log")
	if err != nil {
		return err
	}
	defer logFile.Close()

	var named []addr.Address
	for _, n := range e.Named.All() {
		named = append(named, n.Addr)
	}
	redundant := 0
	for _, a := range e.Anon.All() {
		if a.Redundant {
			redundant++
		}
	}
	diag := dump.Diagnostics{
		NTraces:     e.Ingester.Counters.GoodTraces,
		NNamed:      e.Named.Len(),
		NAnon:       e.Anon.Len(),
		NNodes:      e.Graph.Nodes.Len(),
		NLinks:      e.Graph.Links.Len(),
		NBadSubnets: e.Bad.Len(),
		NRedundant:  redundant,
		NamedAddrs:  named,
	}
	return dump.WriteLog(logFile, h, diag)
}

func containsByte(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}

func readBogonFile(name string) ([]byte, error) {
	r, err := pathsrc.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func loadInterfaceFile(named *iface.NamedTable, name string) error {
	r, err := pathsrc.Open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = ingest.LoadInterfaceFile(named, r)
	return err
}

func loadAliasFile(named *iface.NamedTable, g *graph.Graph, name string) error {
	r, err := pathsrc.Open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = ingest.LoadAliasFile(named, g, r)
	return err
}

func loadTTLFile(named *iface.NamedTable, name string) error {
	r, err := pathsrc.Open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = ingest.LoadTTLFile(named, r)
	return err
}
