package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maxmouchet/kapar/config"
)

// stripHeader drops every leading '#' line, so two runs over the same
// input can be compared without the start-time line making every run
// "different".
func stripHeader(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func writeTraceFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "traces.txt")
	content := "" +
		"# 100.0.0.1 100.0.0.9\n" +
		"100.0.0.1 100.0.0.2 100.0.0.5 100.0.0.9\n" +
		"# 100.0.0.1 100.0.0.10\n" +
		"100.0.0.1 100.0.0.2 100.0.0.6 100.0.0.10\n" +
		"# 100.0.0.1 100.0.0.13\n" +
		"100.0.0.1 100.0.0.3 100.0.0.5 100.0.0.13\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runOnce(t *testing.T, traceFile, base string) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.PathFiles = []string{traceFile}
	cfg.OutputBase = base

	e := New(cfg)
	e.StartTime = time.Unix(0, 0)
	if err := e.LoadAncillaryFiles(); err != nil {
		t.Fatalf("LoadAncillaryFiles: %v", err)
	}
	if err := e.IngestPaths(); err != nil {
		t.Fatalf("IngestPaths: %v", err)
	}
	e.InferTopology()
	if err := e.WriteOutputs(); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}
	return e
}

// TestEndToEndDeterministic runs the full pipeline twice over the same
// trace file and checks every output file is byte-identical modulo the
// header's start-time line: the run must be a pure function of its input,
// not of map iteration order or wall-clock time.
func TestEndToEndDeterministic(t *testing.T) {
	dir := t.TempDir()
	traceFile := writeTraceFile(t, dir)

	e1 := runOnce(t, traceFile, filepath.Join(dir, "run1"))
	e2 := runOnce(t, traceFile, filepath.Join(dir, "run2"))

	if e1.Named.Len() != e2.Named.Len() {
		t.Fatalf("named interface count differs: %d vs %d", e1.Named.Len(), e2.Named.Len())
	}
	if e1.Graph.Nodes.Len() != e2.Graph.Nodes.Len() {
		t.Fatalf("node count differs: %d vs %d", e1.Graph.Nodes.Len(), e2.Graph.Nodes.Len())
	}

	for _, suffix := range []string{".aliases", ".links", ".ifaces", ".subnets", ".log"} {
		a := stripHeader(t, filepath.Join(dir, "run1"+suffix))
		b := stripHeader(t, filepath.Join(dir, "run2"+suffix))
		if a != b {
			t.Fatalf("%s differs between runs:\n--- run1 ---\n%s\n--- run2 ---\n%s", suffix, a, b)
		}
	}
}

// TestEndToEndInfersSharedSubnet checks that the three traces, which all
// pass through 100.0.0.1/100.0.0.2-or-3 before fanning out to
// distinct /30s, end up with at least one node carrying more than one
// interface: the alias inference pass actually ran and merged something,
// not just ingestion filling the named table.
func TestEndToEndInfersSharedSubnet(t *testing.T) {
	dir := t.TempDir()
	traceFile := writeTraceFile(t, dir)
	e := runOnce(t, traceFile, filepath.Join(dir, "run"))

	merged := false
	for _, n := range e.Graph.Nodes.All() {
		if len(n.Interfaces) > 1 {
			merged = true
			break
		}
	}
	if !merged {
		t.Fatal("expected at least one multi-interface node after alias inference")
	}
}
