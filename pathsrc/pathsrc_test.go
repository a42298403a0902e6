package pathsrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maxmouchet/kapar/addr"
)

func ip(a, b, c, d byte) addr.Address {
	return addr.Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTextSourceReadsHeaderAndHops(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "traces.txt",
		"# 192.0.2.1 192.0.2.9\n192.0.2.1 192.0.2.2 * 192.0.2.9\n")

	src, err := NewTextSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	tr, ok, err := src.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v, %v", tr, ok, err)
	}
	if tr.Src != ip(192, 0, 2, 1) || tr.Dst != ip(192, 0, 2, 9) {
		t.Fatalf("src/dst = %v/%v, want 192.0.2.1/192.0.2.9", tr.Src, tr.Dst)
	}
	want := []addr.Address{ip(192, 0, 2, 1), ip(192, 0, 2, 2), 0, ip(192, 0, 2, 9)}
	if len(tr.Hops) != len(want) {
		t.Fatalf("hops = %v, want %v", tr.Hops, want)
	}
	for i := range want {
		if tr.Hops[i] != want[i] {
			t.Fatalf("hop %d = %v, want %v", i, tr.Hops[i], want[i])
		}
	}

	_, ok, err = src.Next()
	if err != nil || ok {
		t.Fatalf("expected end of input, got ok=%v err=%v", ok, err)
	}
}

func TestTextSourceMultipleTraces(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "traces.txt",
		"# 10.0.0.1 10.0.0.2\n10.0.0.1 10.0.0.2\n"+
			"# 10.0.0.1 10.0.0.3\n10.0.0.1 10.0.0.3\n")

	src, err := NewTextSource(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	n := 0
	for {
		_, ok, err := src.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		n++
	}
	if n != 2 {
		t.Fatalf("read %d traces, want 2", n)
	}
}

func TestExpandFileListPassesThroughAndExpandsListFiles(t *testing.T) {
	dir := t.TempDir()
	traceA := writeFile(t, dir, "a.txt", "")
	traceB := writeFile(t, dir, "b.txt", "")
	list := writeFile(t, dir, "files.lst", traceA+"\n"+traceB+"\n# comment\n\n")

	names, err := ExpandFileList([]string{"@" + list, "c.txt"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{traceA, traceB, "c.txt"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMultiSourceChainsUnderlyingSources(t *testing.T) {
	dir := t.TempDir()
	pathA := writeFile(t, dir, "a.txt", "# 1.1.1.1 1.1.1.2\n1.1.1.1 1.1.1.2\n")
	pathB := writeFile(t, dir, "b.txt", "# 2.2.2.1 2.2.2.2\n2.2.2.1 2.2.2.2\n")

	srcA, err := NewTextSource(pathA)
	if err != nil {
		t.Fatal(err)
	}
	srcB, err := NewTextSource(pathB)
	if err != nil {
		t.Fatal(err)
	}
	multi := NewMultiSource(srcA, srcB)
	defer multi.Close()

	var srcs []addr.Address
	for {
		tr, ok, err := multi.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		srcs = append(srcs, tr.Src)
	}
	if len(srcs) != 2 || srcs[0] != ip(1, 1, 1, 1) || srcs[1] != ip(2, 2, 2, 1) {
		t.Fatalf("srcs = %v, want [1.1.1.1, 2.2.2.1]", srcs)
	}
}
