package dump

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/graph"
	"github.com/maxmouchet/kapar/iface"
)

func testHeader() Header {
	return Header{StartTime: time.Unix(1700000000, 0), CommandLine: "kapar -P trace.txt"}
}

func TestWriteAddrsSortsAndRendersDottedForm(t *testing.T) {
	var buf bytes.Buffer
	addrs := []addr.Address{ip(10, 0, 0, 5), ip(10, 0, 0, 1)}
	if err := WriteAddrs(&buf, testHeader(), addrs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "10.0.0.1") || !strings.Contains(out, "10.0.0.5") {
		t.Fatalf("output missing expected addresses: %s", out)
	}
	i1 := strings.Index(out, "10.0.0.1")
	i5 := strings.Index(out, "10.0.0.5")
	if i1 > i5 {
		t.Fatalf("addresses not sorted ascending: %s", out)
	}
}

func TestWriteAliasesRendersNodeLines(t *testing.T) {
	g := graph.New()
	a := &iface.NamedIface{Addr: ip(192, 0, 2, 1)}
	b := &iface.NamedIface{Addr: ip(192, 0, 2, 2)}
	g.SetAlias(a, b)

	var buf bytes.Buffer
	if err := WriteAliases(&buf, testHeader(), g); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "N1:") {
		t.Fatalf("expected a node line, got: %s", out)
	}
	if !strings.Contains(out, "192.0.2.1") || !strings.Contains(out, "192.0.2.2") {
		t.Fatalf("expected both addresses in node line, got: %s", out)
	}
}

func TestHeaderIncludesCommandLine(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAddrs(&buf, testHeader(), nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "kapar -P trace.txt") {
		t.Fatalf("header missing command line: %s", buf.String())
	}
}

func ip(a, b, c, d byte) addr.Address {
	return addr.Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}
