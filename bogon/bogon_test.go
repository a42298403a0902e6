package bogon

import (
	"strings"
	"testing"

	"github.com/maxmouchet/kapar/addr"
)

func ip(a, b, c, d byte) addr.Address {
	return addr.Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

func TestStdBogons(t *testing.T) {
	f := New()
	bogus := []addr.Address{ip(10, 1, 2, 3), ip(192, 168, 0, 1), ip(127, 0, 0, 1), ip(224, 0, 0, 1)}
	for _, a := range bogus {
		if !f.IsBogus(a) {
			t.Fatalf("%v should be bogus", a)
		}
	}
	if f.IsBogus(ip(8, 8, 8, 8)) {
		t.Fatal("8.8.8.8 should not be bogus")
	}
}

func TestLoadCustom(t *testing.T) {
	f := &Filter{}
	err := f.Load(strings.NewReader("# comment\n203.0.113.0/24\n\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !f.IsBogus(ip(203, 0, 113, 5)) {
		t.Fatal("203.0.113.5 should be bogus after load")
	}
}

func TestLoadSyntaxError(t *testing.T) {
	f := &Filter{}
	if err := f.Load(strings.NewReader("not-a-prefix\n")); err == nil {
		t.Fatal("expected syntax error")
	}
}
