package adjacency

import (
	"testing"

	"github.com/maxmouchet/kapar/addr"
)

func TestPairVecSortedUniqueInsert(t *testing.T) {
	var v PairVec
	v.Insert(Pair{A: 3, B: 0})
	v.Insert(Pair{A: 1, B: 0})
	v.Insert(Pair{A: 2, B: 5})
	v.Insert(Pair{A: 1, B: 0}) // duplicate

	items := v.Items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if !lessPair(items[i-1], items[i]) {
			t.Fatalf("items not strictly sorted: %v", items)
		}
	}
}

func TestAddrVecSortedUniqueInsert(t *testing.T) {
	var v AddrVec
	v.Insert(addr.Address(10))
	v.Insert(addr.Address(5))
	v.Insert(addr.Address(10))
	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", v.Len())
	}
	items := v.Items()
	if items[0] != 5 || items[1] != 10 {
		t.Fatalf("items = %v, want [5 10]", items)
	}
}

func TestClear(t *testing.T) {
	var v AddrVec
	v.Insert(1)
	v.Clear()
	if v.Len() != 0 {
		t.Fatal("Clear() must empty the vector")
	}
}
