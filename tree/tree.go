// Package tree renders a set of dotted-octet paths as an ASCII tree, used by
// the diagnostics log to show where named interfaces cluster in address
// space without printing one line per address.
package tree

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/maxmouchet/kapar/addr"
)

// Tree can be any map with:
// 1. Key that has method 'String() string'
// 2. Value is Tree itself
// You can replace this with your own tree
type Tree map[string]Tree

/**
 * Adds paths to the tree, and call if_absent on current element if
 * it is not present in the current path.
 */
func (tree Tree) Add(path []string, if_absent, if_present func (string, interface{}), arg interface{}) {
	if len(path) == 0 {
		return
	}

	nextTree, ok := tree[path[0]]
	if !ok {
		nextTree = Tree{}
		tree[path[0]] = nextTree
		if_absent (path[0], arg)
	} else {
		if_present (path[0], arg)
	}
	nextTree.Add(path[1:], if_absent, if_present, arg)
}

func (tree Tree) Fprint(w io.Writer, root bool, padding string) {
	if tree == nil {
		return
	}

	index := 0
	for k, v := range tree {
		fmt.Fprintf(w, "%s%s\n", padding+getPadding(root, getBoxType(index, len(tree))), k)
		v.Fprint(w, false, padding+getPadding(root, getBoxTypeExternal(index, len(tree))))
		index++
	}
}

type BoxType int

const (
	Regular BoxType = iota
	Last
	AfterLast
	Between
)

func (boxType BoxType) String() string {
	switch boxType {
	case Regular:
		return "\u251c" // ├
	case Last:
		return "\u2514" // └
	case AfterLast:
		return " "
	case Between:
		return "\u2502" // │
	default:
		panic("invalid box type")
	}
}

func getBoxType(index int, len int) BoxType {
	if index+1 == len {
		return Last
	} else if index+1 > len {
		return AfterLast
	}
	return Regular
}

func getBoxTypeExternal(index int, len int) BoxType {
	if index+1 == len {
		return AfterLast
	}
	return Between
}

func getPadding(root bool, boxType BoxType) string {
	if root {
		return ""
	}

	return boxType.String() + " "
}

// BuildAddressTree groups addrs by dotted-octet prefix (the four segments
// of a.b.c.d, most significant first) and returns the resulting Tree plus a
// count of how many addresses pass through each node, keyed by the same
// dotted-prefix string Fprint will print. An address-space census rendered
// this way makes it obvious at a glance which /8s or /16s a run actually
// touched, something a flat sorted address list does not.
func BuildAddressTree(addrs []addr.Address) (Tree, map[string]int) {
	root := Tree{}
	counts := make(map[string]int)
	for _, a := range addrs {
		octets := strings.Split(addr.ToNetIP(a).String(), ".")
		path := make([]string, len(octets))
		prefix := ""
		for i, o := range octets {
			if i == 0 {
				prefix = o
			} else {
				prefix = prefix + "." + o
			}
			path[i] = o
			counts[prefix]++
		}
		root.Add(path, func(string, interface{}) {}, func(string, interface{}) {}, nil)
	}
	return root, counts
}

// FprintAddressTree renders tree to w, annotating each node with how many
// addresses passed through it.
func FprintAddressTree(w io.Writer, tree Tree, counts map[string]int) {
	fprintAddressTree(w, tree, counts, "", "", true)
}

func fprintAddressTree(w io.Writer, tree Tree, counts map[string]int, prefix, padding string, root bool) {
	if tree == nil {
		return
	}
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	index := 0
	for _, k := range keys {
		v := tree[k]
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		fmt.Fprintf(w, "%s%s (%s)\n", padding+getPadding(root, getBoxType(index, len(tree))), k, pluralize(counts[full]))
		fprintAddressTree(w, v, counts, full, padding+getPadding(root, getBoxTypeExternal(index, len(tree))), false)
		index++
	}
}

func pluralize(n int) string {
	if n == 1 {
		return "1 address"
	}
	return strconv.Itoa(n) + " addresses"
}