// Package subnet implements bad-subnet recording (C8) and subnet inference
// and ranking (C9, C10): turning the sorted named-interface address space
// into a set of point-to-point and broadcast subnet candidates, verifying
// each against accuracy and alias-sanity conditions, and ranking candidates
// that disagree about the same address range.
package subnet

import (
	"sort"

	radix "github.com/Emeline-1/radix"
	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/iface"
)

// BadSubnets records subnet candidates proven inconsistent by the
// pairwise max-subnet-length scan performed during ingestion: two named
// hops that are not adjacent in a trace cannot sit on a common subnet, so
// the longest prefix that could hold both as host addresses, and every
// coarser prefix down to the configured minimum, is ruled out.
//
// Membership is exact-length, not longest-prefix-match: a bad /29 does not
// mark its contained /30s bad, since a /30 carved out of that /29 may still
// be perfectly valid. A radix tree keyed by the binary-string prefix (the
// same `addr.BinaryString` round trip the teacher's own
// `get_binary_string`/`radix.New`/`tree.Insert` pattern uses for the BGP
// overlay tree) backs this rather than gaissmai/bart's LPM table, since
// bart only answers longest-prefix questions and this one needs exact-key
// lookup instead.
type BadSubnets struct {
	tree *radix.Tree
	n    int
}

func NewBadSubnets() *BadSubnets {
	return &BadSubnets{tree: radix.New()}
}

// Mark records a's /length prefix as bad, then walks to coarser
// (shorter) enclosing prefixes one bit at a time, recording each in turn,
// down to minLen. It stops as soon as it reaches a prefix that is already
// marked: when that happened, every prefix coarser than it was marked at
// the same time, so there is nothing left to do.
func (b *BadSubnets) Mark(a addr.Address, length, minLen int) {
	key := addr.Prefix(a, length)
	for length >= minLen {
		binKey := addr.BinaryString(key, length)
		if _, ok := b.tree.Get(binKey); ok {
			return
		}
		b.tree.Insert(binKey, true)
		b.n++
		length--
		if length < minLen {
			return
		}
		key = addr.Prefix(key, length)
	}
}

// Contains reports whether a's exact /length prefix was marked bad.
func (b *BadSubnets) Contains(a addr.Address, length int) bool {
	_, ok := b.tree.Get(addr.BinaryString(addr.Prefix(a, length), length))
	return ok
}

// Len reports how many distinct bad prefixes are recorded, for diagnostics.
func (b *BadSubnets) Len() int { return b.n }

// Subnet is an inferred subnet: a contiguous run of named interfaces,
// identified by their index range [Begin, End) in the sorted named-interface
// table, that share a common /Length prefix.
type Subnet struct {
	Addr         addr.Address
	Length       int
	PointToPoint bool

	Begin, End int // index range into the NamedTable.All() slice

	NTraces      int
	Completeness float64

	// UsedLeft and UsedRight record whether this subnet ever served as the
	// B-E (left) or C-D (right) anchor of an accepted APAR alias
	// inference; they are printed as the BE and CD markers of the
	// *.subnets output.
	UsedLeft, UsedRight bool
}

// Contains reports whether a falls within the subnet's address range.
func (s *Subnet) Contains(a addr.Address) bool {
	return addr.Prefix(a, s.Length) == s.Addr
}

// Config bundles the policy knobs that findSmallerSubnets and Rank consult.
type Config struct {
	MinSubnetLen    int
	MinCompleteness float64

	// MinSubnetMiddleRequired limits the missing-middle-addresses check to
	// subnets of at least this length; wider (shorter-prefix) subnets skip
	// it. 30 effectively disables it, since the check itself only applies
	// to subnets shorter than /30.
	MinSubnetMiddleRequired int

	// S30BeatsS31 makes a /30 outrank a conflicting /31 even though the
	// /31 is the longer (and therefore normally preferred) prefix.
	S30BeatsS31 bool

	// ExtractMode records missing middle addresses into Mids instead of
	// silently discarding the candidate subnet information.
	ExtractMode bool
}

func sameNode(a, b iface.Endpoint) bool {
	return a.GetNodeID() != 0 && a.GetNodeID() == b.GetNodeID()
}

// VerifySubnet checks the accuracy and alias-sanity conditions for the
// candidate subnet starting at named[begin] with the given length: its
// exact prefix must not have been marked bad, and no two named interfaces
// it would cover may already be known aliases of each other.
func VerifySubnet(named []*iface.NamedIface, begin, length int, bad *BadSubnets) bool {
	if bad.Contains(named[begin].Addr, length) {
		return false
	}
	top := addr.MaxAddr(named[begin].Addr, length)
	for i := begin; i < len(named) && named[i].Addr <= top; i++ {
		for j := i + 1; j < len(named) && named[j].Addr <= top; j++ {
			if sameNode(named[i], named[j]) {
				return false
			}
		}
	}
	return true
}

// Result holds the outcome of subnet inference: the accepted candidates and
// any missing middle addresses recorded in extraction mode.
type Result struct {
	Subnets []*Subnet
	Mids    []addr.Address
}

// findSmallerSubnets recursively partitions named[begin:end] into maximal
// runs sharing a /length prefix, emits a candidate subnet for each run wide
// enough to need it, then recurses into any run with more than two members
// to look for narrower subnets nested inside it. verified skips the
// VerifySubnet call when true; it is passed down the recursion unchanged,
// and FindSubnets starts it at false, so every candidate is checked with
// VerifySubnet.
func findSmallerSubnets(named []*iface.NamedIface, begin, end, length int, verified bool, cfg Config, bad *BadSubnets, res *Result) {
	for i := begin; i < end; {
		top := addr.MaxAddr(named[i].Addr, length)
		j := i + 1
		n := 1
		for j < end && named[j].Addr <= top {
			j++
			n++
		}
		if n > 1 {
			sublen := addr.MaxSubnetLen(named[i].Addr, named[j-1].Addr)
			if sublen >= length {
				good := true
				var complt float64
				if sublen < 30 {
					complt = float64(n) / float64((1<<(32-sublen))-2)
					good = complt >= cfg.MinCompleteness
				} else {
					complt = 1.0
				}

				if good && sublen < 30 && sublen >= cfg.MinSubnetMiddleRequired {
					prefix := addr.Prefix(named[i].Addr, sublen)
					mid1 := addr.MaxAddr(prefix, sublen+1)
					mid2 := mid1 + 1
					good = false
					for k := i; k < end && named[k].Addr <= mid2; k++ {
						if named[k].Addr == mid1 || named[k].Addr == mid2 {
							good = true
							break
						}
					}
					if !good && cfg.ExtractMode {
						res.Mids = append(res.Mids, mid1, mid2)
					}
				}

				if good && (verified || VerifySubnet(named, i, sublen, bad)) {
					res.Subnets = append(res.Subnets, &Subnet{
						Addr:         addr.Prefix(named[i].Addr, sublen),
						Length:       sublen,
						PointToPoint: sublen >= 30,
						Begin:        i,
						End:          j,
						Completeness: complt,
					})
				}
			}
			if n > 2 {
				next := sublen
				if length > next {
					next = length
				}
				findSmallerSubnets(named, i, j, next+1, verified, cfg, bad, res)
			}
		}
		i = j
	}
}

// FindSubnets enumerates every subnet candidate over the sorted named
// interfaces, fills in each candidate's trace count, and returns the
// candidates in discovery order; Ranked and ByAddr produce the sorted
// copies the alias-inference pass consumes.
func FindSubnets(named []*iface.NamedIface, cfg Config, bad *BadSubnets) *Result {
	res := &Result{}
	if len(named) == 0 {
		return res
	}
	findSmallerSubnets(named, 0, len(named), cfg.MinSubnetLen, false, cfg, bad, res)
	for _, s := range res.Subnets {
		n := 0
		for i := s.Begin; i < s.End; i++ {
			n += named[i].TraceIDs.Size()
		}
		s.NTraces = n
	}
	return res
}

// ByAddr returns res.Subnets sorted ascending by (Addr, Length): the
// storage order alias inference's commonSubnet search walks backward
// through to find the smallest subnet containing a given pair of
// addresses.
func ByAddr(res *Result) []*Subnet {
	out := make([]*Subnet, len(res.Subnets))
	copy(out, res.Subnets)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Length < out[j].Length
	})
	return out
}

// Ranked returns res.Subnets sorted best-first by Rank.
func Ranked(res *Result, cfg Config) []*Subnet {
	out := make([]*Subnet, len(res.Subnets))
	copy(out, res.Subnets)
	sortSubnets(out, cfg)
	return out
}

func sortSubnets(s []*Subnet, cfg Config) {
	// Insertion sort: the candidate lists produced by FindSubnets are
	// small and already largely ordered by address, so this avoids
	// pulling in sort.Slice's reflection-based comparator for a
	// handful of elements at a time across many independent address
	// ranges.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && Rank(s[j], s[j-1], cfg.S30BeatsS31); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Rank reports whether a should be preferred over b when both are
// candidates covering overlapping address space:
//
//   - between two /31s, the one seen in more traces wins, ties broken
//     toward the numerically lower address;
//   - between two subnets shorter than /31, higher completeness wins,
//     then more traces, then the longer (more specific) prefix, then the
//     numerically lower address;
//   - otherwise (a /31 against something shorter), the longer prefix wins,
//     unless S30BeatsS31 is set and one side is a /30, in which case the
//     /30 wins regardless of length.
func Rank(a, b *Subnet, s30BeatsS31 bool) bool {
	if a.Length == 31 && b.Length == 31 {
		if a.NTraces != b.NTraces {
			return a.NTraces > b.NTraces
		}
		return a.Addr < b.Addr
	}
	if a.Length < 31 && b.Length < 31 {
		if a.Completeness != b.Completeness {
			return a.Completeness > b.Completeness
		}
		if a.NTraces != b.NTraces {
			return a.NTraces > b.NTraces
		}
		if a.Length != b.Length {
			return a.Length > b.Length
		}
		return a.Addr < b.Addr
	}
	if s30BeatsS31 && (a.Length == 30 || b.Length == 30) {
		return a.Length == 30
	}
	return a.Length > b.Length
}
