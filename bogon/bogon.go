// Package bogon implements the bogon filter (C2): a longest-prefix-match
// membership test over a set of reserved/invalid IPv4 ranges, pre-seeded
// with the standard RFC 5735 bogon list and extensible from a text file.
package bogon

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/gaissmai/bart"
	"github.com/maxmouchet/kapar/addr"
)

// Filter answers is-bogus(addr) via longest-prefix-match over its
// installed ranges. The backing store is github.com/gaissmai/bart's
// compressed multibit trie: since LPM correctness doesn't depend on
// pruning shorter prefixes already covered by a longer one (the lookup
// always returns the most specific match regardless of which broader
// entries also happen to be present), this does not reproduce the
// source's "keep only the largest prefixes" bookkeeping — it is a
// storage optimization the source needed for its hand-rolled std::set
// walk, not an externally observable behavior.
type Filter struct {
	table bart.Table[bool]
}

// New returns a Filter pre-seeded with the standard bogons (RFC 5735
// reserved ranges, plus the anonymous multicast block).
func New() *Filter {
	f := &Filter{}
	f.InstallStdBogons()
	return f
}

// Install adds addrStr/len as a bogus range.
func (f *Filter) Install(addrStr string, length int) error {
	ip, err := netip.ParseAddr(addrStr)
	if err != nil {
		return fmt.Errorf("bogon: invalid address %q: %w", addrStr, err)
	}
	pfx := netip.PrefixFrom(ip, length)
	f.table.Insert(pfx.Masked(), true)
	return nil
}

// InstallStdBogons pre-installs the standard bogon list, matching RFC 5735.
func (f *Filter) InstallStdBogons() {
	std := []struct {
		addr string
		len  int
	}{
		{"0.0.0.0", 8},       // this network (RFC1122)
		{"10.0.0.0", 8},      // private (RFC1918)
		{"127.0.0.0", 8},     // loopback (RFC1122)
		{"169.254.0.0", 16},  // link local (RFC3330)
		{"172.16.0.0", 12},   // private (RFC1918)
		{"192.0.0.0", 24},    // protocols (RFC5736)
		{"192.0.2.0", 24},    // TEST-NET-1 (RFC1166)
		{"192.168.0.0", 16},  // private (RFC1918)
		{"198.18.0.0", 15},   // benchmark (RFC2544)
		{"198.51.100.0", 24}, // TEST-NET-2 (RFC5737)
		{"203.0.113.0", 24},  // TEST-NET-3 (RFC5737)
		{"224.0.0.0", 4},     // 224/8 - 239/8 multicast (RFC3171); also the anonymous block
		{"240.0.0.0", 4},     // 240/8 - 255/8 reserved (RFC1112)
	}
	for _, b := range std {
		_ = f.Install(b.addr, b.len)
	}
}

// Load reads "<addr>/<len>" lines from r, skipping blank lines and '#'
// comments, matching the original bogon-file syntax. Returns a
// configuration-error (taxonomy level 1 of the error handling design) on
// malformed lines, with the offending line number.
func (f *Filter) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "/", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bogon: line %d: syntax error; expected \"<IPaddr>/<len>\"", lineno)
		}
		length, err := strconv.Atoi(parts[1])
		if err != nil || length < 0 || length > 32 {
			return fmt.Errorf("bogon: line %d: invalid prefix length %q", lineno, parts[1])
		}
		if err := f.Install(parts[0], length); err != nil {
			return fmt.Errorf("bogon: line %d: %w", lineno, err)
		}
	}
	return sc.Err()
}

// IsBogus reports whether a falls within any installed bogus range.
func (f *Filter) IsBogus(a addr.Address) bool {
	return f.table.Contains(addr.ToNetIP(a))
}
