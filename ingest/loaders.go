package ingest

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maxmouchet/kapar/addr"
	"github.com/maxmouchet/kapar/graph"
	"github.com/maxmouchet/kapar/iface"
)

// LoadInterfaceFile reads one IP address per line from r and pre-registers
// each as a named interface, the way a router census or a vantage-point
// list primes the table with addresses that may never otherwise appear as
// a trace hop.
func LoadInterfaceFile(named *iface.NamedTable, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	n, lineno := 0, 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, err := parseAddr(line)
		if err != nil {
			return n, fmt.Errorf("interface file: line %d: %w", lineno, err)
		}
		named.FindOrInsert(a)
		n++
	}
	return n, sc.Err()
}

// LoadAliasFile reads "<addr> <addr>" lines of already-known aliases (e.g.
// from iffinder or MIDAR) and folds each pair into g directly, marking both
// sides pre-aliased so the negative-alias policy can recognize and defer to
// this externally supplied ground truth during inference.
func LoadAliasFile(named *iface.NamedTable, g *graph.Graph, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	n, lineno := 0, 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return n, fmt.Errorf("alias file: line %d: expected \"<addr> <addr>\"", lineno)
		}
		a1, err := parseAddr(fields[0])
		if err != nil {
			return n, fmt.Errorf("alias file: line %d: %w", lineno, err)
		}
		a2, err := parseAddr(fields[1])
		if err != nil {
			return n, fmt.Errorf("alias file: line %d: %w", lineno, err)
		}
		i1, _ := named.FindOrInsert(a1)
		i2, _ := named.FindOrInsert(a2)
		g.SetAlias(i1, i2)
		i1.PreAliased = true
		i2.PreAliased = true
		n++
	}
	return n, sc.Err()
}

// LoadTTLFile reads "<addr> <ttl>" lines and records ttl into the named
// interface's min/max TTL bounds, widening the existing bounds rather than
// overwriting them: the same interface may be seen at different TTLs from
// different vantage points.
func LoadTTLFile(named *iface.NamedTable, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	n, lineno := 0, 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return n, fmt.Errorf("TTL file: line %d: expected \"<addr> <ttl>\"", lineno)
		}
		a, err := parseAddr(fields[0])
		if err != nil {
			return n, fmt.Errorf("TTL file: line %d: %w", lineno, err)
		}
		ttl, err := strconv.Atoi(fields[1])
		if err != nil || ttl < 0 || ttl > 255 {
			return n, fmt.Errorf("TTL file: line %d: invalid TTL %q", lineno, fields[1])
		}
		nif, _ := named.FindOrInsert(a)
		recordTTL(nif, uint8(ttl))
		n++
	}
	return n, sc.Err()
}

func recordTTL(n *iface.NamedIface, ttl uint8) {
	if len(n.MinTTL) == 0 {
		n.MinTTL = []uint8{ttl}
		n.MaxTTL = []uint8{ttl}
		return
	}
	if ttl < n.MinTTL[0] {
		n.MinTTL[0] = ttl
	}
	if ttl > n.MaxTTL[0] {
		n.MaxTTL[0] = ttl
	}
}

func parseAddr(s string) (addr.Address, error) {
	parts := strings.SplitN(s, ".", 4)
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	var a uint32
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return 0, fmt.Errorf("invalid address %q", s)
		}
		a = a<<8 | uint32(v)
	}
	return addr.Address(a), nil
}

// SqliteAnnotationReader reads a bdrmapit-style annotation sqlite file
// (columns addr, router, asn, ... per the teacher's own ReadSqlite) into
// an addr-to-router name lookup, used the same way LoadAliasFile is: rows
// that agree on a router name are pre-known aliases of one another.
type SqliteAnnotationReader struct {
	filename string
}

func NewSqliteAnnotationReader(filename string) *SqliteAnnotationReader {
	return &SqliteAnnotationReader{filename: filename}
}

// Load queries the annotation table and folds every pair of addresses that
// share a non-empty router name into g, mirroring LoadAliasFile's
// pre-aliasing of both sides.
func (r *SqliteAnnotationReader) Load(named *iface.NamedTable, g *graph.Graph) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("[SqliteAnnotationReader.Load]: %v", rec)
		}
	}()

	db, openErr := sql.Open("sqlite3", r.filename)
	if openErr != nil {
		return 0, fmt.Errorf("[SqliteAnnotationReader.Load]: %w", openErr)
	}
	defer db.Close()

	rows, queryErr := db.Query("SELECT addr, router FROM annotation")
	if queryErr != nil {
		return 0, fmt.Errorf("[SqliteAnnotationReader.Load]: %w", queryErr)
	}
	defer rows.Close()

	byRouter := make(map[string]addr.Address)
	var addrStr, router string
	for rows.Next() {
		if scanErr := rows.Scan(&addrStr, &router); scanErr != nil {
			return n, fmt.Errorf("[SqliteAnnotationReader.Load]: %w", scanErr)
		}
		if router == "" {
			continue
		}
		a, parseErr := parseAddr(addrStr)
		if parseErr != nil {
			continue
		}
		nif, _ := named.FindOrInsert(a)
		if prev, ok := byRouter[router]; ok {
			if prev != a {
				pnif := named.Find(prev)
				g.SetAlias(pnif, nif)
				pnif.PreAliased = true
				nif.PreAliased = true
				n++
			}
			continue
		}
		byRouter[router] = a
	}
	log.Printf("SqliteAnnotationReader: loaded %d routers from %s", len(byRouter), r.filename)
	return n, rows.Err()
}
