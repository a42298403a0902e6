// Package pathsrc implements the path-source contract (§6): turning
// on-disk trace files into a stream of (source, destination, hop vector)
// tuples for ingest.Ingester to consume. A generic-text reader is the only
// format the inference core itself requires; the PathSource interface
// exists so a future binary decoder (warts, iPlane) can be added as a
// sibling adapter without the core ever needing to know the difference,
// the same way the teacher keeps WartsReader and CompressedReader as
// interchangeable line sources behind a common Scanner() contract.
package pathsrc

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/maxmouchet/kapar/addr"
)

// Trace is one decoded path observation: the probed source and
// destination, and the ordered hop vector as seen on the wire (including
// any anonymous/non-responding hops, encoded as address 0).
type Trace struct {
	Src, Dst addr.Address
	Hops     []addr.Address
}

// PathSource yields traces one at a time until exhausted.
type PathSource interface {
	// Next returns the next trace, or ok=false once the source is
	// exhausted. err is non-nil only for an I/O failure, not end of input.
	Next() (t Trace, ok bool, err error)
	// Close releases any file handles the source holds open.
	Close() error
}

// compressedReader opens filename and exposes it as a line scanner,
// transparently decompressing by extension. Grounded on the teacher's own
// CompressedReader (readers.go): gzip via compress/gzip, bzip2 via the
// stdlib compress/bzip2 decompress-only reader — the teacher never reaches
// for a third-party bzip2 package either, since the stdlib one is a read
// path, not a full encoder/decoder round trip.
type compressedReader struct {
	fp      *os.File
	gz      *gzip.Reader
	src     io.Reader // the decompressed byte stream fp/gz/bzip2 yields
	scanner *bufio.Scanner
}

func openCompressed(filename string) (*compressedReader, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("pathsrc: %w", err)
	}
	r := &compressedReader{fp: fp}
	var src io.Reader = fp
	switch {
	case strings.HasSuffix(filename, ".gz"):
		gz, err := gzip.NewReader(fp)
		if err != nil {
			fp.Close()
			return nil, fmt.Errorf("pathsrc: %w", err)
		}
		r.gz = gz
		src = gz
	case strings.HasSuffix(filename, ".bz2"):
		src = bzip2.NewReader(fp)
	}
	r.src = src
	r.scanner = bufio.NewScanner(src)
	r.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return r, nil
}

func (r *compressedReader) Read(p []byte) (int, error) { return r.src.Read(p) }

func (r *compressedReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.fp.Close()
}

// Open opens filename (transparently decompressing .gz/.bz2) and returns
// it as an io.ReadCloser, for the ancillary bogon/interface/alias/TTL file
// loaders in package ingest, which scan it themselves rather than go
// through TextSource's trace-specific parsing.
func Open(filename string) (io.ReadCloser, error) {
	return openCompressed(filename)
}

// ExpandFileList resolves a list of command-line filename arguments into
// concrete filenames: a name prefixed with '@' names a list file, one
// filename per line, itself possibly compressed. Everything else passes
// through unchanged. Matches spec.md §6's "filenames prefixed with @
// denote list files" contract.
func ExpandFileList(names []string) ([]string, error) {
	var out []string
	for _, name := range names {
		if !strings.HasPrefix(name, "@") {
			out = append(out, name)
			continue
		}
		listFile := name[1:]
		r, err := openCompressed(listFile)
		if err != nil {
			return nil, err
		}
		for r.scanner.Scan() {
			line := strings.TrimSpace(r.scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, line)
		}
		err = r.scanner.Err()
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("pathsrc: reading list file %s: %w", listFile, err)
		}
	}
	return out, nil
}

// TextSource reads the generic-text trace format: each trace is a
// '#'-prefixed header line giving the source and destination addresses,
// followed by one line of whitespace-separated hop addresses ('*' or '0'
// marking a non-responding hop). This is the one format the inference core
// itself requires; every other adapter (warts, iPlane, sqlite) decodes into
// the same Trace tuple upstream of this package.
type TextSource struct {
	r *compressedReader
}

// NewTextSource opens filename (transparently decompressing .gz/.bz2) as a
// generic-text trace file.
func NewTextSource(filename string) (*TextSource, error) {
	r, err := openCompressed(filename)
	if err != nil {
		return nil, err
	}
	return &TextSource{r: r}, nil
}

func (s *TextSource) Close() error { return s.r.Close() }

// Next reads the next '#' header plus its hop line. A header with no
// following hop line (end of file right after it) yields a zero-hop trace;
// the ingester's ProcessTrace treats n==0 as a trivial accept.
func (s *TextSource) Next() (Trace, bool, error) {
	for s.r.scanner.Scan() {
		line := strings.TrimSpace(s.r.scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			continue // stray line outside any header; skip rather than fail the whole file
		}
		fields := strings.Fields(strings.TrimPrefix(line, "#"))
		if len(fields) < 2 {
			return Trace{}, false, fmt.Errorf("pathsrc: malformed trace header %q", line)
		}
		src, err := parseHopAddr(fields[0])
		if err != nil {
			return Trace{}, false, fmt.Errorf("pathsrc: %w", err)
		}
		dst, err := parseHopAddr(fields[1])
		if err != nil {
			return Trace{}, false, fmt.Errorf("pathsrc: %w", err)
		}
		t := Trace{Src: src, Dst: dst}
		if s.r.scanner.Scan() {
			hopLine := strings.TrimSpace(s.r.scanner.Text())
			for _, f := range strings.Fields(hopLine) {
				a, err := parseHopAddr(f)
				if err != nil {
					return Trace{}, false, fmt.Errorf("pathsrc: %w", err)
				}
				t.Hops = append(t.Hops, a)
			}
		}
		return t, true, nil
	}
	if err := s.r.scanner.Err(); err != nil {
		return Trace{}, false, err
	}
	return Trace{}, false, nil
}

func parseHopAddr(s string) (addr.Address, error) {
	if s == "*" || s == "0" || s == "0.0.0.0" {
		return 0, nil
	}
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

// MultiSource chains several PathSources, exhausting each in order, the
// way several `-P` path files can be read as one trace stream, without
// the caller needing to know where one file ends and the
// next begins.
type MultiSource struct {
	sources []PathSource
	i       int
}

func NewMultiSource(sources ...PathSource) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Next() (Trace, bool, error) {
	for m.i < len(m.sources) {
		t, ok, err := m.sources[m.i].Next()
		if err != nil {
			return Trace{}, false, err
		}
		if ok {
			return t, true, nil
		}
		m.i++
	}
	return Trace{}, false, nil
}

func (m *MultiSource) Close() error {
	var firstErr error
	for _, s := range m.sources {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
