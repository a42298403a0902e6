// Package idset implements CompactIDSet: an append-only, strictly
// increasing set of 32-bit trace ids, stored as a heterogeneous vector of
// tagged words so that long runs of nearby ids cost roughly one bit each
// instead of one word each. This is the data structure the no-loop alias
// condition is built on, so both its storage format and its overlap
// algorithm are ported with the original's exact bit arithmetic rather than
// reimplemented against a generic set type.
package idset

// flag marks a word as a bitvector extending the most recent integer
// anchor; mask extracts the 31 usable bits of a bitvector word.
const (
	flag uint32 = 0x80000000
	mask uint32 = 0x7fffffff
	// max bounds an anchor's run: a new bitvector word is added only while
	// the anchor and its bitvector words number fewer than max words, so
	// at most 32 bitvector words follow a single integer anchor.
	max = 33
)

// Set is a CompactIDSet: a strictly increasing sequence of ids appended one
// at a time, each strictly greater than the last.
type Set struct {
	data []uint32
}

// Len returns the number of stored words (not decoded ids); exposed for
// diagnostics, mirroring the original's rawsize().
func (s *Set) Len() int { return len(s.data) }

// Empty reports whether no id has ever been appended.
func (s *Set) Empty() bool { return len(s.data) == 0 }

// Append adds id to the set. id must be strictly greater than every
// previously appended id; this is the caller's responsibility, matching the
// source's contract (ingestion always assigns increasing trace ids).
func (s *Set) Append(id uint32) {
	sz := len(s.data)
	if sz > 1 {
		if s.data[sz-1]&flag != 0 {
			start := sz - 2
			for s.data[start]&flag != 0 {
				start--
			}
			dist := int64(id) - int64(s.data[start])
			if dist <= int64(31*(sz-start-1)) {
				s.data[sz-1] |= 1 << (uint((dist-1))%31)
				return
			} else if sz-start < max && dist < int64(31*(sz-start)) {
				s.data = append(s.data, flag|(1<<(uint(dist-1)%31)))
				return
			}
		} else if s.data[sz-2]&flag == 0 {
			dist := int64(id) - int64(s.data[sz-2])
			if dist <= 31 {
				bits := uint32(1) << uint(dist-1)
				dist2 := int64(s.data[sz-1]) - int64(s.data[sz-2])
				bits |= 1 << uint(dist2-1)
				s.data[sz-1] = flag | bits
				return
			}
		}
	}
	s.data = append(s.data, id)
}

// Size returns the number of ids decoded from the stored words, i.e. the
// number of Append calls that have been made.
func (s *Set) Size() int {
	n := 0
	for _, w := range s.data {
		if w&flag != 0 {
			for bits := w & mask; bits != 0; bits >>= 1 {
				n += int(bits & 1)
			}
		} else {
			n++
		}
	}
	return n
}

// Ids decodes and returns the full strictly increasing sequence of
// appended ids. It is for tests and small diagnostics dumps only: normal
// operation never materializes the decoded set (see Overlaps).
func (s *Set) Ids() []uint32 {
	out := make([]uint32, 0, s.Size())
	val, start := uint32(0), 0
	for i, w := range s.data {
		if w&flag == 0 {
			start = i
			val = w
			out = append(out, val)
		} else {
			bits := w & mask
			for j := 0; bits != 0; j, bits = j+1, bits>>1 {
				if bits&1 != 0 {
					out = append(out, uint32(int64(val)+int64(i-start-1)*31+int64(j)+1))
				}
			}
		}
	}
	return out
}

// Free discards the stored words, matching the explicit eager-free points
// in the resource model (trace-id sets are freed after alias inference).
func (s *Set) Free() {
	s.data = nil
}

// walker tracks a cursor position within one operand of Overlaps, without
// decoding any ids.
type walker struct {
	vec   []uint32
	i     int
	start int
	val   uint32
	isInt bool
}

func newWalker(vec []uint32) walker {
	if len(vec) == 0 {
		return walker{vec: vec, i: 0, start: 0, val: 0, isInt: true}
	}
	return walker{vec: vec, i: 0, start: 0, val: vec[0], isInt: vec[0]&flag == 0}
}

func (w *walker) increment() {
	w.i++
	if w.i < len(w.vec) {
		w.isInt = w.vec[w.i]&flag == 0
		if w.isInt {
			w.start = w.i
			w.val = w.vec[w.i]
		}
	}
}

// Overlaps reports whether a and b share any id, in O(|a|+|b|) word
// operations, using a parallel dual-cursor walk that never decodes either
// operand into a materialized set of ids.
func (a *Set) Overlaps(b *Set) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	aw, bw := newWalker(a.data), newWalker(b.data)
	for aw.i < len(aw.vec) && bw.i < len(bw.vec) {
		if aw.val == bw.val {
			return true
		}
		switch {
		case aw.isInt && bw.isInt:
			if aw.val < bw.val {
				aw.increment()
			} else {
				bw.increment()
			}
		case aw.isInt:
			// b is a bitvector
			if aw.val < bw.val {
				aw.increment()
			} else {
				dist := int64(aw.val) - int64(bw.val)
				switch {
				case dist-1 < int64(31*(bw.i-bw.start-1)):
					aw.increment()
				case dist-1 >= int64(31*(bw.i-bw.start)):
					bw.increment()
				default:
					if bw.vec[bw.i]&(1<<(uint(dist-1)%31)) != 0 {
						return true
					}
					aw.increment()
				}
			}
		case bw.isInt:
			// a is a bitvector
			if bw.val < aw.val {
				bw.increment()
			} else {
				dist := int64(bw.val) - int64(aw.val)
				switch {
				case dist-1 < int64(31*(aw.i-aw.start-1)):
					bw.increment()
				case dist-1 >= int64(31*(aw.i-aw.start)):
					aw.increment()
				default:
					if aw.vec[aw.i]&(1<<(uint(dist-1)%31)) != 0 {
						return true
					}
					bw.increment()
				}
			}
		default:
			// both are bitvectors
			dist := (int64(bw.val) + 31*int64(bw.i-bw.start)) - (int64(aw.val) + 31*int64(aw.i-aw.start))
			if dist >= 0 {
				if dist <= 31 {
					if aw.vec[aw.i]&(bw.vec[bw.i]<<uint(dist))&mask != 0 {
						return true
					}
				}
				aw.increment()
			} else {
				if -dist <= 31 {
					if bw.vec[bw.i]&(aw.vec[aw.i]<<uint(-dist))&mask != 0 {
						return true
					}
				}
				bw.increment()
			}
		}
	}
	return false
}
