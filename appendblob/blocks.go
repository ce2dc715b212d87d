package appendblob

// BlockSizeLimit is the largest block a single append call may carry.
const BlockSizeLimit = 4*1024*1024 - 1

// Range is the half-open byte range [Start, End) of one block.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Splitter yields the block ranges of a payload in ascending offset order.
// It is lazy and can be restarted with Reset.
type Splitter struct {
	size  int
	limit int
	pos   int
	done  bool
}

// Split returns a Splitter over a payload of size bytes with blocks of at most limit bytes.
// An empty payload yields a single empty range so the append call is still issued once.
func Split(size, limit int) *Splitter {
	if limit <= 0 {
		limit = BlockSizeLimit
	}
	return &Splitter{size: size, limit: limit}
}

// Next returns the next range, false once the payload is exhausted.
func (s *Splitter) Next() (Range, bool) {
	if s.done {
		return Range{}, false
	}

	if s.size == 0 {
		s.done = true
		return Range{}, true
	}

	end := s.pos + s.limit
	if end > s.size {
		end = s.size
	}
	r := Range{Start: s.pos, End: end}

	s.pos = end
	if s.pos >= s.size {
		s.done = true
	}

	return r, true
}

// Reset rewinds the splitter to the first range.
func (s *Splitter) Reset() {
	s.pos = 0
	s.done = false
}

// NumBlocks returns the total number of ranges the splitter yields.
func (s *Splitter) NumBlocks() int {
	if s.size == 0 {
		return 1
	}
	return (s.size + s.limit - 1) / s.limit
}

// Ranges eagerly collects every range of a payload of size bytes.
func Ranges(size, limit int) []Range {
	s := Split(size, limit)
	ranges := make([]Range, 0, s.NumBlocks())
	for r, ok := s.Next(); ok; r, ok = s.Next() {
		ranges = append(ranges, r)
	}
	return ranges
}
