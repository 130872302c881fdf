package rfc9110

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidRange = errors.New("invalid range")

// Upper bound on range-specs in one request; more is treated as malformed.
const maxRangeSpecs = 64

// §  14.1.2.  Byte Ranges
// §
// §     A byte range request can specify a single range of bytes or a set of
// §     ranges within a single representation.
// §
// §       ranges-specifier = range-unit "=" range-set
// §       range-set        = 1#range-spec
// §       range-spec       = int-range
// §                        / suffix-range
// §                        / other-range
// §
// §       int-range     = first-pos "-" [ last-pos ]
// §       first-pos     = 1*DIGIT
// §       last-pos      = 1*DIGIT
// §
// §       suffix-range  = "-" suffix-length
// §       suffix-length = 1*DIGIT
//
// First is -1 for a suffix-range, in which case Last is the suffix-length.
// Last is -1 for an int-range without last-pos.
type RangeSpec struct {
	First int64
	Last  int64
}

// Range is a parsed `bytes` ranges-specifier.
type Range struct {
	Specs []RangeSpec
}

// ByteSpan is a satisfiable part of a representation, [Start, Start+Length).
type ByteSpan struct {
	Start  int64
	Length int64
}

// ContentRange returns the Content-Range field value for the span.
func (s ByteSpan) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Start, s.Start+s.Length-1, size)
}

// §     A client can limit the number of bytes requested without knowing the
// §     size of the selected representation.  If the last-pos value is
// §     absent, or if the value is greater than or equal to the current
// §     length of the representation data, the byte range is interpreted as
// §     the remainder of the representation (i.e., the server replaces the
// §     value of last-pos with a value that is one less than the current
// §     length of the selected representation).
// §
// §     If the selected representation is shorter than the specified
// §     suffix-length, the entire representation is used.
// §
// §     For a GET request, a valid bytes range-spec is satisfiable if it is
// §     either:
// §
// §     *  an int-range with a first-pos that is less than the current length
// §        of the selected representation or
// §
// §     *  a suffix-range with a non-zero suffix-length.
//
// Satisfiable returns the spans of the range that can be served for a
// representation of the given size, in request order.
// An empty result means the range is not satisfiable (416).
func (r Range) Satisfiable(size int64) []ByteSpan {
	spans := make([]ByteSpan, 0, len(r.Specs))
	for _, spec := range r.Specs {
		if spec.First < 0 {
			if spec.Last == 0 || size == 0 {
				continue
			}
			length := spec.Last
			if length > size {
				length = size
			}
			spans = append(spans, ByteSpan{Start: size - length, Length: length})
			continue
		}
		if spec.First >= size {
			continue
		}
		end := size - 1
		if spec.Last >= 0 && spec.Last < end {
			end = spec.Last
		}
		spans = append(spans, ByteSpan{Start: spec.First, Length: end - spec.First + 1})
	}
	return spans
}

// §  14.2.  Range
// §
// §     The "Range" header field on a GET request modifies the method
// §     semantics to request transfer of only one or more subranges of the
// §     selected representation data (Section 8.1), rather than the entire
// §     selected representation.
// §
// §       Range = ranges-specifier
//
// RangeParser accumulates Range field lines.
// Only a single line is valid, a repeated Range field fails the parse.
type RangeParser struct {
	values [][]byte
}

func NewRangeParser() *RangeParser {
	return &RangeParser{}
}

func (p *RangeParser) AddHeader(value []byte) {
	p.values = append(p.values, value)
}

// Done returns nil when no Range field was received.
func (p *RangeParser) Done() (*Range, error) {
	switch len(p.values) {
	case 0:
		return nil, nil
	case 1:
		return ParseRange(string(p.values[0]))
	default:
		return nil, fmt.Errorf("%w: repeated range field", ErrInvalidRange)
	}
}

// §     A server MAY ignore the Range header field.  However, origin servers
// §     and intermediate caches ought to support byte ranges when possible,
// §     since they support efficient recovery from partially failed
// §     transfers and partial retrieval of large representations.
// §
// §     A server that supports range requests MAY ignore or reject a Range
// §     header field that contains an invalid ranges-specifier
// §     (Section 14.1.1), a ranges-specifier with more than two overlapping
// §     ranges, or a set of many small ranges that are not listed in
// §     ascending order, since these are indications of either a broken
// §     client or a deliberate denial-of-service attack (Section 17.15).
//
// ParseRange parses a `bytes` ranges-specifier. Other units are rejected.
func ParseRange(value string) (*Range, error) {
	unit, set, found := strings.Cut(strings.TrimSpace(value), "=")
	if !found {
		return nil, fmt.Errorf("%w: missing range unit", ErrInvalidRange)
	}
	// §     Range units are intended to be extensible [...] compared case-insensitively
	if !strings.EqualFold(unit, "bytes") {
		return nil, fmt.Errorf("%w: unsupported range unit %q", ErrInvalidRange, unit)
	}
	r := &Range{}
	for _, member := range strings.Split(set, ",") {
		member = strings.Trim(member, " \t")
		if member == "" {
			continue
		}
		spec, err := parseRangeSpec(member)
		if err != nil {
			return nil, err
		}
		if len(r.Specs) == maxRangeSpecs {
			return nil, fmt.Errorf("%w: too many ranges", ErrInvalidRange)
		}
		r.Specs = append(r.Specs, spec)
	}
	if len(r.Specs) == 0 {
		return nil, fmt.Errorf("%w: empty range-set", ErrInvalidRange)
	}
	return r, nil
}

func parseRangeSpec(member string) (RangeSpec, error) {
	first, last, found := strings.Cut(member, "-")
	if !found {
		return RangeSpec{}, fmt.Errorf("%w: %q", ErrInvalidRange, member)
	}
	if first == "" {
		length, ok := parsePos(last)
		if !ok {
			return RangeSpec{}, fmt.Errorf("%w: bad suffix-length %q", ErrInvalidRange, member)
		}
		return RangeSpec{First: -1, Last: length}, nil
	}
	from, ok := parsePos(first)
	if !ok {
		return RangeSpec{}, fmt.Errorf("%w: bad first-pos %q", ErrInvalidRange, member)
	}
	if last == "" {
		return RangeSpec{First: from, Last: -1}, nil
	}
	to, ok := parsePos(last)
	if !ok {
		return RangeSpec{}, fmt.Errorf("%w: bad last-pos %q", ErrInvalidRange, member)
	}
	// §     An int-range is invalid if the last-pos value is present and less
	// §     than the first-pos.
	if to < from {
		return RangeSpec{}, fmt.Errorf("%w: last-pos before first-pos in %q", ErrInvalidRange, member)
	}
	return RangeSpec{First: from, Last: to}, nil
}

// parsePos parses 1*DIGIT, rejecting signs and overflow.
func parsePos(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
