package rfc9110

import (
	"bytes"
	"iter"
	"sort"
	"strconv"
	"strings"
)

// §  8.4.1.  Content Codings
// §
// §     Content coding values indicate an encoding transformation that has
// §     been or can be applied to a representation.  Content codings are
// §     primarily used to allow a representation to be compressed or
// §     otherwise usefully transformed without losing the identity of its
// §     underlying media type and without loss of information.  Frequently,
// §     the representation is stored in coded form, transmitted directly, and
// §     only decoded by the final recipient.
// §
// §       content-coding   = token
//
// Only the codings a static file can be stored in are known here.
// The order of the constants is the server preference used to break ties.
type Coding uint8

const (
	Brotli Coding = iota
	Zstd
	Gzip
	Identity

	numCodings = int(Identity) + 1
)

var codingNames = [numCodings]string{
	Brotli:   "br",
	Zstd:     "zstd",
	Gzip:     "gzip",
	Identity: "identity",
}

// Filename suffixes of the stored variants.
// The identity variant is the file itself.
var codingSuffixes = [numCodings]string{
	Brotli:   ".br",
	Zstd:     ".zst",
	Gzip:     ".gz",
	Identity: "",
}

// String returns the content-coding token, as used in Content-Encoding.
func (c Coding) String() string {
	if int(c) < numCodings {
		return codingNames[c]
	}
	return "unknown"
}

// Suffix returns the filename suffix of the variant stored in this coding.
func (c Coding) Suffix() string {
	if int(c) < numCodings {
		return codingSuffixes[c]
	}
	return ""
}

// §     All content codings are case-insensitive and ought to be registered
// §     within the "HTTP Content Coding Registry", as described in
// §     Section 16.6
// §
// §     A recipient SHOULD consider "x-gzip" to be equivalent to "gzip".
func ParseCoding(token string) (Coding, bool) {
	switch strings.ToLower(token) {
	case "br":
		return Brotli, true
	case "zstd":
		return Zstd, true
	case "gzip", "x-gzip":
		return Gzip, true
	case "identity":
		return Identity, true
	}
	return 0, false
}

// AcceptEncoding is the finalized, ordered list of acceptable codings.
// It is immutable; the zero value is treated as identity only.
type AcceptEncoding struct {
	codings []Coding
}

// IdentityOnly is the fallback preference.
func IdentityOnly() AcceptEncoding {
	return AcceptEncoding{codings: []Coding{Identity}}
}

// NewAcceptEncoding creates a preference with the given order, dropping duplicates.
func NewAcceptEncoding(codings ...Coding) AcceptEncoding {
	var seen [numCodings]bool
	out := make([]Coding, 0, len(codings))
	for _, c := range codings {
		if int(c) >= numCodings || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return IdentityOnly()
	}
	return AcceptEncoding{codings: out}
}

// Iter returns the codings in preference order.
// The sequence can be ranged over any number of times.
func (a AcceptEncoding) Iter() iter.Seq[Coding] {
	codings := a.codings
	if len(codings) == 0 {
		codings = []Coding{Identity}
	}
	return func(yield func(Coding) bool) {
		for _, c := range codings {
			if !yield(c) {
				return
			}
		}
	}
}

// Codings returns a copy of the codings in preference order.
func (a AcceptEncoding) Codings() []Coding {
	out := make([]Coding, 0, len(a.codings)+1)
	for c := range a.Iter() {
		out = append(out, c)
	}
	return out
}

func (a AcceptEncoding) Equal(other AcceptEncoding) bool {
	x, y := a.Codings(), other.Codings()
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func (a AcceptEncoding) String() string {
	names := make([]string, 0, len(a.codings))
	for c := range a.Iter() {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

// §  12.5.3.  Accept-Encoding
// §
// §     The "Accept-Encoding" header field can be used to indicate
// §     preferences regarding the use of content codings (Section 8.4.1).
// §
// §     When sent by a user agent in a request, Accept-Encoding indicates the
// §     content codings acceptable in a response.
// §
// §       Accept-Encoding  = #( codings [ weight ] )
// §       codings          = content-coding / "identity" / "*"
// §
// §     Each codings value MAY be given an associated quality value (weight)
// §     representing the preference for that encoding, as defined in
// §     Section 12.4.2.  The asterisk "*" symbol in an Accept-Encoding field
// §     matches any available content coding not explicitly listed in the
// §     field.
//
// AcceptEncodingParser accumulates Accept-Encoding field lines.
// Malformed members and unknown codings are ignored.
type AcceptEncodingParser struct {
	// weights in thousandths, -1 when not listed
	weights [numCodings]int
	star    int
	present bool
}

func NewAcceptEncodingParser() *AcceptEncodingParser {
	p := &AcceptEncodingParser{star: -1}
	for i := range p.weights {
		p.weights[i] = -1
	}
	return p
}

// AddHeader feeds one field line. Repeated lines are combined
// as if they were a single comma-separated list.
func (p *AcceptEncodingParser) AddHeader(value []byte) {
	p.present = true
	for _, member := range bytes.Split(value, []byte(",")) {
		name, q, ok := parseWeightedMember(string(member))
		if !ok {
			continue
		}
		if name == "*" {
			if p.star < 0 {
				p.star = q
			}
			continue
		}
		coding, known := ParseCoding(name)
		// the first occurrence of a coding wins
		if known && p.weights[coding] < 0 {
			p.weights[coding] = q
		}
	}
}

// §     For example,
// §
// §       Accept-Encoding: compress, gzip
// §       Accept-Encoding:
// §       Accept-Encoding: *
// §       Accept-Encoding: compress;q=0.5, gzip;q=1.0
// §       Accept-Encoding: gzip;q=1.0, identity; q=0.5, *;q=0
// §
// §     An Accept-Encoding header field with a field value that is empty
// §     implies that the user agent does not want any content coding in
// §     response.  If a non-empty Accept-Encoding header field is present in
// §     a request and none of the available content codings match, a server
// §     SHOULD send a response without any content coding unless the identity
// §     coding is indicated as unacceptable.
//
// Done finalizes the preference. It never fails: when nothing usable remains
// (no field, or every coding refused) the result is identity only, since
// the caller needs a variant to probe.
func (p *AcceptEncodingParser) Done() AcceptEncoding {
	if !p.present {
		return IdentityOnly()
	}
	type candidate struct {
		coding Coding
		q      int
	}
	candidates := make([]candidate, 0, numCodings)
	for i := 0; i < numCodings; i++ {
		c := Coding(i)
		q := p.weights[c]
		if q < 0 {
			q = p.star
		}
		// §     If the representation has no content coding, then it is
		// §     acceptable by default unless specifically excluded by the
		// §     Accept-Encoding header field stating either "identity;q=0" or
		// §     "*;q=0" without a more specific entry for "identity".
		if q < 0 && c == Identity {
			q = implicitIdentityWeight
		}
		if q <= 0 {
			continue
		}
		candidates = append(candidates, candidate{c, q})
	}
	// stable: equal weights keep the server preference order of the constants
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].q > candidates[j].q
	})
	if len(candidates) == 0 {
		return IdentityOnly()
	}
	codings := make([]Coding, len(candidates))
	for i, c := range candidates {
		codings[i] = c.coding
	}
	return AcceptEncoding{codings: codings}
}

// Lower than any explicit non-zero weight so that an unlisted identity
// is only tried after everything the client asked for.
const implicitIdentityWeight = 1

// parseWeightedMember parses `codings [ weight ]`, returning the weight in thousandths.
//
// §  12.4.2.  Quality Values
// §
// §       weight = OWS ";" OWS "q=" qvalue
// §       qvalue = ( "0" [ "." 0*3DIGIT ] )
// §              / ( "1" [ "." 0*3("0") ] )
func parseWeightedMember(member string) (string, int, bool) {
	name, params, _ := strings.Cut(member, ";")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, false
	}
	q := 1000
	for _, param := range strings.Split(params, ";") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		key, value, found := strings.Cut(param, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "q") {
			continue
		}
		parsed, ok := parseQValue(strings.TrimSpace(value))
		if !ok {
			return "", 0, false
		}
		q = parsed
	}
	return name, q, true
}

func parseQValue(s string) (int, bool) {
	if s == "" || len(s) > 5 || (s[0] != '0' && s[0] != '1') {
		return 0, false
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(whole) != 1 {
		return 0, false
	}
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	frac = (frac + "000")[:3]
	n, err := strconv.Atoi(whole + frac)
	if err != nil || n > 1000 {
		return 0, false
	}
	return n, true
}
