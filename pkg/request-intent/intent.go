// Package intent turns a request method and its headers into an Intent,
// the decision of how a static resource is served, and resolves that
// Intent against the filesystem to the encoded variant to send.
package intent

import (
	"errors"
	"iter"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/always-cache/always-static/rfc9110"
)

// Mode is the classification outcome of a request.
// ModeInvalidMethod and ModeInvalidRange are terminal: the other fields of
// an Intent in these modes hold their defaults.
type Mode int

const (
	ModeHead Mode = iota
	ModeGet
	ModeInvalidMethod
	ModeInvalidRange
)

func (m Mode) String() string {
	switch m {
	case ModeHead:
		return "HEAD"
	case ModeGet:
		return "GET"
	case ModeInvalidMethod:
		return "invalid method"
	case ModeInvalidRange:
		return "invalid range"
	}
	return "unknown"
}

// Intent is the immutable result of classifying a request.
//
// The conditional fields (IfRange, IfMatch, IfNone, IfUnmodified, IfModified)
// are NOT populated by Build: they stay empty whatever the request carries.
// They are only filled by a Builder with Preconditions set, and they are never
// evaluated here; the caller does that once it knows the resolved file's validators.
type Intent struct {
	Mode           Mode
	AcceptEncoding rfc9110.AcceptEncoding
	// nil when the whole resource is requested
	Range        *rfc9110.Range
	IfRange      *rfc9110.IfRange
	IfMatch      rfc9110.ETagList
	IfNone       rfc9110.ETagList
	IfUnmodified time.Time
	IfModified   time.Time
}

// Conditions returns the conditional fields in the form the precondition
// evaluator takes.
func (in Intent) Conditions() rfc9110.Conditions {
	return rfc9110.Conditions{
		IfMatch:           in.IfMatch,
		IfNoneMatch:       in.IfNone,
		IfModifiedSince:   in.IfModified,
		IfUnmodifiedSince: in.IfUnmodified,
		IfRange:           in.IfRange,
	}
}

// Headers yields header field lines as (name, raw value) pairs.
// Repeated fields are yielded once per line, in order.
type Headers = iter.Seq2[string, []byte]

// FromHTTPHeader adapts a net/http header map.
// Names are yielded in sorted order, so a map holding the same field under
// differently cased keys always builds the same Intent.
func FromHTTPHeader(h http.Header) Headers {
	return func(yield func(string, []byte) bool) {
		for _, name := range slices.Sorted(maps.Keys(h)) {
			for _, value := range h[name] {
				if !yield(name, []byte(value)) {
					return
				}
			}
		}
	}
}

// EncodingBuilder accumulates Accept-Encoding field lines.
type EncodingBuilder interface {
	AddHeader(value []byte)
	// Done never fails, it falls back to identity only.
	Done() rfc9110.AcceptEncoding
}

// RangeBuilder accumulates Range field lines.
type RangeBuilder interface {
	AddHeader(value []byte)
	// Done returns nil, nil when no Range field was seen.
	Done() (*rfc9110.Range, error)
}

// Builder constructs Intents. The zero value uses the rfc9110 parsers.
type Builder struct {
	NewEncodingBuilder func() EncodingBuilder
	NewRangeBuilder    func() RangeBuilder
	// Preconditions enables parsing of If-Match, If-None-Match,
	// If-Modified-Since, If-Unmodified-Since and If-Range.
	Preconditions bool
}

// Build classifies a request with the default Builder.
func Build(method string, headers Headers) Intent {
	return Builder{}.Build(method, headers)
}

// Build classifies method, then negotiates headers. It is pure: the same
// input always yields an equal Intent.
//
// For a method other than GET or HEAD the headers are not read at all.
// A malformed Range yields ModeInvalidRange with an identity-only encoding,
// whatever Accept-Encoding said.
func (b Builder) Build(method string, headers Headers) Intent {
	mode, ok := classify(method)
	if !ok {
		return Intent{Mode: ModeInvalidMethod, AcceptEncoding: rfc9110.IdentityOnly()}
	}

	encodings := b.encodingBuilder()
	ranges := b.rangeBuilder()
	var conds *conditionsBuilder
	if b.Preconditions {
		conds = &conditionsBuilder{}
	}
	for name, value := range headers {
		switch {
		case strings.EqualFold(name, "Accept-Encoding"):
			encodings.AddHeader(value)
		case strings.EqualFold(name, "Range"):
			ranges.AddHeader(value)
		case conds != nil:
			conds.addHeader(name, value)
		}
	}

	rng, err := ranges.Done()
	if err != nil {
		return Intent{Mode: ModeInvalidRange, AcceptEncoding: rfc9110.IdentityOnly()}
	}
	in := Intent{
		Mode:           mode,
		AcceptEncoding: encodings.Done(),
		Range:          rng,
	}
	if conds != nil {
		conds.apply(&in)
	}
	return in
}

func (b Builder) encodingBuilder() EncodingBuilder {
	if b.NewEncodingBuilder != nil {
		return b.NewEncodingBuilder()
	}
	return rfc9110.NewAcceptEncodingParser()
}

func (b Builder) rangeBuilder() RangeBuilder {
	if b.NewRangeBuilder != nil {
		return b.NewRangeBuilder()
	}
	return rfc9110.NewRangeParser()
}

// classify accepts exactly "GET" and "HEAD"; method tokens are case-sensitive.
func classify(method string) (Mode, bool) {
	switch method {
	case http.MethodHead:
		return ModeHead, true
	case http.MethodGet:
		return ModeGet, true
	}
	return ModeInvalidMethod, false
}

var errIgnored = errors.New("field ignored")

// conditionsBuilder collects the conditional request fields.
// Invalid values are ignored, the field is then treated as absent.
type conditionsBuilder struct {
	ifMatch, ifNone       rfc9110.ETagList
	ifMatchBad, ifNoneBad bool
	ifModified, ifUnmod   []string
	ifRange               []string
}

func (c *conditionsBuilder) addHeader(name string, value []byte) {
	switch strings.ToLower(name) {
	case "if-match":
		c.ifMatchBad = c.ifMatchBad || mergeList(&c.ifMatch, value) != nil
	case "if-none-match":
		c.ifNoneBad = c.ifNoneBad || mergeList(&c.ifNone, value) != nil
	case "if-modified-since":
		c.ifModified = append(c.ifModified, string(value))
	case "if-unmodified-since":
		c.ifUnmod = append(c.ifUnmod, string(value))
	case "if-range":
		c.ifRange = append(c.ifRange, string(value))
	}
}

func mergeList(list *rfc9110.ETagList, value []byte) error {
	parsed, err := rfc9110.ParseETagList(string(value))
	if err != nil {
		return err
	}
	*list = list.Merge(parsed)
	return nil
}

func (c *conditionsBuilder) apply(in *Intent) {
	if !c.ifMatchBad {
		in.IfMatch = c.ifMatch
	}
	if !c.ifNoneBad {
		in.IfNone = c.ifNone
	}
	in.IfModified, _ = singleDate(c.ifModified)
	in.IfUnmodified, _ = singleDate(c.ifUnmod)
	// §  13.1.5. A client MUST NOT generate an If-Range header field in a
	// §  request that does not contain a Range header field.  A server MUST
	// §  ignore an If-Range header field received in a request that does not
	// §  contain a Range header field.
	if in.Range != nil && len(c.ifRange) == 1 {
		in.IfRange, _ = rfc9110.ParseIfRange(c.ifRange[0])
	}
}

// singleDate parses a date field that must have exactly one member.
func singleDate(values []string) (time.Time, error) {
	if len(values) != 1 {
		return time.Time{}, errIgnored
	}
	return rfc9110.HttpDate(values[0])
}
