package rfc9110

import (
	"errors"
	"strings"
)

var ErrInvalidETag = errors.New("invalid entity-tag")

// §  8.8.3.  ETag
// §
// §     The "ETag" field in a response provides the current entity tag for
// §     the selected representation, as determined at the conclusion of
// §     handling the request.  An entity tag is an opaque validator for
// §     differentiating between multiple representations of the same
// §     resource, regardless of whether those multiple representations are
// §     due to resource state changes over time, content negotiation
// §     resulting in multiple representations being valid at the same time,
// §     or both.  An entity tag consists of an opaque quoted string, possibly
// §     prefixed by a weakness indicator.
// §
// §       ETag       = entity-tag
// §
// §       entity-tag = [ weak ] opaque-tag
// §       weak       = %s"W/"
// §       opaque-tag = DQUOTE *etagc DQUOTE
// §       etagc      = %x21 / %x23-7E / obs-text
// §                  ; VCHAR except double quotes, plus obs-text
type ETag struct {
	// Opaque tag without the surrounding double quotes.
	Tag  string
	Weak bool
}

// String returns the field value form of the tag, i.e. with quotes and weakness indicator.
func (e ETag) String() string {
	if e.Weak {
		return `W/"` + e.Tag + `"`
	}
	return `"` + e.Tag + `"`
}

// ParseETag parses a single entity-tag, ignoring surrounding whitespace.
func ParseETag(s string) (ETag, error) {
	etag, rest, ok := scanETag(strings.TrimSpace(s))
	if !ok || rest != "" {
		return ETag{}, ErrInvalidETag
	}
	return etag, nil
}

// scanETag reads one entity-tag from the start of s
// and returns it together with the unread remainder.
func scanETag(s string) (ETag, string, bool) {
	var etag ETag
	if strings.HasPrefix(s, "W/") {
		etag.Weak = true
		s = s[2:]
	}
	if len(s) < 2 || s[0] != '"' {
		return ETag{}, s, false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			etag.Tag = s[1:i]
			return etag, s[i+1:], true
		case c == 0x21 || (c >= 0x23 && c <= 0x7E) || c >= 0x80:
			// etagc
		default:
			return ETag{}, s, false
		}
	}
	return ETag{}, s, false
}

// §  8.8.3.2.  Comparison
// §
// §     There are two entity-tag comparison functions, depending on whether
// §     or not the comparison context allows the use of weak validators:
// §
// §     "Strong comparison":  two entity tags are equivalent if both are not
// §        weak and their opaque-tags match character-by-character.
// §
// §     "Weak comparison":  two entity tags are equivalent if their opaque-
// §        tags match character-by-character, regardless of either or both
// §        being tagged as "weak".
func StrongMatch(a, b ETag) bool {
	return !a.Weak && !b.Weak && a.Tag == b.Tag
}

func WeakMatch(a, b ETag) bool {
	return a.Tag == b.Tag
}

// ETagList is the parsed value of If-Match or If-None-Match.
//
//	If-Match = "*" / #entity-tag
type ETagList struct {
	// Any is set for the "*" member.
	Any  bool
	Tags []ETag
}

// Empty reports whether the list has no members, i.e. the field was absent.
func (l ETagList) Empty() bool {
	return !l.Any && len(l.Tags) == 0
}

// ParseETagList parses one field line of If-Match / If-None-Match.
// Empty list elements are skipped as required by Section 5.6.1.
func ParseETagList(s string) (ETagList, error) {
	var list ETagList
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return list, nil
		}
		if s[0] == ',' {
			s = s[1:]
			continue
		}
		if s[0] == '*' {
			list.Any = true
			s = s[1:]
			continue
		}
		etag, rest, ok := scanETag(s)
		if !ok {
			return ETagList{}, ErrInvalidETag
		}
		list.Tags = append(list.Tags, etag)
		s = rest
	}
}

// Merge appends the members of other, preserving order.
func (l ETagList) Merge(other ETagList) ETagList {
	return ETagList{
		Any:  l.Any || other.Any,
		Tags: append(append([]ETag(nil), l.Tags...), other.Tags...),
	}
}
