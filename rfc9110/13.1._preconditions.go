package rfc9110

import (
	"strings"
	"time"
)

// §  13.1.  Preconditions
// §
// §     Preconditions are usually defined with respect to a state of the
// §     target resource as a whole (its current value set) or the state as
// §     observed in a previously obtained representation (one value in that
// §     set).  If a resource has multiple current representations, each with
// §     its own observable state, a precondition will assume that the mapping
// §     of each request to a selected representation (Section 3.2) is
// §     consistent over time.

// Conditions holds the parsed precondition fields of a request.
// Zero values mean the field was absent (or could not be parsed).
type Conditions struct {
	IfMatch           ETagList
	IfNoneMatch       ETagList
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	IfRange           *IfRange
}

// Validators of the selected representation.
type Validators struct {
	// nil when the representation has no entity tag
	ETag         *ETag
	LastModified time.Time
}

// §  13.1.1.  If-Match
// §
// §     An origin server that receives an If-Match header field MUST evaluate
// §     the condition per Section 13.2 prior to performing the method.
// §
// §     To evaluate a received If-Match header field:
// §
// §     1.  If the field value is "*", the condition is true if the origin
// §         server has a current representation for the target resource.
// §
// §     2.  If the field value is a list of entity tags, the condition is
// §         true if any of the listed tags match the entity tag of the
// §         selected representation.
// §
// §     3.  Otherwise, the condition is false.
// §
// §     An origin server MUST use the strong comparison function when
// §     comparing entity tags for If-Match (Section 8.8.3.2), since the
// §     client intends this precondition to prevent the method from being
// §     applied if there have been any changes to the representation data.
func evalIfMatch(list ETagList, v Validators) bool {
	if list.Any {
		return true
	}
	if v.ETag == nil {
		return false
	}
	for _, tag := range list.Tags {
		if StrongMatch(tag, *v.ETag) {
			return true
		}
	}
	return false
}

// §  13.1.2.  If-None-Match
// §
// §     To evaluate a received If-None-Match header field:
// §
// §     1.  If the field value is "*", the condition is false if the origin
// §         server has a current representation for the target resource.
// §
// §     2.  If the field value is a list of entity tags, the condition is
// §         false if one of the listed tags matches the entity tag of the
// §         selected representation.
// §
// §     3.  Otherwise, the condition is true.
// §
// §     A recipient MUST use the weak comparison function when comparing
// §     entity tags for If-None-Match (Section 8.8.3.2), since weak entity
// §     tags can be used for cache validation even if there have been changes
// §     to the representation data.
func evalIfNoneMatch(list ETagList, v Validators) bool {
	if list.Any {
		return false
	}
	if v.ETag == nil {
		return true
	}
	for _, tag := range list.Tags {
		if WeakMatch(tag, *v.ETag) {
			return false
		}
	}
	return true
}

// §  13.1.3.  If-Modified-Since
// §
// §     A recipient MUST ignore the If-Modified-Since header field if the
// §     received field value is not a valid HTTP-date, the field value has
// §     more than one member, or if the request method is neither GET nor
// §     HEAD.
// §
// §     To evaluate a received If-Modified-Since header field:
// §
// §     2.  If the selected representation's last modification date is
// §         earlier or equal to the date provided in the field value, the
// §         condition is false.
// §
// §     3.  Otherwise, the condition is true.
func evalIfModifiedSince(since time.Time, v Validators) bool {
	if v.LastModified.IsZero() {
		return true
	}
	return v.LastModified.Truncate(time.Second).After(since)
}

// §  13.1.4.  If-Unmodified-Since
// §
// §     To evaluate a received If-Unmodified-Since header field:
// §
// §     2.  If the selected representation's last modification date is
// §         earlier than or equal to the date provided in the field value,
// §         the condition is true.
// §
// §     3.  Otherwise, the condition is false.
func evalIfUnmodifiedSince(since time.Time, v Validators) bool {
	if v.LastModified.IsZero() {
		return false
	}
	return !v.LastModified.Truncate(time.Second).After(since)
}

// §  13.1.5.  If-Range
// §
// §     The "If-Range" header field provides a special conditional request
// §     mechanism that is similar to the If-Match and If-Unmodified-Since
// §     header fields but that instructs the recipient to ignore the Range
// §     header field if the validator doesn't match, resulting in transfer
// §     of the new selected representation instead of a 412 (Precondition
// §     Failed) response.
// §
// §       If-Range = entity-tag / HTTP-date
//
// Exactly one of Date and ETag is meaningful; a zero Date means ETag is set.
type IfRange struct {
	Date time.Time
	ETag ETag
}

// ParseIfRange returns false for a value that is neither an entity-tag nor an HTTP-date.
func ParseIfRange(value string) (*IfRange, bool) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, `"`) || strings.HasPrefix(value, "W/") {
		etag, err := ParseETag(value)
		if err != nil {
			return nil, false
		}
		return &IfRange{ETag: etag}, true
	}
	date, err := HttpDate(value)
	if err != nil {
		return nil, false
	}
	return &IfRange{Date: date}, true
}

// §     To evaluate a received If-Range header field containing an HTTP-date:
// §
// §     1.  If the HTTP-date validator provided is not a strong validator in
// §         the sense defined by Section 8.8.2.2, the condition is false.
// §
// §     2.  If the HTTP-date validator provided exactly matches the
// §         Last-Modified field value for the selected representation, the
// §         condition is true.
// §
// §     3.  Otherwise, the condition is false.
// §
// §     To evaluate a received If-Range header field containing an
// §     entity-tag:
// §
// §     1.  If the entity-tag validator provided exactly matches the ETag
// §         field value for the selected representation using the strong
// §         comparison function (Section 8.8.3.2), the condition is true.
// §
// §     2.  Otherwise, the condition is false.
//
// EvaluateIfRange reports whether the Range field may be honoured.
// A nil If-Range always allows it.
func EvaluateIfRange(ifRange *IfRange, v Validators) bool {
	if ifRange == nil {
		return true
	}
	if !ifRange.Date.IsZero() {
		return !v.LastModified.IsZero() &&
			v.LastModified.Truncate(time.Second).Equal(ifRange.Date)
	}
	return v.ETag != nil && StrongMatch(ifRange.ETag, *v.ETag)
}
