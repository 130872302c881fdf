package rfc9110

import (
	"net/http"
)

// §  13.2.2.  Precedence of Preconditions
// §
// §     When more than one conditional request header field is present in a
// §     request, the order in which the fields are evaluated becomes
// §     important.  In practice, the fields defined in this document are
// §     consistently implemented in a single, logical order, since "lost
// §     update" preconditions have more strict requirements than cache
// §     validation, a validated cache is more efficient than a partial
// §     response, and entity tags are presumed to be more accurate than date
// §     validators.
// §
// §     A recipient cache or origin server MUST evaluate the request
// §     preconditions defined by this specification in the following order:
//
// EvaluatePreconditions returns the status to respond with when a
// precondition stops the request, and ok=true when the method should be
// performed. If-Range is not evaluated here, see EvaluateIfRange.
func EvaluatePreconditions(method string, c Conditions, v Validators) (status int, ok bool) {
	// §     1.  When recipient is the origin server and If-Match is present,
	// §         evaluate the If-Match precondition:
	// §
	// §         *  if true, continue to step 3
	// §
	// §         *  if false, respond 412 (Precondition Failed) unless it can be
	// §            determined that the state-changing request has already
	// §            succeeded (see Section 13.1.1)
	if !c.IfMatch.Empty() {
		if !evalIfMatch(c.IfMatch, v) {
			return http.StatusPreconditionFailed, false
		}
	} else if !c.IfUnmodifiedSince.IsZero() {
		// §     2.  When recipient is the origin server, If-Match is not present, and
		// §         If-Unmodified-Since is present, evaluate the If-Unmodified-Since
		// §         precondition:
		// §
		// §         *  if true, continue to step 3
		// §
		// §         *  if false, respond 412 (Precondition Failed) unless it can be
		// §            determined that the state-changing request has already
		// §            succeeded (see Section 13.1.4)
		if !evalIfUnmodifiedSince(c.IfUnmodifiedSince, v) {
			return http.StatusPreconditionFailed, false
		}
	}

	getOrHead := method == http.MethodGet || method == http.MethodHead
	if !c.IfNoneMatch.Empty() {
		// §     3.  When If-None-Match is present, evaluate the If-None-Match
		// §         precondition:
		// §
		// §         *  if true, continue to step 5
		// §
		// §         *  if false for GET/HEAD, respond 304 (Not Modified)
		// §
		// §         *  if false for other methods, respond 412 (Precondition Failed)
		if !evalIfNoneMatch(c.IfNoneMatch, v) {
			if getOrHead {
				return http.StatusNotModified, false
			}
			return http.StatusPreconditionFailed, false
		}
	} else if getOrHead && !c.IfModifiedSince.IsZero() {
		// §     4.  When the method is GET or HEAD, If-None-Match is not present, and
		// §         If-Modified-Since is present, evaluate the If-Modified-Since
		// §         precondition:
		// §
		// §         *  if true, continue to step 5
		// §
		// §         *  if false, respond 304 (Not Modified)
		if !evalIfModifiedSince(c.IfModifiedSince, v) {
			return http.StatusNotModified, false
		}
	}

	// §     5.  When the method is GET and both Range and If-Range are present,
	// §         evaluate the If-Range precondition:
	// §
	// §         *  if true and the Range is applicable to the selected
	// §            representation, respond 206 (Partial Content)
	// §
	// §         *  otherwise, ignore the Range header field and respond 200 (OK)
	// §
	// §     6.  Otherwise,
	// §
	// §         *  perform the requested method and respond according to its
	// §            success or failure.
	return http.StatusOK, true
}
