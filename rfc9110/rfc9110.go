// Package rfc9110 implements the parts of HTTP Semantics (RFC 9110) needed to
// serve static representations: content coding negotiation, byte ranges,
// entity tags and conditional requests.
// Code sits next to the RFC text it implements, quoted with `§`.
package rfc9110

// §  9.1.  Overview
// §
// §     The method token is case-sensitive because it might be used as a
// §     gateway to object-based systems with case-sensitive method names.
// §     By convention, standardized methods are defined in all-uppercase US-
// §     ASCII letters.
// §
// §  15.5.6.  405 Method Not Allowed
// §
// §     The origin server MUST generate an Allow header field in a 405
// §     response containing a list of the target resource's currently
// §     supported methods.
const AllowedMethods = "GET, HEAD"
