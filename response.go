package alwaysstatic

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"

	intent "github.com/always-cache/always-static/pkg/request-intent"
	"github.com/always-cache/always-static/rfc9110"
	"github.com/rs/zerolog"
)

// setHeaders sets the representation headers shared by all successful responses.
func (a *AlwaysStatic) setHeaders(log *zerolog.Logger, h http.Header, urlPath, basePath string, out *intent.Output, v rfc9110.Validators) {
	// the type is that of the resource, not of the encoded variant
	ctype := mime.TypeByExtension(filepath.Ext(basePath))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h.Set("Content-Type", ctype)
	if out.Encoding != rfc9110.Identity {
		h.Set("Content-Encoding", out.Encoding.String())
	}
	h.Add("Vary", "Accept-Encoding")
	h.Set("Accept-Ranges", "bytes")
	if !v.LastModified.IsZero() {
		h.Set("Last-Modified", rfc9110.FormatHttpDate(v.LastModified))
	}
	if v.ETag != nil {
		h.Set("ETag", v.ETag.String())
	}
	a.rules.Apply(log, urlPath, h)
}

// §  15.4.5.  304 Not Modified
// §
// §     Since the goal of a 304 response is to minimize information transfer
// §     when the recipient already has one or more cached representations, a
// §     sender SHOULD NOT generate representation metadata other than the
// §     above listed fields unless said metadata exists for the purpose of
// §     guiding cache updates (e.g., Last-Modified might be useful if the
// §     response does not have an ETag field).
func writeNotModified(w http.ResponseWriter) {
	h := w.Header()
	delete(h, "Content-Type")
	delete(h, "Content-Length")
	delete(h, "Content-Encoding")
	if h.Get("ETag") != "" {
		delete(h, "Last-Modified")
	}
	w.WriteHeader(http.StatusNotModified)
}

// sendVariant writes the whole variant or the requested ranges of it.
// HEAD requests never have a range and get no body.
func (a *AlwaysStatic) sendVariant(w http.ResponseWriter, r *http.Request, out *intent.Output, v rfc9110.Validators) {
	log := getLogger(r, a.log)
	size := out.Size()

	// §     The Range header field is evaluated after evaluating the precondition
	// §     header fields defined in Section 13.1, and only if the result in
	// §     absence of the Range header field would be a 200 (OK) response.
	if out.Mode == intent.ModeGet && out.Range != nil && rfc9110.EvaluateIfRange(out.Conditions.IfRange, v) {
		spans := out.Range.Satisfiable(size)
		switch {
		case len(spans) == 0:
			// §  15.5.17. 416 Range Not Satisfiable [...] the server SHOULD
			// §  generate a Content-Range header field specifying the current
			// §  length of the selected representation
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		case len(spans) == 1:
			span := spans[0]
			w.Header().Set("Content-Range", span.ContentRange(size))
			w.Header().Set("Content-Length", strconv.FormatInt(span.Length, 10))
			w.WriteHeader(http.StatusPartialContent)
			if _, err := io.Copy(w, io.NewSectionReader(out.File, span.Start, span.Length)); err != nil {
				log.Debug().Err(err).Msg("Could not write range to client")
			}
		default:
			if err := writeMultipart(w, out, spans); err != nil {
				log.Debug().Err(err).Msg("Could not write ranges to client")
			}
		}
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if out.Mode == intent.ModeHead {
		return
	}
	bytesWritten, err := io.Copy(w, io.NewSectionReader(out.File, 0, size))
	if err != nil {
		log.Debug().Err(err).Msg("Could not write response body to client")
	}
	log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

// §  14.6.  Media Type multipart/byteranges
// §
// §     When a 206 (Partial Content) response message includes the content of
// §     multiple ranges, they are transmitted as body parts in a multipart
// §     message body ([RFC2046], Section 5.1) with the media type of
// §     "multipart/byteranges".
func writeMultipart(w http.ResponseWriter, out *intent.Output, spans []rfc9110.ByteSpan) error {
	size := out.Size()
	ctype := w.Header().Get("Content-Type")
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/byteranges; boundary="+mw.Boundary())
	w.Header().Del("Content-Length")
	w.WriteHeader(http.StatusPartialContent)
	for _, span := range spans {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":  {ctype},
			"Content-Range": {span.ContentRange(size)},
		})
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, io.NewSectionReader(out.File, span.Start, span.Length)); err != nil {
			return err
		}
	}
	return mw.Close()
}
