package alwaysstatic

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/always-cache/always-static/cache"
	headerrules "github.com/always-cache/always-static/pkg/header-rules"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

var testLogger = zerolog.Nop()

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("Could not write %s: %v", name, err)
	}
}

// testRoot creates a small site:
//
//	/data.txt          0123456789
//	/page.html(.gz)    <html>
//	/sub/index.html    sub index
func testRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "data.txt"), "0123456789")
	writeFile(t, filepath.Join(root, "page.html"), "<html>")
	writeFile(t, filepath.Join(root, "page.html.gz"), "gzipped html")
	writeFile(t, filepath.Join(root, "sub", "index.html"), "sub index")
	return root
}

func newServer(t *testing.T, config Config) http.Handler {
	if config.Root == "" {
		config.Root = testRoot(t)
	}
	config.Logger = &testLogger
	r := chi.NewRouter()
	r.Handle("/*", New(config))
	return r
}

func do(handler http.Handler, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Add(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServesFile(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/data.txt")

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code is %d", rec.Code)
	}
	if body := rec.Body.String(); body != "0123456789" {
		t.Fatalf("Body is %s", body)
	}
	h := rec.Result().Header
	if ct := h.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type is %s", ct)
	}
	if cl := h.Get("Content-Length"); cl != "10" {
		t.Fatalf("Content-Length is %s", cl)
	}
	if h.Get("Vary") != "Accept-Encoding" || h.Get("Accept-Ranges") != "bytes" {
		t.Fatalf("Headers are %v", h)
	}
	if etag := h.Get("ETag"); !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("ETag is %s", etag)
	}
	if h.Get("Last-Modified") == "" || h.Get("Content-Encoding") != "" {
		t.Fatalf("Headers are %v", h)
	}
}

func TestServesEncodedVariant(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/page.html", "Accept-Encoding", "br, gzip")

	if body := rec.Body.String(); body != "gzipped html" {
		t.Fatalf("Body is %s", body)
	}
	if ce := rec.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Content-Encoding is %s", ce)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type is %s", ct)
	}

	rec = do(handler, "GET", "/page.html", "Accept-Encoding", "gzip;q=0")
	if body := rec.Body.String(); body != "<html>" {
		t.Fatalf("Body is %s", body)
	}
}

func TestHeadHasNoBody(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "HEAD", "/data.txt", "Range", "bytes=0-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code is %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("Body is %s", rec.Body.String())
	}
	if cl := rec.Header().Get("Content-Length"); cl != "10" {
		t.Fatalf("Content-Length is %s", cl)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := New(Config{Root: t.TempDir(), Logger: &testLogger})
	for _, method := range []string{"POST", "PUT", "DELETE", "OPTIONS"} {
		rec := do(handler, method, "/data.txt")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("Status code for %s is %d", method, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != "GET, HEAD" {
			t.Fatalf("Allow is %s", allow)
		}
	}
}

func TestInvalidRange(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/data.txt", "Range", "bytes=5-1")
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("Status code is %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	handler := newServer(t, Config{})
	if rec := do(handler, "GET", "/missing.txt"); rec.Code != http.StatusNotFound {
		t.Fatalf("Status code is %d", rec.Code)
	}
	// a file is not a directory
	if rec := do(handler, "GET", "/data.txt/"); rec.Code != http.StatusNotFound {
		t.Fatalf("Status code is %d", rec.Code)
	}
}

func TestPathCannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "www")
	writeFile(t, filepath.Join(root, "secret.txt"), "inside")
	writeFile(t, filepath.Join(parent, "secret.txt"), "outside")
	handler := New(Config{Root: root, Logger: &testLogger})

	req := httptest.NewRequest("GET", "/", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if body := rec.Body.String(); body != "inside" {
		t.Fatalf("Body is %s", body)
	}
}

func TestDirectoryRedirectAndIndex(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/sub?x=1")
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("Status code is %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/sub/?x=1" {
		t.Fatalf("Location is %s", loc)
	}

	rec = do(handler, "GET", "/sub/")
	if body := rec.Body.String(); body != "sub index" {
		t.Fatalf("Body is %s", body)
	}
}

func TestSingleRange(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/data.txt", "Range", "bytes=2-5")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("Status code is %d", rec.Code)
	}
	if body := rec.Body.String(); body != "2345" {
		t.Fatalf("Body is %s", body)
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 2-5/10" {
		t.Fatalf("Content-Range is %s", cr)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "4" {
		t.Fatalf("Content-Length is %s", cl)
	}
}

func TestMultipleRanges(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/data.txt", "Range", "bytes=0-1, -2")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("Status code is %d", rec.Code)
	}
	mediaType, params, err := mime.ParseMediaType(rec.Header().Get("Content-Type"))
	if err != nil || mediaType != "multipart/byteranges" {
		t.Fatalf("Content-Type is %s", rec.Header().Get("Content-Type"))
	}
	mr := multipart.NewReader(bytes.NewReader(rec.Body.Bytes()), params["boundary"])
	want := []struct{ body, contentRange string }{
		{"01", "bytes 0-1/10"},
		{"89", "bytes 8-9/10"},
	}
	for i, w := range want {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("Part %d: %v", i, err)
		}
		body, _ := io.ReadAll(part)
		if string(body) != w.body || part.Header.Get("Content-Range") != w.contentRange {
			t.Fatalf("Part %d is %s (%s)", i, body, part.Header.Get("Content-Range"))
		}
		if ct := part.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Fatalf("Part %d Content-Type is %s", i, ct)
		}
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Fatalf("Expected end of parts, got %v", err)
	}
}

func TestUnsatisfiableRange(t *testing.T) {
	handler := newServer(t, Config{})
	rec := do(handler, "GET", "/data.txt", "Range", "bytes=10-")

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("Status code is %d", rec.Code)
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes */10" {
		t.Fatalf("Content-Range is %s", cr)
	}
}

func TestConditionalRequestsIgnoredByDefault(t *testing.T) {
	handler := newServer(t, Config{})
	etag := do(handler, "GET", "/data.txt").Header().Get("ETag")
	rec := do(handler, "GET", "/data.txt", "If-None-Match", etag)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code is %d", rec.Code)
	}
}

func TestNotModified(t *testing.T) {
	handler := newServer(t, Config{Preconditions: true})
	first := do(handler, "GET", "/data.txt")
	etag := first.Header().Get("ETag")

	rec := do(handler, "GET", "/data.txt", "If-None-Match", etag)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("Status code is %d", rec.Code)
	}
	if rec.Body.Len() != 0 || rec.Header().Get("ETag") != etag || rec.Header().Get("Content-Type") != "" {
		t.Fatalf("Response is %v %s", rec.Header(), rec.Body.String())
	}

	rec = do(handler, "GET", "/data.txt", "If-Modified-Since", first.Header().Get("Last-Modified"))
	if rec.Code != http.StatusNotModified {
		t.Fatalf("Status code is %d", rec.Code)
	}
}

func TestPreconditionFailed(t *testing.T) {
	handler := newServer(t, Config{Preconditions: true})
	rec := do(handler, "GET", "/data.txt", "If-Match", `"something-else"`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("Status code is %d", rec.Code)
	}
}

func TestIfRange(t *testing.T) {
	handler := newServer(t, Config{Preconditions: true, ETags: cache.NewMemCache()})
	etag := do(handler, "GET", "/data.txt").Header().Get("ETag")

	rec := do(handler, "GET", "/data.txt", "Range", "bytes=0-0", "If-Range", etag)
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("Status code is %d", rec.Code)
	}
	rec = do(handler, "GET", "/data.txt", "Range", "bytes=0-0", "If-Range", `"stale"`)
	if rec.Code != http.StatusOK || rec.Body.String() != "0123456789" {
		t.Fatalf("Status code is %d", rec.Code)
	}
}

func TestStrongETagsFromStore(t *testing.T) {
	root := testRoot(t)
	store := cache.NewMemCache()
	handler := newServer(t, Config{Root: root, ETags: store})

	etag := do(handler, "GET", "/data.txt").Header().Get("ETag")
	if !strings.HasPrefix(etag, `"`) {
		t.Fatalf("ETag is %s", etag)
	}
	if again := do(handler, "GET", "/data.txt").Header().Get("ETag"); again != etag {
		t.Fatalf("ETag changed from %s to %s", etag, again)
	}
	if gz := do(handler, "GET", "/page.html", "Accept-Encoding", "gzip").Header().Get("ETag"); gz == etag {
		t.Fatal("Different variants have the same ETag")
	}

	name := filepath.Join(root, "data.txt")
	writeFile(t, name, "9876543210")
	future := time.Now().Add(time.Hour)
	os.Chtimes(name, future, future)
	if changed := do(handler, "GET", "/data.txt").Header().Get("ETag"); changed == etag {
		t.Fatal("ETag did not change with content")
	}
}

func TestHeaderRules(t *testing.T) {
	handler := newServer(t, Config{Rules: headerrules.Rules{
		{Extension: ".html", Override: "no-cache"},
		{Default: "max-age=60"},
	}})
	if cc := do(handler, "GET", "/sub/").Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control is %s", cc)
	}
	if cc := do(handler, "GET", "/data.txt").Header().Get("Cache-Control"); cc != "max-age=60" {
		t.Fatalf("Cache-Control is %s", cc)
	}
}

func TestHeaderRulesTraceToServerLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	root := testRoot(t)
	handler := New(Config{Root: root, Logger: &logger, Rules: headerrules.Rules{{Default: "max-age=60"}}})

	do(handler, "GET", "/data.txt")
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "Finding rule for /data.txt") {
			if !strings.Contains(line, `"root":`) {
				t.Fatalf("Trace line lacks server fields: %s", line)
			}
			return
		}
	}
	t.Fatalf("Rule lookup not traced: %s", buf.String())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	root := testRoot(t)
	handler := RequestLogger(logger)(New(Config{Root: root, Logger: &testLogger}))

	rec := do(handler, "GET", "/data.txt")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("No request id header")
	}
	line := buf.String()
	if !strings.Contains(line, `"status":200`) || !strings.Contains(line, `"req":`) {
		t.Fatalf("Log line is %s", line)
	}
}
