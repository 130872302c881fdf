package intent

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	diskpool "github.com/always-cache/always-static/pkg/disk-pool"
	"github.com/always-cache/always-static/rfc9110"
	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("Could not write %s: %v", name, err)
	}
}

func testResolver() (Resolver, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)
	return NewResolver(&logger), buf
}

func withEncoding(codings ...rfc9110.Coding) Intent {
	return Intent{Mode: ModeGet, AcceptEncoding: rfc9110.NewAcceptEncoding(codings...)}
}

func TestResolveFirstExistingVariant(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "app.js")
	writeFile(t, base, "identity")
	writeFile(t, base+".gz", "gzip")

	r, logs := testResolver()
	out := r.Resolve(withEncoding(rfc9110.Brotli, rfc9110.Gzip, rfc9110.Identity), base)
	if out == nil {
		t.Fatal("No variant resolved")
	}
	defer out.Close()
	if out.Encoding != rfc9110.Gzip {
		t.Fatalf("Encoding is %s", out.Encoding)
	}
	if out.Path != base+".gz" || out.Size() != 4 {
		t.Fatalf("Resolved %s (%d bytes)", out.Path, out.Size())
	}
	if logs.Len() != 0 {
		t.Fatalf("Not found probe was logged: %s", logs.String())
	}
}

func TestResolveIdentityOnlyIgnoresVariants(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "index.html")
	writeFile(t, base, "<html>")
	writeFile(t, base+".br", "br")

	r, _ := testResolver()
	out := r.Resolve(Build("GET", headers()), base)
	if out == nil {
		t.Fatal("No variant resolved")
	}
	defer out.Close()
	if out.Encoding != rfc9110.Identity || out.Path != base {
		t.Fatalf("Resolved %s as %s", out.Path, out.Encoding)
	}
}

func TestResolveNoVariant(t *testing.T) {
	r, logs := testResolver()
	out := r.Resolve(withEncoding(rfc9110.Brotli, rfc9110.Gzip, rfc9110.Identity), filepath.Join(t.TempDir(), "missing"))
	if out != nil {
		t.Fatalf("Resolved %s", out.Path)
	}
	if logs.Len() != 0 {
		t.Fatalf("Not found probe was logged: %s", logs.String())
	}
}

func TestResolveLogsOtherErrorsOncePerProbe(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	writeFile(t, file, "x")

	r, logs := testResolver()
	// opening a path below a regular file fails with ENOTDIR, not ENOENT
	out := r.Resolve(withEncoding(rfc9110.Brotli, rfc9110.Gzip, rfc9110.Identity), filepath.Join(file, "child"))
	if out != nil {
		t.Fatalf("Resolved %s", out.Path)
	}
	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Logged %d lines: %s", len(lines), logs.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, `"level":"warn"`) {
			t.Fatalf("Log line is %s", line)
		}
	}
}

func TestResolveSkipsVariantThatCannotBeStatted(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "app.js")
	writeFile(t, base, "identity")
	writeFile(t, base+".gz", "gzip")

	r, logs := testResolver()
	var failed *os.File
	r.stat = func(f *os.File) (fs.FileInfo, error) {
		if f.Name() == base+".gz" {
			failed = f
			return nil, errors.New("stat failed")
		}
		return f.Stat()
	}
	out := r.Resolve(withEncoding(rfc9110.Gzip, rfc9110.Identity), base)
	if out == nil {
		t.Fatal("No variant resolved")
	}
	defer out.Close()
	if out.Encoding != rfc9110.Identity || out.Path != base {
		t.Fatalf("Resolved %s as %s", out.Path, out.Encoding)
	}
	if failed == nil {
		t.Fatal("Gzip variant was not statted")
	}
	if err := failed.Close(); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("Gzip variant was left open, close returned %v", err)
	}
	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"level":"warn"`) || !strings.Contains(lines[0], "Could not stat variant") {
		t.Fatalf("Logged %s", logs.String())
	}
}

func TestResolveCarriesIntent(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "data.bin")
	writeFile(t, base, "0123456789")

	in := Build("HEAD", headers("Range", "bytes=0-3"))
	r, _ := testResolver()
	out := r.Resolve(in, base)
	if out == nil {
		t.Fatal("No variant resolved")
	}
	defer out.Close()
	if out.Mode != ModeHead || out.Range == nil || out.Range.Specs[0] != (rfc9110.RangeSpec{First: 0, Last: 3}) {
		t.Fatalf("Output is %+v", out)
	}
}

func TestResolveOnPool(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "style.css")
	writeFile(t, base, "body{}")
	writeFile(t, base+".zst", "zstd")

	r, _ := testResolver()
	pool := diskpool.New(1)
	out, err := r.ResolveOn(context.Background(), pool, withEncoding(rfc9110.Zstd, rfc9110.Identity), base)
	if err != nil {
		t.Fatalf("Error is %v", err)
	}
	defer out.Close()
	if out.Encoding != rfc9110.Zstd {
		t.Fatalf("Encoding is %s", out.Encoding)
	}
}

func TestResolveOnCancelled(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "style.css")
	writeFile(t, base, "body{}")

	r, _ := testResolver()
	pool := diskpool.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.ResolveOn(ctx, pool, withEncoding(rfc9110.Identity), base)
	if err == nil || out != nil {
		t.Fatalf("Resolved %v with error %v", out, err)
	}
}
