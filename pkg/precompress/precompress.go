// Package precompress writes the encoded variants (.br, .zst, .gz) of the
// files under a root, so that they can be served without compressing on
// every request.
package precompress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/always-cache/always-static/rfc9110"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Files smaller than this rarely shrink enough to be worth a variant.
const DefaultMinSize = 256

var DefaultExtensions = []string{
	".html", ".htm", ".css", ".js", ".mjs", ".json", ".map",
	".svg", ".txt", ".xml", ".wasm", ".md", ".csv", ".ico",
}

var DefaultCodings = []rfc9110.Coding{rfc9110.Brotli, rfc9110.Zstd, rfc9110.Gzip}

type Config struct {
	Root string
	// Codings to generate. Identity is ignored.
	Codings []rfc9110.Coding
	// Files below MinSize bytes are skipped.
	MinSize    int64
	Extensions []string
	Workers    int
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type Stats struct {
	Written int64
	Fresh   int64
	// Variants not written because they were not smaller than the source.
	Useless int64
}

type compressor struct {
	config Config
	log    zerolog.Logger
	exts   map[string]bool

	written, fresh, useless atomic.Int64
}

// Run walks the root and (re)writes every variant that is missing or older
// than its source file. It stops at the first error.
func Run(ctx context.Context, config Config) (Stats, error) {
	if config.Codings == nil {
		config.Codings = DefaultCodings
	}
	if config.MinSize == 0 {
		config.MinSize = DefaultMinSize
	}
	if config.Extensions == nil {
		config.Extensions = DefaultExtensions
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	c := &compressor{
		config: config,
		log:    logger.With().Str("component", "precompress").Logger(),
		exts:   make(map[string]bool, len(config.Extensions)),
	}
	for _, ext := range config.Extensions {
		c.exts[strings.ToLower(ext)] = true
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	walkErr := filepath.WalkDir(config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || !c.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() < config.MinSize {
			return nil
		}
		for _, coding := range config.Codings {
			if coding == rfc9110.Identity {
				continue
			}
			g.Go(func() error {
				return c.variant(path, info, coding)
			})
		}
		return nil
	})
	err := g.Wait()
	if walkErr != nil {
		err = walkErr
	}
	stats := Stats{
		Written: c.written.Load(),
		Fresh:   c.fresh.Load(),
		Useless: c.useless.Load(),
	}
	return stats, err
}

// variant writes path+suffix unless it is at least as new as the source.
func (c *compressor) variant(path string, src fs.FileInfo, coding rfc9110.Coding) error {
	target := path + coding.Suffix()
	if info, err := os.Stat(target); err == nil && !info.ModTime().Before(src.ModTime()) {
		c.fresh.Add(1)
		return nil
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".precompress-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	enc, err := NewEncoder(coding, tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to compress %s: %w", path, err)
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if size >= src.Size() {
		c.log.Debug().Str("path", path).Str("encoding", coding.String()).Msg("Variant not smaller than source, skipping")
		c.useless.Add(1)
		// a stale variant would otherwise be served forever
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := tmp.Chmod(src.Mode().Perm()); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move variant into place: %w", err)
	}
	c.log.Trace().Str("path", target).Int64("size", size).Msg("Wrote variant")
	c.written.Add(1)
	return nil
}

// NewEncoder returns a writer encoding into w with the given coding at its
// best compression level. Closing it flushes the encoder, not w.
func NewEncoder(coding rfc9110.Coding, w io.Writer) (io.WriteCloser, error) {
	switch coding {
	case rfc9110.Gzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case rfc9110.Brotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case rfc9110.Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return enc, nil
	}
	return nil, fmt.Errorf("no encoder for %s", coding)
}
