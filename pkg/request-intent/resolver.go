package intent

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	diskpool "github.com/always-cache/always-static/pkg/disk-pool"
	"github.com/rs/zerolog"
)

// Resolver picks the variant of a file to serve for an Intent.
type Resolver struct {
	log  zerolog.Logger
	stat func(*os.File) (fs.FileInfo, error)
}

// NewResolver creates a resolver logging to logger,
// or to the console if logger is nil.
func NewResolver(logger *zerolog.Logger) Resolver {
	var l zerolog.Logger
	if logger == nil {
		l = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		l = *logger
	}
	return Resolver{
		log:  l.With().Str("component", "resolver").Logger(),
		stat: (*os.File).Stat,
	}
}

// Resolve probes basePath + suffix for each coding of the Intent's
// Accept-Encoding, in order, and returns the first variant that opens.
// It returns nil when no variant exists.
//
// Resolve BLOCKS on filesystem calls. Do not call it from a goroutine that
// must stay responsive; use ResolveOn with a disk pool instead.
//
// A missing variant is skipped silently. Any other error is logged once
// and the variant is skipped as well, so Resolve never fails.
func (r Resolver) Resolve(in Intent, basePath string) *Output {
	stat := r.stat
	if stat == nil {
		stat = (*os.File).Stat
	}
	for enc := range in.AcceptEncoding.Iter() {
		// plain string concatenation keeps non-UTF-8 names intact
		probe := basePath + enc.Suffix()
		f, err := os.Open(probe)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.log.Warn().Err(err).Str("path", probe).Str("encoding", enc.String()).Msg("Could not open variant")
			}
			continue
		}
		info, err := stat(f)
		if err != nil {
			f.Close()
			r.log.Warn().Err(err).Str("path", probe).Str("encoding", enc.String()).Msg("Could not stat variant")
			continue
		}
		return NewOutput(in, enc, probe, info, f)
	}
	return nil
}

// ResolveOn runs Resolve on the disk pool.
//
// When ctx is done before the result is available, ResolveOn returns
// ctx.Err(). The probe is not interrupted; a file it opens after that is
// closed as soon as it finishes.
func (r Resolver) ResolveOn(ctx context.Context, pool *diskpool.Pool, in Intent, basePath string) (*Output, error) {
	var (
		mu        sync.Mutex
		abandoned bool
		out       *Output
	)
	err := pool.Do(ctx, func() {
		res := r.Resolve(in, basePath)
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			res.Close()
			return
		}
		out = res
	})
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		abandoned = true
		out.Close()
		return nil, err
	}
	return out, nil
}
