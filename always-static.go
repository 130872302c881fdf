package alwaysstatic

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/always-cache/always-static/cache"
	diskpool "github.com/always-cache/always-static/pkg/disk-pool"
	headerrules "github.com/always-cache/always-static/pkg/header-rules"
	intent "github.com/always-cache/always-static/pkg/request-intent"
	"github.com/always-cache/always-static/rfc9110"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const DefaultIndexFile = "index.html"

type Config struct {
	// Directory to serve files from.
	Root string
	// File served for URLs ending in a slash. Defaults to index.html.
	IndexFile string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Pool for blocking filesystem calls. A default pool is created if nil.
	Pool *diskpool.Pool
	// Storage for content-hash entity tags.
	// If nil, weak entity tags are derived from size and modification time.
	ETags cache.ETagProvider
	// Evaluate conditional request headers (If-Match, If-None-Match,
	// If-Modified-Since, If-Unmodified-Since, If-Range).
	Preconditions bool
	// Response header rules, applied to successful responses.
	Rules headerrules.Rules
}

type AlwaysStatic struct {
	root      string
	indexFile string
	log       zerolog.Logger
	pool      *diskpool.Pool
	etags     cache.ETagProvider
	builder   intent.Builder
	resolver  intent.Resolver
	rules     headerrules.Rules
}

// New initializes the file server.
func New(config Config) *AlwaysStatic {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("root", config.Root).
		Logger()

	a := &AlwaysStatic{
		root:      config.Root,
		indexFile: config.IndexFile,
		log:       logger,
		pool:      config.Pool,
		etags:     config.ETags,
		builder:   intent.Builder{Preconditions: config.Preconditions},
		resolver:  intent.NewResolver(&logger),
		rules:     config.Rules,
	}
	if a.indexFile == "" {
		a.indexFile = DefaultIndexFile
	}
	if a.pool == nil {
		a.pool = diskpool.New(0)
	}
	return a
}

// ServeHTTP implements the http.Handler interface.
func (a *AlwaysStatic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := getLogger(r, a.log)
	in := a.builder.Build(r.Method, intent.FromHTTPHeader(r.Header))

	switch in.Mode {
	case intent.ModeInvalidMethod:
		w.Header().Set("Allow", rfc9110.AllowedMethods)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	case intent.ModeInvalidRange:
		http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	urlPath, basePath := a.mapPath(r.URL.Path)
	out, err := a.resolver.ResolveOn(r.Context(), a.pool, in, basePath)
	if err != nil {
		log.Debug().Err(err).Str("path", basePath).Msg("Request abandoned while resolving")
		return
	}
	if out == nil {
		http.NotFound(w, r)
		return
	}
	defer out.Close()

	if out.IsDir() {
		a.redirectToDir(w, r)
		return
	}

	v, err := a.validators(r.Context(), out)
	if err != nil {
		log.Debug().Err(err).Str("path", out.Path).Msg("Request abandoned while hashing")
		return
	}
	log.Trace().Str("path", out.Path).Str("encoding", out.Encoding.String()).Msg("Resolved variant")

	a.setHeaders(log, w.Header(), urlPath, basePath, out, v)

	if status, ok := rfc9110.EvaluatePreconditions(r.Method, out.Conditions, v); !ok {
		if status == http.StatusNotModified {
			writeNotModified(w)
		} else {
			http.Error(w, "precondition failed", status)
		}
		return
	}

	a.sendVariant(w, r, out, v)
}

// mapPath cleans the URL path and maps it onto the root.
// It returns the cleaned URL path (with the index file for directory URLs)
// and the base filesystem path variants are probed from.
func (a *AlwaysStatic) mapPath(urlPath string) (string, string) {
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	cleaned := path.Clean(urlPath)
	if strings.HasSuffix(urlPath, "/") {
		cleaned = path.Join(cleaned, a.indexFile)
	}
	return cleaned, filepath.Join(a.root, filepath.FromSlash(cleaned))
}

func (a *AlwaysStatic) redirectToDir(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/") {
		// the index file itself is a directory
		http.NotFound(w, r)
		return
	}
	target := path.Base(r.URL.Path) + "/"
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// getLogger returns the logger from the request context.
// If no logger is found, it will return the given default logger.
func getLogger(r *http.Request, fallback zerolog.Logger) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		return &fallback
	}
	return logger
}
