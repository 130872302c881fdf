package headerrules

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type Rules []Rule

// Rule sets response headers for the files it matches.
// All non-empty match fields must match; the first matching rule wins.
type Rule struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	// File name extension of the resource, e.g. ".js"
	Extension string            `yaml:"extension"`
	Default   string            `yaml:"default"`
	Override  string            `yaml:"override"`
	Headers   map[string]string `yaml:"headers"`
}

// Apply applies the first rule matching urlPath to header, tracing to log.
func (r Rules) Apply(log *zerolog.Logger, urlPath string, header http.Header) {
	if rule := r.find(log, urlPath); rule != nil {
		applyRuleToHeader(log, *rule, header)
	}
}

func applyRuleToHeader(log *zerolog.Logger, rule Rule, header http.Header) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && header.Get("Cache-Control") == "" {
		log.Trace().Msg("Applying default Cache-Control header")
		header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		header.Set(name, value)
	}
}

func (r Rules) find(log *zerolog.Logger, urlPath string) *Rule {
	log.Trace().Msgf("Finding rule for %s", urlPath)
	for _, rule := range r {
		if rule.Path != "" && rule.Path != urlPath {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(urlPath, rule.Prefix) {
			continue
		}
		if rule.Extension != "" && !strings.HasSuffix(urlPath, rule.Extension) {
			continue
		}
		return &rule
	}
	return nil
}
