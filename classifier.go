package edgeworker

import (
	"net/http"
	"path"
	"strings"
)

// Strategy is a fixed policy for ordering network vs. cache access
// for a given request.
type Strategy string

const (
	// StrategyPassThrough forwards the request untouched. Used for all
	// non-read-only requests, which are never intercepted.
	StrategyPassThrough Strategy = "pass-through"
	// StrategyCacheFirst serves from the static partition, fetching and
	// storing only on a miss.
	StrategyCacheFirst Strategy = "cache-first"
	// StrategyNetworkFirst fetches live, falling back to cache on
	// network failure.
	StrategyNetworkFirst Strategy = "network-first"
	// StrategyStaleWhileRevalidate serves a cached entry immediately and
	// refreshes it in the background.
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	// StrategyNetworkOnly forwards verbatim with no caching and no
	// fallback. Used where replaying a response would corrupt semantics,
	// e.g. analytics pixels.
	StrategyNetworkOnly Strategy = "network-only"
)

// Classifier maps a request to exactly one strategy.
//
// Rules are evaluated in fixed precedence order:
// non-read-only methods pass through; API paths are network-first;
// analytics hosts and probe paths are network-only; static-asset
// extensions are cache-first; allow-listed external hosts are
// stale-while-revalidate; everything else (same-origin navigations
// included) is network-first. The order matters: a URL matching both
// an API prefix and an analytics host is routed by the API rule.
type Classifier struct {
	// Host of the serving origin. Requests to other hosts are only
	// eligible for the external allow list.
	OriginHost string
	// Path prefixes routed to the API strategy.
	APIPrefixes []string
	// Hosts of analytics and tracking providers.
	AnalyticsHosts []string
	// Path substrings identifying tracking endpoints on any host.
	AnalyticsPaths []string
	// Paths exempted from caching entirely, e.g. a liveness probe.
	ProbePaths []string
	// File extensions considered long-lived static assets.
	StaticSuffixes []string
	// Cross-origin hosts (font and media providers) allowed to be
	// served stale while revalidating.
	ExternalHosts []string
}

// DefaultClassifier returns a classifier with the rule sets used by the
// marketing sites: /api/ endpoints, the usual analytics domains, web
// asset extensions and the Google font hosts.
func DefaultClassifier(originHost string) *Classifier {
	return &Classifier{
		OriginHost:  originHost,
		APIPrefixes: []string{"/api/"},
		AnalyticsHosts: []string{
			"www.google-analytics.com",
			"www.googletagmanager.com",
			"connect.facebook.net",
			"analytics.google.com",
		},
		AnalyticsPaths: []string{"/gtag/", "/collect"},
		ProbePaths:     []string{"/api/health"},
		StaticSuffixes: []string{
			".html", ".css", ".js",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
			".woff", ".woff2", ".ttf", ".otf",
		},
		ExternalHosts: []string{
			"fonts.googleapis.com",
			"fonts.gstatic.com",
		},
	}
}

// Classify returns the strategy for the given request.
// The mapping is total: every request gets exactly one strategy.
func (c *Classifier) Classify(r *http.Request) Strategy {
	if r.Method != http.MethodGet {
		return StrategyPassThrough
	}
	if hasPrefix(r.URL.Path, c.APIPrefixes) && !contains(c.ProbePaths, r.URL.Path) {
		return StrategyNetworkFirst
	}
	if c.isTracking(r) {
		return StrategyNetworkOnly
	}
	if c.isStaticAsset(r.URL.Path) {
		return StrategyCacheFirst
	}
	if r.URL.Host != c.OriginHost && contains(c.ExternalHosts, r.URL.Host) {
		return StrategyStaleWhileRevalidate
	}
	return StrategyNetworkFirst
}

func (c *Classifier) isTracking(r *http.Request) bool {
	if contains(c.AnalyticsHosts, r.URL.Host) {
		return true
	}
	if contains(c.ProbePaths, r.URL.Path) {
		return true
	}
	for _, p := range c.AnalyticsPaths {
		if strings.Contains(r.URL.Path, p) {
			return true
		}
	}
	return false
}

func (c *Classifier) isStaticAsset(urlPath string) bool {
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" {
		return false
	}
	return contains(c.StaticSuffixes, ext)
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
