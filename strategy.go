package edgeworker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/always-cache/edge-worker/cache"
	snapshot "github.com/always-cache/edge-worker/pkg/response-snapshot"
)

// cacheFirst serves static assets: a cached entry wins outright, the
// network is only consulted on a miss. A failed fetch propagates as-is.
func (w *Worker) cacheFirst(r *http.Request) (*http.Response, error) {
	key := cache.Key(r)
	if res := w.matchSnapshot(w.staticName, key, r); res != nil {
		w.metrics.observe(StrategyCacheFirst, outcomeHit)
		return res, nil
	}
	res, err := w.fetch.Do(r)
	if err != nil {
		w.metrics.observe(StrategyCacheFirst, outcomeError)
		return nil, err
	}
	if isSuccess(res.StatusCode) {
		w.store(w.staticName, key, res)
	}
	w.metrics.observe(StrategyCacheFirst, outcomeMiss)
	return res, nil
}

// networkFirst serves API responses and navigations: live data when the
// network is up, cached data when it is not. As a last resort for a
// failed navigation, the cached root document is served as the offline
// page.
func (w *Worker) networkFirst(r *http.Request) (*http.Response, error) {
	key := cache.Key(r)
	res, err := w.fetch.Do(r)
	if err == nil {
		if isSuccess(res.StatusCode) {
			w.store(w.dynamicName, key, res)
		}
		w.metrics.observe(StrategyNetworkFirst, outcomeNetwork)
		return res, nil
	}

	w.log.Debug().Err(err).Str("url", r.URL.String()).Msg("Network failed, trying cache")
	for _, partition := range []string{w.dynamicName, w.staticName} {
		if cached := w.matchSnapshot(partition, key, r); cached != nil {
			w.metrics.observe(StrategyNetworkFirst, outcomeFallback)
			return cached, nil
		}
	}
	if isNavigation(r) {
		rootKey := w.rootDocumentKey(r)
		for _, partition := range []string{w.staticName, w.dynamicName} {
			if cached := w.matchSnapshot(partition, rootKey, r); cached != nil {
				w.metrics.observe(StrategyNetworkFirst, outcomeOffline)
				return cached, nil
			}
		}
	}
	w.metrics.observe(StrategyNetworkFirst, outcomeError)
	return nil, fmt.Errorf("network fetch failed with no cached fallback: %w", err)
}

// staleWhileRevalidate returns a cached entry immediately when one
// exists and refreshes it in the background. The returned channel is
// closed when the background refresh (if any) has finished; production
// callers ignore it, tests use it to await the cache write.
func (w *Worker) staleWhileRevalidate(r *http.Request) (*http.Response, <-chan struct{}, error) {
	key := cache.Key(r)
	if cached := w.matchSnapshot(w.dynamicName, key, r); cached != nil {
		w.metrics.observe(StrategyStaleWhileRevalidate, outcomeHit)
		done := make(chan struct{})
		// the caller already has its response; the refresh is detached
		// from the caller's context and its failure is only logged
		refresh := r.Clone(context.WithoutCancel(r.Context()))
		go func() {
			defer close(done)
			w.revalidate(refresh, key)
		}()
		return cached, done, nil
	}

	res, err := w.fetch.Do(r)
	if err != nil {
		w.metrics.observe(StrategyStaleWhileRevalidate, outcomeError)
		return nil, closedChan, err
	}
	if isSuccess(res.StatusCode) {
		w.store(w.dynamicName, key, res)
	}
	w.metrics.observe(StrategyStaleWhileRevalidate, outcomeMiss)
	return res, closedChan, nil
}

func (w *Worker) revalidate(r *http.Request, key string) {
	res, err := w.fetch.Do(r)
	if err != nil {
		w.log.Debug().Err(err).Str("url", r.URL.String()).Msg("Background revalidation failed")
		return
	}
	defer res.Body.Close()
	if isSuccess(res.StatusCode) {
		w.store(w.dynamicName, key, res)
	}
}

// networkOnly forwards verbatim. No caching, no fallback.
func (w *Worker) networkOnly(r *http.Request) (*http.Response, error) {
	res, err := w.fetch.Do(r)
	if err != nil {
		w.metrics.observe(StrategyNetworkOnly, outcomeError)
		return nil, err
	}
	w.metrics.observe(StrategyNetworkOnly, outcomeNetwork)
	return res, nil
}

// store writes a response snapshot into the named partition.
// A write failure must not abort the strategy: the response is still
// returned to the caller, so the error is only logged.
func (w *Worker) store(partition, key string, res *http.Response) {
	bts, err := snapshot.Marshal(res)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not snapshot response")
		return
	}
	entry := cache.Entry{
		Key:      key,
		StoredAt: time.Now(),
		Bytes:    bts,
	}
	w.log.Trace().Str("partition", partition).Str("key", key).Msg("Writing to cache")
	if err := w.cache.Put(partition, entry); err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
	}
}

// matchSnapshot returns the cached response for the key, or nil when
// there is no usable entry. Lookup and decode errors degrade to a miss.
func (w *Worker) matchSnapshot(partition, key string, r *http.Request) *http.Response {
	entry, ok, err := w.cache.Match(partition, key)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not retrieve from cache")
		return nil
	}
	if !ok {
		return nil
	}
	res, err := snapshot.Unmarshal(entry.Bytes, r)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not decode stored response")
		return nil
	}
	return res
}

func (w *Worker) rootDocumentKey(r *http.Request) string {
	root := *r.URL
	root.Path = "/"
	root.RawQuery = ""
	root.Fragment = ""
	return root.String()
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// isNavigation reports whether the request is a top-level document
// request, the only kind that falls back to the offline page.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
