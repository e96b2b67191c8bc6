// Package edgeworker is an offline-first caching layer for the marketing
// sites. It intercepts every outgoing read request from a client context,
// classifies it by URL shape and dispatches it to one of four caching
// strategies over two named, versioned cache partitions. It also keeps a
// queue of lead submissions that failed to send, replaying them when a
// reconnect signal arrives.
package edgeworker

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/edge-worker/cache"
	"github.com/always-cache/edge-worker/queue"
)

// Fetcher performs the actual network fetch for a request.
// http.DefaultTransport is used if none is given.
type Fetcher interface {
	Do(*http.Request) (*http.Response, error)
}

type transportFetcher struct {
	rt http.RoundTripper
}

func (t transportFetcher) Do(r *http.Request) (*http.Response, error) {
	return t.rt.RoundTrip(r)
}

type Config struct {
	// Storage for cache partitions.
	Cache cache.Provider
	// Storage for pending lead submissions.
	// An in-memory store is used if nil.
	Queue queue.Store
	// URL of the origin this worker controls.
	OriginURL url.URL
	// Version token embedded in partition names. Bumping the version
	// makes the previous generation's partitions stale.
	Version string
	// Paths of critical assets cached up front during install.
	Precache []string
	// Classifier to route requests with. Defaults for the origin are
	// used if nil.
	Classifier *Classifier
	// Fetcher used for all network access.
	Fetcher Fetcher
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Registerer for worker metrics. A throwaway registry is used if
	// nil, so multiple workers can coexist in one process.
	Metrics prometheus.Registerer
	// SubmissionEndpoints maps a queued submission kind to the POST
	// endpoint it is replayed against. Defaults to the valuation and
	// contact endpoints under the origin.
	SubmissionEndpoints map[string]string
}

// Worker is one generation of the caching layer. Partition names,
// lifecycle phase and counters all live on the instance, so old and
// new generations can run side by side during an upgrade.
type Worker struct {
	cache      cache.Provider
	queue      queue.Store
	fetch      Fetcher
	classifier *Classifier
	log        zerolog.Logger

	version     string
	staticName  string
	dynamicName string
	origin      url.URL
	precache    []string
	endpoints   map[string]string

	mu         sync.Mutex
	state      State
	installing bool

	metrics *workerMetrics
}

// New initializes a worker for one lifecycle version.
// The worker starts in the Installing state; call Install and Activate
// (or send a skip-waiting message) before it takes control.
func New(config Config) (*Worker, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("cache provider is required")
	}
	if config.Version == "" {
		return nil, fmt.Errorf("version is required")
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("version", config.Version).
		Logger()

	q := config.Queue
	if q == nil {
		q = queue.NewMemoryStore()
	}
	classifier := config.Classifier
	if classifier == nil {
		classifier = DefaultClassifier(config.OriginURL.Host)
	}
	fetcher := config.Fetcher
	if fetcher == nil {
		fetcher = transportFetcher{rt: http.DefaultTransport}
	}
	endpoints := config.SubmissionEndpoints
	if endpoints == nil {
		endpoints = map[string]string{
			SubmissionKindValuation: config.OriginURL.JoinPath("/api/valuation").String(),
			SubmissionKindContact:   config.OriginURL.JoinPath("/api/contact").String(),
		}
	}

	w := &Worker{
		cache:       config.Cache,
		queue:       q,
		fetch:       fetcher,
		classifier:  classifier,
		log:         logger,
		version:     config.Version,
		staticName:  "static-" + config.Version,
		dynamicName: "dynamic-" + config.Version,
		origin:      config.OriginURL,
		precache:    config.Precache,
		endpoints:   endpoints,
		state:       StateInstalling,
		metrics:     newWorkerMetrics(config.Metrics),
	}
	return w, nil
}

// StaticPartition returns the name of this version's static partition.
func (w *Worker) StaticPartition() string { return w.staticName }

// DynamicPartition returns the name of this version's dynamic partition.
func (w *Worker) DynamicPartition() string { return w.dynamicName }

// RoundTrip implements http.RoundTripper, so the worker can be used as
// the transport of an http.Client: every request issued through such a
// client passes the interception point.
func (w *Worker) RoundTrip(r *http.Request) (*http.Response, error) {
	return w.HandleFetch(r)
}

// HandleFetch is the fetch interception point. The request is classified
// and dispatched to its strategy; the returned response is either the
// live network response or a cached substitute, per the strategy.
func (w *Worker) HandleFetch(r *http.Request) (*http.Response, error) {
	res, _, err := w.handleFetch(r)
	return res, err
}

func (w *Worker) handleFetch(r *http.Request) (*http.Response, <-chan struct{}, error) {
	strategy := w.classifier.Classify(r)
	w.log.Trace().
		Str("url", r.URL.String()).
		Str("strategy", string(strategy)).
		Msg("Dispatching request")

	switch strategy {
	case StrategyCacheFirst:
		res, err := w.cacheFirst(r)
		return res, closedChan, err
	case StrategyNetworkFirst:
		res, err := w.networkFirst(r)
		return res, closedChan, err
	case StrategyStaleWhileRevalidate:
		return w.staleWhileRevalidate(r)
	case StrategyNetworkOnly:
		res, err := w.networkOnly(r)
		return res, closedChan, err
	default:
		res, err := w.fetch.Do(r)
		return res, closedChan, err
	}
}

// closedChan is the revalidation handle for strategies that have no
// background work: already done.
var closedChan = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
