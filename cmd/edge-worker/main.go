package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	edgeworker "github.com/always-cache/edge-worker"
	"github.com/always-cache/edge-worker/cache"
	"github.com/always-cache/edge-worker/queue"
)

var (
	// CLI flags
	portFlag           int
	originFlag         string
	configFlag         string
	versionFlag        string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to control (overrides config file)")
	flag.StringVar(&configFlag, "config", "", "YAML config file")
	flag.StringVar(&versionFlag, "cache-version", "", "Cache version token (overrides config file)")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read config")
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if versionFlag != "" {
		config.Version = versionFlag
	}
	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	if config.Version == "" {
		config.Version = "v1"
	}
	if dbFilenameFlag != "" {
		config.DB = dbFilenameFlag
	}
	if config.DB == "" {
		config.DB = "edge.db"
	}
	if config.DB == "memory" {
		config.DB = ""
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	classifier := edgeworker.DefaultClassifier(originURL.Host)
	if len(config.APIPrefixes) > 0 {
		classifier.APIPrefixes = config.APIPrefixes
	}
	if len(config.AnalyticsHosts) > 0 {
		classifier.AnalyticsHosts = config.AnalyticsHosts
	}
	if len(config.ExternalHosts) > 0 {
		classifier.ExternalHosts = config.ExternalHosts
	}

	worker, err := edgeworker.New(edgeworker.Config{
		Cache:               cache.NewSQLiteProvider(config.DB),
		Queue:               queue.NewSQLiteStore(config.DB),
		OriginURL:           *originURL,
		Version:             config.Version,
		Precache:            config.Precache,
		Classifier:          classifier,
		Metrics:             prometheus.DefaultRegisterer,
		SubmissionEndpoints: config.SubmissionEndpoints,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create worker")
	}

	ctx := context.Background()
	if err := worker.Install(ctx); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	// the daemon is the only client of its scope, take over right away
	if err := worker.HandleMessage(ctx, edgeworker.Message{Type: edgeworker.MessageSkipWaiting}); err != nil {
		log.Fatal().Err(err).Msg("Activation failed")
	}

	router := chi.NewRouter()
	router.Route("/_edge", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok"))
		})
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			reply := make(chan map[string]int, 1)
			msg := edgeworker.Message{Type: edgeworker.MessageGetCacheStats, Reply: reply}
			if err := worker.HandleMessage(r.Context(), msg); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(<-reply)
		})
		r.Post("/skip-waiting", func(w http.ResponseWriter, r *http.Request) {
			msg := edgeworker.Message{Type: edgeworker.MessageSkipWaiting}
			if err := worker.HandleMessage(r.Context(), msg); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
			tag := r.URL.Query().Get("tag")
			if err := worker.HandleSync(r.Context(), tag); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Handle("/metrics", promhttp.Handler())
	})
	router.NotFound(proxyHandler(worker, *originURL))

	log.Info().Msgf("Serving port %v for origin %s (cache version %s)", portFlag, originURL, config.Version)
	err = http.ListenAndServe(fmt.Sprintf(":%d", portFlag), router)
	if err != nil {
		panic(err)
	}
}

// proxyHandler forwards every non-admin request to the origin through
// the worker, so each one passes the interception point.
func proxyHandler(worker *edgeworker.Worker, origin url.URL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outURL := origin
		outURL.Path = r.URL.Path
		outURL.RawQuery = r.URL.RawQuery
		req, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		copyHeader(req.Header, r.Header)

		res, err := worker.HandleFetch(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer res.Body.Close()
		copyHeader(w.Header(), res.Header)
		w.WriteHeader(res.StatusCode)
		io.Copy(w, res.Body)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// some servers do not like forwarding headers set by an upstream proxy
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
