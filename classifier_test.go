package edgeworker

import (
	"net/http"
	"testing"
)

func classify(t *testing.T, method, url string) Strategy {
	t.Helper()
	c := DefaultClassifier("www.example.com")
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c.Classify(req)
}

func TestClassifierPassesThroughWrites(t *testing.T) {
	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH", "HEAD"} {
		if s := classify(t, method, "https://www.example.com/api/contact"); s != StrategyPassThrough {
			t.Fatalf("%s classified as %s", method, s)
		}
	}
}

func TestClassifierAPIPrefix(t *testing.T) {
	if s := classify(t, "GET", "https://www.example.com/api/listings"); s != StrategyNetworkFirst {
		t.Fatalf("API path classified as %s", s)
	}
}

func TestClassifierAPIBeatsAnalyticsHost(t *testing.T) {
	// a URL matching both the API rule and the analytics rule must be
	// routed by the earlier API rule
	if s := classify(t, "GET", "https://www.google-analytics.com/api/listings"); s != StrategyNetworkFirst {
		t.Fatalf("API path on analytics host classified as %s", s)
	}
}

func TestClassifierAnalyticsHost(t *testing.T) {
	if s := classify(t, "GET", "https://www.google-analytics.com/collect?v=1"); s != StrategyNetworkOnly {
		t.Fatalf("Analytics url classified as %s", s)
	}
}

func TestClassifierHealthProbeNotCached(t *testing.T) {
	if s := classify(t, "GET", "https://www.example.com/api/health"); s != StrategyNetworkOnly {
		t.Fatalf("Health probe classified as %s", s)
	}
}

func TestClassifierStaticAssets(t *testing.T) {
	for _, url := range []string{
		"https://www.example.com/css/site.css",
		"https://www.example.com/js/app.js",
		"https://www.example.com/img/logo.svg",
		"https://www.example.com/fonts/body.woff2",
	} {
		if s := classify(t, "GET", url); s != StrategyCacheFirst {
			t.Fatalf("%s classified as %s", url, s)
		}
	}
}

func TestClassifierExternalFontProvider(t *testing.T) {
	if s := classify(t, "GET", "https://fonts.googleapis.com/css2?family=Roboto"); s != StrategyStaleWhileRevalidate {
		t.Fatalf("External font url classified as %s", s)
	}
}

func TestClassifierUnknownExternalHostFallsBack(t *testing.T) {
	if s := classify(t, "GET", "https://cdn.unknown.example/widget"); s != StrategyNetworkFirst {
		t.Fatalf("Unknown host classified as %s", s)
	}
}

func TestClassifierNavigationFallback(t *testing.T) {
	if s := classify(t, "GET", "https://www.example.com/about"); s != StrategyNetworkFirst {
		t.Fatalf("Navigation classified as %s", s)
	}
}
