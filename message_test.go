package edgeworker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/always-cache/edge-worker/cache"
)

func TestSkipWaitingActivatesImmediately(t *testing.T) {
	provider := cache.NewMemoryProvider()
	entry := cache.Entry{Key: "https://www.example.com/", StoredAt: time.Now(), Bytes: []byte("x")}
	if err := provider.Put("static-v1", entry); err != nil {
		t.Fatal(err)
	}
	w := testWorker(t, Config{Cache: provider, Version: "v2"})
	if err := w.Install(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := w.HandleMessage(context.Background(), Message{Type: MessageSkipWaiting})
	if err != nil {
		t.Fatal(err)
	}
	if state := w.State(); state != StateActive {
		t.Fatalf("State after skip-waiting is %s", state)
	}
	names, _ := provider.Names()
	if len(names) != 0 {
		t.Fatalf("Stale partitions survived: %v", names)
	}
}

func TestSkipWaitingRefusedAfterFailedInstall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.css" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("asset " + r.URL.Path))
	}))
	defer ts.Close()
	origin := originOf(t, ts)
	provider := cache.NewMemoryProvider()

	v1 := testWorker(t, Config{
		OriginURL: origin,
		Cache:     provider,
		Version:   "v1",
		Precache:  []string{"/"},
	})
	if err := v1.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := v1.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}

	v2 := testWorker(t, Config{
		OriginURL: origin,
		Cache:     provider,
		Version:   "v2",
		Precache:  []string{"/", "/missing.css"},
	})
	if err := v2.Install(context.Background()); err == nil {
		t.Fatal("Expected install to fail")
	}

	// a generation that failed to install must not be able to force a
	// takeover and delete its predecessor's partitions
	err := v2.HandleMessage(context.Background(), Message{Type: MessageSkipWaiting})
	if err == nil {
		t.Fatal("Expected skip-waiting to be refused")
	}
	if state := v2.State(); state != StateInstalling {
		t.Fatalf("State after refused skip-waiting is %s", state)
	}
	names, _ := provider.Names()
	if want := []string{"static-v1"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("Partitions are %v", names)
	}
}

func TestGetCacheStatsRepliesWithEntryCounts(t *testing.T) {
	provider := cache.NewMemoryProvider()
	for i, key := range []string{"/a", "/b", "/c"} {
		partition := "static-v1"
		if i == 2 {
			partition = "dynamic-v1"
		}
		entry := cache.Entry{Key: key, StoredAt: time.Now(), Bytes: []byte("x")}
		if err := provider.Put(partition, entry); err != nil {
			t.Fatal(err)
		}
	}
	w := testWorker(t, Config{Cache: provider})

	reply := make(chan map[string]int, 1)
	err := w.HandleMessage(context.Background(), Message{Type: MessageGetCacheStats, Reply: reply})
	if err != nil {
		t.Fatal(err)
	}
	stats := <-reply
	if stats["static-v1"] != 2 || stats["dynamic-v1"] != 1 {
		t.Fatalf("Stats are %v", stats)
	}
}

func TestUnknownMessageIgnored(t *testing.T) {
	w := testWorker(t, Config{})
	if err := w.HandleMessage(context.Background(), Message{Type: "REFRESH"}); err != nil {
		t.Fatal(err)
	}
	if state := w.State(); state != StateInstalling {
		t.Fatalf("Unknown message changed state to %s", state)
	}
}
