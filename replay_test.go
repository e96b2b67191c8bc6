package edgeworker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/always-cache/edge-worker/queue"
)

func TestReplayPostsKnownKindsAndClearsQueue(t *testing.T) {
	posts := make(map[string][]string)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		posts[r.URL.Path] = append(posts[r.URL.Path], string(body))
	}))
	defer ts.Close()
	store := queue.NewMemoryStore()
	w := testWorker(t, Config{OriginURL: originOf(t, ts), Queue: store})

	if err := w.Enqueue(SubmissionKindContact, []byte(`{"name":"Lee"}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Enqueue("newsletter", []byte(`{"email":"a@b.c"}`)); err != nil {
		t.Fatal(err)
	}

	if err := w.HandleSync(context.Background(), SyncTagLeadSubmission); err != nil {
		t.Fatal(err)
	}

	if got := posts["/api/contact"]; len(got) != 1 || got[0] != `{"name":"Lee"}` {
		t.Fatalf("Contact posts: %v", got)
	}
	if total := len(posts); total != 1 {
		t.Fatalf("Posted to %d endpoints: %v", total, posts)
	}
	if subs, _ := store.All(); len(subs) != 0 {
		t.Fatalf("Queue still holds %d submissions", len(subs))
	}
}

func TestReplayIgnoresOtherTags(t *testing.T) {
	var handleCount int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
	}))
	defer ts.Close()
	store := queue.NewMemoryStore()
	w := testWorker(t, Config{OriginURL: originOf(t, ts), Queue: store})

	if err := w.Enqueue(SubmissionKindValuation, []byte(`{"acres":12}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleSync(context.Background(), "newsletter-sync"); err != nil {
		t.Fatal(err)
	}

	if handleCount != 0 {
		t.Fatalf("Origin handled %d requests", handleCount)
	}
	if subs, _ := store.All(); len(subs) != 1 {
		t.Fatalf("Queue holds %d submissions", len(subs))
	}
}

func TestReplayClearsQueueEvenWhenPostsFail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	origin := originOf(t, ts)
	ts.Close()
	store := queue.NewMemoryStore()
	w := testWorker(t, Config{OriginURL: origin, Queue: store})

	if err := w.Enqueue(SubmissionKindContact, []byte(`{"name":"Lee"}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleSync(context.Background(), SyncTagLeadSubmission); err != nil {
		t.Fatal(err)
	}

	// delivery is at-most-once per reconnect: the queue is gone even
	// though the post never made it
	if subs, _ := store.All(); len(subs) != 0 {
		t.Fatalf("Queue still holds %d submissions", len(subs))
	}
}
