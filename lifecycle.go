package edgeworker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/always-cache/edge-worker/cache"
	snapshot "github.com/always-cache/edge-worker/pkg/response-snapshot"
)

// State is the lifecycle phase of one worker generation.
type State int

const (
	// StateInstalling: the precache manifest has not been fully stored yet.
	StateInstalling State = iota
	// StateActivating: install succeeded, waiting to take control.
	StateActivating
	// StateActive: stale partitions are gone and the worker controls
	// its scope.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Install fetches every asset in the precache manifest and stores the
// batch into this version's static partition. The batch is atomic: if
// any single fetch fails or returns a non-success status, nothing is
// written, the worker stays in the Installing state and the previous
// generation's partitions remain untouched.
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateInstalling {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("install not allowed in state %s", state)
	}
	if w.installing {
		w.mu.Unlock()
		return fmt.Errorf("install already in progress")
	}
	w.installing = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.installing = false
		w.mu.Unlock()
	}()

	w.log.Info().Int("assets", len(w.precache)).Msg("Installing")

	// fetch everything before writing anything
	entries := make([]cache.Entry, 0, len(w.precache))
	for _, asset := range w.precache {
		assetURL := w.origin.JoinPath(asset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL.String(), nil)
		if err != nil {
			return fmt.Errorf("install: bad manifest asset %q: %w", asset, err)
		}
		res, err := w.fetch.Do(req)
		if err != nil {
			return fmt.Errorf("install: could not fetch %q: %w", asset, err)
		}
		if !isSuccess(res.StatusCode) {
			res.Body.Close()
			return fmt.Errorf("install: fetching %q returned status %d", asset, res.StatusCode)
		}
		bts, err := snapshot.Marshal(res)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("install: could not snapshot %q: %w", asset, err)
		}
		entries = append(entries, cache.Entry{
			Key:      cache.Key(req),
			StoredAt: time.Now(),
			Bytes:    bts,
		})
	}

	for _, entry := range entries {
		if err := w.cache.Put(w.staticName, entry); err != nil {
			// a half-written batch must not survive a failed install
			if delErr := w.cache.Delete(w.staticName); delErr != nil {
				w.log.Error().Err(delErr).Msg("Could not clean up partial install")
			}
			return fmt.Errorf("install: could not store %q: %w", entry.Key, err)
		}
	}

	w.mu.Lock()
	w.state = StateActivating
	w.mu.Unlock()
	w.log.Info().Msg("Install complete")
	return nil
}

// Activate deletes every partition that does not belong to this
// version and moves the worker into the Active state, at which point
// it takes control of its scope. Stale-generation partitions never
// survive a completed activation.
//
// Activation requires a completed install: a generation whose install
// failed must never take over, since its cleanup pass would delete the
// partitions the previous generation is still serving from.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateInstalling {
		w.mu.Unlock()
		return fmt.Errorf("activate not allowed before a completed install")
	}
	w.mu.Unlock()

	names, err := w.cache.Names()
	if err != nil {
		return fmt.Errorf("activate: could not list partitions: %w", err)
	}
	for _, name := range names {
		if name == w.staticName || name == w.dynamicName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.log.Info().Str("partition", name).Msg("Deleting stale partition")
		if err := w.cache.Delete(name); err != nil {
			return fmt.Errorf("activate: could not delete partition %q: %w", name, err)
		}
	}

	w.mu.Lock()
	w.state = StateActive
	w.mu.Unlock()
	w.log.Info().Msg("Activated")
	return nil
}

// CacheStats returns the entry count of every partition currently in
// the provider, keyed by partition name.
func (w *Worker) CacheStats() (map[string]int, error) {
	names, err := w.cache.Names()
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(names))
	for _, name := range names {
		count, err := w.cache.Count(name)
		if err != nil {
			return nil, err
		}
		stats[name] = count
	}
	return stats, nil
}
