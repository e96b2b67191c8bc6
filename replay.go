package edgeworker

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/always-cache/edge-worker/queue"
)

// SyncTagLeadSubmission is the only reconnect-signal tag the worker
// recognizes.
const SyncTagLeadSubmission = "lead-submission"

// Submission kinds with a known replay endpoint.
const (
	SubmissionKindValuation = "valuation"
	SubmissionKindContact   = "contact-form"
)

// Enqueue persists a lead submission that could not be delivered, so
// the next reconnect signal replays it.
func (w *Worker) Enqueue(kind string, payload []byte) error {
	sub := queue.NewSubmission(kind, payload)
	w.log.Debug().Str("kind", kind).Str("id", sub.ID).Msg("Queueing submission")
	return w.queue.Append(sub)
}

// HandleSync replays the pending-submission queue in response to a
// reconnect signal. Only the lead-submission tag is acted on. Each
// queued entry of a known kind is POSTed to its endpoint; unknown
// kinds are skipped. The queue is cleared in full once the pass
// completes, whether or not individual replays succeeded: delivery is
// at-most-once per reconnect.
func (w *Worker) HandleSync(ctx context.Context, tag string) error {
	if tag != SyncTagLeadSubmission {
		w.log.Trace().Str("tag", tag).Msg("Ignoring sync tag")
		return nil
	}

	subs, err := w.queue.All()
	if err != nil {
		return err
	}
	w.log.Info().Int("pending", len(subs)).Msg("Replaying queued submissions")

	for _, sub := range subs {
		endpoint, ok := w.endpoints[sub.Kind]
		if !ok {
			w.log.Debug().Str("kind", sub.Kind).Str("id", sub.ID).Msg("Skipping unknown submission kind")
			continue
		}
		w.replay(ctx, sub, endpoint)
	}

	return w.queue.Clear()
}

func (w *Worker) replay(ctx context.Context, sub queue.Submission, endpoint string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(sub.Payload))
	if err != nil {
		w.log.Error().Err(err).Str("id", sub.ID).Msg("Could not build replay request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.fetch.Do(req)
	if err != nil {
		w.log.Error().Err(err).Str("id", sub.ID).Str("kind", sub.Kind).Msg("Replay failed")
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	w.log.Info().
		Str("id", sub.ID).
		Str("kind", sub.Kind).
		Int("status", res.StatusCode).
		Msg("Replayed submission")
}
