package edgeworker

import "context"

// Control message types recognized by HandleMessage.
const (
	// MessageSkipWaiting forces an immediate version takeover,
	// bypassing the default upgrade delay.
	MessageSkipWaiting = "SKIP_WAITING"
	// MessageGetCacheStats requests the partition entry counts,
	// delivered on the message's reply channel.
	MessageGetCacheStats = "GET_CACHE_STATS"
)

// Message is an externally posted control message.
type Message struct {
	Type string
	// Reply receives the answer for request-reply message types.
	Reply chan<- map[string]int
}

// HandleMessage processes one control message. Unrecognized types are
// logged and ignored, never an error.
func (w *Worker) HandleMessage(ctx context.Context, m Message) error {
	switch m.Type {
	case MessageSkipWaiting:
		w.log.Info().Msg("Skip-waiting requested, activating now")
		return w.Activate(ctx)
	case MessageGetCacheStats:
		stats, err := w.CacheStats()
		if err != nil {
			return err
		}
		if m.Reply == nil {
			return nil
		}
		select {
		case m.Reply <- stats:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	default:
		w.log.Debug().Str("type", m.Type).Msg("Ignoring unknown message type")
		return nil
	}
}
