package bridge

import (
	"context"
	"errors"
	"time"
)

// poll fetches req's retained response every poll interval until it finds
// the matching requestId or ctx ends. The first fetch happens one interval
// after the publish.
func (c *Correlator) poll(ctx context.Context, req *PendingRequest) {
	topic := c.topics.Response(req.DeviceID, req.CorrelationID)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if req.Settled() {
			return
		}

		payload, err := c.transport.FetchRetained(ctx, topic)
		switch {
		case errors.Is(err, ErrNotFound):
			pollFetches.WithLabelValues("not_found").Inc()
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			pollFetches.WithLabelValues("error").Inc()
			c.logger.Debug("retained fetch failed, retrying",
				"topic", topic,
				"error", err,
			)
			continue
		}
		pollFetches.WithLabelValues("found").Inc()

		resp, ok := c.match(req, topic, payload)
		if !ok {
			continue
		}

		// Losing the race to the watchdog drops the late match.
		if !req.settle(settlement{outcome: OutcomeSuccess, response: resp, clear: true}) {
			c.logger.Debug("late response dropped", "correlation_id", req.CorrelationID)
		}
		return
	}
}
