package bridge

// dispatch routes a pushed response to its waiting call. It runs on the
// transport's delivery goroutine and never blocks.
func (c *Correlator) dispatch(topic string, payload []byte) {
	// Our own clears arrive here as empty payloads.
	if len(payload) == 0 {
		return
	}

	deviceID, id, ok := c.topics.ParseResponse(topic)
	if !ok {
		ignoredResponses.WithLabelValues("bad_topic").Inc()
		return
	}

	req, ok := c.pending.get(id)
	if !ok {
		// Retained leftovers from earlier sessions land here on subscribe.
		ignoredResponses.WithLabelValues("unmatched").Inc()
		c.logger.Debug("ignoring response with no pending request", "topic", topic)
		return
	}
	if req.DeviceID != deviceID {
		ignoredResponses.WithLabelValues("foreign").Inc()
		return
	}

	resp, ok := c.match(req, topic, payload)
	if !ok {
		return
	}
	if !req.settle(settlement{outcome: OutcomeSuccess, response: resp, clear: true}) {
		c.logger.Debug("late response dropped", "correlation_id", id)
	}
}
