// Package bridge turns device commands ("direct methods") into request/reply
// calls over a publish/subscribe transport.
//
// A call publishes {"name","body","requestId"} to
//
//	<namespace>/things/<deviceId>/methods/post
//
// and waits for the device to publish, retained, a JSON document carrying the
// same requestId on
//
//	<namespace>/things/<deviceId>/methods/response/<requestId>
//
// Two wait strategies exist. Push subscribes once to the response wildcard and
// routes each message to the waiting call by correlation ID. Poll fetches the
// retained response every poll interval and is used when the transport cannot
// subscribe. Either way a watchdog bounds the wait, every call settles exactly
// once, and the retained response is cleared before Invoke returns so that a
// later call cannot see it.
//
// Usage:
//
//	c := bridge.NewCorrelator(transport, bridge.Options{Namespace: "edgeberry"})
//	if err := c.Start(); err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	resp, err := c.Invoke(ctx, "dev-1", "identify", "", 5*time.Second)
//	switch {
//	case errors.Is(err, bridge.ErrTimeout):
//	    // sent, but the device did not answer in time
//	case errors.Is(err, bridge.ErrPublishFailed):
//	    // never sent
//	}
package bridge
