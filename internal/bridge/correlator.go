package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Strategy selects how responses are awaited.
type Strategy string

const (
	// StrategyAuto pushes when the transport can subscribe, else polls.
	StrategyAuto Strategy = "auto"
	// StrategyPush requires a Subscriber transport.
	StrategyPush Strategy = "push"
	// StrategyPoll always polls the retained response.
	StrategyPoll Strategy = "poll"
)

// Defaults applied by NewCorrelator to zero Options fields.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultPollInterval  = 300 * time.Millisecond
	DefaultMessageExpiry = 5 * time.Second

	// clearTimeout bounds the retained-response clear after a call settles.
	clearTimeout = 5 * time.Second
)

// Options configures a Correlator.
type Options struct {
	Namespace      string
	DefaultTimeout time.Duration
	PollInterval   time.Duration
	MessageExpiry  time.Duration
	Strategy       Strategy

	// ClearOnTimeout also clears the retained response after a timeout or
	// cancellation, so a reply that arrives late is not left on the broker.
	ClearOnTimeout bool

	Logger   Logger
	Observer Observer
}

// Correlator matches device responses to the calls that caused them.
//
// One Correlator serves every concurrent call on a shared transport.
// Safe for concurrent use.
type Correlator struct {
	transport Transport
	topics    Topics
	opts      Options
	pending   *pendingTable
	logger    Logger
	observer  Observer

	mu      sync.RWMutex
	started bool
	closed  bool
	push    bool
}

// NewCorrelator creates a Correlator. Call Start before the first Invoke to
// enable push delivery; without Start every call polls.
func NewCorrelator(transport Transport, opts Options) *Correlator {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MessageExpiry <= 0 {
		opts.MessageExpiry = DefaultMessageExpiry
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}
	var observer Observer = Observers(nil)
	if opts.Observer != nil {
		observer = opts.Observer
	}

	return &Correlator{
		transport: transport,
		topics:    Topics{Namespace: opts.Namespace},
		opts:      opts,
		pending:   newPendingTable(),
		logger:    logger,
		observer:  observer,
	}
}

// Start picks the wait strategy. With push enabled it subscribes to every
// device's response topic. StrategyAuto falls back to polling when the
// transport cannot subscribe or the subscription fails.
func (c *Correlator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	if c.opts.Strategy == StrategyPoll {
		c.logger.Info("bridge waiting for responses by polling", "interval", c.opts.PollInterval)
		return nil
	}

	sub, ok := c.transport.(Subscriber)
	if !ok {
		if c.opts.Strategy == StrategyPush {
			return ErrSubscribeUnsupported
		}
		c.logger.Info("transport cannot subscribe, polling for responses", "interval", c.opts.PollInterval)
		return nil
	}

	if err := sub.Subscribe(c.topics.AllResponses(), c.dispatch); err != nil {
		if c.opts.Strategy == StrategyPush {
			return fmt.Errorf("subscribing to %s: %w", c.topics.AllResponses(), err)
		}
		c.logger.Warn("response subscription failed, polling instead", "error", err)
		return nil
	}

	c.push = true
	c.logger.Info("bridge waiting for responses by subscription", "topic", c.topics.AllResponses())
	return nil
}

// Close stops accepting calls, settles every pending call with ErrClosed and
// drops the response subscription.
func (c *Correlator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	push := c.push
	c.push = false
	c.mu.Unlock()

	for _, req := range c.pending.snapshot() {
		req.settle(settlement{outcome: OutcomeCanceled, err: ErrClosed})
	}

	if push {
		if sub, ok := c.transport.(Subscriber); ok {
			if err := sub.Unsubscribe(c.topics.AllResponses()); err != nil {
				return fmt.Errorf("unsubscribing from responses: %w", err)
			}
		}
	}
	return nil
}

// Strategy reports the wait strategy in effect.
func (c *Correlator) Strategy() Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.push {
		return StrategyPush
	}
	return StrategyPoll
}

// Pending returns the number of in-flight calls.
func (c *Correlator) Pending() int {
	return c.pending.len()
}

// Topics returns the topic builder in use.
func (c *Correlator) Topics() Topics {
	return c.topics
}

// Invoke sends method to deviceID and waits for the correlated reply.
//
// timeout <= 0 uses the configured default. The call ends in exactly one of:
// a *Response; ErrPublishFailed (never sent); ErrTimeout (sent, no reply in
// time); the context's error; ErrClosed. The retained response is cleared
// before a successful Invoke returns.
func (c *Correlator) Invoke(ctx context.Context, deviceID, method, body string, timeout time.Duration) (*Response, error) {
	if !validSegment(deviceID) {
		return nil, fmt.Errorf("%w: device id %q", ErrInvalidRequest, deviceID)
	}
	if method == "" {
		return nil, fmt.Errorf("%w: method name is empty", ErrInvalidRequest)
	}
	if timeout <= 0 {
		timeout = c.opts.DefaultTimeout
	}

	c.mu.RLock()
	closed, push := c.closed, c.push
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	req := newPendingRequest(NewCorrelationID(), deviceID, method, body, timeout)
	cmd := c.buildCommand(req)
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	// Register before publishing so a fast reply always finds its request.
	if err := c.pending.add(req); err != nil {
		return nil, err
	}
	pendingGauge.Inc()

	c.logger.Debug("publishing command",
		"device_id", deviceID,
		"method", method,
		"correlation_id", req.CorrelationID,
		"topic", cmd.Topic,
	)

	err = c.transport.Publish(ctx, cmd.Topic, payload, PublishOptions{
		ContentType: ContentTypeJSON,
		Expiry:      c.opts.MessageExpiry,
	})
	if err != nil {
		req.settle(settlement{
			outcome: OutcomePublishFailed,
			err:     fmt.Errorf("%w: %w", ErrPublishFailed, err),
		})
		return c.finish(ctx, req, <-req.done)
	}

	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()

	if !push {
		go c.poll(waitCtx, req)
	}
	wd := startWatchdog(req, c.opts.ClearOnTimeout, stopWait)
	stopCancelWatch := context.AfterFunc(ctx, func() {
		req.settle(settlement{
			outcome: OutcomeCanceled,
			err:     fmt.Errorf("bridge: waiting for %s on %s: %w", method, deviceID, ctx.Err()),
			clear:   c.opts.ClearOnTimeout,
		})
	})

	s := <-req.done
	wd.stop()
	stopCancelWatch()
	stopWait()

	return c.finish(ctx, req, s)
}

func (c *Correlator) buildCommand(req *PendingRequest) Command {
	return Command{
		Topic: c.topics.Command(req.DeviceID),
		Payload: CommandPayload{
			Name:      req.Method,
			Body:      req.Body,
			RequestID: req.CorrelationID,
		},
	}
}

// finish tears the request down after it settled: unregister, clear the
// retained response if asked, record the outcome.
func (c *Correlator) finish(ctx context.Context, req *PendingRequest, s settlement) (*Response, error) {
	c.pending.remove(req.CorrelationID)
	pendingGauge.Dec()

	if s.clear {
		c.clearResponse(ctx, req)
	}

	elapsed := time.Since(req.IssuedAt)
	commandsTotal.WithLabelValues(string(s.outcome)).Inc()
	commandDuration.WithLabelValues(string(s.outcome)).Observe(elapsed.Seconds())

	logArgs := []any{
		"device_id", req.DeviceID,
		"method", req.Method,
		"correlation_id", req.CorrelationID,
		"outcome", s.outcome,
		"duration", elapsed,
	}
	switch s.outcome {
	case OutcomeSuccess:
		c.logger.Debug("command answered", logArgs...)
	case OutcomePublishFailed:
		c.logger.Warn("command publish failed", append(logArgs, "error", s.err)...)
	default:
		c.logger.Info("command not answered", append(logArgs, "error", s.err)...)
	}

	c.observer.CommandCompleted(Completed{
		DeviceID:      req.DeviceID,
		Method:        req.Method,
		CorrelationID: req.CorrelationID,
		Outcome:       s.outcome,
		Response:      s.response,
		Err:           s.err,
		Duration:      elapsed,
		FinishedAt:    time.Now(),
	})

	return s.response, s.err
}

// clearResponse deletes the retained response with a zero-length retained
// publish. Failure is logged; it does not change the call's outcome.
func (c *Correlator) clearResponse(ctx context.Context, req *PendingRequest) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	topic := c.topics.Response(req.DeviceID, req.CorrelationID)
	if err := c.transport.Publish(clearCtx, topic, nil, PublishOptions{Retain: true}); err != nil {
		clearFailures.Inc()
		c.logger.Warn("clearing retained response failed",
			"device_id", req.DeviceID,
			"correlation_id", req.CorrelationID,
			"error", err,
		)
	}
}

// match checks a payload seen on req's response topic and builds the
// Response when the requestId is req's.
func (c *Correlator) match(req *PendingRequest, topic string, payload []byte) (*Response, bool) {
	if len(payload) == 0 {
		return nil, false
	}

	var env responseEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		ignoredResponses.WithLabelValues("malformed").Inc()
		c.logger.Debug("ignoring malformed response", "topic", topic, "error", err)
		return nil, false
	}
	if env.RequestID != req.CorrelationID {
		ignoredResponses.WithLabelValues("foreign").Inc()
		c.logger.Debug("ignoring foreign response",
			"topic", topic,
			"want", req.CorrelationID,
			"got", env.RequestID,
		)
		return nil, false
	}

	return &Response{
		Topic:         topic,
		DeviceID:      req.DeviceID,
		CorrelationID: req.CorrelationID,
		Payload:       json.RawMessage(append([]byte(nil), payload...)),
		ReceivedAt:    time.Now(),
	}, true
}

// IsTimeout reports whether err is a bridge timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
