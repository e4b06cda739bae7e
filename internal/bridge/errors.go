package bridge

import "errors"

var (
	// ErrPublishFailed means the command never left: the transport rejected
	// the publish. No wait was started.
	ErrPublishFailed = errors.New("bridge: command publish failed")

	// ErrNotFound is returned by Transport.FetchRetained when the topic holds
	// no retained message. The poller treats it as "not yet".
	ErrNotFound = errors.New("bridge: no retained message")

	// ErrTimeout means the command was sent but no matching response arrived
	// before the deadline.
	ErrTimeout = errors.New("bridge: timed out waiting for device response")

	// ErrInvalidRequest is returned for an empty or non-topic-safe device ID
	// or an empty method name. The method name travels in the payload, so any
	// other string is accepted.
	ErrInvalidRequest = errors.New("bridge: invalid request")

	// ErrClosed is returned by Invoke after Close.
	ErrClosed = errors.New("bridge: correlator closed")

	// ErrSubscribeUnsupported is returned by Start when push delivery was
	// required but the transport cannot subscribe.
	ErrSubscribeUnsupported = errors.New("bridge: transport does not support subscribe")
)
