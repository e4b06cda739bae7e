package bridge

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
)

// Transport is the publish / retained-fetch pair the bridge needs.
type Transport interface {
	// Publish sends payload to topic. A retained publish with an empty
	// payload deletes the retained message.
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error

	// FetchRetained returns the retained payload on topic, or ErrNotFound.
	FetchRetained(ctx context.Context, topic string) ([]byte, error)
}

// Subscriber is implemented by transports that can push messages.
// Handlers must not block.
type Subscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// PublishOptions carries per-message properties. Transports that cannot
// express ContentType or Expiry ignore them.
type PublishOptions struct {
	Retain      bool
	ContentType string
	Expiry      time.Duration
}

// ContentTypeJSON is set on every command publish.
const ContentTypeJSON = "application/json"

// CommandPayload is the wire format devices expect on the command topic.
type CommandPayload struct {
	Name      string `json:"name"`
	Body      string `json:"body"`
	RequestID string `json:"requestId"`
}

// Command is one outbound device command. Built per call, never reused.
type Command struct {
	Topic   string
	Payload CommandPayload
}

// Response is a device reply matched to a call.
type Response struct {
	Topic         string
	DeviceID      string
	CorrelationID string

	// Payload is the device's JSON document, untouched.
	Payload json.RawMessage

	ReceivedAt time.Time
}

// Decode unmarshals the device payload into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// Status returns the numeric "status" field of the payload, if the device sent one.
func (r *Response) Status() (int, bool) {
	var reply struct {
		Status *int `json:"status"`
	}
	if err := json.Unmarshal(r.Payload, &reply); err != nil || reply.Status == nil {
		return 0, false
	}
	return *reply.Status, true
}

// responseEnvelope is the only part of a response the bridge reads.
type responseEnvelope struct {
	RequestID string `json:"requestId"`
}

// PendingRequest is one in-flight call, owned by the Correlator from
// registration until it settles.
type PendingRequest struct {
	CorrelationID string
	DeviceID      string
	Method        string
	Body          string
	IssuedAt      time.Time
	Timeout       time.Duration

	settled atomic.Bool
	done    chan settlement
}

// settlement is the single terminal result of a PendingRequest.
type settlement struct {
	outcome  Outcome
	response *Response
	err      error

	// clear asks the Correlator to delete the retained response.
	clear bool
}

func newPendingRequest(id, deviceID, method, body string, timeout time.Duration) *PendingRequest {
	return &PendingRequest{
		CorrelationID: id,
		DeviceID:      deviceID,
		Method:        method,
		Body:          body,
		IssuedAt:      time.Now(),
		Timeout:       timeout,
		done:          make(chan settlement, 1),
	}
}

// settle records s as the outcome if nothing else has. The first caller
// wins; later callers get false and their result is dropped.
func (p *PendingRequest) settle(s settlement) bool {
	if !p.settled.CompareAndSwap(false, true) {
		return false
	}
	p.done <- s
	return true
}

// Settled reports whether the request has reached a terminal outcome.
func (p *PendingRequest) Settled() bool {
	return p.settled.Load()
}

// Outcome names how a call ended.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeTimeout       Outcome = "timeout"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomeCanceled      Outcome = "canceled"
)

// Completed describes a finished call for observers.
type Completed struct {
	DeviceID      string
	Method        string
	CorrelationID string
	Outcome       Outcome
	Response      *Response // nil unless Outcome is OutcomeSuccess
	Err           error
	Duration      time.Duration
	FinishedAt    time.Time
}

// Observer is told about every finished call. Implementations must not block.
type Observer interface {
	CommandCompleted(c Completed)
}

// Observers fans a completion out to several observers.
type Observers []Observer

// CommandCompleted implements Observer.
func (o Observers) CommandCompleted(c Completed) {
	for _, obs := range o {
		if obs != nil {
			obs.CommandCompleted(c)
		}
	}
}

// Logger is satisfied by logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
