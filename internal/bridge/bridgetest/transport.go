// Package bridgetest provides an in-memory broker for exercising the bridge
// without a network.
//
//	tr := bridgetest.New("edgeberry")
//	tr.AutoRespond(func(deviceID string, cmd bridge.CommandPayload) []byte {
//		return bridgetest.Reply(cmd.RequestID, 200, "ok")
//	})
//	c := bridge.NewCorrelator(tr, bridge.Options{})
package bridgetest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/mqtt"
)

// Message is one recorded publish.
type Message struct {
	Topic   string
	Payload []byte
	Options bridge.PublishOptions
	At      time.Time
}

// Responder builds a device reply for a command. A nil return sends nothing.
type Responder func(deviceID string, cmd bridge.CommandPayload) []byte

// Transport is an in-memory bridge.Transport and bridge.Subscriber with
// retained-message semantics. Safe for concurrent use.
type Transport struct {
	namespace string

	mu        sync.Mutex
	retained  map[string][]byte
	published []Message
	fetches   map[string]int
	subs      map[string]func(topic string, payload []byte)

	publishHook  func(Message) error
	fetchErr     error
	subscribeErr error
	responder    Responder
	respondDelay time.Duration
}

// New creates a Transport for the given namespace ("" means the default).
func New(namespace string) *Transport {
	if namespace == "" {
		namespace = bridge.DefaultNamespace
	}
	return &Transport{
		namespace: namespace,
		retained:  make(map[string][]byte),
		fetches:   make(map[string]int),
		subs:      make(map[string]func(string, []byte)),
	}
}

// Publish implements bridge.Transport.
func (t *Transport) Publish(_ context.Context, topic string, payload []byte, opts bridge.PublishOptions) error {
	msg := Message{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
		Options: opts,
		At:      time.Now(),
	}

	t.mu.Lock()
	hook := t.publishHook
	t.mu.Unlock()
	if hook != nil {
		if err := hook(msg); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.published = append(t.published, msg)
	if opts.Retain {
		if len(payload) == 0 {
			delete(t.retained, topic)
		} else {
			t.retained[topic] = msg.Payload
		}
	}
	responder, delay := t.responder, t.respondDelay
	t.mu.Unlock()

	t.deliver(topic, msg.Payload)

	if responder != nil {
		t.respond(topic, msg.Payload, responder, delay)
	}
	return nil
}

// FetchRetained implements bridge.Transport.
func (t *Transport) FetchRetained(ctx context.Context, topic string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.fetches[topic]++
	if t.fetchErr != nil {
		return nil, t.fetchErr
	}
	payload, ok := t.retained[topic]
	if !ok {
		return nil, bridge.ErrNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Subscribe implements bridge.Subscriber.
func (t *Transport) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	t.mu.Lock()
	if t.subscribeErr != nil {
		err := t.subscribeErr
		t.mu.Unlock()
		return err
	}
	t.subs[filter] = handler

	var replay []Message
	for topic, payload := range t.retained {
		if mqtt.TopicMatches(filter, topic) {
			replay = append(replay, Message{Topic: topic, Payload: payload})
		}
	}
	t.mu.Unlock()

	// A broker sends matching retained messages on subscribe.
	for _, m := range replay {
		handler(m.Topic, m.Payload)
	}
	return nil
}

// Unsubscribe implements bridge.Subscriber.
func (t *Transport) Unsubscribe(filter string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, filter)
	return nil
}

// Inject publishes payload as a retained message, as a device would.
func (t *Transport) Inject(topic string, payload []byte) {
	t.mu.Lock()
	t.retained[topic] = append([]byte(nil), payload...)
	t.mu.Unlock()

	t.deliver(topic, payload)
}

// InjectAfter calls Inject after d.
func (t *Transport) InjectAfter(d time.Duration, topic string, payload []byte) {
	time.AfterFunc(d, func() { t.Inject(topic, payload) })
}

// AutoRespond makes every command publish trigger fn's reply on the
// matching response topic.
func (t *Transport) AutoRespond(fn Responder) {
	t.AutoRespondAfter(0, fn)
}

// AutoRespondAfter is AutoRespond with the reply delayed by d.
func (t *Transport) AutoRespondAfter(d time.Duration, fn Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
	t.respondDelay = d
}

// FailPublish installs a hook that can reject publishes. Return nil to let
// a message through. Pass nil to remove the hook.
func (t *Transport) FailPublish(hook func(Message) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishHook = hook
}

// FailFetch makes every FetchRetained return err. nil restores normal behaviour.
func (t *Transport) FailFetch(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchErr = err
}

// FailSubscribe makes Subscribe return err.
func (t *Transport) FailSubscribe(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribeErr = err
}

// Published returns every accepted publish in order.
func (t *Transport) Published() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.published...)
}

// PublishedTo returns the accepted publishes on topic.
func (t *Transport) PublishedTo(topic string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Message
	for _, m := range t.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Commands decodes every command published to deviceID.
func (t *Transport) Commands(deviceID string) []bridge.CommandPayload {
	topic := bridge.Topics{Namespace: t.namespace}.Command(deviceID)

	var out []bridge.CommandPayload
	for _, m := range t.PublishedTo(topic) {
		var cmd bridge.CommandPayload
		if err := json.Unmarshal(m.Payload, &cmd); err == nil {
			out = append(out, cmd)
		}
	}
	return out
}

// Retained returns the retained payload on topic.
func (t *Transport) Retained(topic string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.retained[topic]
	return p, ok
}

// Fetches returns how often topic was fetched.
func (t *Transport) Fetches(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetches[topic]
}

// TotalFetches returns the number of FetchRetained calls on any topic.
func (t *Transport) TotalFetches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.fetches {
		n += c
	}
	return n
}

// SubscriptionCount returns the number of active filters.
func (t *Transport) SubscriptionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// PollOnly hides Subscribe so the bridge must poll.
func (t *Transport) PollOnly() bridge.Transport {
	return pollOnly{t}
}

type pollOnly struct {
	t *Transport
}

func (p pollOnly) Publish(ctx context.Context, topic string, payload []byte, opts bridge.PublishOptions) error {
	return p.t.Publish(ctx, topic, payload, opts)
}

func (p pollOnly) FetchRetained(ctx context.Context, topic string) ([]byte, error) {
	return p.t.FetchRetained(ctx, topic)
}

func (t *Transport) deliver(topic string, payload []byte) {
	t.mu.Lock()
	var handlers []func(string, []byte)
	for filter, h := range t.subs {
		if mqtt.TopicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// respond answers a command publish through the installed Responder.
func (t *Transport) respond(topic string, payload []byte, fn Responder, delay time.Duration) {
	prefix := t.namespace + "/things/"
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return
	}
	deviceID, ok := strings.CutSuffix(rest, "/methods/post")
	if !ok || strings.Contains(deviceID, "/") {
		return
	}

	var cmd bridge.CommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return
	}
	reply := fn(deviceID, cmd)
	if reply == nil {
		return
	}

	respTopic := bridge.Topics{Namespace: t.namespace}.Response(deviceID, cmd.RequestID)
	if delay <= 0 {
		go t.Inject(respTopic, reply)
		return
	}
	t.InjectAfter(delay, respTopic, reply)
}

// Reply builds a device response document.
func Reply(requestID string, status int, message string) []byte {
	b, _ := json.Marshal(map[string]any{
		"requestId": requestID,
		"status":    status,
		"message":   message,
	})
	return b
}
