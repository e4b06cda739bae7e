package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

type fetchLock struct {
	mu   sync.Mutex
	refs int
}

// FetchRetained returns the message currently retained on topic.
//
// MQTT has no "get", so the client subscribes to the exact topic, waits up
// to window for the broker to replay the retained value and unsubscribes.
// ErrNoRetained means nothing (or an empty payload) arrived in time.
// A zero window uses DefaultFetchWindow.
func (c *Client) FetchRetained(ctx context.Context, topic string, window time.Duration) ([]byte, error) {
	if err := ValidatePublishTopic(topic); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultFetchWindow
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	unlock := c.lockFetch(topic)
	defer unlock()

	got := make(chan []byte, 1)
	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		select {
		case got <- msg.Payload():
		default:
		}
	}

	token := c.client.Subscribe(topic, c.QoS(), handler)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	defer c.client.Unsubscribe(topic).WaitTimeout(defaultPublishTimeout)

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case payload := <-got:
		if len(payload) == 0 {
			return nil, ErrNoRetained
		}
		return payload, nil
	case <-timer.C:
		return nil, ErrNoRetained
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lockFetch serialises fetches of one topic and returns the unlock func.
func (c *Client) lockFetch(topic string) func() {
	c.fetchMu.Lock()
	l, ok := c.fetchLocks[topic]
	if !ok {
		l = &fetchLock{}
		c.fetchLocks[topic] = l
	}
	l.refs++
	c.fetchMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.fetchMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.fetchLocks, topic)
		}
		c.fetchMu.Unlock()
	}
}
