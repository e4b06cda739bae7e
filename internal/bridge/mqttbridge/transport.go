// Package mqttbridge adapts the shared MQTT client to bridge.Transport.
//
// paho speaks MQTT 3.1.1, which has no content-type or message-expiry
// properties; PublishOptions.ContentType and Expiry are dropped here.
package mqttbridge

import (
	"context"
	"errors"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/mqtt"
)

// Client is the subset of *mqtt.Client the transport uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	FetchRetained(ctx context.Context, topic string, window time.Duration) ([]byte, error)
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Transport implements bridge.Transport and bridge.Subscriber over MQTT.
type Transport struct {
	client Client
	window time.Duration
}

// New wraps client. fetchWindow bounds each retained fetch; zero uses
// mqtt.DefaultFetchWindow.
func New(client Client, fetchWindow time.Duration) *Transport {
	if fetchWindow <= 0 {
		fetchWindow = mqtt.DefaultFetchWindow
	}
	return &Transport{client: client, window: fetchWindow}
}

// Publish implements bridge.Transport.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, opts bridge.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.client.Publish(topic, payload, t.client.QoS(), opts.Retain)
}

// FetchRetained implements bridge.Transport.
func (t *Transport) FetchRetained(ctx context.Context, topic string) ([]byte, error) {
	payload, err := t.client.FetchRetained(ctx, topic, t.window)
	if errors.Is(err, mqtt.ErrNoRetained) {
		return nil, bridge.ErrNotFound
	}
	return payload, err
}

// Subscribe implements bridge.Subscriber.
func (t *Transport) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	return t.client.Subscribe(topic, t.client.QoS(), func(topic string, payload []byte) error {
		handler(topic, payload)
		return nil
	})
}

// Unsubscribe implements bridge.Subscriber.
func (t *Transport) Unsubscribe(topic string) error {
	return t.client.Unsubscribe(topic)
}

var (
	_ bridge.Transport  = (*Transport)(nil)
	_ bridge.Subscriber = (*Transport)(nil)
)
