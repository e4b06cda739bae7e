// Package mqtt provides broker connectivity for Edgeberry Core.
//
// It wraps paho.mqtt.golang (MQTT 3.1.1) with:
//   - auto-reconnect and subscription restore
//   - a retained presence status with a Last Will
//   - FetchRetained, a "read the retained value" helper built on
//     subscribe / wait / unsubscribe
//
// MQTT 3.1.1 has no content-type or message-expiry properties; callers that
// carry them get them silently dropped at this layer.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.Namespace)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Publish("edgeberry/things/dev-1/methods/post", body, 1, false)
//	resp, err := client.FetchRetained(ctx, "edgeberry/things/dev-1/methods/response/<id>", 0)
package mqtt
