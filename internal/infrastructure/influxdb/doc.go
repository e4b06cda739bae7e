// Package influxdb records device command history in InfluxDB.
//
// Two measurements are written:
//   - direct_method: one point per finished call (device, method, outcome, latency)
//   - claim: one point per claim or release attempt
//
// It wraps influxdb-client-go v2 with non-blocking batched writes; batch size
// and flush interval come from the influxdb config section. Writes on a
// closed or disconnected client are dropped.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	client.WriteCommandMetric(influxdb.CommandSample{DeviceID: "dev-1", Method: "identify", Outcome: "success"})
package influxdb
