package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommand = "direct_method"
	MeasurementClaim   = "claim"
)

// CommandSample describes one finished direct method call.
type CommandSample struct {
	DeviceID string
	Method   string
	Outcome  string // "success", "timeout", "publish_failed"
	Status   int    // device status code; 0 when no response arrived
	Duration time.Duration
	At       time.Time
}

// WriteCommandMetric records a direct method call.
//
// Tags are low-cardinality (method, outcome) plus the device ID; the
// correlation ID is deliberately not stored.
func (c *Client) WriteCommandMetric(s CommandSample) {
	fields := map[string]any{
		"duration_ms": float64(s.Duration.Microseconds()) / 1000,
	}
	if s.Status != 0 {
		fields["status"] = s.Status
	}
	c.WritePointWithTime(MeasurementCommand,
		map[string]string{
			"device_id": s.DeviceID,
			"method":    s.Method,
			"outcome":   s.Outcome,
		},
		fields,
		orNow(s.At),
	)
}

// WriteClaimEvent records a claim or release attempt and its result.
func (c *Client) WriteClaimEvent(deviceID, action, result string, at time.Time) {
	c.WritePointWithTime(MeasurementClaim,
		map[string]string{
			"device_id": deviceID,
			"action":    action,
			"result":    result,
		},
		map[string]any{"count": 1},
		orNow(at),
	)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point. Dropped silently when disconnected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
