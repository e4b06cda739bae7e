// Package telemetry forwards bridge and claim outcomes to the time-series
// store.
package telemetry

import (
	"time"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/influxdb"
)

// Writer is the part of *influxdb.Client the sink uses.
type Writer interface {
	WriteCommandMetric(s influxdb.CommandSample)
	WriteClaimEvent(deviceID, action, result string, at time.Time)
}

// Sink implements bridge.Observer and claim.Observer. The influx client
// batches writes, so both callbacks return immediately.
type Sink struct {
	w Writer
}

// NewSink creates a Sink. A nil writer yields a sink that drops everything.
func NewSink(w Writer) *Sink {
	return &Sink{w: w}
}

// CommandCompleted implements bridge.Observer.
func (s *Sink) CommandCompleted(c bridge.Completed) {
	if s == nil || s.w == nil {
		return
	}
	sample := influxdb.CommandSample{
		DeviceID: c.DeviceID,
		Method:   c.Method,
		Outcome:  string(c.Outcome),
		Duration: c.Duration,
		At:       c.FinishedAt,
	}
	if c.Response != nil {
		if status, ok := c.Response.Status(); ok {
			sample.Status = status
		}
	}
	s.w.WriteCommandMetric(sample)
}

// ClaimFinished implements claim.Observer.
func (s *Sink) ClaimFinished(a claim.Attempt) {
	if s == nil || s.w == nil {
		return
	}
	s.w.WriteClaimEvent(a.DeviceID, string(a.Action), string(a.Outcome), a.StartedAt.Add(a.Duration))
}

var (
	_ bridge.Observer = (*Sink)(nil)
	_ claim.Observer  = (*Sink)(nil)
)
