package bridge

import (
	"fmt"
	"time"
)

// watchdog settles a request as timed out when its deadline passes.
type watchdog struct {
	timer *time.Timer
}

// startWatchdog arms a timer for req.Timeout. On expiry it settles req as
// ErrTimeout, a no-op if something settled it first, and calls onFire to
// stop the wait.
func startWatchdog(req *PendingRequest, clear bool, onFire func()) *watchdog {
	return &watchdog{
		timer: time.AfterFunc(req.Timeout, func() {
			req.settle(settlement{
				outcome: OutcomeTimeout,
				err: fmt.Errorf("%w: %s on %s after %v",
					ErrTimeout, req.Method, req.DeviceID, req.Timeout),
				clear: clear,
			})
			onFire()
		}),
	}
}

func (w *watchdog) stop() {
	w.timer.Stop()
}
