package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
)

// DefaultQueueSize bounds the Recorder's queue. Entries beyond it are dropped.
const DefaultQueueSize = 256

// Logger is satisfied by logging.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes entries asynchronously and serially, so callers never
// wait on SQLite. Recording is best effort: a full queue drops the entry.
//
// Recorder also implements bridge.Observer and claim.Observer, recording
// every finished direct method call and ownership change.
type Recorder struct {
	repo   Repository
	source string
	queue  chan *Entry
	logger Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, source string, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		source: source,
		queue:  make(chan *Entry, queueSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Record queues an entry. Source defaults to the recorder's source.
func (r *Recorder) Record(entry *Entry) {
	if r == nil || entry == nil {
		return
	}
	if entry.Source == "" {
		entry.Source = r.source
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return
	}

	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_id", entry.EntityID,
		)
	}
}

// CommandCompleted implements bridge.Observer.
func (r *Recorder) CommandCompleted(c bridge.Completed) {
	details := map[string]any{
		"method":         c.Method,
		"correlation_id": c.CorrelationID,
		"outcome":        string(c.Outcome),
		"duration_ms":    c.Duration.Milliseconds(),
	}
	if c.Err != nil {
		details["error"] = c.Err.Error()
	}
	r.Record(&Entry{
		Action:     ActionCommand,
		EntityType: EntityDevice,
		EntityID:   c.DeviceID,
		Details:    details,
		CreatedAt:  c.FinishedAt,
	})
}

// ClaimFinished implements claim.Observer.
func (r *Recorder) ClaimFinished(a claim.Attempt) {
	action := ActionClaim
	if a.Action == claim.ActionRelease {
		action = ActionRelease
	}
	details := map[string]any{
		"outcome":     string(a.Outcome),
		"state":       string(a.State),
		"duration_ms": a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		details["error"] = a.Err.Error()
	}
	r.Record(&Entry{
		Action:     action,
		EntityType: EntityDevice,
		EntityID:   a.DeviceID,
		UserID:     a.UserID,
		Details:    details,
	})
}

// Run writes queued entries until ctx ends, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			r.mu.Lock()
			r.stopped = true
			r.mu.Unlock()
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) write(entry *Entry) {
	// The caller's context is long gone; writes are bounded by SQLite's busy timeout.
	if err := r.repo.Create(context.Background(), entry); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("audit write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

var (
	_ bridge.Observer = (*Recorder)(nil)
	_ claim.Observer  = (*Recorder)(nil)
)
