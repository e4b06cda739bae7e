package bridge

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NewCorrelationID returns a random version 4 UUID (122 random bits).
func NewCorrelationID() string {
	return uuid.NewString()
}

// pendingTable maps correlation IDs to live requests.
type pendingTable struct {
	mu       sync.Mutex
	requests map[string]*PendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{requests: make(map[string]*PendingRequest)}
}

// add registers req. A duplicate ID is refused rather than overwritten.
func (t *pendingTable) add(req *PendingRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.requests[req.CorrelationID]; exists {
		return fmt.Errorf("%w: duplicate correlation id %s", ErrInvalidRequest, req.CorrelationID)
	}
	t.requests[req.CorrelationID] = req
	return nil
}

func (t *pendingTable) get(id string) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[id]
	return req, ok
}

// remove deletes id and reports whether it was present.
func (t *pendingTable) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.requests[id]
	delete(t.requests, id)
	return ok
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// snapshot returns the live requests in no particular order.
func (t *pendingTable) snapshot() []*PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*PendingRequest, 0, len(t.requests))
	for _, req := range t.requests {
		out = append(out, req)
	}
	return out
}
