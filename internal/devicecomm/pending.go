package devicecomm

import (
	"sync"
	"time"
)

// pendingRequest is one outstanding command awaiting its response.
type pendingRequest struct {
	requestID string
	deviceID  string
	done      chan *ResponseMessage
	timer     *time.Timer
}

// pendingTable correlates controller responses to outstanding commands
// by request id. Entries are removed on resolve, on timeout, and on
// close — whichever comes first.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: make(map[string]*pendingRequest),
	}
}

// track registers an outstanding request. The returned channel receives
// the response, or closes without a value on timeout. onTimeout runs
// after the entry is removed.
func (p *pendingTable) track(requestID, deviceID string, timeout time.Duration, onTimeout func()) (<-chan *ResponseMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	req := &pendingRequest{
		requestID: requestID,
		deviceID:  deviceID,
		done:      make(chan *ResponseMessage, 1),
	}

	req.timer = time.AfterFunc(timeout, func() {
		if p.remove(requestID) != nil {
			close(req.done)
			if onTimeout != nil {
				onTimeout()
			}
		}
	})

	p.entries[requestID] = req
	return req.done, nil
}

// resolve delivers a response to the waiting caller. Returns false for
// unknown or already-timed-out request ids (late responses are dropped).
func (p *pendingTable) resolve(requestID string, resp *ResponseMessage) bool {
	req := p.remove(requestID)
	if req == nil {
		return false
	}

	req.timer.Stop()
	req.done <- resp
	close(req.done)
	return true
}

// remove takes an entry out of the table, returning nil if absent.
func (p *pendingTable) remove(requestID string) *pendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.entries[requestID]
	if !ok {
		return nil
	}
	delete(p.entries, requestID)
	return req
}

// count returns the number of outstanding requests.
func (p *pendingTable) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// close stops all timers and releases every waiter without a response.
func (p *pendingTable) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for id, req := range p.entries {
		req.timer.Stop()
		close(req.done)
		delete(p.entries, id)
	}
}
