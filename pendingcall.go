package rpc

import (
	"encoding/json"
	"sync"
	"time"
)

// PendingCall tracks one in-flight Client call awaiting its matching
// response, the generalization of dnode's scrubbed callback table to a
// single result/error slot keyed by numeric id.
type PendingCall struct {
	ID        int64
	Method    string
	CreatedAt time.Time

	out     *OutgoingRequest
	plugins []ClientPlugin

	resultCh chan pendingResult
	once     sync.Once
}

type pendingResult struct {
	result json.RawMessage
	err    *Error
}

func newPendingCall(id int64, method string, out *OutgoingRequest, plugins []ClientPlugin) *PendingCall {
	return &PendingCall{
		ID:        id,
		Method:    method,
		CreatedAt: time.Now(),
		out:       out,
		plugins:   plugins,
		resultCh:  make(chan pendingResult, 1),
	}
}

func (p *PendingCall) resolve(result json.RawMessage) {
	p.once.Do(func() {
		p.resultCh <- pendingResult{result: result}
	})
}

func (p *PendingCall) reject(err *Error) {
	p.once.Do(func() {
		p.resultCh <- pendingResult{err: err}
	})
}

// pendingCallTable is the id -> PendingCall map a Client consults to
// correlate a response with the call that produced it, regardless of
// arrival order (spec.md §4.E).
type pendingCallTable struct {
	mu    sync.Mutex
	calls map[int64]*PendingCall
}

func newPendingCallTable() *pendingCallTable {
	return &pendingCallTable{calls: make(map[int64]*PendingCall)}
}

func (t *pendingCallTable) add(p *PendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[p.ID] = p
}

func (t *pendingCallTable) remove(id int64) (*PendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return p, ok
}

// failAll rejects every still-pending call with err and empties the table,
// the "connection close is global cancellation" rule from spec.md §4.H --
// no PendingCall may be left dangling once a connection is gone.
func (t *pendingCallTable) failAll(err *Error) {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[int64]*PendingCall)
	t.mu.Unlock()

	for _, p := range calls {
		p.reject(err)
	}
}
