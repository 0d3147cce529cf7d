package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doxysoft/jsonrpc-bidirectional/logging"
)

// Client issues JSON-RPC calls through exactly one transport plugin's
// MakeRequest hook and matches responses back to callers by id, the
// generalization of client.go's Tell/Go pair over dnode's callback
// scrubbing, replaced here by PendingCall (spec.md §4.E).
type Client struct {
	Log logging.Logger

	// Timeout bounds how long Call waits for a response once the
	// transport has accepted the request. Zero disables the timeout.
	Timeout time.Duration

	mu      sync.Mutex
	plugins []ClientPlugin

	nextID  int64
	pending *pendingCallTable
}

// NewClient creates a Client with no plugins. Exactly one ClientPlugin
// implementing MakeRequest must be added before Call/Notify can succeed.
func NewClient() *Client {
	return &Client{
		Log:     logging.NewLogger("rpc.client"),
		pending: newPendingCallTable(),
	}
}

// AddPlugin appends p to the pipeline. Plugins run in registration order.
func (c *Client) AddPlugin(p ClientPlugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins = append(c.plugins, p)
}

// RemoveLastPlugin removes the most recently added plugin.
func (c *Client) RemoveLastPlugin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.plugins) == 0 {
		return
	}
	c.plugins = c.plugins[:len(c.plugins)-1]
}

func (c *Client) pluginsSnapshot() []ClientPlugin {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ClientPlugin, len(c.plugins))
	copy(out, c.plugins)
	return out
}

// Call issues method(params) and blocks until the matching response
// arrives, the connection fails, ctx is canceled, or Timeout elapses.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.do(ctx, method, params, false)
}

// Notify issues method(params) as a notification: no id is attached and no
// response is awaited.
func (c *Client) Notify(method string, params interface{}) error {
	_, err := c.do(context.Background(), method, params, true)
	return err
}

// Go issues method(params) asynchronously, returning immediately; the
// result or error arrives on the returned channel exactly once.
func (c *Client) Go(ctx context.Context, method string, params interface{}) <-chan CallResult {
	ch := make(chan CallResult, 1)
	go func() {
		result, err := c.Call(ctx, method, params)
		ch <- CallResult{Result: result, Err: err}
	}()
	return ch
}

// CallResult is the value delivered by Go's channel.
type CallResult struct {
	Result json.RawMessage
	Err    error
}

func (c *Client) do(ctx context.Context, method string, params interface{}, notify bool) (json.RawMessage, error) {
	p, err := NewParams(params)
	if err != nil {
		return nil, InternalError(err)
	}

	env := &RequestEnvelope{JSONRPC: protocolVersion, Method: method, Params: p}

	var id int64
	if !notify {
		id = atomic.AddInt64(&c.nextID, 1)
		env.ID = &ID{raw: []byte(strconv.FormatInt(id, 10))}
	}

	plugins := c.pluginsSnapshot()
	out := &OutgoingRequest{Envelope: env}

	for _, pl := range plugins {
		if pl.BeforeJSONEncode != nil {
			pl.BeforeJSONEncode(out)
		}
	}

	raw, encErr := EncodeRequest(out.Envelope)
	if encErr != nil {
		return nil, InternalError(encErr)
	}
	out.Body = raw

	for _, pl := range plugins {
		if pl.AfterJSONEncode != nil {
			pl.AfterJSONEncode(out)
		}
	}

	var pending *PendingCall
	if !notify {
		pending = newPendingCall(id, method, out, plugins)
		c.pending.add(pending)
	}

	ran := false
	var transportErr error
	for _, pl := range plugins {
		if pl.MakeRequest == nil {
			continue
		}
		if out.ResponseBody != nil {
			// An earlier plugin already produced a synchronous response
			// (e.g. a response cache) -- first writer wins, this and any
			// later makeRequest hook never run.
			break
		}
		ran = true
		if err := pl.MakeRequest(out); err != nil {
			transportErr = err
			break
		}
	}

	if !ran && out.ResponseBody == nil {
		if pending != nil {
			c.pending.remove(id)
		}
		return nil, TransportError(errors.New("no makeRequest plugin installed"))
	}
	if transportErr != nil {
		if pending != nil {
			c.pending.remove(id)
		}
		return nil, TransportError(transportErr)
	}

	if notify {
		return nil, nil
	}

	if out.ResponseBody != nil {
		c.tryResolve(out.ResponseBody)
	}

	return c.awaitPending(ctx, pending)
}

func (c *Client) awaitPending(ctx context.Context, pending *PendingCall) (json.RawMessage, error) {
	var timeoutCh <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-pending.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-timeoutCh:
		c.pending.remove(pending.ID)
		return nil, TimeoutError(pending.Method)
	case <-ctx.Done():
		c.pending.remove(pending.ID)
		return nil, TransportError(ctx.Err())
	}
}

// OnResponse feeds one inbound response frame to the Client, resolving or
// rejecting whichever PendingCall it matches. Transport plugins that
// deliver responses asynchronously (the WebSocket transport) call this from
// their read loop; a Router uses tryResolve instead.
func (c *Client) OnResponse(blob []byte) {
	if !c.tryResolve(blob) {
		c.Log.Warning("rpc: dropping response that matches no pending call")
	}
}

// tryResolve attempts to match blob to a pending call, returning false
// (without logging) if it can't -- used by Router, which tries several
// reverse clients in turn before giving up.
func (c *Client) tryResolve(blob []byte) bool {
	resp, err := DecodeResponse(blob)
	if err != nil {
		return false
	}
	if resp.ID == nil {
		return false
	}
	id, convErr := resp.ID.Int64()
	if convErr != nil {
		return false
	}
	pending, ok := c.pending.remove(id)
	if !ok {
		return false
	}
	c.finishPending(pending, resp)
	return true
}

func (c *Client) finishPending(pending *PendingCall, resp *ResponseEnvelope) {
	pending.out.ResponseEnvelope = resp
	for _, pl := range pending.plugins {
		if pl.AfterJSONDecode != nil {
			pl.AfterJSONDecode(pending.out)
		}
	}

	if resp.Error != nil {
		appErr := errorFromObject(resp.Error)
		for _, pl := range pending.plugins {
			if pl.ExceptionCatch == nil {
				continue
			}
			if replaced := pl.ExceptionCatch(pending.out, appErr); replaced != nil {
				appErr = replaced
			}
		}
		pending.reject(appErr)
		return
	}

	pending.resolve(resp.Result)
}

// FailAllPending rejects every outstanding call with err and clears the
// pending table -- called by a transport or Router when the underlying
// connection is lost.
func (c *Client) FailAllPending(err *Error) {
	c.pending.failAll(err)
}
