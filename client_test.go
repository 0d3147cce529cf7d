package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// fakeAsyncTransport hands every outgoing request's raw bytes to a test, and
// lets the test push matching response frames back through Client.OnResponse
// whenever (and in whatever order) it likes -- the WebSocket-shaped
// asynchronous transport, without any real network.
type fakeAsyncTransport struct {
	sent chan []byte
}

func newFakeAsyncTransport() *fakeAsyncTransport {
	return &fakeAsyncTransport{sent: make(chan []byte, 16)}
}

func (f *fakeAsyncTransport) Plugin() ClientPlugin {
	return ClientPlugin{
		Name: "fake-async",
		MakeRequest: func(out *OutgoingRequest) error {
			f.sent <- out.Body
			return nil
		},
	}
}

func TestClientCallMatchesResponseByID(t *testing.T) {
	transport := newFakeAsyncTransport()
	client := NewClient()
	client.AddPlugin(transport.Plugin())

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	go func() {
		result, callErr = client.Call(context.Background(), "sum", []interface{}{1, 2})
		close(done)
	}()

	raw := <-transport.sent
	env, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("decode outgoing request: %s", err)
	}

	resp, err := NewResultResponse(env.ID, 3)
	if err != nil {
		t.Fatalf("build response: %s", err)
	}
	blob, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("encode response: %s", err)
	}
	client.OnResponse(blob)

	<-done
	if callErr != nil {
		t.Fatalf("unexpected error: %s", callErr)
	}
	var got int
	if err := json.Unmarshal(result, &got); err != nil {
		t.Fatalf("unmarshal result: %s", err)
	}
	if got != 3 {
		t.Fatalf("result = %d, want 3", got)
	}
}

func TestClientConcurrentCallsMatchIndependentlyOfArrivalOrder(t *testing.T) {
	transport := newFakeAsyncTransport()
	client := NewClient()
	client.AddPlugin(transport.Plugin())

	type outcome struct {
		want   int
		result json.RawMessage
		err    error
	}
	n := 5
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			r, err := client.Call(context.Background(), "echo", []interface{}{i})
			results <- outcome{i, r, err}
		}()
	}

	envs := make([]*RequestEnvelope, 0, n)
	for i := 0; i < n; i++ {
		raw := <-transport.sent
		env, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("decode: %s", err)
		}
		envs = append(envs, env)
	}

	// Resolve in reverse order of arrival to prove matching is by id, not
	// by send/receive sequence.
	for i := len(envs) - 1; i >= 0; i-- {
		env := envs[i]
		var arg int
		_ = env.Params.Arg(0, &arg)
		resp, _ := NewResultResponse(env.ID, arg)
		blob, _ := EncodeResponse(resp)
		client.OnResponse(blob)
	}

	for i := 0; i < n; i++ {
		o := <-results
		if o.err != nil {
			t.Fatalf("unexpected error: %s", o.err)
		}
		var got int
		if err := json.Unmarshal(o.result, &got); err != nil {
			t.Fatalf("unmarshal result: %s", err)
		}
		if got != o.want {
			t.Fatalf("call with arg %d got result %d", o.want, got)
		}
	}
}

func TestClientNotifyWaitsForNoResponse(t *testing.T) {
	transport := newFakeAsyncTransport()
	client := NewClient()
	client.AddPlugin(transport.Plugin())

	if err := client.Notify("ping", nil); err != nil {
		t.Fatalf("notify: %s", err)
	}

	raw := <-transport.sent
	env, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if env.ID != nil {
		t.Fatalf("expected a notification to carry no id, got %s", env.ID)
	}
}

func TestClientFailAllPendingRejectsEveryOutstandingCall(t *testing.T) {
	transport := newFakeAsyncTransport()
	client := NewClient()
	client.AddPlugin(transport.Plugin())

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "sum", nil)
		errCh <- err
	}()
	<-transport.sent

	client.FailAllPending(ConnectionClosedError())

	err := <-errCh
	if err == nil {
		t.Fatal("expected an error after FailAllPending")
	}
	rpcErr, ok := err.(*Error)
	if !ok || rpcErr.Kind != KindConnectionClosed {
		t.Fatalf("got %v, want a connection-closed Error", err)
	}
}

func TestClientCallTimesOut(t *testing.T) {
	transport := newFakeAsyncTransport()
	client := NewClient()
	client.Timeout = 10 * time.Millisecond
	client.AddPlugin(transport.Plugin())

	_, err := client.Call(context.Background(), "sum", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	rpcErr, ok := err.(*Error)
	if !ok || rpcErr.Kind != KindTimeout {
		t.Fatalf("got %v, want a timeout Error", err)
	}
}
