package rpc

import (
	"encoding/json"
	"testing"
)

func newTestEndpoint() *Endpoint {
	ep := NewEndpoint("test", "/rpc")
	ep.HandleFunc("echo", func(r *IncomingRequest, params Params) (interface{}, error) {
		var s string
		if err := params.Arg(0, &s); err != nil {
			return nil, InvalidParamsError(err.Error())
		}
		return s, nil
	})
	ep.HandleFunc("boom", func(r *IncomingRequest, params Params) (interface{}, error) {
		panic("kaboom")
	})
	return ep
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer()
	if err := srv.Registry.Register(newTestEndpoint()); err != nil {
		t.Fatalf("register: %s", err)
	}
	return srv
}

func TestServerDefaultDenyWithoutAuthPlugin(t *testing.T) {
	srv := newTestServer(t)

	raw := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"echo","params":["hi"],"id":1}`), "/rpc", "", nil)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an authentication error with no auth plugin installed")
	}
}

func allowAllPlugin() ServerPlugin {
	return ServerPlugin{
		Name: "allow-all",
		Authenticate: func(r *IncomingRequest) *Error {
			r.Identity = "anon"
			return nil
		},
	}
}

func TestServerHappyPath(t *testing.T) {
	srv := newTestServer(t)
	srv.AddPlugin(allowAllPlugin())

	raw := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"echo","params":["hi"],"id":7}`), "/rpc", "", nil)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var got string
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatalf("unmarshal result: %s", err)
	}
	if got != "hi" {
		t.Fatalf("result = %q, want hi", got)
	}
	id, _ := resp.ID.Int64()
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}
}

func TestServerHandlerPanicBecomesInternalError(t *testing.T) {
	srv := newTestServer(t)
	srv.AddPlugin(allowAllPlugin())

	raw := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"boom","id":1}`), "/rpc", "", nil)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != CodeInternalError {
		t.Fatalf("code = %d, want %d", resp.Error.Code, CodeInternalError)
	}
}

func TestServerMalformedFrameGetsParseErrorAndConnectionSurvives(t *testing.T) {
	srv := newTestServer(t)
	srv.AddPlugin(allowAllPlugin())

	raw := srv.ProcessRequest([]byte(`not json at all`), "/rpc", "", nil)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected a parse error response, got %+v", resp.Error)
	}
	if !resp.ID.IsNull() {
		t.Fatalf("expected id:null on a parse error, got %s", resp.ID)
	}

	// The same server keeps working for the next request on the
	// (conceptually same) connection.
	raw2 := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"echo","params":["still alive"],"id":2}`), "/rpc", "", nil)
	resp2, err := DecodeResponse(raw2)
	if err != nil {
		t.Fatalf("decode raw2: %s", err)
	}
	if resp2.Error != nil {
		t.Fatalf("unexpected error after a prior malformed frame: %+v", resp2.Error)
	}
}

func TestServerNotificationProducesNoResponse(t *testing.T) {
	srv := newTestServer(t)

	var sawCallResult bool
	srv.AddPlugin(allowAllPlugin())
	srv.AddPlugin(ServerPlugin{
		Name:       "observer",
		CallResult: func(r *IncomingRequest, result interface{}) { sawCallResult = true },
	})

	raw := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"echo","params":["hi"]}`), "/rpc", "", nil)
	if raw != nil {
		t.Fatalf("expected no response for a notification, got %s", raw)
	}
	if !sawCallResult {
		t.Fatal("expected plugin hooks to still run for a notification")
	}
}

func TestServerUnknownMethodIsMethodNotFound(t *testing.T) {
	srv := newTestServer(t)
	srv.AddPlugin(allowAllPlugin())

	raw := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"nope","id":1}`), "/rpc", "", nil)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestServerUnknownMethodWithoutAuthIsStillAuthenticationError(t *testing.T) {
	srv := newTestServer(t)

	raw := srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"nope","id":1}`), "/rpc", "", nil)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if resp.Error == nil || errorFromObject(resp.Error).Kind != KindAuthentication {
		t.Fatalf("expected an authentication error on an unauthenticated server, got %+v", resp.Error)
	}
}

func TestServerPluginStackRemovesInReverseOrder(t *testing.T) {
	srv := NewServer()
	var order []string
	srv.AddPlugin(ServerPlugin{Name: "first", AfterJSONDecode: func(r *IncomingRequest) { order = append(order, "first") }})
	srv.AddPlugin(ServerPlugin{Name: "second", AfterJSONDecode: func(r *IncomingRequest) { order = append(order, "second") }})
	srv.RemoveLastPlugin()

	if err := srv.Registry.Register(newTestEndpoint()); err != nil {
		t.Fatalf("register: %s", err)
	}
	srv.AddPlugin(allowAllPlugin())
	srv.ProcessRequest([]byte(`{"jsonrpc":"2.0","method":"echo","params":["x"],"id":1}`), "/rpc", "", nil)

	if len(order) != 1 || order[0] != "first" {
		t.Fatalf("order = %v, want only [first] to have run", order)
	}
}
