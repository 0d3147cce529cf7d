package rpc

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequestPositionalParams(t *testing.T) {
	env, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"sum","params":[1,2],"id":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if env.Method != "sum" {
		t.Fatalf("method = %q, want sum", env.Method)
	}
	if env.ID == nil {
		t.Fatalf("expected a non-nil id")
	}

	arr, err := env.Params.Array()
	if err != nil {
		t.Fatalf("Array() error: %s", err)
	}
	if len(arr) != 2 {
		t.Fatalf("len(arr) = %d, want 2", len(arr))
	}
}

func TestDecodeRequestNotificationHasNoID(t *testing.T) {
	env, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if env.ID != nil {
		t.Fatalf("expected nil id for a notification, got %s", env.ID)
	}
}

func TestDecodeRequestRejectsWrongVersion(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"jsonrpc":"1.0","method":"ping","id":1}`))
	if err == nil {
		t.Fatal("expected an error for jsonrpc != 2.0")
	}
	if err.Code != CodeInvalidRequest {
		t.Fatalf("code = %d, want %d", err.Code, CodeInvalidRequest)
	}
	id, convErr := err.requestID.Int64()
	if convErr != nil || id != 1 {
		t.Fatalf("expected the original id to be preserved, got %v (%v)", err.requestID, convErr)
	}
}

func TestDecodeRequestMalformedJSONIsParseError(t *testing.T) {
	_, err := DecodeRequest([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if err.Kind != KindParse || err.Code != CodeParseError {
		t.Fatalf("got kind=%s code=%d, want parse/-32700", err.Kind, err.Code)
	}
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	resp, err := NewResultResponse(IntID(42), map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("NewResultResponse: %s", err)
	}
	raw, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %s", err)
	}

	decoded, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse: %s", err)
	}
	gotID, err := decoded.ID.Int64()
	if err != nil || gotID != 42 {
		t.Fatalf("id round trip failed: %v %v", gotID, err)
	}

	var x map[string]int
	if err := json.Unmarshal(decoded.Result, &x); err != nil {
		t.Fatalf("result unmarshal: %s", err)
	}
	if x["x"] != 1 {
		t.Fatalf("result = %v, want x=1", x)
	}
}

func TestLargeIntegerIDRoundTripsExactly(t *testing.T) {
	const big = "9223372036854775807"
	env := &RequestEnvelope{JSONRPC: protocolVersion, Method: "ping", ID: &ID{raw: json.RawMessage(big)}}
	raw, err := EncodeRequest(env)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}

	decoded, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if decoded.ID.String() != big {
		t.Fatalf("id = %s, want %s", decoded.ID.String(), big)
	}
}

func TestParamsObjectBinding(t *testing.T) {
	p, err := NewParams(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("NewParams: %s", err)
	}
	if !p.IsObject() {
		t.Fatal("expected IsObject() to be true")
	}

	var dst struct {
		A int `json:"a"`
	}
	if err := p.Decode(&dst); err != nil {
		t.Fatalf("Decode: %s", err)
	}
	if dst.A != 1 {
		t.Fatalf("dst.A = %d, want 1", dst.A)
	}
}
