package rpc

// ServerPlugin bundles the optional lifecycle hooks a Server runs around
// dispatching one inbound request. This is the capability-record shape
// spec.md §9's Design Note calls for in place of an inheritance ladder: a
// plugin is a value, not a type, and leaves any hook it doesn't need nil.
type ServerPlugin struct {
	Name string

	// BeforeJSONDecode runs on the raw inbound bytes before decoding,
	// letting a plugin rewrite the frame (e.g. strip a transport-level
	// envelope) before the codec ever sees it.
	BeforeJSONDecode func(raw []byte) []byte

	// AfterJSONDecode runs once the envelope has been parsed.
	AfterJSONDecode func(r *IncomingRequest)

	// Authenticate assigns r.Identity or returns an authentication error.
	// A Server with no plugin implementing Authenticate rejects every
	// request (spec.md §4.B default-deny).
	Authenticate func(r *IncomingRequest) *Error

	// Authorize runs after authentication succeeds and may reject the
	// request for a resource/permission reason distinct from identity.
	Authorize func(r *IncomingRequest) *Error

	// CallResult runs after a handler returns successfully, before the
	// result is serialized.
	CallResult func(r *IncomingRequest, result interface{})

	// ExceptionCatch runs when dispatch produced an Error (auth failure,
	// unknown method, handler error or panic) and may replace it. It does
	// not run for a frame that fails to decode or names an unknown
	// endpoint path.
	ExceptionCatch func(r *IncomingRequest, err *Error) *Error

	// Response runs once the outgoing ResponseEnvelope has been built,
	// before it is serialized. It runs for notifications too, although
	// their envelope is then discarded rather than sent.
	Response func(r *IncomingRequest, resp *ResponseEnvelope)

	// AfterJSONEncode runs on the serialized response bytes, the
	// server-side mirror of BeforeJSONDecode.
	AfterJSONEncode func(raw []byte) []byte
}

// OutgoingRequest carries one Client call through its plugin pipeline.
// Exactly one ClientPlugin's MakeRequest hook should run per call; a
// makeRequest hook that finds ResponseBody already set (because an earlier
// plugin short-circuited, e.g. a cache) must not overwrite it -- "first
// writer wins" (spec.md §9 Open Question).
type OutgoingRequest struct {
	Envelope *RequestEnvelope
	Body     []byte

	// ResponseBody, when set by a makeRequest hook, is a synchronous
	// response to this exact call (the HTTP transport's shape). Left nil
	// for an async transport like WebSocket, whose response arrives later
	// through Client.OnResponse.
	ResponseBody     []byte
	ResponseEnvelope *ResponseEnvelope
}

// ClientPlugin bundles the optional lifecycle hooks a Client runs around
// one outgoing call.
type ClientPlugin struct {
	Name string

	// BeforeJSONEncode runs before the request envelope is serialized.
	BeforeJSONEncode func(req *OutgoingRequest)

	// AfterJSONEncode runs once req.Body holds the serialized request.
	AfterJSONEncode func(req *OutgoingRequest)

	// MakeRequest is the one hook a transport plugin implements: send
	// req.Body, and either populate req.ResponseBody synchronously or
	// return nil and let the response arrive later via Client.OnResponse.
	MakeRequest func(req *OutgoingRequest) error

	// AfterJSONDecode runs once a response has been matched to this call,
	// whether synchronously (HTTP) or asynchronously (WebSocket).
	AfterJSONDecode func(req *OutgoingRequest)

	// ExceptionCatch runs when the matched response carried an error, and
	// may replace it.
	ExceptionCatch func(req *OutgoingRequest, err *Error) *Error
}
