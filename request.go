package rpc

import "sync"

// IncomingRequest is the per-call context threaded through a Server's
// dispatch pipeline and handed to the resolved Handler. Exactly one
// IncomingRequest exists per inbound request or notification.
type IncomingRequest struct {
	Envelope *RequestEnvelope
	Endpoint *Endpoint
	Server   *Server

	// Identity is set by an Authenticate plugin hook and read by
	// Authorize hooks and handlers; nil until a plugin assigns it.
	Identity interface{}

	// ReverseClient is the Client a handler can use to call back into the
	// peer that issued this request. Populated by a Router when Endpoint
	// declares a ReverseClientFactory; nil over a one-shot transport like
	// plain HTTP.
	ReverseClient *Client

	// RemoteAddr is the network address of the peer, when known.
	RemoteAddr string

	mu      sync.Mutex
	context map[string]interface{}
}

func newIncomingRequest(env *RequestEnvelope, ep *Endpoint, srv *Server) *IncomingRequest {
	return &IncomingRequest{Envelope: env, Endpoint: ep, Server: srv}
}

// IsNotification reports whether this request carries no id and therefore
// expects no response.
func (r *IncomingRequest) IsNotification() bool {
	return r.Envelope.ID == nil
}

// Set stashes a value under key for later hooks or the handler to read,
// generalizing kite.Request's ad-hoc per-request fields into a free-form
// bag any plugin can use.
func (r *IncomingRequest) Set(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.context == nil {
		r.context = make(map[string]interface{})
	}
	r.context[key] = value
}

// Get retrieves a value stashed with Set.
func (r *IncomingRequest) Get(key string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.context[key]
	return v, ok
}
