package rpc

import (
	"sync"

	"github.com/doxysoft/jsonrpc-bidirectional/logging"
)

// Server turns an encoded inbound frame into an encoded outbound response
// (nil for a notification), running it through its registered plugins at
// each stage of spec.md §4.D's pipeline. A *Server is shared by every
// connection a process serves; dispatch keeps no mutable per-request state
// outside of IncomingRequest and the plugins themselves, so one Server is
// safe for concurrent use across any number of connections.
type Server struct {
	Registry *Registry
	Log      logging.Logger

	// AllowNotifications, when false, drops any request arriving without
	// an id instead of dispatching it. No response is sent for a dropped
	// notification, so the peer is not told.
	AllowNotifications bool

	mu      sync.RWMutex
	plugins []ServerPlugin
}

// NewServer creates a Server with an empty Registry. Until at least one
// plugin implementing Authenticate is added, every request is rejected
// (spec.md §4.B default-deny).
func NewServer() *Server {
	return &Server{
		Registry:           NewRegistry(),
		Log:                logging.NewLogger("rpc.server"),
		AllowNotifications: true,
	}
}

// AddPlugin appends p to the pipeline. Plugins run in registration order at
// each hook stage.
func (s *Server) AddPlugin(p ServerPlugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins = append(s.plugins, p)
}

// RemoveLastPlugin removes the most recently added plugin, the reverse of
// registration order.
func (s *Server) RemoveLastPlugin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.plugins) == 0 {
		return
	}
	s.plugins = s.plugins[:len(s.plugins)-1]
}

func (s *Server) pluginsSnapshot() []ServerPlugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServerPlugin, len(s.plugins))
	copy(out, s.plugins)
	return out
}

func (s *Server) hasAuthenticator(plugins []ServerPlugin) bool {
	for _, p := range plugins {
		if p.Authenticate != nil {
			return true
		}
	}
	return false
}

// ProcessRequest runs the full pipeline for one inbound frame arriving on
// endpointPath and returns the encoded response, or nil for a notification.
// reverse, when non-nil, is attached to the IncomingRequest as
// ReverseClient for handlers that need to call back into the peer; it is
// nil for a one-shot transport like plain HTTP.
func (s *Server) ProcessRequest(raw []byte, endpointPath string, remoteAddr string, reverse *Client) []byte {
	plugins := s.pluginsSnapshot()

	for _, p := range plugins {
		if p.BeforeJSONDecode != nil {
			raw = p.BeforeJSONDecode(raw)
		}
	}

	env, decErr := DecodeRequest(raw)
	if decErr != nil {
		// A message that fails to parse or validate is never treated as a
		// notification: it always gets a response, carrying the id it
		// arrived with when one could be read and id:null otherwise.
		id := decErr.requestID
		if id == nil {
			id = NullID()
		}
		return s.finishEarlyError(plugins, id, decErr)
	}

	if env.ID == nil && !s.AllowNotifications {
		return s.finishEarlyError(plugins, nil, InvalidRequestError("notifications are not accepted by this server"))
	}

	ep, ok := s.Registry.Lookup(endpointPath)
	if !ok {
		return s.finishEarlyError(plugins, env.ID, MethodNotFoundError(endpointPath))
	}

	ir := newIncomingRequest(env, ep, s)
	ir.RemoteAddr = remoteAddr
	ir.ReverseClient = reverse

	for _, p := range plugins {
		if p.AfterJSONDecode != nil {
			p.AfterJSONDecode(ir)
		}
	}

	if !s.hasAuthenticator(plugins) {
		return s.finish(plugins, ir, nil, AuthenticationError("no authentication plugin installed: every request is denied by default"))
	}

	for _, p := range plugins {
		if p.Authenticate == nil {
			continue
		}
		if err := p.Authenticate(ir); err != nil {
			return s.finish(plugins, ir, nil, err)
		}
	}

	for _, p := range plugins {
		if p.Authorize == nil {
			continue
		}
		if err := p.Authorize(ir); err != nil {
			return s.finish(plugins, ir, nil, err)
		}
	}

	handler, ok := ep.handler(env.Method)
	if !ok {
		return s.finish(plugins, ir, nil, MethodNotFoundError(env.Method))
	}

	result, appErr := s.invoke(ir, handler)
	return s.finish(plugins, ir, result, appErr)
}

// invoke calls the handler, converting both a returned error and a
// recovered panic into an Error, mirroring handlers.go's runMethod
// defer/recover pattern.
func (s *Server) invoke(ir *IncomingRequest, handler Handler) (result interface{}, appErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.With(logging.Fields{"method": ir.Envelope.Method}).Error("rpc: handler panicked: %v", r)
			appErr = errorFromPanic(r)
			result = nil
		}
	}()

	res, err := handler.ServeRPC(ir, ir.Envelope.Params)
	if err != nil {
		return nil, errorFromHandlerErr(err)
	}
	return res, nil
}

func (s *Server) finish(plugins []ServerPlugin, ir *IncomingRequest, result interface{}, appErr *Error) []byte {
	if appErr != nil {
		for _, p := range plugins {
			if p.ExceptionCatch == nil {
				continue
			}
			if replaced := p.ExceptionCatch(ir, appErr); replaced != nil {
				appErr = replaced
			}
		}
	} else {
		for _, p := range plugins {
			if p.CallResult != nil {
				p.CallResult(ir, result)
			}
		}
	}

	var resp *ResponseEnvelope
	if appErr != nil {
		resp = NewErrorResponse(ir.Envelope.ID, appErr)
	} else {
		built, err := NewResultResponse(ir.Envelope.ID, result)
		if err != nil {
			resp = NewErrorResponse(ir.Envelope.ID, InternalError(err))
		} else {
			resp = built
		}
	}

	for _, p := range plugins {
		if p.Response != nil {
			p.Response(ir, resp)
		}
	}

	if ir.IsNotification() {
		return nil
	}

	return s.encode(plugins, resp)
}

// finishEarlyError handles a request that never produced an IncomingRequest
// (malformed JSON, no id-bearing envelope, unknown endpoint path): the
// per-request hooks that need an envelope (authenticate, callResult,
// exceptionCatch, response) cannot run, but AfterJSONEncode still can.
func (s *Server) finishEarlyError(plugins []ServerPlugin, id *ID, appErr *Error) []byte {
	if id == nil {
		return nil
	}
	resp := NewErrorResponse(id, appErr)
	return s.encode(plugins, resp)
}

func (s *Server) encode(plugins []ServerPlugin, resp *ResponseEnvelope) []byte {
	raw, err := EncodeResponse(resp)
	if err != nil {
		s.Log.Error("rpc: failed to encode response: %s", err)
		return nil
	}
	for _, p := range plugins {
		if p.AfterJSONEncode != nil {
			raw = p.AfterJSONEncode(raw)
		}
	}
	return raw
}
