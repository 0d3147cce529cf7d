package rpc

import (
	"fmt"
	"strings"
	"sync"
)

// Handler serves one bound JSON-RPC method call. Implementations decode
// params themselves -- via Params.Decode/Arg -- rather than have the
// framework reflect them into declared Go parameters, the idiomatic-Go
// reading of spec.md §4.C's "bind positionally"/"bind by name" rule: a
// uniform (IncomingRequest, Params) -> (result, error) capability, the same
// shape dnode.HandlerFunc and kite.HandlerFunc already take.
type Handler interface {
	ServeRPC(r *IncomingRequest, params Params) (interface{}, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(r *IncomingRequest, params Params) (interface{}, error)

func (f HandlerFunc) ServeRPC(r *IncomingRequest, p Params) (interface{}, error) {
	return f(r, p)
}

// ReverseClientFactory builds the Client a Router hands back to a handler
// as IncomingRequest.ReverseClient, lazily, the first time a connection
// reaching this Endpoint needs to call back into its peer. The Router
// supplies the transport; the factory only configures everything else
// (timeouts, plugins the application wants on its reverse calls).
type ReverseClientFactory func() *Client

// Endpoint is a named handler set mounted at one URL path. Safe for
// concurrent ServeRPC dispatch once registered; Handle must not be called
// concurrently with dispatch.
type Endpoint struct {
	Name    string
	Path    string
	methods map[string]Handler

	// ReverseClientFactory, when set, opts this endpoint into the
	// bidirectional router's reverse-call machinery.
	ReverseClientFactory ReverseClientFactory
}

// NewEndpoint creates an Endpoint mounted at path (normalized the same way
// Registry.Register normalizes it).
func NewEndpoint(name, path string) *Endpoint {
	return &Endpoint{Name: name, Path: normalizePath(path), methods: make(map[string]Handler)}
}

// Handle registers h for method. Method names beginning with "rpc." are
// reserved by JSON-RPC 2.0 for framework/introspection use and Handle
// panics if asked to bind one, refusing the registration outright rather
// than silently shadowing it.
func (e *Endpoint) Handle(method string, h Handler) *Endpoint {
	if strings.HasPrefix(method, "rpc.") {
		panic(fmt.Sprintf("rpc: method name %q is reserved", method))
	}
	e.methods[method] = h
	return e
}

// HandleFunc registers a HandlerFunc for method.
func (e *Endpoint) HandleFunc(method string, h HandlerFunc) *Endpoint {
	return e.Handle(method, h)
}

func (e *Endpoint) handler(method string) (Handler, bool) {
	if strings.HasPrefix(method, "rpc.") {
		return nil, false
	}
	h, ok := e.methods[method]
	return h, ok
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
}

// Registry is a path -> Endpoint lookup table, case-sensitive and
// trailing-slash-normalized per spec.md §4.C.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

// Register mounts ep at its (normalized) path. It is an error to register
// two endpoints at the same path.
func (r *Registry) Register(ep *Endpoint) error {
	path := normalizePath(ep.Path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[path]; exists {
		return fmt.Errorf("rpc: path %q already registered", path)
	}
	ep.Path = path
	r.endpoints[path] = ep
	return nil
}

// Lookup resolves path to its Endpoint.
func (r *Registry) Lookup(path string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[normalizePath(path)]
	return ep, ok
}
