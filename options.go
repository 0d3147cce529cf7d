package rpc

import "time"

// TransportKind selects the wire transport a Client is configured to use,
// adapted from config/transport.go's Transport enum (WebSocket/XHRPolling/
// Auto), narrowed to the two transports this module ships a binding for --
// XHR-polling is dropped, see DESIGN.md.
type TransportKind int

const (
	TransportHTTP TransportKind = iota
	TransportWebSocket
)

func (t TransportKind) String() string {
	switch t {
	case TransportHTTP:
		return "http"
	case TransportWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Options collects the knobs spec.md §6 lists as "configuration options
// recognized" for wiring up an Endpoint/Server/Client triple, mirroring
// options.go/config/config.go's role in the teacher. NewEndpointFromOptions
// reads EndpointPath and ReverseClientFactory; no function in this package
// reads Timeout, AllowNotifications, Transport or Reconnect, so those take
// effect only where a caller copies them onto Client.Timeout,
// Server.AllowNotifications or DialWebSocket's reconnect argument.
type Options struct {
	// EndpointPath is the URL path this module's Endpoint is mounted at.
	EndpointPath string

	// ReverseClientFactory, when set, is attached to the Endpoint so a
	// Router builds a reverse Client for connections reaching it.
	ReverseClientFactory ReverseClientFactory

	// Timeout bounds how long a Client.Call waits for a response. Zero
	// disables the timeout.
	Timeout time.Duration

	// AllowNotifications controls whether a Server dispatches id-less
	// requests at all.
	AllowNotifications bool

	// Transport selects which Client transport plugin to install.
	Transport TransportKind

	// Reconnect opts a WebSocket Client transport into automatic,
	// backoff-governed redialing on connection loss.
	Reconnect bool
}

// DefaultOptions returns the options a bare-bones Endpoint/Server/Client
// triple would use absent any other configuration.
func DefaultOptions() Options {
	return Options{
		EndpointPath:       "/",
		AllowNotifications: true,
		Transport:          TransportHTTP,
	}
}

// NewEndpointFromOptions builds an Endpoint at opts.EndpointPath carrying
// opts.ReverseClientFactory.
func NewEndpointFromOptions(name string, opts Options) *Endpoint {
	ep := NewEndpoint(name, opts.EndpointPath)
	ep.ReverseClientFactory = opts.ReverseClientFactory
	return ep
}
