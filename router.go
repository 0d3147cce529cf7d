package rpc

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"

	"github.com/doxysoft/jsonrpc-bidirectional/logging"
)

// Router owns every duplex connection a process is a peer on and
// demultiplexes each inbound frame into either a server-bound request or a
// response addressed to one of that connection's reverse Clients (spec.md
// §2), grounded on kite.go's sockjsHandler dispatch and request.go's
// tr.Properties()["remoteKite"] per-connection cache -- reshaped here into
// an explicit arena (RouterConnection) keyed by a monotonic connection id,
// per spec.md §9's note on avoiding a Router<->Client cyclic reference.
type Router struct {
	Server *Server
	Log    logging.Logger

	nextConnID int64

	mu          sync.Mutex
	connections map[int64]*RouterConnection

	onReverseClient func(*Client)
}

// NewRouter creates a Router dispatching into srv.
func NewRouter(srv *Server) *Router {
	return &Router{
		Server:      srv,
		Log:         srv.Log,
		connections: make(map[int64]*RouterConnection),
	}
}

// OnReverseClient registers a callback fired the first time a reverse
// Client is instantiated on any connection this Router owns (spec.md §4.G
// "made reverse calls client" event).
func (rt *Router) OnReverseClient(fn func(*Client)) {
	rt.onReverseClient = fn
}

type connState int

const (
	connOpen connState = iota
	connClosing
	connClosed
)

// RouterConnection is the per-connection arena a Router hands out: one
// monotonic numeric id, the WSConn it demultiplexes, and the lazily built
// reverse Client for each endpoint path a peer has called into.
type RouterConnection struct {
	ConnectionID int64
	DiagnosticID string

	conn   WSConn
	router *Router
	log    logging.Logger

	mu             sync.Mutex
	state          connState
	reverseClients map[string]*Client
}

// AddConnection admits a new duplex connection, assigning it the next
// monotonic connection id and starting its read loop.
func (rt *Router) AddConnection(conn WSConn) *RouterConnection {
	id := atomic.AddInt64(&rt.nextConnID, 1)
	diagnosticID := uuid.Must(uuid.NewV4()).String()
	rc := &RouterConnection{
		ConnectionID:   id,
		DiagnosticID:   diagnosticID,
		conn:           conn,
		router:         rt,
		log:            rt.Log.With(logging.Fields{"connection": id, "peer": diagnosticID}),
		reverseClients: make(map[string]*Client),
	}

	rt.mu.Lock()
	rt.connections[id] = rc
	rt.mu.Unlock()

	go rc.readLoop()

	return rc
}

// Connection looks up a previously admitted connection by id.
func (rt *Router) Connection(connID int64) (*RouterConnection, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rc, ok := rt.connections[connID]
	return rc, ok
}

// ReverseClient returns the reverse Client for path on connID, building it
// via the Endpoint's ReverseClientFactory on first use.
func (rt *Router) ReverseClient(connID int64, path string) (*Client, bool) {
	rc, ok := rt.Connection(connID)
	if !ok {
		return nil, false
	}
	ep, ok := rt.Server.Registry.Lookup(path)
	if !ok || ep.ReverseClientFactory == nil {
		return nil, false
	}
	return rc.reverseClientFor(ep), true
}

func (rc *RouterConnection) readLoop() {
	for ev := range rc.conn.Events() {
		switch ev.Kind {
		case WSMessage:
			rc.dispatch(ev.Data)
		case WSError:
			rc.fail(TransportError(ev.Err))
		case WSClose:
			rc.fail(ConnectionClosedError())
		}
	}
}

type frameKind int

const (
	frameUnknown frameKind = iota
	frameRequest
	frameResponse
)

// classify inspects raw's top-level members to tell a request/notification
// frame from a response frame without fully decoding it, per spec.md §2's
// "method present => request, result/error + id => response" rule.
func classify(raw []byte) frameKind {
	var probe struct {
		Method json.RawMessage `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return frameUnknown
	}
	if len(probe.Method) > 0 {
		return frameRequest
	}
	if (len(probe.Result) > 0 || len(probe.Error) > 0) && len(probe.ID) > 0 {
		return frameResponse
	}
	return frameUnknown
}

func (rc *RouterConnection) dispatch(raw []byte) {
	switch classify(raw) {
	case frameRequest:
		rc.handleIncomingRequest(raw)
	case frameResponse:
		rc.handleIncomingResponse(raw)
	default:
		resp := NewErrorResponse(NullID(), InvalidRequestError("malformed frame: neither a request nor a response"))
		blob, err := EncodeResponse(resp)
		if err != nil {
			return
		}
		if err := rc.send(blob); err != nil {
			rc.log.Warning("router: failed replying to malformed frame: %s", err)
		}
	}
}

func (rc *RouterConnection) handleIncomingRequest(raw []byte) {
	path := rc.conn.UpgradePath()

	var reverse *Client
	if ep, ok := rc.router.Server.Registry.Lookup(path); ok && ep.ReverseClientFactory != nil {
		reverse = rc.reverseClientFor(ep)
	}

	respBlob := rc.router.Server.ProcessRequest(raw, path, rc.conn.RemoteAddr(), reverse)
	if respBlob == nil {
		return
	}
	if err := rc.send(respBlob); err != nil {
		rc.log.Warning("router: failed sending response: %s", err)
	}
}

func (rc *RouterConnection) handleIncomingResponse(raw []byte) {
	rc.mu.Lock()
	clients := make([]*Client, 0, len(rc.reverseClients))
	for _, c := range rc.reverseClients {
		clients = append(clients, c)
	}
	rc.mu.Unlock()

	for _, c := range clients {
		if c.tryResolve(raw) {
			return
		}
	}
	rc.log.Warning("router: response matches no pending call on any reverse client")
}

// reverseClientFor returns the (possibly newly built) reverse Client for
// ep on this connection. The connection's own send is the only transport
// plugin a reverse Client carries; it never runs its own read loop since
// this RouterConnection's readLoop already demultiplexes every frame.
func (rc *RouterConnection) reverseClientFor(ep *Endpoint) *Client {
	rc.mu.Lock()
	if c, ok := rc.reverseClients[ep.Path]; ok {
		rc.mu.Unlock()
		return c
	}
	rc.mu.Unlock()

	client := ep.ReverseClientFactory()
	client.AddPlugin(rc.routedTransport())

	rc.mu.Lock()
	if c, ok := rc.reverseClients[ep.Path]; ok {
		rc.mu.Unlock()
		return c
	}
	rc.reverseClients[ep.Path] = client
	rc.mu.Unlock()

	if rc.router.onReverseClient != nil {
		rc.router.onReverseClient(client)
	}
	return client
}

func (rc *RouterConnection) routedTransport() ClientPlugin {
	return ClientPlugin{
		Name: "router-transport",
		MakeRequest: func(out *OutgoingRequest) error {
			return rc.send(out.Body)
		},
	}
}

func (rc *RouterConnection) send(blob []byte) error {
	rc.mu.Lock()
	state := rc.state
	rc.mu.Unlock()
	if state != connOpen {
		return errors.New("router: connection closing or closed")
	}
	return rc.conn.Send(blob)
}

// Close initiates a graceful shutdown of the underlying connection.
func (rc *RouterConnection) Close() error {
	rc.mu.Lock()
	if rc.state != connOpen {
		rc.mu.Unlock()
		return nil
	}
	rc.state = connClosing
	rc.mu.Unlock()
	return rc.conn.Close()
}

// fail transitions the connection to closed, fails every pending call on
// every reverse client it owns, and removes it from the Router -- the
// single place "closing a connection cancels every pending call" (spec.md
// §4.H) is enforced.
func (rc *RouterConnection) fail(err *Error) {
	rc.mu.Lock()
	if rc.state == connClosed {
		rc.mu.Unlock()
		return
	}
	rc.state = connClosed
	clients := make([]*Client, 0, len(rc.reverseClients))
	for _, c := range rc.reverseClients {
		clients = append(clients, c)
	}
	rc.mu.Unlock()

	for _, c := range clients {
		c.FailAllPending(err)
	}

	rc.router.mu.Lock()
	delete(rc.router.connections, rc.ConnectionID)
	rc.router.mu.Unlock()
}
