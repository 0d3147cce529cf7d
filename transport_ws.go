package rpc

import (
	"errors"
	"sync"
)

// WSConn is the four-event/send(text) shape spec.md §4.F requires of any
// duplex transport substitute: open once, message per inbound frame, error
// at most once before close, close exactly once and terminating. Anything
// satisfying it -- gorilla/websocket wrapped in a goroutine, a
// channel-backed test fake -- can sit underneath WebSocketTransport or Router.
type WSConn interface {
	// Send writes one text frame.
	Send(text []byte) error

	// Close closes the underlying connection, eventually producing a
	// WSClose event on Events().
	Close() error

	// Events delivers this connection's open/message/error/close stream.
	// The channel is closed after the terminal WSClose event.
	Events() <-chan WSEvent

	// UpgradePath is the URL path the connection was established under,
	// used by a Router to resolve an Endpoint the same way an HTTP
	// request's path does.
	UpgradePath() string

	// RemoteAddr is the network address of the peer, if known.
	RemoteAddr() string
}

// WSEventKind enumerates the four events a WSConn can emit.
type WSEventKind int

const (
	WSOpen WSEventKind = iota
	WSMessage
	WSError
	WSClose
)

// WSEvent is one event from a WSConn's Events channel.
type WSEvent struct {
	Kind WSEventKind
	Data []byte
	Err  error
}

// WebSocketTransport is a client-side transport plugin over a WSConn: its
// MakeRequest hook only sends and returns immediately (spec.md §4.F);
// matching responses arrive later through the read loop started by Attach,
// which feeds them to the owning Client's OnResponse.
type WebSocketTransport struct {
	client *Client

	mu      sync.Mutex
	conn    WSConn
	onClose func(err error)
}

// NewWebSocketTransport creates a transport that resolves client's pending
// calls as messages arrive. client may be nil, in which case inbound
// messages and connection failures are not delivered to any Client.
func NewWebSocketTransport(client *Client) *WebSocketTransport {
	return &WebSocketTransport{client: client}
}

// Plugin returns the ClientPlugin a Client should AddPlugin.
func (t *WebSocketTransport) Plugin() ClientPlugin {
	return ClientPlugin{Name: "websocket-transport", MakeRequest: t.makeRequest}
}

// Attach binds conn to this transport and starts its read loop. Replacing
// an already-attached connection (e.g. after a reconnect) is safe.
func (t *WebSocketTransport) Attach(conn WSConn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	go t.readLoop(conn)
}

// OnClose registers a callback fired once this transport's connection
// reaches WSClose, used by DialWebSocket to drive reconnection.
func (t *WebSocketTransport) OnClose(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *WebSocketTransport) readLoop(conn WSConn) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case WSMessage:
			if t.client != nil {
				t.client.OnResponse(ev.Data)
			}
		case WSError:
			if t.client != nil {
				t.client.FailAllPending(TransportError(ev.Err))
			}
		case WSClose:
			if t.client != nil {
				t.client.FailAllPending(ConnectionClosedError())
			}
			t.mu.Lock()
			onClose := t.onClose
			t.mu.Unlock()
			if onClose != nil {
				onClose(ev.Err)
			}
			return
		}
	}
}

func (t *WebSocketTransport) makeRequest(out *OutgoingRequest) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("websocket transport: not connected")
	}
	return conn.Send(out.Body)
}
