package rpc

import (
	"net/url"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// gorillaConn adapts a *websocket.Conn to WSConn, the concrete binding
// spec.md §6 names for the WebSocket transport.
type gorillaConn struct {
	conn   *websocket.Conn
	events chan WSEvent
	path   string
	sendMu sync.Mutex
}

func newGorillaConn(conn *websocket.Conn, path string) *gorillaConn {
	c := &gorillaConn{conn: conn, events: make(chan WSEvent, 16), path: path}
	go c.readLoop()
	return c
}

func (c *gorillaConn) readLoop() {
	defer close(c.events)
	c.events <- WSEvent{Kind: WSOpen}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.events <- WSEvent{Kind: WSError, Err: err}
			c.events <- WSEvent{Kind: WSClose, Err: err}
			return
		}
		c.events <- WSEvent{Kind: WSMessage, Data: data}
	}
}

func (c *gorillaConn) Send(text []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, text)
}

func (c *gorillaConn) Close() error { return c.conn.Close() }

func (c *gorillaConn) Events() <-chan WSEvent { return c.events }

func (c *gorillaConn) UpgradePath() string { return c.path }

func (c *gorillaConn) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// DialWSConn connects to rawURL and returns the resulting connection as a
// WSConn, its UpgradePath set to the URL's path component -- the same
// field a server-side connection carries -- so a Router can look up
// Endpoints identically regardless of which side dialed.
func DialWSConn(rawURL string) (WSConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return newGorillaConn(conn, u.Path), nil
}

// DialWebSocket connects to rawURL and attaches the resulting connection to
// transport. With reconnect set, a dropped connection is redialed under an
// unbounded exponential backoff, generalizing client.go's dialForever/
// redialBackOff off gorilla/websocket instead of the teacher's sockjs
// dialer, using the same github.com/cenkalti/backoff/v4 dependency.
func DialWebSocket(rawURL string, transport *WebSocketTransport, reconnect bool) error {
	dial := func() (*gorillaConn, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
		if err != nil {
			return nil, err
		}
		return newGorillaConn(conn, u.Path), nil
	}

	conn, err := dial()
	if err != nil {
		return err
	}
	transport.Attach(conn)

	if reconnect {
		transport.OnClose(func(error) {
			go redialForever(transport, dial)
		})
	}
	return nil
}

func redialForever(transport *WebSocketTransport, dial func() (*gorillaConn, error)) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // unbounded, matching client.go's forever redial loop

	_ = backoff.Retry(func() error {
		conn, err := dial()
		if err != nil {
			return err
		}
		transport.Attach(conn)
		return nil
	}, b)
}
