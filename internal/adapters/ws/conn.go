package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("websocket: connection closed")

// Conn wraps a gorilla websocket with a serialized writer.
// gorilla allows one concurrent reader and one concurrent writer.
type Conn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Wrap takes ownership of c
func Wrap(c *websocket.Conn) *Conn {
	return &Conn{conn: c, closed: make(chan struct{})}
}

// Dial opens a client connection with the given headers. ctx bounds the handshake.
func Dial(ctx context.Context, url string, header http.Header, timeout time.Duration) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	c, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return Wrap(c), nil
}

// WriteJSON encodes v and sends it as a single text frame
func (c *Conn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteText(data)
}

// WriteText sends a raw text frame
func (c *Conn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage returns the next data frame. Only one goroutine may read.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close sends a normal close frame once and closes the socket
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Done is closed once Close has been called
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// IsOpen reports whether Close has not been called yet
func (c *Conn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// IsNormalClose reports whether err is a peer initiated orderly close
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
