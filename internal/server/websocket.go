package server

import (
	"bytes"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// wsTransport presents a websocket connection as a line stream. Each text
// message is one protocol line in either direction.
type wsTransport struct {
	conn    *websocket.Conn
	pending []byte
}

func newWSTransport(conn *websocket.Conn, maxLineLength int) *wsTransport {
	conn.SetReadLimit(int64(maxLineLength))
	_ = conn.SetReadDeadline(time.Time{})
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		t.pending = append(data, '\r', '\n')
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Write sends every line in p as its own text message.
func (t *wsTransport) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}
		if err := t.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}
