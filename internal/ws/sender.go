package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single frame write. A client that stopped reading
// gets its connection torn down instead of wedging the pipeline goroutines.
const writeTimeout = 15 * time.Second

// connSender adapts a websocket connection to the pipeline's Sender. The
// mutex keeps the JSON announcement and the binary frame that follows it
// adjacent on the wire when several goroutines send at once.
type connSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newSender(conn *websocket.Conn) *connSender {
	return &connSender{conn: conn}
}

func (s *connSender) SendJSON(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, s.conn, v)
}

func (s *connSender) SendBinary(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageBinary, data)
}
