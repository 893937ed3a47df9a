package cdp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"

	"github.com/browserbench/browserbench/log"
)

const (
	wsWriteBufferSize = 1 << 20
	wsReadBufferSize  = 1 << 20
	writePoolSize     = 16
)

// connection reads and writes CDP messages over a websocket. Reads and writes
// each happen on a single goroutine.
type connection struct {
	conn    *websocket.Conn
	logger  *log.Logger
	bufPool *bpool.BufferPool
}

func newConnection(ctx context.Context, wsURL string, logger *log.Logger) (*connection, error) {
	wsd := websocket.Dialer{
		HandshakeTimeout: 60 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
	}
	conn, _, err := wsd.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing browser at %q: %w", wsURL, err)
	}

	return &connection{
		conn:    conn,
		logger:  logger,
		bufPool: bpool.NewBufferPool(writePoolSize),
	}, nil
}

func (c *connection) readMessage() (*cdproto.Message, error) {
	_, buf, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	c.logger.Tracef("cdp:recv", "<- %s", buf)

	var msg cdproto.Message
	decoder := jlexer.Lexer{Data: buf}
	msg.UnmarshalEasyJSON(&decoder)
	if err := decoder.Error(); err != nil {
		return nil, fmt.Errorf("decoding CDP message: %w", err)
	}

	return &msg, nil
}

func (c *connection) writeMessage(msg *cdproto.Message) error {
	var encoder jwriter.Writer
	msg.MarshalEasyJSON(&encoder)
	if err := encoder.Error; err != nil {
		return fmt.Errorf("encoding CDP message %d: %w", msg.ID, err)
	}

	buf := c.bufPool.Get()
	defer c.bufPool.Put(buf)
	if _, err := encoder.DumpTo(buf); err != nil {
		return fmt.Errorf("encoding CDP message %d: %w", msg.ID, err)
	}
	c.logger.Tracef("cdp:send", "-> %s", buf.Bytes())

	if err := c.conn.WriteMessage(websocket.TextMessage, buf.Bytes()); err != nil {
		return fmt.Errorf("writing CDP message %d: %w", msg.ID, err)
	}

	return nil
}

// close sends a close frame and closes the underlying connection, which
// unblocks a pending readMessage.
func (c *connection) close() error {
	werr := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing websocket connection: %w", err)
	}
	if werr != nil && werr != websocket.ErrCloseSent { //nolint:errorlint
		return fmt.Errorf("sending websocket close message: %w", werr)
	}
	return nil
}
