// Package cdp implements a minimal Chrome DevTools Protocol client.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	cdpext "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"

	"github.com/browserbench/browserbench/cdp/domains"
	"github.com/browserbench/browserbench/log"
)

var _ cdpext.Executor = &Client{}

// ErrClosed is returned by Execute once the connection to the browser is gone.
var ErrClosed = errors.New("CDP connection closed")

// Client manages CDP communication with the browser.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	Browser domains.Browser
	Page    domains.Page
	Runtime domains.Runtime
	Target  domains.Target

	conn      *connection
	wsURL     string
	msgID     int64
	sendCh    chan *cdproto.Message
	msgSubsMu sync.Mutex
	msgSubs   map[int64]chan *cdproto.Message
	watcher   *eventWatcher

	// done is closed when the receive loop stops. err holds the reason.
	done    chan struct{}
	errMu   sync.Mutex
	err     error
	loopsWg sync.WaitGroup
}

// NewClient returns a new Client that is unusable until a CDP connection is
// established with Connect().
func NewClient(ctx context.Context, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		sendCh:  make(chan *cdproto.Message, 32), // Buffered to avoid blocking in Execute
		msgSubs: make(map[int64]chan *cdproto.Message),
		watcher: newEventWatcher(logger),
		done:    make(chan struct{}),
	}

	c.Browser = domains.NewBrowser(c)
	c.Page = domains.NewPage(c)
	c.Runtime = domains.NewRuntime(c)
	c.Target = domains.NewTarget(c)

	return c
}

// Connect to the browser that exposes a CDP API at wsURL.
func (c *Client) Connect(wsURL string) (err error) {
	if c.wsURL != "" {
		return fmt.Errorf("CDP connection already established to %q", c.wsURL)
	}

	if c.conn, err = newConnection(c.ctx, wsURL, c.logger); err != nil {
		return err
	}
	c.logger.Infof("cdp", "established CDP connection to %q", wsURL)
	c.wsURL = wsURL

	c.loopsWg.Add(2)
	go c.recvLoop()
	go c.sendLoop()

	return nil
}

// Close disconnects from the browser's CDP API and waits for the client's
// goroutines to stop.
func (c *Client) Close() error {
	c.cancel()
	if c.conn == nil {
		return nil
	}
	err := c.conn.close()
	c.loopsWg.Wait()

	return err
}

// Execute implements cdp.Executor and performs a synchronous send and
// receive. Commands are routed to the session attached to ctx, if any.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	c.logger.Debugf("cdp:Execute", "wsURL:%q sid:%q method:%q", c.wsURL, GetSessionID(ctx), method)

	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("marshaling %s params: %w", method, err)
		}
	}

	id := atomic.AddInt64(&c.msgID, 1)
	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}
	// Without a session ID the message goes to the browser target.
	if sid := GetSessionID(ctx); sid != "" {
		msg.SessionID = target.SessionID(sid)
	}

	recvCh := make(chan *cdproto.Message, 1)
	c.msgSubsMu.Lock()
	c.msgSubs[id] = recvCh
	c.msgSubsMu.Unlock()
	defer func() {
		c.msgSubsMu.Lock()
		delete(c.msgSubs, id)
		c.msgSubsMu.Unlock()
	}()

	select {
	case c.sendCh <- msg:
	case <-ctx.Done():
		return fmt.Errorf("sending %s: %w", method, ctx.Err())
	case <-c.done:
		return c.closedErr()
	}

	select {
	case resp := <-recvCh:
		switch {
		case resp.Error != nil:
			return fmt.Errorf("%s: %w", method, resp.Error)
		case res != nil:
			return easyjson.Unmarshal(resp.Result, res) //nolint:wrapcheck
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s response: %w", method, ctx.Err())
	case <-c.done:
		return c.closedErr()
	}
}

// Subscribe returns a channel that will be notified when the provided CDP
// events are received for the session attached to ctx, and a cancellation
// function that will unsubscribe and close the channel.
func (c *Client) Subscribe(ctx context.Context, events ...cdproto.MethodType) (<-chan *Event, func()) {
	return c.watcher.subscribe(GetSessionID(ctx), events...)
}

func (c *Client) closedErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err) //nolint:errorlint
	}
	return ErrClosed
}

func (c *Client) recvLoop() {
	defer c.loopsWg.Done()
	defer close(c.done)

	for {
		msg, err := c.conn.readMessage()
		if err != nil {
			if c.ctx.Err() == nil && !isClosedErr(err) {
				c.logger.Errorf("cdp:recvLoop", "wsURL:%q err:%v", c.wsURL, err)
			}
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			c.cancel()
			return
		}

		switch {
		case msg.Method != "":
			evt, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				c.logger.Debugf("cdp:recvLoop", "skipping %s event: %v", msg.Method, err)
				continue
			}
			c.watcher.notify(&Event{
				Name:      msg.Method,
				Data:      evt,
				SessionID: string(msg.SessionID),
			})
		case msg.ID > 0:
			c.msgSubsMu.Lock()
			ch, ok := c.msgSubs[msg.ID]
			c.msgSubsMu.Unlock()
			if !ok {
				c.logger.Debugf("cdp:recvLoop", "no caller is waiting for message %d", msg.ID)
				continue
			}
			ch <- msg
		default:
			c.logger.Errorf("cdp:recvLoop", "ignoring malformed incoming CDP message (missing id or method): %#v", msg)
		}
	}
}

func (c *Client) sendLoop() {
	defer c.loopsWg.Done()

	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.writeMessage(msg); err != nil {
				c.logger.Errorf("cdp:sendLoop", "wsURL:%q err:%v", c.wsURL, err)
				c.cancel()
				_ = c.conn.conn.Close()
				return
			}
		case <-c.ctx.Done():
			c.logger.Debugf("cdp:sendLoop", "returning, ctx.Err: %q", c.ctx.Err())
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
