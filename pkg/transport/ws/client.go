package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	dialWait  = 30 * time.Second
)

// Client is a single connection to a remote worker. Calls may be issued
// concurrently; responses are matched to requests by id.
type Client struct {
	addr string
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan message
	err     error
	done    chan struct{}
}

// Dial connects to the worker listening at addr, a ws:// or wss:// URL.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if addr == "" {
		return nil, ErrEmptyAddress
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: dialWait,
	}
	conn, resp, err := dialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		addr:    addr,
		conn:    conn,
		pending: make(map[uint64]chan message),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Hello(ctx context.Context) (fl.WorkerInfo, error) {
	var info fl.WorkerInfo
	if err := c.call(ctx, MethodHello, nil, &info); err != nil {
		return fl.WorkerInfo{}, err
	}

	return info, nil
}

func (c *Client) Fit(ctx context.Context, req fl.FitRequest) (fl.FitResponse, error) {
	var resp fl.FitResponse
	if err := c.call(ctx, MethodFit, req, &resp); err != nil {
		return fl.FitResponse{}, err
	}

	return resp, nil
}

func (c *Client) Evaluate(ctx context.Context, req fl.EvalRequest) (fl.EvalResponse, error) {
	var resp fl.EvalResponse
	if err := c.call(ctx, MethodEvaluate, req, &resp); err != nil {
		return fl.EvalResponse{}, err
	}

	return resp, nil
}

// Close sends a close frame and tears down the connection. Pending calls
// fail with ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done

	return err
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	id := c.nextID.Add(1)
	ch := make(chan message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()

		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := encode(id, method, req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	if err := c.write(data); err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return c.closeErr()
		}
		if msg.Error != "" {
			return fmt.Errorf("%w: %s", ErrRemote, msg.Error)
		}
		if resp == nil || len(msg.Payload) == 0 {
			return nil
		}
		if err := decMode.Unmarshal(msg.Payload, resp); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}

		return nil
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("%w: %s: %w", ErrClosed, c.addr, err))

			return
		}
		msg, err := decode(data)
		if err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		c.err = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	return ErrClosed
}
