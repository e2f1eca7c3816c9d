package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	logx "baubot/pkg/logx"
)

// Client talks to a Server. It is safe for concurrent use; every Send opens
// its own connection.
type Client struct {
	Addr string
	// Retries is how many extra connection attempts are made, back to back,
	// before Connect gives up.
	Retries     int
	DialTimeout time.Duration
	Log         logx.Logger
}

func NewClient(addr string, retries int) *Client {
	return &Client{Addr: addr, Retries: retries}
}

func (c *Client) logger() logx.Logger {
	if c.Log.IsZero() {
		return logx.Nop()
	}
	return c.Log
}

// Connect dials Addr, retrying immediately up to Retries times. The last
// dial error is returned when every attempt fails.
func (c *Client) Connect(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	for attempt := 0; ; attempt++ {
		conn, err := d.DialContext(ctx, "tcp", c.Addr)
		if err == nil {
			return conn, nil
		}
		c.logger().Trace("connect attempt failed", logx.Int("attempt", attempt), logx.Err(err))
		if attempt >= c.Retries || ctx.Err() != nil {
			return nil, fmt.Errorf("protocol: connect %s: %w", c.Addr, err)
		}
	}
}

// Send validates req, transmits it and returns the server's response stream.
// The channel is closed when the server closes the connection, when the
// stream turns unreadable, or after ctx is canceled. Invalid requests fail
// with a *DecodeError before any connection is made.
func (c *Client) Send(ctx context.Context, req Request) (<-chan Response, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	return c.SendRaw(ctx, payload)
}

// SendRaw is Send for a pre-encoded request.
func (c *Client) SendRaw(ctx context.Context, payload []byte) (<-chan Response, error) {
	if _, err := DecodeRequest(payload); err != nil {
		return nil, err
	}
	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("protocol: write request: %w", err)
	}

	in := make(chan Response)
	out := make(chan Response)
	done := make(chan struct{})
	go c.read(conn, in, done)
	go c.forward(ctx, conn, in, out, done)
	return out, nil
}

// read decodes responses until EOF or a decode error.
func (c *Client) read(conn net.Conn, in chan<- Response, done <-chan struct{}) {
	defer close(in)
	dec := NewDecoder(conn)
	for {
		r, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger().Debug("response stream ended", logx.Err(err))
			}
			return
		}
		select {
		case in <- r:
		case <-done:
			return
		}
	}
}

// forward moves responses from in to out through an unbounded queue so a
// slow consumer never stalls the connection reader.
func (c *Client) forward(ctx context.Context, conn net.Conn, in <-chan Response, out chan<- Response, done chan<- struct{}) {
	defer close(out)
	defer close(done)
	defer conn.Close()

	var queue []Response
	for in != nil || len(queue) > 0 {
		var (
			send chan<- Response
			head Response
		)
		if len(queue) > 0 {
			send = out
			head = queue[0]
		}
		select {
		case r, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, r)
		case send <- head:
			queue = queue[1:]
		case <-ctx.Done():
			// The caller stopped listening.
			return
		}
	}
}
