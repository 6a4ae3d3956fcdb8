package ipc

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// ConnectTimeout bounds how long dialing a session's ipc.sock may take.
const ConnectTimeout = 2 * time.Second

// WriteDeadline bounds how long a single frame write may take.
const WriteDeadline = 5 * time.Second

// Client is a reusable connection to one session's ipc.sock. It reconnects
// lazily on the next Send after a failed write, matching the WS multiplexer's
// "one IPC connection per session, reconnected lazily" policy (§4.J).
type Client struct {
	path string

	mu   sync.Mutex
	conn net.Conn
}

// NewClient returns a client bound to the given socket path. No connection
// is made until the first Send.
func NewClient(sockPath string) *Client {
	return &Client{path: sockPath}
}

// Send writes a single frame, dialing (or redialing) the socket as needed.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := net.DialTimeout("unix", c.path, ConnectTimeout)
		if err != nil {
			return fmt.Errorf("ipc: dial %s: %w", c.path, err)
		}
		c.conn = conn
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteDeadline))
	if err := WriteFrame(c.conn, f); err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
