package wsmux

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/vibetunnel/vibetunnel-go/internal/logger"
)

// ReadIdleTimeout closes a WS connection that has sent nothing (not even a
// ping) for this long, per §5's timeout table.
const ReadIdleTimeout = 5 * time.Minute

// WriteDeadline bounds a single outbound frame write.
const WriteDeadline = 5 * time.Second

// outputRateLimit and outputBurst govern how fast OUTPUT frames drain to a
// single connection, so one busy session can't starve a slow client's write
// deadline for every other session it's subscribed to; SNAPSHOT_VT, EVENT,
// ERROR and PONG frames bypass the limiter.
const (
	outputRateLimit = 200 // frames/sec
	outputBurst     = 64
)

// Conn is one /ws client connection.
type Conn struct {
	ws      *websocket.Conn
	hub     *Hub
	mailbox *mailbox
	limiter *rate.Limiter
}

// HandleConn drives a single accepted WS connection until it closes or ctx
// is canceled: a read loop dispatching control messages, a write loop
// draining the connection's mailbox, and an idle-timeout watchdog.
func HandleConn(ctx context.Context, ws *websocket.Conn, hub *Hub) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &Conn{ws: ws, hub: hub, mailbox: newMailbox(), limiter: rate.NewLimiter(outputRateLimit, outputBurst)}
	defer hub.RemoveConn(c)
	defer c.mailbox.close()

	go c.writeLoop(ctx)

	idle := time.NewTimer(ReadIdleTimeout)
	defer idle.Stop()
	go func() {
		select {
		case <-idle.C:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(ReadIdleTimeout)
		c.handleControl(data)
	}
}

func (c *Conn) handleControl(data []byte) {
	var env controlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.pushError("malformed control message")
		return
	}

	switch env.Type {
	case "subscribe":
		var m subscribeMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed subscribe message")
			return
		}
		c.hub.Subscribe(c, m.SessionID, parseStreams(m.Streams))

	case "unsubscribe":
		var m subscribeMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed unsubscribe message")
			return
		}
		c.hub.Unsubscribe(c, m.SessionID, parseStreams(m.Streams))

	case "input":
		var m inputMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed input message")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			c.pushError("malformed base64 input data")
			return
		}
		c.hub.Input(m.SessionID, decoded)

	case "resize":
		var m resizeMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed resize message")
			return
		}
		c.hub.Resize(m.SessionID, m.Cols, m.Rows)

	case "reset-size":
		var m resetSizeMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed reset-size message")
			return
		}
		c.hub.ResetSize(m.SessionID)

	case "kill":
		var m killMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed kill message")
			return
		}
		c.hub.Kill(m.SessionID, m.Signal)

	case "rename":
		var m renameMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.pushError("malformed rename message")
			return
		}
		c.hub.Rename(m.SessionID, m.Name)

	case "ping":
		c.mailbox.push(frameMsg{kind: KindPong})

	default:
		c.pushError("unknown control message type " + env.Type)
	}
}

func (c *Conn) pushError(msg string) {
	c.mailbox.push(frameMsg{kind: KindError, payload: []byte(msg)})
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		frames, resync, ok := c.mailbox.drain()
		if !ok {
			return
		}
		for _, f := range frames {
			if f.kind == KindOutput {
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if !c.write(ctx, f.kind, f.sessionID, f.payload) {
				return
			}
		}
		for sessionID := range resync {
			data, ok := c.hub.snapshotFn(sessionID)
			if !ok {
				continue
			}
			if !c.write(ctx, KindSnapshotVT, sessionID, data) {
				return
			}
		}
	}
}

func (c *Conn) write(ctx context.Context, kind Kind, sessionID string, payload []byte) bool {
	wctx, cancel := context.WithTimeout(ctx, WriteDeadline)
	defer cancel()
	if err := c.ws.Write(wctx, websocket.MessageBinary, EncodeFrame(kind, sessionID, payload)); err != nil {
		logger.Debug("wsmux: write failed, closing connection", "err", err)
		return false
	}
	return true
}
