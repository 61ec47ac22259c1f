package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/idiotic-core/internal/device"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/config"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/logging"
	"github.com/nerrad567/idiotic-core/internal/protocol"
)

// deviceSendBufferSize is the per-device outbound frame buffer size.
const deviceSendBufferSize = 64

var (
	errSendBufferFull = errors.New("device send buffer full")
	errConnClosed     = errors.New("device connection closed")
)

type outFrame struct {
	enc  protocol.Encoding
	data []byte
}

// deviceConn is an embedded device's WebSocket. It implements
// device.Conn; pushes are encoded like the last frame the device sent.
type deviceConn struct {
	ws     *websocket.Conn
	remote string
	logger *logging.Logger

	send chan outFrame
	done chan struct{}
	enc  atomic.Int32
}

func newDeviceConn(ws *websocket.Conn, remote string, logger *logging.Logger) *deviceConn {
	return &deviceConn{
		ws:     ws,
		remote: remote,
		logger: logger,
		send:   make(chan outFrame, deviceSendBufferSize),
		done:   make(chan struct{}),
	}
}

// Push implements device.Conn.
func (c *deviceConn) Push(ch device.Change) error {
	enc := protocol.Encoding(c.enc.Load())
	data, err := protocol.Encode(enc, protocol.ChangeMessage(ch))
	if err != nil {
		return err
	}
	return c.enqueue(outFrame{enc: enc, data: data})
}

// RemoteAddr implements device.Conn.
func (c *deviceConn) RemoteAddr() string {
	return c.remote
}

func (c *deviceConn) enqueue(f outFrame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *deviceConn) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(pingInterval(cfg))
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	writeWait := pongTimeout(cfg)
	for {
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-c.send:
			msgType := websocket.TextMessage
			if f.enc == protocol.CBOR {
				msgType = websocket.BinaryMessage
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(msgType, f.data); err != nil {
				c.logger.Debug("device write failed", "remote", c.remote, "error", err)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEmbedded serves one embedded device connection. Text frames are
// JSON, binary frames are CBOR, and each frame gets one reply.
func (s *Server) handleEmbedded(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("device websocket upgrade failed", "error", err)
		return
	}

	conn := newDeviceConn(ws, r.RemoteAddr, s.logger)
	session := protocol.NewSession(conn)
	go conn.writePump(s.wsCfg)

	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	s.logger.Debug("device websocket opened", "remote", conn.remote)
	s.serveDevice(ctx, conn, session)

	close(conn.done)
	s.dispatcher.Disconnect(context.WithoutCancel(ctx), session)
}

func (s *Server) serveDevice(ctx context.Context, conn *deviceConn, session *protocol.Session) {
	ws := conn.ws
	ws.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	deadline := keepaliveWindow(s.wsCfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("device read error", "remote", conn.remote, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		ws.SetReadDeadline(time.Now().Add(deadline))

		enc := protocol.JSON
		if msgType == websocket.BinaryMessage {
			enc = protocol.CBOR
		}
		conn.enc.Store(int32(enc))

		reply, err := s.dispatcher.HandleFrame(ctx, session, enc, data)
		if reply == nil {
			s.logger.Error("device reply not encodable", "remote", conn.remote, "error", err)
			continue
		}
		if err := conn.enqueue(outFrame{enc: enc, data: reply}); err != nil {
			s.logger.Warn("device reply dropped", "remote", conn.remote, "error", err)
		}
	}
}

func pingInterval(cfg config.WebSocketConfig) time.Duration {
	if cfg.PingInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.PingInterval) * time.Second
}

func pongTimeout(cfg config.WebSocketConfig) time.Duration {
	if cfg.PongTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.PongTimeout) * time.Second
}

// keepaliveWindow is how long a connection may stay silent.
func keepaliveWindow(cfg config.WebSocketConfig) time.Duration {
	return pingInterval(cfg) + pongTimeout(cfg)
}

func splitChannels(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
