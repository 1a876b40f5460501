package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/DetectBench/internal/app/orch"
	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	defaultPingPeriod = 54 * time.Second
	defaultReadLimit  = 1 << 20
	defaultSendBuffer = 64
)

type SignalWSController struct {
	Orch       *orch.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, readLimit int64, pingPeriod time.Duration, sendBuffer int) *SignalWSController {
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &SignalWSController{Orch: o, ReadLimit: readLimit, PingPeriod: pingPeriod, SendBuffer: sendBuffer}
}

// pongWait must exceed the ping period.
func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.PingPeriod * 10 / 9
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until either side closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendBuffer),
	}
	meta := domain.NewMember(c.GetString("client_token"), c.ClientIP())
	sess := core.NewMemberSession(meta, conn)
	sid := sess.ID()
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("remote", meta.RemoteAddr).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.OnConnect(sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
