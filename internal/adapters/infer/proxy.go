// Package infer bridges browser websockets to the remote inference service.
package infer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/DetectBench/internal/domain"
	engine "github.com/dkeye/DetectBench/internal/infer"
	"github.com/dkeye/DetectBench/internal/metrics"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

const (
	writeWait     = 10 * time.Second
	maxFrameSize  = 8 * 1024 * 1024
	dialTimeout   = 5 * time.Second
	directionUp   = "up"
	directionDown = "down"
)

type DialFunc func(ctx context.Context, url string) (*engine.Client, error)

type Proxy struct {
	URL       string
	Telemetry *telemetry.Aggregator
	Dial      DialFunc
	now       func() time.Time
}

func NewProxy(url string, agg *telemetry.Aggregator) *Proxy {
	return &Proxy{URL: url, Telemetry: agg, Dial: engine.Dial, now: time.Now}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 16 * 1024,
}

type browserConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (b *browserConn) writeText(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *browserConn) closeWith(code int, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = b.conn.Close()
}

// Handle serves one browser connection for the room named by ?room=.
func (p *Proxy) Handle(ctx context.Context, c *gin.Context) {
	room := domain.NormalizeRoomID(c.Query("room"))
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.infer").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(maxFrameSize)
	browser := &browserConn{conn: ws}

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	client, err := p.Dial(dialCtx, p.URL)
	cancelDial()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.infer").Str("room", string(room)).Msg("inference service unavailable")
		browser.closeWith(websocket.CloseInternalServerErr, "inference unavailable")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		err := client.Run(ctx, func(raw []byte) { p.onResult(room, browser, raw) })
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("module", "adapters.infer").Str("room", string(room)).Msg("inference stream ended")
		}
	}()
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	log.Info().Str("module", "adapters.infer").Str("room", string(room)).Msg("proxy started")
	p.forwardFrames(ctx, room, ws, client)
	_ = client.Close()
	browser.closeWith(websocket.CloseNormalClosure, "")
	log.Info().Str("module", "adapters.infer").Str("room", string(room)).Msg("proxy closed")
}

func (p *Proxy) forwardFrames(ctx context.Context, room domain.RoomID, ws *websocket.Conn, client *engine.Client) {
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "adapters.infer").Msg("browser read error")
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		h, _, err := engine.DecodeFrame(data)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.infer").Msg("frame skipped")
			continue
		}
		if p.Telemetry != nil {
			p.Telemetry.AddUplink(len(data))
			if h.FrameID != nil {
				corr := p.Telemetry.Correlator()
				if domain.Has(h.CaptureTS) {
					corr.Capture(room, *h.FrameID, *h.CaptureTS)
				}
				corr.Received(room, *h.FrameID, float64(p.now().UnixMilli()))
			}
		}
		metrics.RecordInferBytes(directionUp, len(data))
		if err := client.Send(data); err != nil {
			log.Warn().Err(err).Str("module", "adapters.infer").Msg("forward frame")
			return
		}
	}
}

func (p *Proxy) onResult(room domain.RoomID, browser *browserConn, raw []byte) {
	metrics.RecordInferBytes(directionDown, len(raw))
	if p.Telemetry != nil {
		p.Telemetry.AddDownlink(len(raw))
	}
	res, err := engine.ParseResult(raw)
	if err != nil {
		log.Debug().Err(err).Str("module", "adapters.infer").Msg("result skipped")
		return
	}
	if p.Telemetry != nil {
		res = p.Telemetry.Observe(room, res)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := browser.writeText(out); err != nil {
		log.Debug().Err(err).Str("module", "adapters.infer").Msg("write result")
	}
}
