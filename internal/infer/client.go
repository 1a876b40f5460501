package infer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second

	// Results may carry a raw output tensor.
	maxMessageSize = 10 * 1024 * 1024
)

// Client is a websocket connection to the inference service. Frames go out
// as binary messages, results come back as JSON text messages.
type Client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial inference %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	log.Info().Str("module", "infer.client").Str("url", url).Msg("connected to inference service")
	return &Client{conn: conn}, nil
}

// Send writes one encoded frame. Safe for concurrent use.
func (c *Client) Send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Run reads results until the connection fails or ctx is done.
// Non-text messages are ignored.
func (c *Client) Run(ctx context.Context, handle func(raw []byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read result: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

func (c *Client) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
