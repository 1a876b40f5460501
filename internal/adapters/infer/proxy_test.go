package infer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/DetectBench/internal/domain"
	engine "github.com/dkeye/DetectBench/internal/infer"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

// fakeEngine answers every frame with a one-row tensor result. With
// dropCapture the answer leaves capture_ts out.
func fakeEngine(t *testing.T, dropCapture bool) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h, payload, err := engine.DecodeFrame(data)
			if err != nil || string(payload) != "JPEGDATA" {
				continue
			}
			recv := *h.CaptureTS + 10
			res := map[string]any{
				"frame_id":     *h.FrameID,
				"capture_ts":   *h.CaptureTS,
				"recv_ts":      recv,
				"inference_ts": recv + 5,
				"output": map[string]any{
					"dims": []int{1, 1, 6},
					"data": []float64{320, 320, 64, 64, 0.9, 0.8},
				},
				"meta": map[string]any{"dx": 0, "dy": 0, "scale": 1, "size": 640},
			}
			if dropCapture {
				delete(res, "capture_ts")
			}
			b, _ := json.Marshal(res)
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func serveProxy(t *testing.T, p *Proxy) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ws/infer", func(c *gin.Context) { p.Handle(context.Background(), c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/infer?room=abcdefghij"
}

func TestProxyRoundTrip(t *testing.T) {
	eng := fakeEngine(t, false)
	agg := telemetry.NewAggregator()
	p := NewProxy("ws"+strings.TrimPrefix(eng.URL, "http"), agg)

	conn, _, err := websocket.DefaultDialer.Dial(serveProxy(t, p), nil)
	require.NoError(t, err)
	defer conn.Close()

	frameID := int64(3)
	capture := float64(time.Now().UnixMilli() - 50)
	frame, err := engine.EncodeFrame(engine.FrameHeader{FrameID: &frameID, CaptureTS: &capture}, []byte("JPEGDATA"))
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ignored"}`)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("no delimiter")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var res domain.FrameResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.NotNil(t, res.FrameID)
	assert.Equal(t, frameID, *res.FrameID)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "person", res.Detections[0].Label)

	live := agg.Live()
	assert.Equal(t, 1, live.E2E.Count)
	assert.Equal(t, 1, live.Server.Count)
	assert.Equal(t, 5.0, live.Server.P50)
	assert.Equal(t, 10.0, live.Network.P50)
	assert.Greater(t, live.UplinkKbps, 0.0)
	assert.Greater(t, live.DownlinkKbps, 0.0)

	rec, ok := agg.Correlator().Latest("abcdefgh")
	require.True(t, ok)
	assert.Equal(t, capture, rec.CaptureTS)
}

func TestProxyFillsCaptureFromFrameHeader(t *testing.T) {
	eng := fakeEngine(t, true)
	agg := telemetry.NewAggregator()
	p := NewProxy("ws"+strings.TrimPrefix(eng.URL, "http"), agg)

	conn, _, err := websocket.DefaultDialer.Dial(serveProxy(t, p), nil)
	require.NoError(t, err)
	defer conn.Close()

	frameID := int64(9)
	capture := float64(time.Now().UnixMilli() - 40)
	frame, err := engine.EncodeFrame(engine.FrameHeader{FrameID: &frameID, CaptureTS: &capture}, []byte("JPEGDATA"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var res domain.FrameResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.NotNil(t, res.CaptureTS)
	assert.Equal(t, capture, *res.CaptureTS)
	assert.Equal(t, 1, agg.Live().E2E.Count)
}

func TestProxyClosesWhenEngineUnavailable(t *testing.T) {
	p := NewProxy("ws://unused", telemetry.NewAggregator())
	p.Dial = func(context.Context, string) (*engine.Client, error) {
		return nil, errors.New("connection refused")
	}

	conn, _, err := websocket.DefaultDialer.Dial(serveProxy(t, p), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseInternalServerErr, ce.Code)
}
