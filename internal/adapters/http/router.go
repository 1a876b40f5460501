package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	inferproxy "github.com/dkeye/DetectBench/internal/adapters/infer"
	"github.com/dkeye/DetectBench/internal/adapters/signal"
	"github.com/dkeye/DetectBench/internal/app/bench"
	"github.com/dkeye/DetectBench/internal/app/orch"
	"github.com/dkeye/DetectBench/internal/bootstrap"
	"github.com/dkeye/DetectBench/internal/config"
	"github.com/dkeye/DetectBench/internal/domain"
	"github.com/dkeye/DetectBench/internal/metrics"
	"github.com/dkeye/DetectBench/internal/telemetry"
)

const (
	sessionName    = "DetectBenchSession"
	sessionRoomKey = "room"
	maxBodySize    = 20 << 20

	roomCreateLimit    = 30
	roomCreateInterval = time.Minute
)

// Services is everything the HTTP surface talks to.
type Services struct {
	Orch      *orch.Orchestrator
	Bench     *bench.Controller
	Telemetry *telemetry.Aggregator
	Bootstrap *bootstrap.Bootstrapper
	Proxy     *inferproxy.Proxy
	Metrics   *prometheus.Registry
	Limiter   *RoomRateLimiter
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, s *Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.HTTPS,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	if s.Limiter == nil {
		s.Limiter = NewRoomRateLimiter(roomCreateLimit, roomCreateInterval)
	}
	sig := signal.NewSignalWSController(s.Orch, cfg.ReadLimit, cfg.PingPeriod, cfg.SendBuffer)
	h := &handlers{cfg: cfg, s: s}

	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			sig.HandleSignal(ctx, c)
			return
		}
		c.File(cfg.StaticPath + "/index.html")
	})
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.Metrics)))
	}

	api := r.Group("/api")
	api.GET("/health", h.health)
	api.POST("/room", h.createRoom)
	api.GET("/room", h.currentRoom)
	api.GET("/rooms", h.listRooms)
	api.POST("/bench/start", h.benchStart)
	api.POST("/bench/finish", h.benchFinish)
	api.GET("/bench/status", h.benchStatus)
	api.GET("/stats", h.stats)
	api.GET("/ws/signal", func(c *gin.Context) {
		sig.HandleSignal(ctx, c)
	})
	if s.Proxy != nil {
		api.GET("/ws/infer", func(c *gin.Context) {
			s.Proxy.Handle(ctx, c)
		})
	}

	static := http.FileServer(http.Dir(cfg.StaticPath))
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		static.ServeHTTP(c.Writer, c.Request)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

type handlers struct {
	cfg *config.Config
	s   *Services
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "mode": h.cfg.InferenceMode})
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
}

// decodeOptional unmarshals body into v; an empty body leaves v untouched.
func decodeOptional(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func bootstrapRequest(c *gin.Context) bootstrap.Request {
	return bootstrap.Request{Host: c.Request.Host, ForwardedProto: c.GetHeader("X-Forwarded-Proto")}
}

func (h *handlers) createRoom(c *gin.Context) {
	if !h.s.Limiter.Allow(c.GetString("client_token")) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many rooms"})
		return
	}
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decodeOptional(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	id := bootstrap.NewRoomID(req.RoomID)
	h.s.Orch.Rooms.GetOrCreate(id)
	links, err := h.s.Bootstrap.Links(id, bootstrapRequest(c))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("room links")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build links"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionRoomKey, string(id))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	log.Info().Str("module", "adapters.http").Str("room", string(id)).Str("phone_url", links.PhoneURL).Msg("room created")
	c.JSON(http.StatusOK, links)
}

func (h *handlers) currentRoom(c *gin.Context) {
	raw, _ := sessions.Default(c).Get(sessionRoomKey).(string)
	if raw == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no room"})
		return
	}
	links, err := h.s.Bootstrap.Links(domain.RoomID(raw), bootstrapRequest(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build links"})
		return
	}
	c.JSON(http.StatusOK, links)
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.s.Orch.Rooms.List()})
}

func (h *handlers) benchStart(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var req struct {
		Duration json.RawMessage `json:"duration"`
		Mode     string          `json:"mode"`
	}
	if err := decodeOptional(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	st := h.s.Bench.Start(bench.ParseDuration(req.Duration), req.Mode)
	c.JSON(http.StatusOK, gin.H{"ok": true, "duration": st.Duration, "mode": st.Mode})
}

func (h *handlers) benchFinish(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	loc, err := h.s.Bench.Finish(c.Request.Context(), body)
	switch {
	case errors.Is(err, bench.ErrInvalidReport):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("save client report")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to save metrics"})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "saved": loc})
	}
}

func (h *handlers) benchStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.s.Bench.Status())
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.s.Telemetry.Live())
}
