package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"roomchat/backend/internal/chat"
	"roomchat/backend/internal/chathub"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the HTTP surface.
type Options struct {
	// AllowedOrigins lists browser origins for CORS and WebSocket upgrades.
	// A "*" entry allows any origin.
	AllowedOrigins []string
	// RequestTimeout bounds the handling of one REST request.
	RequestTimeout time.Duration
}

// Handler serves the REST API and the WebSocket endpoint.
type Handler struct {
	Hub      *chathub.Hub
	Chat     *chat.Service
	Verifier chathub.IdentityVerifier

	db       Pinger
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(hub *chathub.Hub, svc *chat.Service, verifier chathub.IdentityVerifier, db Pinger, log *slog.Logger, opts Options) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &Handler{
		Hub:      hub,
		Chat:     svc,
		Verifier: verifier,
		db:       db,
		log:      log.With("component", "http"),
		opts:     opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// NewRouter registers every route on a fresh gin engine.
func (h *Handler) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())
	r.Use(cors.New(h.corsConfig()))

	r.GET("/healthz", h.Health)
	r.GET("/connect", h.ServeWebSocket)

	v1 := r.Group("/v1/chat", h.RequireIdentity(), h.withTimeout())
	{
		v1.POST("/room/group/create", h.CreateGroupRoom)
		v1.GET("/room/group/list", h.ListGroupRooms)
		v1.POST("/room/group/:roomId/join", h.JoinGroupRoom)
		v1.DELETE("/room/group/:roomId/leave", h.LeaveGroupRoom)
		v1.POST("/room/private/create", h.GetOrCreatePrivateRoom)
		v1.GET("/history/:roomId", h.GetHistory)
		v1.POST("/room/:roomId/read", h.MarkRoomRead)
		v1.GET("/my/rooms", h.ListMyRooms)
	}
	return r
}

// Health answers liveness probes after pinging the database.
func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.log.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms_online": h.Hub.Registry.Rooms()})
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(h.opts.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = h.opts.AllowedOrigins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, origin)
}

func (h *Handler) withTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
