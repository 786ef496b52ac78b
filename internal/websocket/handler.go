package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medportal/internal/dashboard"
	"medportal/internal/events"
	"medportal/internal/proxy"
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"
	"medportal/pkg/logger"
)

const (
	readTimeout  = 60 * time.Second
	maxFrameSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves the live dashboard feed.
type Handler struct {
	auth   *services.AuthService
	hub    *Hub
	bus    *events.Bus
	lister dashboard.Lister
	access *proxy.AccessControl
	log    *logger.Logger
}

func NewHandler(auth *services.AuthService, hub *Hub, bus *events.Bus, lister dashboard.Lister, log *logger.Logger) *Handler {
	return &Handler{
		auth:   auth,
		hub:    hub,
		bus:    bus,
		lister: lister,
		access: proxy.NewAccessControl(),
		log:    logger.OrNop(log).Named("websocket"),
	}
}

// Connect upgrades GET /v1/ws?token=... and mounts a dashboard view for the
// session wallet. The view lives as long as the connection.
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.ParseAccessToken(extractToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("wallet", claims.Wallet), zap.Error(err))
		return
	}

	client := NewClient(conn, claims.Wallet, claims.Role)
	ctx, cancel := context.WithCancel(services.WithWallet(context.Background(), claims.Wallet, claims.Role))
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	view := dashboard.NewView(h.bus, h.lister, client, h.log)
	defer func() {
		view.Unmount()
		h.hub.Unregister(client)
	}()

	if err := view.Mount(ctx, claims.Wallet, claims.Role); err != nil {
		client.SendFrame(Frame{Type: FrameError, Error: "initial load failed"})
	}

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.log.With(ctx).Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleCommand(ctx, client, view, cmd)
	}
}

func (h *Handler) handleCommand(ctx context.Context, client *Client, view *dashboard.View, cmd Command) {
	switch cmd.Action {
	case "refresh":
		view.Refresh()
	case "watch":
		target := strings.TrimSpace(cmd.Wallet)
		role, err := h.access.CanWatch(client.Wallet, client.Role, target)
		if err != nil {
			client.SendFrame(Frame{Type: FrameError, Error: err.Error()})
			return
		}
		if err := view.Watch(ctx, target, role); err != nil {
			client.SendFrame(Frame{Type: FrameError, Error: "watch failed"})
		}
	default:
		client.SendFrame(Frame{Type: FrameError, Error: "unknown action"})
	}
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
