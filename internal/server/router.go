package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/rahulrsolguruz/chat-app-api/internal/auth"
	"github.com/rahulrsolguruz/chat-app-api/internal/config"
	"github.com/rahulrsolguruz/chat-app-api/internal/metrics"
	"github.com/rahulrsolguruz/chat-app-api/internal/mw"
	"github.com/rahulrsolguruz/chat-app-api/internal/service"
	"github.com/rahulrsolguruz/chat-app-api/internal/ws"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, wsRouter *ws.Router, reg *ws.Registry, rooms *ws.Rooms) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.CORS(cfg.Env, cfg.CORSOrigins))
	r.Use(metrics.GinMiddleware())
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	h := NewHandler(
		service.NewUserService(db, cfg),
		service.NewContactService(db, reg),
		service.NewGroupService(db, reg, rooms),
		service.NewMessageService(db),
		service.NewAdminService(db),
		service.NewMediaService(db, cfg),
	)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	// 认证接口用纯 IP 键单独限速，压住撞库尝试。
	authAPI := api.Group("/auth")
	authAPI.Use(mw.RateLimitKeyed(rate.Every(time.Second), 10, mw.ClientIPKey))
	authAPI.POST("/register", h.Register)
	authAPI.POST("/login", h.Login)
	authAPI.POST("/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/users/me", h.Profile)
	authed.PUT("/users/me", h.UpdateProfile)
	authed.GET("/users/:id/presence", h.Presence)

	authed.POST("/contacts", h.AddContact)
	authed.GET("/contacts", h.ListContacts)

	authed.POST("/groups", h.CreateGroup)
	authed.GET("/groups", h.ListGroups)
	authed.GET("/groups/:id/members", h.GroupMembers)
	authed.GET("/groups/:id/messages", h.GroupMessages)

	authed.GET("/messages/:peer_id", h.DirectMessages)

	authed.POST("/media", h.UploadMedia)

	admin := authed.Group("/admin")
	admin.Use(auth.AdminOnly())
	admin.GET("/activity", h.AdminActivity)
	admin.GET("/overview", h.AdminOverview)

	r.GET("/ws", ws.Serve(wsRouter, cfg))
	r.Static("/media", cfg.MediaDir)

	return r
}
