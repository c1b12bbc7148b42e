package web

import (
	"hydrowave/auth"
	"hydrowave/internal/commands"
	"hydrowave/internal/db"
	"hydrowave/internal/devices"
	"hydrowave/internal/web/api"
	"hydrowave/internal/web/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Engine is the decision engine surface the web layer needs: telemetry
// ingest plus rule change notifications.
type Engine interface {
	api.TelemetryEngine
	api.EngineNotifier
}

type WebServer struct {
	router *gin.Engine
}

func NewWebServer(dbConn *db.DB, redisClient *redis.Client, jwtSecret, deviceKey string, engine Engine, queue commands.Queue, tracker *devices.Tracker) *WebServer {
	router := gin.Default()

	authModule := auth.NewAuthModule(dbConn.Pool(), redisClient, jwtSecret)
	mw := middleware.NewMiddlewareManager(authModule, deviceKey)

	api.RegisterAuthRoutes(router, authModule, mw)
	api.RegisterCommandRoutes(router, mw, queue, tracker, dbConn)
	api.RegisterDeviceRoutes(router, mw, engine, tracker)
	api.RegisterRuleRoutes(router, mw, dbConn, engine)
	api.RegisterEngineRoutes(router, mw, dbConn)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return &WebServer{router: router}
}

func (ws *WebServer) Start(addr string) {
	ws.router.Run(addr)
}

// Router exposes the gin engine for the remote access agent.
func (ws *WebServer) Router() *gin.Engine {
	return ws.router
}
