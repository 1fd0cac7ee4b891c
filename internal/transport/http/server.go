package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"datasteward/internal/bootstrap"
	"datasteward/internal/transport/http/handler"
	"datasteward/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app)...)
	router.GET("/healthz", healthHandler.Check)

	var revoked middleware.RevocationChecker
	if app.Denylist != nil {
		revoked = app.Denylist
	}
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret, revoked)

	authHandler := handler.NewAuthHandler(app.Auth)
	dataSourceHandler := handler.NewDataSourceHandler(app.Catalog, app.DataChat, app.Auth, int64(app.Config.Catalog.MaxUploadMB)<<20)
	dataChatHandler := handler.NewDataChatHandler(app.DataChat, app.Catalog)
	teamChatHandler := handler.NewTeamChatHandler(app.TeamChat, app.Auth, app.Broker)
	analysisHandler := handler.NewAnalysisHandler(app.Analysis, app.Dashboard)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", requireAuth, authHandler.Logout)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	secured := v1.Group("")
	secured.Use(requireAuth)

	secured.GET("/profile", authHandler.GetProfile)
	secured.PUT("/profile", authHandler.UpdateProfile)
	secured.GET("/dashboard", analysisHandler.Dashboard)
	secured.POST("/analysis/query", analysisHandler.Query)

	sources := secured.Group("/data-sources")
	sources.GET("", dataSourceHandler.List)
	sources.GET("/search", dataSourceHandler.Search)
	sources.POST("", dataSourceHandler.Upload)
	sources.DELETE("/:id", dataSourceHandler.Delete)

	dataChat := secured.Group("/data-chat")
	dataChat.GET("", dataChatHandler.Transcript)
	dataChat.POST("/select", dataChatHandler.Select)
	dataChat.POST("/ask", dataChatHandler.Ask)
	dataChat.POST("/report", dataChatHandler.Report)

	teamChat := secured.Group("/chat")
	teamChat.GET("/channels", teamChatHandler.Channels)
	teamChat.GET("/ws", teamChatHandler.Connect)

	return router
}

func healthChecks(app *bootstrap.App) []handler.DependencyCheck {
	var checks []handler.DependencyCheck
	if app.MySQL != nil {
		checks = append(checks, handler.DependencyCheck{Name: "mysql", Check: func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if app.Redis != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}})
	}
	if app.MQConn != nil {
		checks = append(checks, handler.DependencyCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	}
	if app.Objects != nil {
		checks = append(checks, handler.DependencyCheck{Name: "minio", Check: app.Objects.Ping})
	}
	return checks
}
