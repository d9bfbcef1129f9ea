package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/betareaderbr/betareader/config"
	"github.com/betareaderbr/betareader/controllers"
	"github.com/betareaderbr/betareader/middleware"
	"github.com/betareaderbr/betareader/pixel"
	"github.com/betareaderbr/betareader/utils"
)

// PixelSink picks the Conversions API when credentials are configured and
// falls back to logging the events.
func PixelSink(cfg config.AppConfig) pixel.Sink {
	if cfg.PixelID != "" && cfg.PixelAccessToken != "" {
		return &pixel.ConversionsAPISink{
			PixelID:       cfg.PixelID,
			AccessToken:   cfg.PixelAccessToken,
			TestEventCode: cfg.PixelTestEventCode,
			APIVersion:    cfg.PixelAPIVersion,
			HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		}
	}
	return pixel.LogSink{Logger: utils.Logger.Named("pixel")}
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, true))
	} else {
		utils.Sugar.Warnf("gin logger unavailable, using default recovery: %v", err)
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "If-Match", middleware.IdentityHeader, controllers.SessionHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// Credentials cannot be combined with a wildcard origin.
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))
	r.Use(middleware.UTMCapture())
	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	r.Static("/static", "./static")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db)
	userController := controllers.NewUserController(db)
	bookController := controllers.NewBookController(db)
	friendController := controllers.NewFriendshipController(db)
	trackController := controllers.NewTrackController(PixelSink(cfg), cfg.PublicBaseURL)
	statsController := controllers.NewStatsController(db)
	configController := controllers.NewConfigController()

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	api.GET("/books", bookController.ListBooks)
	api.GET("/books/:slug", bookController.GetBook)

	// Public stats and config endpoints
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/plans", configController.GetPlans)
	api.GET("/config/notice", configController.GetNotice)

	api.POST("/track/:event", middleware.OptionalAuth(), middleware.RateLimitPerMinute(cfg.RateLimitPerMinute*2), trackController.Track)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	protected.GET("/users/me/data", userController.GetData)
	protected.PUT("/users/me/data", userController.PutData)
	protected.GET("/users/me/stats", userController.GetStats)
	protected.PATCH("/users/me/plan", userController.SelectPlan)
	protected.PATCH("/users/me/goal", userController.UpdateGoal)
	protected.POST("/users/me/withdraw", userController.Withdraw)
	protected.POST("/books/:slug/complete", bookController.CompleteBook)

	protected.GET("/friendships", friendController.ListFriends)
	protected.POST("/friendships", friendController.SendRequest)
	protected.POST("/friendships/:id/accept", friendController.AcceptRequest)
	protected.DELETE("/friendships/:id", friendController.RemoveFriend)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// Client-side routes such as /dashboard or /livros/iracema load the SPA entry.
		ctx.Status(http.StatusOK)
		ctx.File("./static/index.html")
	})

	return r
}
