package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/aiboard/config"
	"github.com/cppla/aiboard/controllers"
	"github.com/cppla/aiboard/middleware"
	"github.com/cppla/aiboard/services"
	"github.com/cppla/aiboard/utils"
)

// multipart bodies above this are spooled to temporary files
const maxMultipartMemory = 8 << 20

const apiBoardPath = "/api/v1/board"

// toAPI redirects a front-end board path to the matching API route, keeping the query.
func toAPI(ctx *gin.Context) {
	target := apiBoardPath + strings.TrimPrefix(ctx.Request.URL.Path, services.ListPath)
	if q := ctx.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}
	ctx.Redirect(http.StatusFound, target)
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, board *controllers.BoardController) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory
	r.Use(middleware.RequestID())
	// Access log goes to its own rolling file, or the application logger when GIN_PATH is empty
	gl := utils.Logger
	if cfg.GinPath != "" {
		var err error
		gl, err = utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err != nil {
			utils.Sugar.Warnf("gin logger unavailable, falling back to app logger: %v", err)
			gl = utils.Logger
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/files/:name", board.Download)

	// navigation targets and pager links use these paths
	front := r.Group(services.ListPath)
	front.GET("", toAPI)
	front.GET("/delete-completed", toAPI)
	front.GET("/:id", toAPI)
	front.GET("/:id/edit", toAPI)
	front.GET("/:id/delete", toAPI)

	boardGroup := r.Group(apiBoardPath)
	boardGroup.GET("", board.List)
	boardGroup.GET("/delete-completed", board.DeleteCompleted)
	boardGroup.GET("/:id", board.Detail)
	boardGroup.GET("/:id/edit", board.EditForm)
	boardGroup.GET("/:id/delete", board.DeleteForm)

	mutating := boardGroup.Group("")
	mutating.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	mutating.POST("", board.Write)
	mutating.POST("/:id/edit", board.Edit)
	mutating.POST("/:id/delete", board.Delete)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	})

	return r
}
