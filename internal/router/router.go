package router

import (
	"fmt"
	"strings"

	"github.com/atelier-cms/internal/config"
	adminhandlers "github.com/atelier-cms/internal/http/handlers/admin"
	publichandlers "github.com/atelier-cms/internal/http/handlers/public"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ac"
	}
	var redisClient *redis.Client
	if c.Cache != nil && c.Cache.Enabled() {
		redisClient = c.Cache.Client()
	}
	// 边缘限流只是数据库精确计数前的粗粒度挡板，窗口按源地址放宽
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts * 4,
		Message:       "登录尝试过于频繁",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS, cfg.Session.CSRFHeader))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/captcha/image", publicHandler.GetImageCaptcha)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(
				SessionAuthMiddleware(cfg, c.AuthService),
				CSRFMiddleware(cfg, c.AuthService),
				ForcePasswordChangeGuard(),
			)
			{
				authorized.GET("/me", adminHandler.GetAdminMe)
				authorized.POST("/logout", adminHandler.AdminLogout)
				authorized.POST("/logout-all", adminHandler.AdminLogoutAll)
				authorized.PUT("/password", adminHandler.UpdateAdminPassword)

				// 会话管理
				authorized.GET("/sessions", adminHandler.GetAdminSessions)
				authorized.DELETE("/sessions/:id", adminHandler.DeleteAdminSession)

				// 账号管理
				authorized.GET("/admins", adminHandler.GetAdmins)
				authorized.GET("/admins/:id", adminHandler.GetAdmin)
				authorized.POST("/admins", adminHandler.CreateAdmin)
				authorized.PUT("/admins/:id", adminHandler.UpdateAdmin)
				authorized.DELETE("/admins/:id", adminHandler.DeleteAdmin)

				// 登录审计
				authorized.GET("/login-attempts", adminHandler.GetLoginAttempts)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
