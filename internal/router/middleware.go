package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/http/response"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"
const requestIDHeader = "X-Request-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig, csrfHeader string) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
		}
	}
	if csrfHeader != "" && !containsFold(allowedHeaders, csrfHeader) {
		allowedHeaders = append(allowedHeaders, csrfHeader)
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			entry.Errorw("request", "errors", c.Errors.String())
			return
		}
		entry.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

// extractSessionToken 从 Cookie 或 Authorization 头提取会话令牌
// Cookie 优先；Bearer 形式留给非浏览器调用方。
func extractSessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SessionAuthMiddleware 会话鉴权中间件
// 所有失败对外统一折叠为“未认证”，具体原因只写入审计日志。
func SessionAuthMiddleware(cfg *config.Config, authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authSvc == nil {
			response.Unauthorized(c, "未认证")
			c.Abort()
			return
		}

		token := extractSessionToken(c, cfg.Session.CookieName)

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Session.StoreTimeout())
		identity, err := authSvc.Validate(ctx, token, c.ClientIP())
		cancel()
		if err != nil {
			logger.Warnw("session_rejected",
				"reason", rejectReason(err),
				"request_id", getRequestID(c),
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			response.Unauthorized(c, "未认证")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyAdminID, identity.AdminID)
		c.Set(constants.ContextKeyUsername, identity.Username)
		c.Set(constants.ContextKeyRole, identity.Role)
		c.Set(constants.ContextKeyForcePasswordChange, identity.ForcePasswordChange)
		c.Set(constants.ContextKeySessionIdentity, identity)
		c.Next()
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionExpired):
		return constants.SessionRejectExpired
	case errors.Is(err, service.ErrSessionRevoked):
		return constants.SessionRejectRevoked
	case errors.Is(err, service.ErrSessionOrphaned):
		return constants.SessionRejectOrphaned
	case errors.Is(err, service.ErrStoreUnavailable):
		return constants.SessionRejectStoreUnavailable
	default:
		return constants.SessionRejectNoSession
	}
}

// identityFromContext 取出鉴权中间件写入的身份信息
func identityFromContext(c *gin.Context) (*service.Identity, bool) {
	value, ok := c.Get(constants.ContextKeySessionIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := value.(*service.Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// CSRFMiddleware CSRF 防护中间件
// 只拦截变更类方法；校验失败仅拒绝该次请求，会话继续有效。
func CSRFMiddleware(cfg *config.Config, authSvc *service.AuthService) gin.HandlerFunc {
	headerName := cfg.Session.CSRFHeader
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH", "DELETE":
		default:
			c.Next()
			return
		}

		identity, ok := identityFromContext(c)
		if !ok {
			response.Unauthorized(c, "未认证")
			c.Abort()
			return
		}

		supplied := c.GetHeader(headerName)
		if err := authSvc.VerifyCSRF(identity, supplied); err != nil {
			logger.Warnw("csrf_rejected",
				"admin_id", identity.AdminID,
				"session_id", identity.SessionID,
				"request_id", getRequestID(c),
				"path", c.Request.URL.Path,
			)
			response.Forbidden(c, "CSRF 校验失败")
			c.Abort()
			return
		}

		c.Next()
	}
}

// 强制改密期间仍可访问的路由
var forcePasswordChangeAllowlist = map[string]struct{}{
	"/api/v1/admin/me":         {},
	"/api/v1/admin/password":   {},
	"/api/v1/admin/logout":     {},
	"/api/v1/admin/logout-all": {},
}

// ForcePasswordChangeGuard 强制改密拦截中间件
// 账号被标记 force_password_change 后，除改密与注销外一律拒绝。
func ForcePasswordChangeGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			response.Unauthorized(c, "未认证")
			c.Abort()
			return
		}
		if !identity.ForcePasswordChange {
			c.Next()
			return
		}
		if _, allowed := forcePasswordChangeAllowlist[c.FullPath()]; allowed {
			c.Next()
			return
		}
		response.Forbidden(c, "请先修改初始密码")
		c.Abort()
		return
	}
}
