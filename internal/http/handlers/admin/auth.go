package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/http/response"
	"github.com/atelier-cms/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username       string                       `json:"username" binding:"required"`
	Password       string                       `json:"password" binding:"required"`
	CaptchaPayload service.CaptchaVerifyPayload `json:"captcha_payload"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	CSRFToken string                 `json:"csrf_token"`
	ExpiresAt string                 `json:"expires_at"`
	User      map[string]interface{} `json:"user"`
}

func setSessionCookie(c *gin.Context, cfg *config.Config, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Session.CookieName, token, int(ttl.Seconds()), "/", "", cfg.Session.CookieSecure, true)
}

func clearSessionCookie(c *gin.Context, cfg *config.Config) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Session.CookieName, "", -1, "/", "", cfg.Session.CookieSecure, true)
}

// AdminLogin 管理员登录
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	if h.CaptchaService != nil {
		if captchaErr := h.CaptchaService.Verify(constants.CaptchaSceneAdminLogin, req.CaptchaPayload); captchaErr != nil {
			switch {
			case errors.Is(captchaErr, service.ErrCaptchaRequired):
				respondError(c, response.CodeBadRequest, "需要验证码", nil)
				return
			case errors.Is(captchaErr, service.ErrCaptchaInvalid):
				respondError(c, response.CodeBadRequest, "验证码错误", nil)
				return
			default:
				respondError(c, response.CodeInternal, "验证码校验失败", captchaErr)
				return
			}
		}
	}

	admin, session, err := h.AuthService.Login(c.Request.Context(), service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: getRequestID(c),
	})
	if err != nil {
		var rateErr *service.RateLimitedError
		switch {
		case errors.As(err, &rateErr):
			c.Header("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
			respondError(c, response.CodeTooManyRequests, rateErr.Error(), nil)
			return
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, response.CodeUnauthorized, "无效的用户名或密码", nil)
			return
		default:
			respondError(c, response.CodeInternal, "登录失败", err)
			return
		}
	}

	setSessionCookie(c, h.Config, session.Token, time.Until(session.ExpiresAt))

	response.Success(c, LoginResponse{
		Token:     session.Token,
		CSRFToken: session.CSRFToken,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User: map[string]interface{}{
			"id":                    admin.ID,
			"username":              admin.Username,
			"role":                  admin.Role,
			"force_password_change": admin.ForcePasswordChange,
		},
	})
}

// GetAdminMe 获取当前登录管理员信息
func (h *Handler) GetAdminMe(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		return
	}
	response.Success(c, gin.H{
		"id":                    identity.AdminID,
		"username":              identity.Username,
		"role":                  identity.Role,
		"force_password_change": identity.ForcePasswordChange,
		"session_id":            identity.SessionID,
		"csrf_token":            identity.CSRFToken,
	})
}

// AdminLogout 注销当前会话
func (h *Handler) AdminLogout(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		return
	}
	if err := h.AuthService.Logout(c.Request.Context(), identity.SessionToken); err != nil {
		respondError(c, response.CodeInternal, "注销失败", err)
		return
	}
	clearSessionCookie(c, h.Config)
	response.Success(c, nil)
}

// AdminLogoutAll 撤销当前管理员的全部会话
func (h *Handler) AdminLogoutAll(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}
	if err := h.AuthService.RevokeAll(c.Request.Context(), id); err != nil {
		respondError(c, response.CodeInternal, "注销失败", err)
		return
	}
	clearSessionCookie(c, h.Config)
	response.Success(c, nil)
}

// UpdatePasswordRequest 修改密码请求
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdateAdminPassword 修改管理员密码
// 修改成功后旧会话全部失效，调用方需重新登录。
func (h *Handler) UpdateAdminPassword(c *gin.Context) {
	id, ok := getAdminID(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	if err := h.AuthService.ChangePassword(c.Request.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidPassword) {
			respondError(c, response.CodeBadRequest, "旧密码不正确", nil)
			return
		}
		if errors.Is(err, service.ErrWeakPassword) {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "账号不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "保存失败", err)
		return
	}

	clearSessionCookie(c, h.Config)
	response.Success(c, nil)
}

// SessionItem 会话列表条目
type SessionItem struct {
	ID           uint   `json:"id"`
	IPAddress    string `json:"ip_address"`
	UserAgent    string `json:"user_agent"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	ExpiresAt    string `json:"expires_at"`
	Current      bool   `json:"current"`
}

// GetAdminSessions 获取当前管理员的活动会话列表
func (h *Handler) GetAdminSessions(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		return
	}

	sessions, err := h.AuthService.ListSessions(c.Request.Context(), identity.AdminID)
	if err != nil {
		respondError(c, response.CodeInternal, "会话列表获取失败", err)
		return
	}

	items := make([]SessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, SessionItem{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt.Format(time.RFC3339),
			LastActivity: s.LastActivity.Format(time.RFC3339),
			ExpiresAt:    s.ExpiresAt.Format(time.RFC3339),
			Current:      s.ID == identity.SessionID,
		})
	}
	response.Success(c, items)
}

// DeleteAdminSession 删除当前管理员的指定会话
func (h *Handler) DeleteAdminSession(c *gin.Context) {
	identity, ok := getIdentity(c)
	if !ok {
		return
	}

	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID == 0 {
		respondError(c, response.CodeBadRequest, "请求参数错误", nil)
		return
	}

	if err := h.AuthService.DeleteSession(c.Request.Context(), identity.AdminID, uint(sessionID)); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "会话不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "会话删除失败", err)
		return
	}
	response.Success(c, nil)
}

func getRequestID(c *gin.Context) string {
	if value, ok := c.Get("request_id"); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}
