package service

import (
	"errors"
	"fmt"
	"time"
)

// 错误分类
// 会话类错误对外一律折叠为“未认证”，具体原因只进入审计日志。
var (
	ErrInvalidCredentials = errors.New("无效的用户名或密码")
	ErrRateLimited        = errors.New("登录尝试过于频繁")
	ErrNoSession          = errors.New("会话不存在")
	ErrSessionExpired     = errors.New("会话已过期")
	ErrSessionRevoked     = errors.New("会话已被撤销")
	ErrSessionOrphaned    = errors.New("会话所属账号不存在")
	ErrStoreUnavailable   = errors.New("存储暂不可用")
	ErrCSRFMismatch       = errors.New("CSRF 校验失败")
	ErrInvalidPassword    = errors.New("旧密码不正确")
	ErrWeakPassword       = errors.New("密码强度不足")
	ErrNotFound           = errors.New("记录不存在")
	ErrUsernameExists     = errors.New("用户名已存在")
	ErrCaptchaRequired    = errors.New("需要验证码")
	ErrCaptchaInvalid     = errors.New("验证码错误")
)

// RateLimitedError 登录限流错误，携带建议的重试等待时长
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("登录尝试过于频繁，请 %d 秒后重试", int(e.RetryAfter.Seconds()))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
