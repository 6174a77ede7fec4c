package service

import (
	"context"
	"strings"
	"time"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/repository"
)

// LoginLimiter 登录限流器
// 在任何密码比较之前执行：先落一条尝试记录，再统计窗口内的次数。
// 当前尝试计入统计，因此阈值为 5 时第 5 次尝试即被拒绝。
// 读取计数与插入记录之间不加锁，竞态下多放行一两次是可接受的取舍。
type LoginLimiter struct {
	cfg         config.LoginRateLimitConfig
	attemptRepo repository.LoginAttemptRepository
}

// NewLoginLimiter 创建登录限流器
func NewLoginLimiter(cfg config.LoginRateLimitConfig, attemptRepo repository.LoginAttemptRepository) *LoginLimiter {
	return &LoginLimiter{
		cfg:         cfg,
		attemptRepo: attemptRepo,
	}
}

// AttemptInput 一次登录尝试的上下文
type AttemptInput struct {
	Username  string
	ClientIP  string
	UserAgent string
	RequestID string
}

// CheckAndRecordAttempt 记录本次尝试并判断是否放行
// 返回 allow=false 时附带建议的冷却时长；不暴露账号是否存在。
func (l *LoginLimiter) CheckAndRecordAttempt(ctx context.Context, input AttemptInput) (bool, time.Duration, error) {
	if l == nil || l.attemptRepo == nil {
		return true, 0, nil
	}
	username := strings.TrimSpace(input.Username)

	attempt := &models.LoginAttempt{
		Username:  username,
		ClientIP:  input.ClientIP,
		UserAgent: input.UserAgent,
		RequestID: input.RequestID,
	}
	if err := l.attemptRepo.Create(ctx, attempt); err != nil {
		return false, 0, err
	}

	since := time.Now().Add(-l.cfg.Window())
	count, err := l.attemptRepo.CountByUsernameSince(ctx, username, since)
	if err != nil {
		return false, 0, err
	}
	if l.cfg.BySourceAddress && input.ClientIP != "" {
		ipCount, err := l.attemptRepo.CountByClientIPSince(ctx, input.ClientIP, since)
		if err != nil {
			return false, 0, err
		}
		if ipCount > count {
			count = ipCount
		}
	}

	threshold := int64(l.maxAttempts())
	if count >= threshold {
		return false, l.cfg.Cooldown(), nil
	}
	return true, 0, nil
}

// ClearHistory 清空某账号的失败历史（登录成功后调用）
func (l *LoginLimiter) ClearHistory(ctx context.Context, username string) error {
	if l == nil || l.attemptRepo == nil {
		return nil
	}
	return l.attemptRepo.DeleteByUsername(ctx, strings.TrimSpace(username))
}

func (l *LoginLimiter) maxAttempts() int {
	if l.cfg.MaxAttempts > 0 {
		return l.cfg.MaxAttempts
	}
	return 5
}
