package service

import (
	"context"
	"time"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/repository"
)

// CleanupService 会话与审计数据清理服务
type CleanupService struct {
	cfg         *config.Config
	sessionRepo repository.SessionRepository
	attemptRepo repository.LoginAttemptRepository
}

// NewCleanupService 创建清理服务
func NewCleanupService(
	cfg *config.Config,
	sessionRepo repository.SessionRepository,
	attemptRepo repository.LoginAttemptRepository,
) *CleanupService {
	return &CleanupService{
		cfg:         cfg,
		sessionRepo: sessionRepo,
		attemptRepo: attemptRepo,
	}
}

// SweepExpiredSessions 删除所有已过期的会话行
func (s *CleanupService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := s.sessionRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Infow("expired_sessions_swept", "removed", removed)
	}
	return removed, nil
}

// PurgeLoginAttempts 删除超过保留期的登录尝试记录
func (s *CleanupService) PurgeLoginAttempts(ctx context.Context) (int64, error) {
	retention := time.Duration(s.cfg.Security.AttemptRetentionHours) * time.Hour
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	removed, err := s.attemptRepo.DeleteBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Infow("login_attempts_purged", "removed", removed)
	}
	return removed, nil
}

// PurgeSupersededSessions 删除版本号落后的会话行
// 由撤销事件触发的后台任务调用。
func (s *CleanupService) PurgeSupersededSessions(ctx context.Context, adminID uint, tokenVersion uint64) (int64, error) {
	removed, err := s.sessionRepo.DeleteSuperseded(ctx, adminID, tokenVersion)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Infow("superseded_sessions_purged", "admin_id", adminID, "token_version", tokenVersion, "removed", removed)
	}
	return removed, nil
}
