package service

import (
	"context"

	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/repository"
)

// AuditService 登录审计服务
type AuditService struct {
	attemptRepo repository.LoginAttemptRepository
}

// NewAuditService 创建登录审计服务
func NewAuditService(attemptRepo repository.LoginAttemptRepository) *AuditService {
	return &AuditService{attemptRepo: attemptRepo}
}

// ListLoginAttempts 分页查询登录尝试记录
func (s *AuditService) ListLoginAttempts(ctx context.Context, filter repository.LoginAttemptListFilter) ([]models.LoginAttempt, int64, error) {
	return s.attemptRepo.List(ctx, filter)
}
