package repository

import (
	"context"
	"time"

	"github.com/atelier-cms/internal/models"

	"gorm.io/gorm"
)

// LoginAttemptListFilter 查询登录失败记录的过滤条件
type LoginAttemptListFilter struct {
	Page        int
	PageSize    int
	Username    string
	ClientIP    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// LoginAttemptRepository 登录失败记录数据访问接口
type LoginAttemptRepository interface {
	Create(ctx context.Context, attempt *models.LoginAttempt) error
	CountByUsernameSince(ctx context.Context, username string, since time.Time) (int64, error)
	CountByClientIPSince(ctx context.Context, clientIP string, since time.Time) (int64, error)
	DeleteByUsername(ctx context.Context, username string) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	List(ctx context.Context, filter LoginAttemptListFilter) ([]models.LoginAttempt, int64, error)
}

// GormLoginAttemptRepository GORM 实现
type GormLoginAttemptRepository struct {
	db *gorm.DB
}

// NewLoginAttemptRepository 创建登录失败记录仓库
func NewLoginAttemptRepository(db *gorm.DB) *GormLoginAttemptRepository {
	return &GormLoginAttemptRepository{db: db}
}

// Create 插入一条失败记录
func (r *GormLoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

// CountByUsernameSince 统计窗口内某账号的失败次数
func (r *GormLoginAttemptRepository) CountByUsernameSince(ctx context.Context, username string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("username = ? AND created_at >= ?", username, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByClientIPSince 统计窗口内某来源地址的失败次数
func (r *GormLoginAttemptRepository) CountByClientIPSince(ctx context.Context, clientIP string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("client_ip = ? AND created_at >= ?", clientIP, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteByUsername 清空某账号的失败历史（登录成功后调用）
func (r *GormLoginAttemptRepository) DeleteByUsername(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	return r.db.WithContext(ctx).Where("username = ?", username).Delete(&models.LoginAttempt{}).Error
}

// DeleteBefore 清理窗口外的历史记录
func (r *GormLoginAttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.LoginAttempt{})
	return result.RowsAffected, result.Error
}

// List 管理端查询登录失败记录
func (r *GormLoginAttemptRepository) List(ctx context.Context, filter LoginAttemptListFilter) ([]models.LoginAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.LoginAttempt{})
	if filter.Username != "" {
		query = query.Where("username = ?", filter.Username)
	}
	if filter.ClientIP != "" {
		query = query.Where("client_ip = ?", filter.ClientIP)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var attempts []models.LoginAttempt
	if err := query.Order("id desc").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}
