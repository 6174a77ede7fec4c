package repository

import (
	"context"
	"errors"
	"time"

	"github.com/atelier-cms/internal/models"

	"gorm.io/gorm"
)

// SessionRepository 会话数据访问接口
type SessionRepository interface {
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	GetByID(ctx context.Context, id uint) (*models.Session, error)
	ListByAdmin(ctx context.Context, adminID uint) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	UpdateLastActivity(ctx context.Context, id uint, at time.Time) error
	Delete(ctx context.Context, id uint) error
	DeleteByToken(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	DeleteSuperseded(ctx context.Context, adminID uint, currentTokenVersion uint64) (int64, error)
}

// GormSessionRepository GORM 实现
type GormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// GetByToken 根据令牌获取会话
func (r *GormSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetByID 根据 ID 获取会话
func (r *GormSessionRepository) GetByID(ctx context.Context, id uint) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// ListByAdmin 获取某管理员的全部会话
func (r *GormSessionRepository) ListByAdmin(ctx context.Context, adminID uint) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	err := r.db.WithContext(ctx).
		Where("admin_id = ?", adminID).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Create 创建会话
func (r *GormSessionRepository) Create(ctx context.Context, session *models.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// UpdateLastActivity 更新最后活动时间
// 并发请求下 last-write-wins，last_activity 只是遥测数据。
func (r *GormSessionRepository) UpdateLastActivity(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("last_activity", at).Error
}

// Delete 删除会话
func (r *GormSessionRepository) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&models.Session{}, id).Error
}

// DeleteByToken 根据令牌删除会话
func (r *GormSessionRepository) DeleteByToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error
}

// DeleteExpired 清理过期会话
func (r *GormSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&models.Session{})
	return result.RowsAffected, result.Error
}

// DeleteSuperseded 清理被撤销机制作废的会话行
// 撤销本身只递增账号版本号，这里仅回收逻辑上已死亡的行。
func (r *GormSessionRepository) DeleteSuperseded(ctx context.Context, adminID uint, currentTokenVersion uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("admin_id = ? AND token_version_at_issue < ?", adminID, currentTokenVersion).
		Delete(&models.Session{})
	return result.RowsAffected, result.Error
}
