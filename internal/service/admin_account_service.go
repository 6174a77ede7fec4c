package service

import (
	"context"
	"strings"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/queue"
	"github.com/atelier-cms/internal/repository"
)

// AdminAccountService 管理员账号服务
type AdminAccountService struct {
	cfg         *config.Config
	adminRepo   repository.AdminRepository
	sessionRepo repository.SessionRepository
	authSvc     *AuthService
	authCache   *cache.Cache
	queueClient *queue.Client
}

// NewAdminAccountService 创建管理员账号服务
func NewAdminAccountService(
	cfg *config.Config,
	adminRepo repository.AdminRepository,
	sessionRepo repository.SessionRepository,
	authSvc *AuthService,
	authCache *cache.Cache,
	queueClient *queue.Client,
) *AdminAccountService {
	return &AdminAccountService{
		cfg:         cfg,
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		authSvc:     authSvc,
		authCache:   authCache,
		queueClient: queueClient,
	}
}

// CreateAdminInput 创建管理员请求
type CreateAdminInput struct {
	Username            string
	Email               string
	Password            string
	Role                string
	ForcePasswordChange bool
}

// UpdateAdminInput 更新管理员请求
// Password 非空时重置密码并吊销其全部会话。
type UpdateAdminInput struct {
	Email               *string
	Password            string
	Role                *string
	ForcePasswordChange *bool
}

// Create 创建管理员账号
func (s *AdminAccountService) Create(ctx context.Context, input CreateAdminInput) (*models.Admin, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.adminRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	if err := s.authSvc.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	hash, err := s.authSvc.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = constants.RoleWebmaster
	}

	admin := &models.Admin{
		Username:            username,
		Email:               strings.TrimSpace(input.Email),
		PasswordHash:        hash,
		Role:                role,
		ForcePasswordChange: input.ForcePasswordChange,
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return nil, err
	}

	logger.Infow("admin_account_created", "admin_id", admin.ID, "username", admin.Username, "role", admin.Role)
	return admin, nil
}

// Get 查询单个管理员
func (s *AdminAccountService) Get(ctx context.Context, id uint) (*models.Admin, error) {
	admin, err := s.adminRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrNotFound
	}
	return admin, nil
}

// List 查询管理员列表
func (s *AdminAccountService) List(ctx context.Context) ([]models.Admin, error) {
	return s.adminRepo.List(ctx)
}

// Update 更新管理员账号
// 密码重置会递增 token_version，使该账号所有既有会话失效。
func (s *AdminAccountService) Update(ctx context.Context, id uint, input UpdateAdminInput) (*models.Admin, error) {
	admin, err := s.adminRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrNotFound
	}

	if input.Email != nil {
		admin.Email = strings.TrimSpace(*input.Email)
	}
	if input.Role != nil && strings.TrimSpace(*input.Role) != "" {
		admin.Role = strings.TrimSpace(*input.Role)
	}
	if input.ForcePasswordChange != nil {
		admin.ForcePasswordChange = *input.ForcePasswordChange
	}

	passwordReset := input.Password != ""
	if passwordReset {
		if err := s.authSvc.ValidatePassword(input.Password); err != nil {
			return nil, err
		}
		hash, err := s.authSvc.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		admin.PasswordHash = hash
		admin.TokenVersion++
	}

	if err := s.adminRepo.Update(ctx, admin); err != nil {
		return nil, err
	}

	s.refreshAuthState(ctx, admin)

	if passwordReset {
		logger.Infow("admin_password_reset", "admin_id", admin.ID, "token_version", admin.TokenVersion)
		if err := s.queueClient.EnqueueSessionPurge(queue.SessionPurgePayload{
			AdminID:      admin.ID,
			TokenVersion: admin.TokenVersion,
		}); err != nil {
			logger.Warnw("session_purge_enqueue_failed", "admin_id", admin.ID, "error", err)
		}
	}
	return admin, nil
}

// Delete 删除管理员账号
// 同步清除其会话行与鉴权快照。
func (s *AdminAccountService) Delete(ctx context.Context, id uint) error {
	admin, err := s.adminRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if admin == nil {
		return ErrNotFound
	}

	if err := s.adminRepo.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.sessionRepo.DeleteSuperseded(ctx, id, admin.TokenVersion+1); err != nil {
		logger.Warnw("admin_sessions_cleanup_failed", "admin_id", id, "error", err)
	}
	if err := s.authCache.DelAdminAuthState(ctx, id); err != nil {
		logger.Warnw("auth_state_evict_failed", "admin_id", id, "error", err)
	}

	logger.Infow("admin_account_deleted", "admin_id", id, "username", admin.Username)
	return nil
}

func (s *AdminAccountService) refreshAuthState(ctx context.Context, admin *models.Admin) {
	if err := s.authCache.DelAdminAuthState(ctx, admin.ID); err != nil {
		logger.Warnw("auth_state_evict_failed", "admin_id", admin.ID, "error", err)
	}
	if err := s.authCache.SetAdminAuthState(ctx, cache.BuildAdminAuthState(admin)); err != nil {
		logger.Warnw("auth_state_refresh_failed", "admin_id", admin.ID, "error", err)
	}
}
