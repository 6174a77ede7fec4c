package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/queue"
	"github.com/atelier-cms/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// AuthService 认证服务
// 负责凭证校验、会话签发与校验、CSRF 校验和全量撤销。
type AuthService struct {
	cfg         *config.Config
	adminRepo   repository.AdminRepository
	sessionRepo repository.SessionRepository
	limiter     *LoginLimiter
	authCache   *cache.Cache
	queueClient *queue.Client
	dummyHash   []byte
}

// NewAuthService 创建认证服务实例
func NewAuthService(
	cfg *config.Config,
	adminRepo repository.AdminRepository,
	sessionRepo repository.SessionRepository,
	limiter *LoginLimiter,
	authCache *cache.Cache,
	queueClient *queue.Client,
) *AuthService {
	// 预生成一份哈希用于账号不存在或被限流时的等代价比较，
	// 保证拒绝路径的响应耗时不泄露账号是否存在。
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("atelier-dummy-credential"), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorw("auth_dummy_hash_init_failed", "error", err)
	}
	return &AuthService{
		cfg:         cfg,
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		limiter:     limiter,
		authCache:   authCache,
		queueClient: queueClient,
		dummyHash:   dummyHash,
	}
}

// HashPassword 使用 bcrypt 加密密码
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 验证密码
func (s *AuthService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword 校验密码是否符合策略
func (s *AuthService) ValidatePassword(password string) error {
	if s == nil || s.cfg == nil {
		return nil
	}
	return validatePassword(s.cfg.Security.PasswordPolicy, password)
}

func (s *AuthService) compareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

// LoginInput 登录请求上下文
type LoginInput struct {
	Username  string
	Password  string
	ClientIP  string
	UserAgent string
	RequestID string
}

// Login 管理员登录
// 顺序固定：限流门 → 凭证校验 → 会话签发。
// 限流拒绝必须发生在密码比较之前，但仍执行一次等代价比较。
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.Admin, *models.Session, error) {
	username := strings.TrimSpace(input.Username)

	allow, retryAfter, err := s.limiter.CheckAndRecordAttempt(ctx, AttemptInput{
		Username:  username,
		ClientIP:  input.ClientIP,
		UserAgent: input.UserAgent,
		RequestID: input.RequestID,
	})
	if err != nil {
		return nil, nil, ErrStoreUnavailable
	}
	if !allow {
		s.compareDummy(input.Password)
		logger.Warnw("admin_login_rate_limited",
			"username", username,
			"client_ip", input.ClientIP,
			"retry_after_seconds", int(retryAfter.Seconds()),
		)
		return nil, nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	admin, err := s.adminRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, ErrStoreUnavailable
	}
	if admin == nil {
		// 账号不存在与密码错误折叠为同一种失败，耗时也保持一致
		s.compareDummy(input.Password)
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.VerifyPassword(admin.PasswordHash, input.Password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.limiter.ClearHistory(ctx, username); err != nil {
		logger.Warnw("admin_login_clear_attempts_failed", "username", username, "error", err)
	}

	session, err := s.IssueSession(ctx, admin, input.ClientIP, input.UserAgent)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	admin.LastLoginAt = &now
	if err := s.adminRepo.Update(ctx, admin); err != nil {
		logger.Warnw("admin_login_update_last_login_failed", "admin_id", admin.ID, "error", err)
	}
	_ = s.authCache.SetAdminAuthState(ctx, cache.BuildAdminAuthState(admin))

	return admin, session, nil
}

// IssueSession 为管理员签发新会话
// 版本快照取自账号的当前 token_version。
func (s *AuthService) IssueSession(ctx context.Context, admin *models.Admin, clientIP, userAgent string) (*models.Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	csrfToken, err := GenerateCSRFToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		Token:               token,
		AdminID:             admin.ID,
		CSRFToken:           csrfToken,
		SecurityLevel:       constants.SessionSecurityCurrent,
		TokenVersionAtIssue: admin.TokenVersion,
		IPAddress:           clientIP,
		UserAgent:           userAgent,
		ExpiresAt:           now.Add(s.cfg.Session.TTL()),
		LastActivity:        now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, ErrStoreUnavailable
	}
	return session, nil
}

// Identity 校验通过后的身份信息
type Identity struct {
	AdminID             uint
	Username            string
	Role                string
	ForcePasswordChange bool
	SessionID           uint
	SessionToken        string
	CSRFToken           string
	SecurityLevel       string
}

// Validate 校验会话令牌
// 每个管理请求都会经过这里，是业务逻辑之前唯一的准入判断。
// 存储故障一律视为未认证（fail closed）。
func (s *AuthService) Validate(ctx context.Context, token, clientIP string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoSession
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		logger.Errorw("session_validate_store_failed", "error", err)
		return nil, ErrStoreUnavailable
	}
	if session == nil {
		return nil, ErrNoSession
	}

	now := time.Now()
	if !session.ExpiresAt.After(now) {
		// 顺手清掉过期行，清理失败不影响判定
		if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
			logger.Debugw("session_validate_delete_expired_failed", "session_id", session.ID, "error", err)
		}
		return nil, ErrSessionExpired
	}

	state, err := s.loadAdminState(ctx, session.AdminID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if state == nil {
		if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
			logger.Debugw("session_validate_delete_orphaned_failed", "session_id", session.ID, "error", err)
		}
		return nil, ErrSessionOrphaned
	}

	if session.TokenVersionAtIssue != state.TokenVersion {
		return nil, ErrSessionRevoked
	}

	if err := s.sessionRepo.UpdateLastActivity(ctx, session.ID, now); err != nil {
		logger.Warnw("session_validate_touch_failed", "session_id", session.ID, "error", err)
	}

	// 来源地址变化只记录异常，不作为拒绝依据：
	// 移动网络与代理轮换会造成大量误杀。
	if clientIP != "" && session.IPAddress != "" && clientIP != session.IPAddress {
		logger.Warnw("session_source_address_changed",
			"admin_id", session.AdminID,
			"session_id", session.ID,
			"issued_ip", session.IPAddress,
			"request_ip", clientIP,
		)
	}

	return &Identity{
		AdminID:             state.AdminID,
		Username:            state.Username,
		Role:                state.Role,
		ForcePasswordChange: state.ForcePasswordChange,
		SessionID:           session.ID,
		SessionToken:        session.Token,
		CSRFToken:           session.CSRFToken,
		SecurityLevel:       session.SecurityLevel,
	}, nil
}

// loadAdminState 读取账号鉴权状态，优先走缓存快照
func (s *AuthService) loadAdminState(ctx context.Context, adminID uint) (*cache.AdminAuthState, error) {
	if cached, hit, err := s.authCache.GetAdminAuthState(ctx, adminID); err == nil && hit && cached != nil {
		return cached, nil
	}

	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		logger.Errorw("session_validate_load_admin_failed", "admin_id", adminID, "error", err)
		return nil, err
	}
	if admin == nil {
		return nil, nil
	}
	state := cache.BuildAdminAuthState(admin)
	_ = s.authCache.SetAdminAuthState(ctx, state)
	return state, nil
}

// VerifyCSRF 校验变更类请求的 CSRF 值
// 常量时间比较；不匹配只拒绝该次请求，会话本身不受影响。
func (s *AuthService) VerifyCSRF(identity *Identity, supplied string) error {
	if identity == nil || identity.CSRFToken == "" {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(identity.CSRFToken), []byte(supplied)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

// Logout 注销当前会话
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

// RevokeAll 撤销某管理员的全部会话
// 只递增账号的 token_version，不触碰任何会话行，与会话数量无关。
// 之后异步回收逻辑上已死亡的会话行。
func (s *AuthService) RevokeAll(ctx context.Context, adminID uint) error {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if admin == nil {
		return ErrNotFound
	}

	admin.TokenVersion++
	if err := s.adminRepo.Update(ctx, admin); err != nil {
		return ErrStoreUnavailable
	}
	s.refreshAuthState(ctx, admin)

	if err := s.queueClient.EnqueueSessionPurge(queue.SessionPurgePayload{
		AdminID:      admin.ID,
		TokenVersion: admin.TokenVersion,
	}); err != nil {
		logger.Warnw("revoke_all_enqueue_purge_failed", "admin_id", admin.ID, "error", err)
	}

	logger.Infow("admin_sessions_revoked", "admin_id", admin.ID, "token_version", admin.TokenVersion)
	return nil
}

// ChangePassword 修改管理员密码
// 成功后递增 token_version，使该账号所有已签发会话立即失效。
func (s *AuthService) ChangePassword(ctx context.Context, adminID uint, oldPassword, newPassword string) error {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if admin == nil {
		return ErrNotFound
	}

	if err := s.VerifyPassword(admin.PasswordHash, oldPassword); err != nil {
		return ErrInvalidPassword
	}

	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}

	hashedPassword, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}

	admin.PasswordHash = hashedPassword
	admin.TokenVersion++
	admin.ForcePasswordChange = false
	if err := s.adminRepo.Update(ctx, admin); err != nil {
		return ErrStoreUnavailable
	}
	s.refreshAuthState(ctx, admin)

	if err := s.queueClient.EnqueueSessionPurge(queue.SessionPurgePayload{
		AdminID:      admin.ID,
		TokenVersion: admin.TokenVersion,
	}); err != nil {
		logger.Warnw("change_password_enqueue_purge_failed", "admin_id", admin.ID, "error", err)
	}

	logger.Infow("admin_password_changed", "admin_id", admin.ID, "token_version", admin.TokenVersion)
	return nil
}

// refreshAuthState 撤销事件写穿鉴权快照
// 先删后写：写入失败时留下缓存缺口，下一次校验回源数据库。
func (s *AuthService) refreshAuthState(ctx context.Context, admin *models.Admin) {
	if err := s.authCache.DelAdminAuthState(ctx, admin.ID); err != nil {
		logger.Errorw("auth_state_invalidate_failed", "admin_id", admin.ID, "error", err)
	}
	if err := s.authCache.SetAdminAuthState(ctx, cache.BuildAdminAuthState(admin)); err != nil {
		logger.Warnw("auth_state_refresh_failed", "admin_id", admin.ID, "error", err)
	}
}

// ListSessions 列出某管理员当前有效的会话
func (s *AuthService) ListSessions(ctx context.Context, adminID uint) ([]models.Session, error) {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if admin == nil {
		return nil, ErrNotFound
	}

	sessions, err := s.sessionRepo.ListByAdmin(ctx, adminID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	now := time.Now()
	live := make([]models.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.Live(now, admin.TokenVersion) {
			live = append(live, session)
		}
	}
	return live, nil
}

// DeleteSession 注销某管理员名下指定会话
func (s *AuthService) DeleteSession(ctx context.Context, adminID, sessionID uint) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if session == nil || session.AdminID != adminID {
		return ErrNotFound
	}
	if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}
