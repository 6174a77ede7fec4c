package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/queue"
	"github.com/atelier-cms/internal/repository"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type authTestEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	authSvc     *AuthService
	adminRepo   repository.AdminRepository
	sessionRepo repository.SessionRepository
	attemptRepo repository.LoginAttemptRepository
	limiter     *LoginLimiter
}

func setupAuthServiceTest(t *testing.T) *authTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Admin{}, &models.Session{}, &models.LoginAttempt{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Session.TTLHours = 24
	cfg.Security.LoginRateLimit.WindowSeconds = 900
	cfg.Security.LoginRateLimit.MaxAttempts = 5
	cfg.Security.LoginRateLimit.BlockSeconds = 900
	cfg.Security.PasswordPolicy.MinLength = 8

	adminRepo := repository.NewAdminRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	limiter := NewLoginLimiter(cfg.Security.LoginRateLimit, attemptRepo)
	authCache := cache.NewCache(&config.RedisConfig{Enabled: false})
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}

	return &authTestEnv{
		db:          db,
		cfg:         cfg,
		authSvc:     NewAuthService(cfg, adminRepo, sessionRepo, limiter, authCache, queueClient),
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		attemptRepo: attemptRepo,
		limiter:     limiter,
	}
}

func (e *authTestEnv) createAdmin(t *testing.T, username, password string) *models.Admin {
	t.Helper()
	hash, err := e.authSvc.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := &models.Admin{
		Username:     username,
		PasswordHash: hash,
		Role:         "admin",
	}
	if err := e.adminRepo.Create(context.Background(), admin); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}
	return admin
}

func (e *authTestEnv) login(t *testing.T, username, password string) (*models.Admin, *models.Session, error) {
	t.Helper()
	return e.authSvc.Login(context.Background(), LoginInput{
		Username:  username,
		Password:  password,
		ClientIP:  "203.0.113.10",
		UserAgent: "test-agent",
	})
}

func TestLoginAndValidate(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	admin, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if session.Token == "" || session.CSRFToken == "" {
		t.Fatalf("issued session missing tokens")
	}
	if session.Token == session.CSRFToken {
		t.Fatalf("session token and csrf token should differ")
	}
	if session.TokenVersionAtIssue != admin.TokenVersion {
		t.Fatalf("token version snapshot want %d got %d", admin.TokenVersion, session.TokenVersionAtIssue)
	}

	identity, err := env.authSvc.Validate(context.Background(), session.Token, "203.0.113.10")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if identity.AdminID != admin.ID {
		t.Fatalf("identity admin id want %d got %d", admin.ID, identity.AdminID)
	}
	if identity.Username != "alice" {
		t.Fatalf("identity username want alice got %s", identity.Username)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	_, _, err := env.login(t, "alice", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password want ErrInvalidCredentials got %v", err)
	}

	// 账号不存在时折叠为同一种错误
	_, _, err = env.login(t, "nobody", "whatever-pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user want ErrInvalidCredentials got %v", err)
	}
}

func median3(a, b, c time.Duration) time.Duration {
	d := []time.Duration{a, b, c}
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
	return d[1]
}

// 账号不存在的拒绝路径也要执行一次等代价哈希比较，
// 否则响应耗时会泄露账号是否存在。界限取得很宽，只拦截整次比较被跳过的退化。
func TestLoginUnknownUserCostMatchesWrongPassword(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	// 单次 bcrypt 比较作为耗时下限基准
	hash, err := bcrypt.GenerateFromPassword([]byte("baseline-secret-1"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash baseline failed: %v", err)
	}
	start := time.Now()
	_ = bcrypt.CompareHashAndPassword(hash, []byte("other-secret-1"))
	baseline := time.Since(start)

	measure := func(username string) time.Duration {
		begin := time.Now()
		_, _, err := env.login(t, username, "wrong-secret-1")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("login %s want ErrInvalidCredentials got %v", username, err)
		}
		return time.Since(begin)
	}

	known := median3(measure("alice"), measure("alice"), measure("alice"))
	unknown := median3(measure("ghost"), measure("ghost"), measure("ghost"))

	if unknown*4 < baseline {
		t.Fatalf("unknown-user login skipped hash comparison: unknown=%v baseline=%v", unknown, baseline)
	}
	if unknown*5 < known {
		t.Fatalf("unknown-user login much cheaper than wrong password: unknown=%v known=%v", unknown, known)
	}
}

func TestLoginRateLimitFifthAttemptRejected(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	for i := 0; i < 4; i++ {
		if _, _, err := env.login(t, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d want ErrInvalidCredentials got %v", i+1, err)
		}
	}

	// 阈值为 5：第 5 次尝试即使密码正确也要被拒绝
	_, _, err := env.login(t, "alice", "correct-horse-1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("fifth attempt want ErrRateLimited got %v", err)
	}
	var rateErr *RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("want RateLimitedError got %T", err)
	}
	if rateErr.RetryAfter <= 0 {
		t.Fatalf("retry after should be positive, got %v", rateErr.RetryAfter)
	}
}

func TestLoginSuccessClearsAttemptHistory(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	for i := 0; i < 3; i++ {
		if _, _, err := env.login(t, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d want ErrInvalidCredentials got %v", i+1, err)
		}
	}
	if _, _, err := env.login(t, "alice", "correct-horse-1"); err != nil {
		t.Fatalf("login after failures want success got %v", err)
	}

	// 成功后历史清零，再失败三次仍未达阈值
	for i := 0; i < 3; i++ {
		if _, _, err := env.login(t, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-success attempt %d want ErrInvalidCredentials got %v", i+1, err)
		}
	}
	if _, _, err := env.login(t, "alice", "correct-horse-1"); err != nil {
		t.Fatalf("login should succeed after history reset, got %v", err)
	}
}

func TestValidateExpiredSession(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// 把过期时间拨到刚过去一点
	if err := env.db.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("expires_at", time.Now().Add(-time.Second)).Error; err != nil {
		t.Fatalf("update expires_at failed: %v", err)
	}

	_, err = env.authSvc.Validate(context.Background(), session.Token, "")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("want ErrSessionExpired got %v", err)
	}

	// 过期行被顺手删除
	var count int64
	env.db.Model(&models.Session{}).Where("id = ?", session.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expired session row should be removed, found %d", count)
	}
}

func TestValidateJustBeforeExpiry(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := env.db.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("expires_at", time.Now().Add(2*time.Second)).Error; err != nil {
		t.Fatalf("update expires_at failed: %v", err)
	}

	if _, err := env.authSvc.Validate(context.Background(), session.Token, ""); err != nil {
		t.Fatalf("session just before expiry should validate, got %v", err)
	}
}

func TestRevokeAllInvalidatesExistingSessions(t *testing.T) {
	env := setupAuthServiceTest(t)
	admin := env.createAdmin(t, "alice", "correct-horse-1")

	_, first, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	_, second, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if err := env.authSvc.RevokeAll(context.Background(), admin.ID); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}

	if _, err := env.authSvc.Validate(context.Background(), first.Token, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("first session want ErrSessionRevoked got %v", err)
	}
	if _, err := env.authSvc.Validate(context.Background(), second.Token, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("second session want ErrSessionRevoked got %v", err)
	}

	// 撤销后重新登录的会话带上新版本号，可正常校验
	_, fresh, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login after revoke failed: %v", err)
	}
	if _, err := env.authSvc.Validate(context.Background(), fresh.Token, ""); err != nil {
		t.Fatalf("fresh session should validate, got %v", err)
	}
}

func TestChangePasswordRotatesTokenVersion(t *testing.T) {
	env := setupAuthServiceTest(t)
	admin := env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.authSvc.ChangePassword(context.Background(), admin.ID, "wrong-old", "brand-new-pass1"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("wrong old password want ErrInvalidPassword got %v", err)
	}
	if err := env.authSvc.ChangePassword(context.Background(), admin.ID, "correct-horse-1", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password want ErrWeakPassword got %v", err)
	}

	if err := env.authSvc.ChangePassword(context.Background(), admin.ID, "correct-horse-1", "brand-new-pass1"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, err := env.authSvc.Validate(context.Background(), session.Token, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("old session want ErrSessionRevoked got %v", err)
	}

	if _, _, err := env.login(t, "alice", "correct-horse-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password want ErrInvalidCredentials got %v", err)
	}
	if _, _, err := env.login(t, "alice", "brand-new-pass1"); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}
}

func TestVerifyCSRF(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	identity, err := env.authSvc.Validate(context.Background(), session.Token, "")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := env.authSvc.VerifyCSRF(identity, identity.CSRFToken); err != nil {
		t.Fatalf("matching csrf token should pass, got %v", err)
	}
	if err := env.authSvc.VerifyCSRF(identity, "forged-token"); !errors.Is(err, ErrCSRFMismatch) {
		t.Fatalf("forged csrf token want ErrCSRFMismatch got %v", err)
	}
	if err := env.authSvc.VerifyCSRF(identity, ""); !errors.Is(err, ErrCSRFMismatch) {
		t.Fatalf("empty csrf token want ErrCSRFMismatch got %v", err)
	}

	// CSRF 不匹配只拒绝请求本身，会话仍然有效
	if _, err := env.authSvc.Validate(context.Background(), session.Token, ""); err != nil {
		t.Fatalf("session should stay valid after csrf mismatch, got %v", err)
	}
}

func TestValidateOrphanedSession(t *testing.T) {
	env := setupAuthServiceTest(t)
	admin := env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.adminRepo.Delete(context.Background(), admin.ID); err != nil {
		t.Fatalf("delete admin failed: %v", err)
	}

	_, err = env.authSvc.Validate(context.Background(), session.Token, "")
	if !errors.Is(err, ErrSessionOrphaned) {
		t.Fatalf("want ErrSessionOrphaned got %v", err)
	}

	var count int64
	env.db.Model(&models.Session{}).Where("id = ?", session.ID).Count(&count)
	if count != 0 {
		t.Fatalf("orphaned session row should be removed, found %d", count)
	}
}

func TestValidateFailsClosedOnStoreError(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.authSvc.Validate(ctx, session.Token, "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("canceled context want ErrStoreUnavailable got %v", err)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	env := setupAuthServiceTest(t)
	env.createAdmin(t, "alice", "correct-horse-1")

	_, session, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.authSvc.Logout(context.Background(), session.Token); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.authSvc.Validate(context.Background(), session.Token, ""); !errors.Is(err, ErrNoSession) {
		t.Fatalf("after logout want ErrNoSession got %v", err)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	env := setupAuthServiceTest(t)
	admin := env.createAdmin(t, "alice", "correct-horse-1")
	other := env.createAdmin(t, "bob", "another-pass-22")

	_, first, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	_, second, err := env.login(t, "alice", "correct-horse-1")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	sessions, err := env.authSvc.ListSessions(context.Background(), admin.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("session count want 2 got %d", len(sessions))
	}

	// 他人不能删除这个会话
	if err := env.authSvc.DeleteSession(context.Background(), other.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete want ErrNotFound got %v", err)
	}

	if err := env.authSvc.DeleteSession(context.Background(), admin.ID, first.ID); err != nil {
		t.Fatalf("delete own session failed: %v", err)
	}

	sessions, err = env.authSvc.ListSessions(context.Background(), admin.ID)
	if err != nil {
		t.Fatalf("list sessions after delete failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != second.ID {
		t.Fatalf("remaining session want %d got %+v", second.ID, sessions)
	}
}
