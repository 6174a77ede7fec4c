package service

import (
	"context"
	"errors"
	"testing"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/queue"
)

func newAccountService(t *testing.T, env *authTestEnv) *AdminAccountService {
	t.Helper()
	authCache := cache.NewCache(&config.RedisConfig{Enabled: false})
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	return NewAdminAccountService(env.cfg, env.adminRepo, env.sessionRepo, env.authSvc, authCache, queueClient)
}

func TestAdminAccountCreate(t *testing.T) {
	env := setupAuthServiceTest(t)
	svc := newAccountService(t, env)
	ctx := context.Background()

	admin, err := svc.Create(ctx, CreateAdminInput{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "strong-pass-99",
		Role:     "webmaster",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if admin.Role != "webmaster" {
		t.Fatalf("role want webmaster got %s", admin.Role)
	}
	if admin.PasswordHash == "strong-pass-99" {
		t.Fatalf("password must be stored hashed")
	}

	if _, err := svc.Create(ctx, CreateAdminInput{Username: "carol", Password: "another-pass-1"}); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("duplicate username want ErrUsernameExists got %v", err)
	}
	if _, err := svc.Create(ctx, CreateAdminInput{Username: "dave", Password: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password want ErrWeakPassword got %v", err)
	}
}

func TestAdminAccountUpdatePasswordResetRevokesSessions(t *testing.T) {
	env := setupAuthServiceTest(t)
	svc := newAccountService(t, env)
	ctx := context.Background()

	env.createAdmin(t, "carol", "strong-pass-99")
	_, session, err := env.login(t, "carol", "strong-pass-99")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	admin, err := env.adminRepo.GetByUsername(ctx, "carol")
	if err != nil || admin == nil {
		t.Fatalf("load admin failed: %v", err)
	}

	updated, err := svc.Update(ctx, admin.ID, UpdateAdminInput{Password: "rotated-pass-11"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.TokenVersion != admin.TokenVersion+1 {
		t.Fatalf("token version want %d got %d", admin.TokenVersion+1, updated.TokenVersion)
	}

	if _, err := env.authSvc.Validate(ctx, session.Token, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("old session want ErrSessionRevoked got %v", err)
	}
	if _, _, err := env.login(t, "carol", "rotated-pass-11"); err != nil {
		t.Fatalf("login with rotated password failed: %v", err)
	}
}

func TestAdminAccountDelete(t *testing.T) {
	env := setupAuthServiceTest(t)
	svc := newAccountService(t, env)
	ctx := context.Background()

	env.createAdmin(t, "carol", "strong-pass-99")
	_, session, err := env.login(t, "carol", "strong-pass-99")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	admin, err := env.adminRepo.GetByUsername(ctx, "carol")
	if err != nil || admin == nil {
		t.Fatalf("load admin failed: %v", err)
	}

	if err := svc.Delete(ctx, admin.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.Delete(ctx, admin.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete want ErrNotFound got %v", err)
	}

	// 账号删除后其会话行也被清除
	var count int64
	env.db.Model(&models.Session{}).Where("admin_id = ?", admin.ID).Count(&count)
	if count != 0 {
		t.Fatalf("sessions should be removed with account, found %d", count)
	}
	if _, err := env.authSvc.Validate(ctx, session.Token, ""); err == nil {
		t.Fatalf("session of deleted account should not validate")
	}
}
