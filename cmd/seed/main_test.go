package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/queue"
	"github.com/atelier-cms/internal/repository"
	"github.com/atelier-cms/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 重置密码后，运行中服务缓存的鉴权快照必须同时失效，
// 旧会话在下一次校验时立即被拒绝，而不是等快照过期。
func TestResetAdminPasswordEvictsAuthState(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Admin{}, &models.Session{}, &models.LoginAttempt{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("parse miniredis port failed: %v", err)
	}
	store := cache.NewCache(&config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port})

	cfg := &config.Config{}
	cfg.Session.TTLHours = 24
	cfg.Security.LoginRateLimit.WindowSeconds = 900
	cfg.Security.LoginRateLimit.MaxAttempts = 5

	adminRepo := repository.NewAdminRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	limiter := service.NewLoginLimiter(cfg.Security.LoginRateLimit, attemptRepo)
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	authSvc := service.NewAuthService(cfg, adminRepo, sessionRepo, limiter, store, queueClient)

	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-1"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := &models.Admin{Username: "alice", PasswordHash: string(hash), Role: "admin"}
	if err := adminRepo.Create(ctx, admin); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	_, session, err := authSvc.Login(ctx, service.LoginInput{Username: "alice", Password: "correct-horse-1"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	// 先校验一次，让鉴权快照进入缓存
	if _, err := authSvc.Validate(ctx, session.Token, ""); err != nil {
		t.Fatalf("validate before reset failed: %v", err)
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte("reset-secret-9"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash new password failed: %v", err)
	}
	if err := resetAdminPassword(ctx, db, store, admin, string(newHash)); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	if _, err := authSvc.Validate(ctx, session.Token, ""); !errors.Is(err, service.ErrSessionRevoked) {
		t.Fatalf("validate after reset want ErrSessionRevoked got %v", err)
	}
}
