package main

import (
	"context"
	"flag"
	"strings"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 运维工具：创建或重置管理员账号。
// 重置密码会递增 token_version，账号既有会话全部失效。
func main() {
	var (
		username string
		password string
		role     string
		reset    bool
	)
	flag.StringVar(&username, "username", "", "管理员用户名")
	flag.StringVar(&password, "password", "", "管理员密码")
	flag.StringVar(&role, "role", constants.RoleAdmin, "角色: admin 或 webmaster")
	flag.BoolVar(&reset, "reset", false, "账号已存在时重置其密码")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		stdLog.Fatalf("用法: seed -username <name> -password <pass> [-role admin|webmaster] [-reset]")
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		stdLog.Fatalf("密码加密失败: %v", err)
	}

	var existing models.Admin
	err = models.DB.Where("username = ?", username).First(&existing).Error
	if err == nil {
		if !reset {
			stdLog.Fatalf("账号已存在: %s（使用 -reset 重置密码）", username)
		}
		store := cache.NewCache(&cfg.Redis)
		if err := resetAdminPassword(context.Background(), models.DB, store, &existing, string(hash)); err != nil {
			stdLog.Fatalf("密码重置失败: %v", err)
		}
		stdLog.Printf("已重置账号密码: %s (token_version=%d)", username, existing.TokenVersion)
		return
	}

	admin := models.Admin{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := models.DB.Create(&admin).Error; err != nil {
		stdLog.Fatalf("账号创建失败: %v", err)
	}
	stdLog.Printf("已创建账号: %s (role=%s)", username, role)
}

// resetAdminPassword 重置账号密码并使其全部既有会话失效
// 递增 token_version 之后还要清掉服务端的鉴权快照，
// 否则运行中的服务会在快照过期前继续放行旧会话。
func resetAdminPassword(ctx context.Context, db *gorm.DB, store *cache.Cache, admin *models.Admin, passwordHash string) error {
	admin.PasswordHash = passwordHash
	admin.TokenVersion++
	if err := db.Save(admin).Error; err != nil {
		return err
	}
	if err := store.DelAdminAuthState(ctx, admin.ID); err != nil {
		logger.Warnw("seed_auth_state_evict_failed", "admin_id", admin.ID, "error", err)
	}
	return nil
}
