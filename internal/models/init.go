package models

import (
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

// InitDefaultAdmin 初始化默认管理员账号
// 首次启动时创建；已有管理员时不做任何事。
func InitDefaultAdmin(username, password string) error {
	var count int64
	DB.Model(&Admin{}).Count(&count)
	if count > 0 {
		return nil
	}

	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := Admin{
		Username:     username,
		PasswordHash: string(hash),
		Role:         constants.RoleAdmin,
		// 默认口令必须在首次登录后更换
		ForcePasswordChange: password == "admin123",
	}

	if err := DB.Create(&admin).Error; err != nil {
		return err
	}

	if admin.ForcePasswordChange {
		logger.Warnw("default_admin_created_with_default_password", "username", username)
		logger.Warnw("default_admin_password_change_required", "username", username)
	} else {
		logger.Warnw("default_admin_created", "username", username, "password_hidden", true)
	}

	return nil
}
