package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier-cms/internal/models"
)

const authStateCacheTTL = 10 * time.Minute

// AdminAuthState 管理员鉴权快照
// 校验路径上代替数据库读取账号的当前状态。
// 撤销事件必须写穿该快照，否则旧会话可能在快照过期前仍被放行。
type AdminAuthState struct {
	AdminID             uint   `json:"admin_id"`
	Username            string `json:"username"`
	Role                string `json:"role"`
	TokenVersion        uint64 `json:"token_version"`
	ForcePasswordChange bool   `json:"force_password_change"`
	UpdatedAt           int64  `json:"updated_at"`
}

func adminAuthStateKey(adminID uint) string {
	return fmt.Sprintf("auth:admin:%d", adminID)
}

// BuildAdminAuthState 从管理员模型构建鉴权快照
func BuildAdminAuthState(admin *models.Admin) *AdminAuthState {
	if admin == nil {
		return nil
	}
	return &AdminAuthState{
		AdminID:             admin.ID,
		Username:            admin.Username,
		Role:                admin.Role,
		TokenVersion:        admin.TokenVersion,
		ForcePasswordChange: admin.ForcePasswordChange,
		UpdatedAt:           time.Now().Unix(),
	}
}

// GetAdminAuthState 获取管理员鉴权快照
func (c *Cache) GetAdminAuthState(ctx context.Context, adminID uint) (*AdminAuthState, bool, error) {
	if adminID == 0 {
		return nil, false, nil
	}
	var state AdminAuthState
	hit, err := c.GetJSON(ctx, adminAuthStateKey(adminID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetAdminAuthState 写入管理员鉴权快照
func (c *Cache) SetAdminAuthState(ctx context.Context, state *AdminAuthState) error {
	if state == nil || state.AdminID == 0 {
		return nil
	}
	return c.SetJSON(ctx, adminAuthStateKey(state.AdminID), state, authStateCacheTTL)
}

// DelAdminAuthState 删除管理员鉴权快照
func (c *Cache) DelAdminAuthState(ctx context.Context, adminID uint) error {
	if adminID == 0 {
		return nil
	}
	return c.Del(ctx, adminAuthStateKey(adminID))
}
