package admin

import (
	"errors"
	"strconv"
	"time"

	"github.com/atelier-cms/internal/http/response"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminItem 管理员账号条目
type AdminItem struct {
	ID                  uint   `json:"id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	Role                string `json:"role"`
	ForcePasswordChange bool   `json:"force_password_change"`
	LastLoginAt         string `json:"last_login_at,omitempty"`
	CreatedAt           string `json:"created_at"`
}

func toAdminItem(admin *models.Admin) AdminItem {
	item := AdminItem{
		ID:                  admin.ID,
		Username:            admin.Username,
		Email:               admin.Email,
		Role:                admin.Role,
		ForcePasswordChange: admin.ForcePasswordChange,
		CreatedAt:           admin.CreatedAt.Format(time.RFC3339),
	}
	if admin.LastLoginAt != nil {
		item.LastLoginAt = admin.LastLoginAt.Format(time.RFC3339)
	}
	return item
}

// GetAdmins 获取管理员账号列表
func (h *Handler) GetAdmins(c *gin.Context) {
	admins, err := h.AdminAccountService.List(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "管理员列表获取失败", err)
		return
	}

	items := make([]AdminItem, 0, len(admins))
	for i := range admins {
		items = append(items, toAdminItem(&admins[i]))
	}
	response.Success(c, items)
}

// GetAdmin 获取管理员账号详情
func (h *Handler) GetAdmin(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	admin, err := h.AdminAccountService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "账号不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "管理员获取失败", err)
		return
	}
	response.Success(c, toAdminItem(admin))
}

// CreateAdminRequest 创建管理员请求
type CreateAdminRequest struct {
	Username            string `json:"username" binding:"required"`
	Email               string `json:"email"`
	Password            string `json:"password" binding:"required"`
	Role                string `json:"role"`
	ForcePasswordChange bool   `json:"force_password_change"`
}

// CreateAdmin 创建管理员账号
func (h *Handler) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	admin, err := h.AdminAccountService.Create(c.Request.Context(), service.CreateAdminInput{
		Username:            req.Username,
		Email:               req.Email,
		Password:            req.Password,
		Role:                req.Role,
		ForcePasswordChange: req.ForcePasswordChange,
	})
	if err != nil {
		if errors.Is(err, service.ErrUsernameExists) {
			respondError(c, response.CodeBadRequest, "用户名已存在", nil)
			return
		}
		if errors.Is(err, service.ErrWeakPassword) {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, response.CodeBadRequest, "请求参数错误", nil)
			return
		}
		respondError(c, response.CodeInternal, "保存失败", err)
		return
	}
	response.Success(c, toAdminItem(admin))
}

// UpdateAdminRequest 更新管理员请求
type UpdateAdminRequest struct {
	Email               *string `json:"email"`
	Password            string  `json:"password"`
	Role                *string `json:"role"`
	ForcePasswordChange *bool   `json:"force_password_change"`
}

// UpdateAdmin 更新管理员账号
func (h *Handler) UpdateAdmin(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	admin, err := h.AdminAccountService.Update(c.Request.Context(), id, service.UpdateAdminInput{
		Email:               req.Email,
		Password:            req.Password,
		Role:                req.Role,
		ForcePasswordChange: req.ForcePasswordChange,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "账号不存在", nil)
			return
		}
		if errors.Is(err, service.ErrWeakPassword) {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		respondError(c, response.CodeInternal, "保存失败", err)
		return
	}
	response.Success(c, toAdminItem(admin))
}

// DeleteAdmin 删除管理员账号
// 不允许删除自己，避免把最后一个管理员锁在门外。
func (h *Handler) DeleteAdmin(c *gin.Context) {
	currentID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if id == currentID {
		respondError(c, response.CodeBadRequest, "不能删除当前登录账号", nil)
		return
	}

	if err := h.AdminAccountService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "账号不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "删除失败", err)
		return
	}
	response.Success(c, nil)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "请求参数错误", nil)
		return 0, false
	}
	return uint(id), true
}
