package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/atelier-cms/internal/http/response"
	"github.com/atelier-cms/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetLoginAttempts 获取登录尝试审计列表
func (h *Handler) GetLoginAttempts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	username := strings.TrimSpace(c.Query("username"))
	clientIP := strings.TrimSpace(c.Query("client_ip"))
	createdFromRaw := strings.TrimSpace(c.Query("created_from"))
	createdToRaw := strings.TrimSpace(c.Query("created_to"))

	createdFrom, err := parseTimeNullable(createdFromRaw)
	if err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	createdTo, err := parseTimeNullable(createdToRaw)
	if err != nil {
		respondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}

	attempts, total, err := h.AuditService.ListLoginAttempts(c.Request.Context(), repository.LoginAttemptListFilter{
		Page:        page,
		PageSize:    pageSize,
		Username:    username,
		ClientIP:    clientIP,
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "登录审计列表获取失败", err)
		return
	}

	pagination := response.BuildPagination(page, pageSize, total)
	response.SuccessWithPage(c, attempts, pagination)
}

func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
