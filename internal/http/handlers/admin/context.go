package admin

import (
	"github.com/atelier-cms/internal/constants"
	handlershared "github.com/atelier-cms/internal/http/handlers/shared"
	"github.com/atelier-cms/internal/http/response"
	"github.com/atelier-cms/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, constants.ContextKeyAdminID)
}

func getIdentity(c *gin.Context) (*service.Identity, bool) {
	value, exists := c.Get(constants.ContextKeySessionIdentity)
	if !exists {
		respondError(c, response.CodeUnauthorized, "未认证", nil)
		return nil, false
	}
	identity, ok := value.(*service.Identity)
	if !ok || identity == nil {
		respondError(c, response.CodeInternal, "上下文数据异常", nil)
		return nil, false
	}
	return identity, true
}
