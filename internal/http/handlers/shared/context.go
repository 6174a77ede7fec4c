package shared

import (
	"github.com/atelier-cms/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "未认证", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, "参数无效", nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, "参数无效", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, "上下文数据异常", nil)
		return 0, false
	}
}
