package public

import (
	"github.com/atelier-cms/internal/constants"
	handlershared "github.com/atelier-cms/internal/http/handlers/shared"
	"github.com/atelier-cms/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetImageCaptcha 获取图片验证码挑战
// 登录场景未启用验证码时直接告知调用方无需验证码。
func (h *Handler) GetImageCaptcha(c *gin.Context) {
	if h.CaptchaService == nil || !h.CaptchaService.SceneEnabled(constants.CaptchaSceneAdminLogin) {
		response.Success(c, gin.H{"required": false})
		return
	}

	challenge, err := h.CaptchaService.GenerateImageChallenge()
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "验证码生成失败", err)
		return
	}

	response.Success(c, gin.H{
		"required":     true,
		"captcha_id":   challenge.CaptchaID,
		"image_base64": challenge.ImageBase64,
	})
}
