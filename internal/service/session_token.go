package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// 会话令牌与 CSRF 值均为 32 字节随机数（256 位熵），
// 令牌的不可预测性是整个会话模型的核心不变量。
const tokenEntropyBytes = 32

func generateOpaqueToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机令牌失败: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateSessionToken 生成会话令牌
func GenerateSessionToken() (string, error) {
	return generateOpaqueToken()
}

// GenerateCSRFToken 生成会话绑定的 CSRF 值
func GenerateCSRFToken() (string, error) {
	return generateOpaqueToken()
}
