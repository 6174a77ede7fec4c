package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/constants"
	"github.com/atelier-cms/internal/logger"

	"github.com/mojocn/base64Captcha"
)

// CaptchaVerifyPayload 验证码校验请求载荷
type CaptchaVerifyPayload struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

// CaptchaImageChallenge 图片验证码挑战
type CaptchaImageChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaService 图片验证码服务
// 按场景开关决定登录是否需要验证码；挑战答案存放在 Redis，
// Redis 未启用时退化为进程内存储。
type CaptchaService struct {
	cfg   config.CaptchaConfig
	store base64Captcha.Store
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(cfg config.CaptchaConfig, authCache *cache.Cache) *CaptchaService {
	expire := time.Duration(cfg.Image.ExpireSeconds) * time.Second
	if expire <= 0 {
		expire = 5 * time.Minute
	}
	var store base64Captcha.Store
	if authCache.Enabled() {
		store = &redisCaptchaStore{cache: authCache, ttl: expire}
	} else {
		store = base64Captcha.DefaultMemStore
	}
	return &CaptchaService{
		cfg:   cfg,
		store: store,
	}
}

// SceneEnabled 判断场景是否启用验证码
func (s *CaptchaService) SceneEnabled(scene string) bool {
	if s == nil {
		return false
	}
	switch scene {
	case constants.CaptchaSceneAdminLogin:
		return s.cfg.Scenes.AdminLogin
	default:
		return false
	}
}

// GenerateImageChallenge 生成图片验证码
func (s *CaptchaService) GenerateImageChallenge() (*CaptchaImageChallenge, error) {
	driver := base64Captcha.NewDriverString(
		normalizeCaptchaInt(s.cfg.Image.Height, 80),
		normalizeCaptchaInt(s.cfg.Image.Width, 240),
		s.cfg.Image.NoiseCount,
		s.cfg.Image.ShowLine,
		normalizeCaptchaInt(s.cfg.Image.Length, 5),
		"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		nil,
		base64Captcha.DefaultEmbeddedFonts,
		nil,
	)
	captcha := base64Captcha.NewCaptcha(driver, s.store)
	id, b64s, _, err := captcha.Generate()
	if err != nil {
		return nil, err
	}

	return &CaptchaImageChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 按场景校验验证码
// 场景未启用时直接放行；挑战一次性有效。
func (s *CaptchaService) Verify(scene string, payload CaptchaVerifyPayload) error {
	if !s.SceneEnabled(scene) {
		return nil
	}
	id := strings.TrimSpace(payload.CaptchaID)
	code := strings.TrimSpace(payload.CaptchaCode)
	if id == "" || code == "" {
		return ErrCaptchaRequired
	}
	if !s.store.Verify(id, code, true) {
		return ErrCaptchaInvalid
	}
	return nil
}

func normalizeCaptchaInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

// redisCaptchaStore 基于 Redis 的验证码存储
type redisCaptchaStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func captchaKey(id string) string {
	return fmt.Sprintf("captcha:%s", id)
}

func (s *redisCaptchaStore) Set(id string, value string) error {
	return s.cache.SetString(context.Background(), captchaKey(id), value, s.ttl)
}

func (s *redisCaptchaStore) Get(id string, clear bool) string {
	ctx := context.Background()
	value, hit, err := s.cache.GetString(ctx, captchaKey(id))
	if err != nil {
		logger.Warnw("captcha_store_get_failed", "error", err)
		return ""
	}
	if !hit {
		return ""
	}
	if clear {
		if err := s.cache.Del(ctx, captchaKey(id)); err != nil {
			logger.Debugw("captcha_store_clear_failed", "error", err)
		}
	}
	return value
}

func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	value := s.Get(id, clear)
	if value == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(answer))
}
