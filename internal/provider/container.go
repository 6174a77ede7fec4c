package provider

import (
	"github.com/atelier-cms/internal/cache"
	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/queue"
	"github.com/atelier-cms/internal/repository"
	"github.com/atelier-cms/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	Cache       *cache.Cache
	QueueClient *queue.Client

	// Repositories
	AdminRepo        repository.AdminRepository
	SessionRepo      repository.SessionRepository
	LoginAttemptRepo repository.LoginAttemptRepository

	// Services
	AuthService         *service.AuthService
	AdminAccountService *service.AdminAccountService
	AuditService        *service.AuditService
	CaptchaService      *service.CaptchaService
	CleanupService      *service.CleanupService
	LoginLimiter        *service.LoginLimiter
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	authCache := cache.NewCache(&cfg.Redis)

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		Cache:       authCache,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.SessionRepo = repository.NewSessionRepository(db)
	c.LoginAttemptRepo = repository.NewLoginAttemptRepository(db)
}

func (c *Container) initServices() {
	c.LoginLimiter = service.NewLoginLimiter(c.Config.Security.LoginRateLimit, c.LoginAttemptRepo)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo, c.SessionRepo, c.LoginLimiter, c.Cache, c.QueueClient)
	c.AdminAccountService = service.NewAdminAccountService(c.Config, c.AdminRepo, c.SessionRepo, c.AuthService, c.Cache, c.QueueClient)
	c.AuditService = service.NewAuditService(c.LoginAttemptRepo)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha, c.Cache)
	c.CleanupService = service.NewCleanupService(c.Config, c.SessionRepo, c.LoginAttemptRepo)
}
