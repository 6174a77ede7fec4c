package worker

import (
	"context"
	"errors"
	"time"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	sweepInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, sweepInterval time.Duration, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:          "worker",
		server:        server,
		mux:           mux,
		consumer:      consumer,
		sweepInterval: sweepInterval,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.CleanupService != nil {
		go s.runMaintenanceLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runMaintenanceLoop 周期清扫过期会话与超期审计记录
func (s *Service) runMaintenanceLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.CleanupService == nil {
		return
	}
	runOnce := func() {
		if _, err := s.consumer.CleanupService.SweepExpiredSessions(ctx); err != nil {
			logger.Warnw("worker_sweep_expired_sessions_failed", "error", err)
		}
		if _, err := s.consumer.CleanupService.PurgeLoginAttempts(ctx); err != nil {
			logger.Warnw("worker_purge_login_attempts_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
