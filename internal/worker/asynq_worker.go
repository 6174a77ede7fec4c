package worker

import (
	"context"
	"encoding/json"

	"github.com/atelier-cms/internal/logger"
	"github.com/atelier-cms/internal/provider"
	"github.com/atelier-cms/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskSessionPurge, c.handleSessionPurge)
}

// handleSessionPurge 回收撤销事件遗留的会话行
// 撤销本身在版本号递增那一刻即已生效，这里只是清理存储。
func (c *Consumer) handleSessionPurge(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_session_purge_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SessionPurgePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_session_purge_unmarshal_failed", "error", err)
		return err
	}
	if payload.AdminID == 0 {
		logger.Debugw("worker_session_purge_skip_invalid_payload", "admin_id", payload.AdminID)
		return nil
	}
	if c.CleanupService == nil {
		logger.Warnw("worker_session_purge_skip_cleanup_service_nil", "admin_id", payload.AdminID)
		return nil
	}
	removed, err := c.CleanupService.PurgeSupersededSessions(ctx, payload.AdminID, payload.TokenVersion)
	if err != nil {
		logger.Warnw("worker_session_purge_failed", "admin_id", payload.AdminID, "error", err)
		return err
	}
	logger.Debugw("worker_session_purge_done", "admin_id", payload.AdminID, "removed", removed)
	return nil
}
