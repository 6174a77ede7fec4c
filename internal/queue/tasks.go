package queue

import (
	"encoding/json"

	"github.com/atelier-cms/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSessionPurge 撤销后回收会话行任务
	TaskSessionPurge = constants.TaskSessionPurge
)

// SessionPurgePayload 会话回收任务载荷
// 只删除版本快照落后于 token_version 的行；撤销判定本身不依赖该任务。
type SessionPurgePayload struct {
	AdminID      uint   `json:"admin_id"`
	TokenVersion uint64 `json:"token_version"`
}

// NewSessionPurgeTask 创建会话回收任务
func NewSessionPurgeTask(payload SessionPurgePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, body), nil
}
