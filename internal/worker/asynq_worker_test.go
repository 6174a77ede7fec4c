package worker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/provider"
	"github.com/atelier-cms/internal/queue"
	"github.com/atelier-cms/internal/repository"
	"github.com/atelier-cms/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupConsumerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Admin{}, &models.Session{}, &models.LoginAttempt{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	cfg := &config.Config{}
	sessionRepo := repository.NewSessionRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	container := &provider.Container{
		Config:         cfg,
		SessionRepo:    sessionRepo,
		CleanupService: service.NewCleanupService(cfg, sessionRepo, attemptRepo),
	}
	return NewConsumer(container), db
}

func TestHandleSessionPurge(t *testing.T) {
	consumer, db := setupConsumerTest(t)

	now := time.Now()
	sessions := []models.Session{
		{Token: "stale", AdminID: 7, TokenVersionAtIssue: 1, ExpiresAt: now.Add(time.Hour), LastActivity: now},
		{Token: "fresh", AdminID: 7, TokenVersionAtIssue: 2, ExpiresAt: now.Add(time.Hour), LastActivity: now},
	}
	if err := db.Create(&sessions).Error; err != nil {
		t.Fatalf("seed sessions failed: %v", err)
	}

	task, err := queue.NewSessionPurgeTask(queue.SessionPurgePayload{AdminID: 7, TokenVersion: 2})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleSessionPurge(context.Background(), task); err != nil {
		t.Fatalf("handle task failed: %v", err)
	}

	var remaining []models.Session
	db.Find(&remaining)
	if len(remaining) != 1 || remaining[0].Token != "fresh" {
		t.Fatalf("only fresh session should remain, got %+v", remaining)
	}
}

func TestHandleSessionPurgeInvalidPayload(t *testing.T) {
	consumer, _ := setupConsumerTest(t)

	// 非法载荷应返回错误以便重试排查
	task := asynq.NewTask(queue.TaskSessionPurge, []byte("{broken"))
	if err := consumer.handleSessionPurge(context.Background(), task); err == nil {
		t.Fatalf("broken payload should return error")
	}

	// admin_id 为 0 视为无效任务直接丢弃
	empty, err := queue.NewSessionPurgeTask(queue.SessionPurgePayload{})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleSessionPurge(context.Background(), empty); err != nil {
		t.Fatalf("empty payload should be dropped silently, got %v", err)
	}
}
