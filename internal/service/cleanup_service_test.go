package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/atelier-cms/internal/config"
	"github.com/atelier-cms/internal/models"
	"github.com/atelier-cms/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupCleanupTest(t *testing.T) (*CleanupService, *gorm.DB) {
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
	cfg.Security.AttemptRetentionHours = 72
	svc := NewCleanupService(cfg, repository.NewSessionRepository(db), repository.NewLoginAttemptRepository(db))
	return svc, db
}

func TestSweepExpiredSessions(t *testing.T) {
	svc, db := setupCleanupTest(t)

	now := time.Now()
	sessions := []models.Session{
		{Token: "live", AdminID: 1, ExpiresAt: now.Add(time.Hour), LastActivity: now},
		{Token: "expired-1", AdminID: 1, ExpiresAt: now.Add(-time.Minute), LastActivity: now},
		{Token: "expired-2", AdminID: 2, ExpiresAt: now.Add(-time.Hour), LastActivity: now},
	}
	if err := db.Create(&sessions).Error; err != nil {
		t.Fatalf("seed sessions failed: %v", err)
	}

	removed, err := svc.SweepExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed want 2 got %d", removed)
	}

	var remaining []models.Session
	db.Find(&remaining)
	if len(remaining) != 1 || remaining[0].Token != "live" {
		t.Fatalf("only live session should remain, got %+v", remaining)
	}
}

func TestPurgeLoginAttempts(t *testing.T) {
	svc, db := setupCleanupTest(t)

	attempts := []models.LoginAttempt{
		{Username: "alice", CreatedAt: time.Now().Add(-100 * time.Hour)},
		{Username: "alice", CreatedAt: time.Now().Add(-80 * time.Hour)},
		{Username: "alice", CreatedAt: time.Now().Add(-time.Hour)},
	}
	if err := db.Create(&attempts).Error; err != nil {
		t.Fatalf("seed attempts failed: %v", err)
	}

	removed, err := svc.PurgeLoginAttempts(context.Background())
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed want 2 got %d", removed)
	}

	var count int64
	db.Model(&models.LoginAttempt{}).Count(&count)
	if count != 1 {
		t.Fatalf("remaining attempts want 1 got %d", count)
	}
}

func TestPurgeSupersededSessions(t *testing.T) {
	svc, db := setupCleanupTest(t)

	now := time.Now()
	sessions := []models.Session{
		{Token: "old-1", AdminID: 1, TokenVersionAtIssue: 0, ExpiresAt: now.Add(time.Hour), LastActivity: now},
		{Token: "old-2", AdminID: 1, TokenVersionAtIssue: 1, ExpiresAt: now.Add(time.Hour), LastActivity: now},
		{Token: "current", AdminID: 1, TokenVersionAtIssue: 2, ExpiresAt: now.Add(time.Hour), LastActivity: now},
		{Token: "other-admin", AdminID: 2, TokenVersionAtIssue: 0, ExpiresAt: now.Add(time.Hour), LastActivity: now},
	}
	if err := db.Create(&sessions).Error; err != nil {
		t.Fatalf("seed sessions failed: %v", err)
	}

	removed, err := svc.PurgeSupersededSessions(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed want 2 got %d", removed)
	}

	var remaining []models.Session
	db.Order("token").Find(&remaining)
	if len(remaining) != 2 {
		t.Fatalf("remaining sessions want 2 got %d", len(remaining))
	}
	if remaining[0].Token != "current" || remaining[1].Token != "other-admin" {
		t.Fatalf("unexpected remaining sessions: %+v", remaining)
	}
}
