package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.SystemLog{}))
	return db
}

func TestPGHandler_StoresErrorsOnly(t *testing.T) {
	db := newTestDB(t)
	h := NewPGHandler(db)
	log := slog.New(h).With("request_id", "req-1")

	log.Info("ignored")
	log.Error("refresh failed",
		"account_id", "acc-1",
		"action", "rotate",
		"error", "boom",
		"latency_ms", 12.6,
		"ip", "10.0.0.1",
	)
	h.Stop()

	var rows []models.SystemLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "ERROR", row.Level)
	assert.Equal(t, "refresh failed", row.Message)
	assert.Equal(t, "req-1", row.RequestID)
	require.NotNil(t, row.AccountID)
	assert.Equal(t, "acc-1", *row.AccountID)
	assert.Equal(t, "rotate", row.Action)
	assert.Equal(t, "boom", row.Error)
	assert.Equal(t, 13, row.LatencyMs)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Extra, &extra))
	assert.Equal(t, "10.0.0.1", extra["ip"])
}

func TestMultiHandler_FansOut(t *testing.T) {
	var info, errs bytes.Buffer
	m := NewMultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(m).With("service", "accounts")

	log.Info("hello")
	log.Error("bad")

	assert.Contains(t, info.String(), `"msg":"hello"`)
	assert.Contains(t, info.String(), `"msg":"bad"`)
	assert.NotContains(t, errs.String(), "hello")
	assert.Contains(t, errs.String(), `"service":"accounts"`)
}

func TestCleanup(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	old := models.SystemLog{ID: uuid.New(), Timestamp: now.Add(-40 * 24 * time.Hour), Level: "ERROR", Message: "old"}
	fresh := models.SystemLog{ID: uuid.New(), Timestamp: now, Level: "ERROR", Message: "fresh"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&fresh).Error)

	deleted, err := Cleanup(db, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&models.SystemLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFor("development"))
	assert.Equal(t, slog.LevelInfo, LevelFor("production"))
}
