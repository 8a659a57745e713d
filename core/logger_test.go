package core

import (
	"io"
	"testing"
	"time"

	"open-llm-gateway/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	assert.NoError(t, err)
	assert.NoError(t, models.AutoMigrate(db))
	return db
}

func TestAsyncRequestLogger_FlushAndStats(t *testing.T) {
	db := testDB(t)

	log := logrus.New()
	log.SetOutput(io.Discard)

	asyncLogger := NewAsyncRequestLogger(db, log)
	asyncLogger.Log(&models.RequestLog{
		CreatedAt:  time.Now(),
		Method:     "POST",
		Path:       "/v1/chat/completions",
		Model:      "gpt-4",
		Backend:    "openai",
		StatusCode: 200,
		Duration:   120,
	})
	asyncLogger.Log(&models.RequestLog{
		CreatedAt:  time.Now(),
		Method:     "POST",
		Path:       "/v1/chat/completions",
		Model:      "gpt-4",
		Backend:    "openai",
		StatusCode: 502,
		Duration:   30,
	})

	// Close drains the queue and flushes the remainder.
	asyncLogger.Close()

	var count int64
	db.Model(&models.RequestLog{}).Count(&count)
	assert.EqualValues(t, 2, count)

	var stat models.BackendStats
	assert.NoError(t, db.Where("backend = ?", "openai").First(&stat).Error)
	assert.EqualValues(t, 1, stat.Success)
	assert.EqualValues(t, 1, stat.Error)
	assert.EqualValues(t, 2, stat.TotalRequests)
	assert.EqualValues(t, 150, stat.TotalLatency)
}
