package core

import (
	"sync"
	"time"

	"open-llm-gateway/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxRetainedLogs bounds the request_logs table; older rows are pruned
// after every flush.
const maxRetainedLogs = 1000

// AsyncRequestLogger batches request logs into the database off the
// request path. Submission never blocks: a full queue drops the entry.
type AsyncRequestLogger struct {
	db        *gorm.DB
	logChan   chan *models.RequestLog
	logger    *logrus.Logger
	batchSize int
	flushTime time.Duration
	wg        sync.WaitGroup
	quit      chan struct{}
}

func NewAsyncRequestLogger(db *gorm.DB, logger *logrus.Logger) *AsyncRequestLogger {
	l := &AsyncRequestLogger{
		db:        db,
		logChan:   make(chan *models.RequestLog, 1000),
		logger:    logger,
		batchSize: 100,
		flushTime: 5 * time.Second,
		quit:      make(chan struct{}),
	}
	l.startWorker()
	return l
}

// Log submits one entry to the queue.
func (l *AsyncRequestLogger) Log(entry *models.RequestLog) {
	select {
	case l.logChan <- entry:
	default:
		l.logger.Warn("Log channel full, dropping request log")
	}
}

func (l *AsyncRequestLogger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.workerLoop()
	}()
}

func (l *AsyncRequestLogger) workerLoop() {
	var batch []*models.RequestLog
	timer := time.NewTicker(l.flushTime)
	defer timer.Stop()

	for {
		select {
		case entry := <-l.logChan:
			batch = append(batch, entry)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = nil
			}
		case <-timer.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = nil
			}
		case <-l.quit:
			if len(batch) > 0 {
				l.flush(batch)
			}
			return
		}
	}
}

// flush inserts the batch, prunes old rows, and folds the batch into the
// per-backend aggregates.
func (l *AsyncRequestLogger) flush(logs []*models.RequestLog) {
	if len(logs) == 0 {
		return
	}

	if err := l.db.CreateInBatches(logs, len(logs)).Error; err != nil {
		l.logger.Errorf("Failed to flush request logs: %v", err)
	}

	l.prune()

	type statDelta struct {
		Success      int64
		Error        int64
		TotalLatency float64
		Requests     int64
	}
	statsMap := make(map[string]*statDelta)

	for _, entry := range logs {
		if entry.Backend == "" {
			continue
		}
		delta, exists := statsMap[entry.Backend]
		if !exists {
			delta = &statDelta{}
			statsMap[entry.Backend] = delta
		}
		delta.Requests++
		if entry.StatusCode >= 200 && entry.StatusCode < 400 {
			delta.Success++
		} else {
			delta.Error++
		}
		delta.TotalLatency += float64(entry.Duration)
	}

	for backend, delta := range statsMap {
		var stat models.BackendStats
		err := l.db.Where("backend = ?", backend).First(&stat).Error
		if err == nil {
			stat.Success += delta.Success
			stat.Error += delta.Error
			stat.TotalLatency += delta.TotalLatency
			stat.TotalRequests += delta.Requests
			l.db.Save(&stat)
		} else {
			l.db.Create(&models.BackendStats{
				Backend:       backend,
				Success:       delta.Success,
				Error:         delta.Error,
				TotalLatency:  delta.TotalLatency,
				TotalRequests: delta.Requests,
			})
		}
	}
}

// prune keeps only the newest maxRetainedLogs rows.
func (l *AsyncRequestLogger) prune() {
	var count int64
	l.db.Model(&models.RequestLog{}).Count(&count)
	if count <= maxRetainedLogs {
		return
	}
	var pivotID uint
	l.db.Model(&models.RequestLog{}).Select("id").Order("id desc").Offset(maxRetainedLogs).Limit(1).Scan(&pivotID)
	if pivotID > 0 {
		l.db.Where("id <= ?", pivotID).Delete(&models.RequestLog{})
	}
}

// Close flushes what is queued and stops the worker.
func (l *AsyncRequestLogger) Close() {
	close(l.quit)
	l.wg.Wait()
}
