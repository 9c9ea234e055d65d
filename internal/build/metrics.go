package build

import (
	"sync"
	"time"
)

// BuildMetrics tracks build performance
type BuildMetrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	Warnings         int64
	BytesWritten     int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	mutex            sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records a page result in the metrics
func (bm *BuildMetrics) RecordBuild(result PageResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += result.Duration
	bm.Warnings += int64(len(result.Warnings))

	if result.Error != nil {
		bm.FailedBuilds++
	} else {
		bm.SuccessfulBuilds++
		bm.BytesWritten += result.Size
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalBuilds:      bm.TotalBuilds,
		SuccessfulBuilds: bm.SuccessfulBuilds,
		FailedBuilds:     bm.FailedBuilds,
		Warnings:         bm.Warnings,
		BytesWritten:     bm.BytesWritten,
		AverageDuration:  bm.AverageDuration,
		TotalDuration:    bm.TotalDuration,
	}
}

// Reset clears all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds = 0
	bm.SuccessfulBuilds = 0
	bm.FailedBuilds = 0
	bm.Warnings = 0
	bm.BytesWritten = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
}
