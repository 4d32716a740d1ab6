package services

import (
	"crypto/md5"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

const (
	defaultFingerprintThreshold = 5
	defaultWindowThreshold      = 300 * time.Second
	maxTrackedFingerprints      = 1024
)

type fingerprintBucket struct {
	component   string
	fingerprint string
	count       int
	windowStart time.Time
	lastReportedCount int
}

// errorAggregator implements ports.ErrorAggregator: deduplicates by
// (component, message-fingerprint), bucketed by time window, emitting a
// report when either threshold trips.
type errorAggregator struct {
	mu                   sync.Mutex
	buckets              map[string]*fingerprintBucket
	fingerprintThreshold int
	windowThreshold      time.Duration
	reports              chan ports.ErrorReport
	logger               *zap.Logger
}

// NewErrorAggregator constructs an aggregator with the default thresholds
// (5 occurrences / 300s).
func NewErrorAggregator(logger *zap.Logger) ports.ErrorAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &errorAggregator{
		buckets:              make(map[string]*fingerprintBucket),
		fingerprintThreshold: defaultFingerprintThreshold,
		windowThreshold:      defaultWindowThreshold,
		reports:              make(chan ports.ErrorReport, 64),
		logger:               logger,
	}
}

// Record accepts one occurrence. It never blocks the caller: under bounded
// memory pressure it drops the lowest-count bucket to make room.
func (a *errorAggregator) Record(component, message string, timestamp time.Time) {
	fingerprint := fingerprintOf(message)
	mapKey := component + "|" + fingerprint

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[mapKey]
	if !ok {
		if len(a.buckets) >= maxTrackedFingerprints {
			a.evictLowestLocked()
		}
		b = &fingerprintBucket{component: component, fingerprint: fingerprint, windowStart: timestamp}
		a.buckets[mapKey] = b
	}
	b.count++

	tripped := b.count-b.lastReportedCount >= a.fingerprintThreshold ||
		(b.count > b.lastReportedCount && timestamp.Sub(b.windowStart) >= a.windowThreshold)

	if tripped {
		report := ports.ErrorReport{
			Component:   component,
			Fingerprint: fingerprint,
			Count:       b.count - b.lastReportedCount,
			WindowStart: b.windowStart,
			WindowEnd:   timestamp,
		}
		b.lastReportedCount = b.count
		b.windowStart = timestamp

		select {
		case a.reports <- report:
		default:
			a.logger.Warn("error aggregator report channel full, dropping report",
				zap.String("component", component), zap.String("fingerprint", fingerprint))
		}
	}
}

// Reports returns the channel reports are emitted on.
func (a *errorAggregator) Reports() <-chan ports.ErrorReport {
	return a.reports
}

// Snapshot returns the current buckets, highest count first.
func (a *errorAggregator) Snapshot() []ports.ErrorSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ports.ErrorSnapshot, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, ports.ErrorSnapshot{
			Component:   b.component,
			Fingerprint: b.fingerprint,
			Count:       b.count,
			WindowStart: b.windowStart,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	return out
}

// evictLowestLocked drops the lowest-count bucket; caller holds a.mu.
func (a *errorAggregator) evictLowestLocked() {
	var lowestKey string
	lowestCount := -1
	for k, b := range a.buckets {
		if lowestCount == -1 || b.count < lowestCount {
			lowestCount = b.count
			lowestKey = k
		}
	}
	if lowestKey != "" {
		delete(a.buckets, lowestKey)
	}
}

func fingerprintOf(message string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(message)))
}
