package services

import (
	"context"
	"time"
)

// MetricsRecorder is the subset of the CloudWatch metrics client the services use.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

type nopMetrics struct{}

func (nopMetrics) RecordCount(context.Context, string, map[string]string) error { return nil }

func (nopMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func metricsOrNop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

// recordCount sends a counter without holding up the caller.
func recordCount(m MetricsRecorder, name string, dims map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.RecordCount(ctx, name, dims)
	}()
}
