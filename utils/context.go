package utils

import (
	"context"
	"time"
)

const (
	// ProbeTimeout bounds health probes and rate-limit lookups.
	ProbeTimeout = 2 * time.Second
	// StoreTimeout bounds connects and single job-store round trips.
	StoreTimeout = 10 * time.Second
	// ExportTimeout bounds full-index scans such as export and reset.
	ExportTimeout = 2 * time.Minute
)

func WithProbeTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ProbeTimeout)
}

func WithStoreTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, StoreTimeout)
}

func WithExportTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ExportTimeout)
}
