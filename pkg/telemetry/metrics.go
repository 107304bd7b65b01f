// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Brickmii/team-table/pkg/errors"
)

// Semantic conventions for team-table instrumentation.
const (
	AttrOp        = "teamtable.op"
	AttrErrorCode = "teamtable.error.code"
	AttrAgentName = "teamtable.agent.name"
	AttrEventType = "teamtable.event.type"
)

// StoreMetrics counts store operations and their failures and records
// per-operation latency. It satisfies the store's OpRecorder.
type StoreMetrics struct {
	opCounter    metric.Int64Counter
	errorCounter metric.Int64Counter
	opDuration   metric.Float64Histogram
}

// NewStoreMetrics creates the team-table store instruments on the global
// meter provider.
func NewStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter("teamtable/store")

	opCounter, err := meter.Int64Counter(
		"teamtable.store.ops.total",
		metric.WithDescription("Store operations by name"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"teamtable.store.errors.total",
		metric.WithDescription("Failed store operations by name and error code"),
	)
	if err != nil {
		return nil, err
	}

	opDuration, err := meter.Float64Histogram(
		"teamtable.store.op.duration_ms",
		metric.WithDescription("Store operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		opCounter:    opCounter,
		errorCounter: errorCounter,
		opDuration:   opDuration,
	}, nil
}

// RecordOp records one store operation observation. A nil receiver is a
// usable no-op so callers need not guard disabled metrics.
func (m *StoreMetrics) RecordOp(ctx context.Context, op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	opAttr := attribute.String(AttrOp, op)
	m.opCounter.Add(ctx, 1, metric.WithAttributes(opAttr))
	m.opDuration.Record(ctx, float64(duration)/float64(time.Millisecond),
		metric.WithAttributes(opAttr))
	if err != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			opAttr,
			attribute.String(AttrErrorCode, string(errors.AsError(err).Code)),
		))
	}
}
