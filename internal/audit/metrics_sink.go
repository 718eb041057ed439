package audit

import (
	"context"

	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

type MetricsSink struct{}

func (MetricsSink) Emit(_ context.Context, event Event) {
	metrics.AuditEventsTotal.WithLabelValues(string(event.Kind)).Inc()
}
