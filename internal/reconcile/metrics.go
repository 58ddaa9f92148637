package reconcile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/promptvault/internal/reconcile"

// instruments holds the reconcile counters. Instruments that fail to
// register stay nil and are skipped.
type instruments struct {
	runs     metric.Int64Counter
	prompts  metric.Int64Counter
	skipped  metric.Int64Counter
	removed  metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter(meterName)
	in := &instruments{}
	in.runs, _ = meter.Int64Counter("promptvault.reconcile.runs",
		metric.WithDescription("Reconcile operations by kind and outcome"))
	in.prompts, _ = meter.Int64Counter("promptvault.reconcile.prompts_synced",
		metric.WithDescription("Prompts written to the store"))
	in.skipped, _ = meter.Int64Counter("promptvault.reconcile.prompts_skipped",
		metric.WithDescription("Prompt directories skipped during a full sync"))
	in.removed, _ = meter.Int64Counter("promptvault.reconcile.rows_removed",
		metric.WithDescription("Rows removed by orphan cleanup"))
	in.duration, _ = meter.Float64Histogram("promptvault.reconcile.duration",
		metric.WithDescription("Reconcile operation duration"),
		metric.WithUnit("s"))
	return in
}

func (in *instruments) record(ctx context.Context, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	if in.runs != nil {
		in.runs.Add(ctx, 1, attrs)
	}
	if in.duration != nil {
		in.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func (in *instruments) addPrompts(ctx context.Context, synced, skipped int) {
	if in.prompts != nil && synced > 0 {
		in.prompts.Add(ctx, int64(synced))
	}
	if in.skipped != nil && skipped > 0 {
		in.skipped.Add(ctx, int64(skipped))
	}
}

func (in *instruments) addRemoved(ctx context.Context, table string, n int64) {
	if in.removed != nil && n > 0 {
		in.removed.Add(ctx, n, metric.WithAttributes(attribute.String("table", table)))
	}
}
