package telemetry

import (
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	OrdersPlaced    metric.Int64Counter
	OrderTotalCents metric.Int64Histogram
	OrdersUpdated   metric.Int64Counter
	CartLinesAdded  metric.Int64Counter
	EventsPublished metric.Int64Counter
	EventsDropped   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	placed, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Order placement attempts by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	totals, err := meter.Int64Histogram("order_total_cents",
		metric.WithDescription("Order total in cents"),
		metric.WithUnit("cents"),
		metric.WithExplicitBucketBoundaries(500, 1000, 2500, 5000, 10000, 25000),
	)
	if err != nil {
		return nil, err
	}

	updated, err := meter.Int64Counter("orders_updated_total",
		metric.WithDescription("Order updates by role and outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	lines, err := meter.Int64Counter("cart_lines_added_total",
		metric.WithDescription("Cart lines created"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter("order_events_published_total",
		metric.WithDescription("Order events handed to the broker"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("order_events_dropped_total",
		metric.WithDescription("Order events that could not be published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		OrdersPlaced:    placed,
		OrderTotalCents: totals,
		OrdersUpdated:   updated,
		CartLinesAdded:  lines,
		EventsPublished: published,
		EventsDropped:   dropped,
	}, nil
}

// MustNewMetrics is NewMetrics for meters that cannot fail, such as no-op ones.
func MustNewMetrics(meter metric.Meter) *Metrics {
	m, err := NewMetrics(meter)
	if err != nil {
		panic(err)
	}
	return m
}
