package telemetry

import "go.opentelemetry.io/otel/metric"

// Metrics holds the task worker's instruments.
type Metrics struct {
	TasksClaimed metric.Int64Counter
	// TaskOutcomes counts finished attempts by outcome
	// (completed, retried, failed).
	TaskOutcomes metric.Int64Counter
	TaskDuration metric.Float64Histogram
	TasksSwept   metric.Int64Counter
}

// NewMetrics creates the instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TasksClaimed, err = meter.Int64Counter("formrelay.tasks.claimed",
		metric.WithDescription("Tasks claimed by the worker"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskOutcomes, err = meter.Int64Counter("formrelay.tasks.outcomes",
		metric.WithDescription("Task attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("formrelay.task.duration",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksSwept, err = meter.Int64Counter("formrelay.tasks.swept",
		metric.WithDescription("Stale tasks reclaimed by the sweeper"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
