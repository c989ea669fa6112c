package service

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/stock-shipments/internal/port"
)

const (
	tracerName           = "github.com/rl1809/stock-shipments/internal/core/service"
	defaultStoreTimeout  = 5 * time.Second
	defaultCommitTimeout = 10 * time.Second
)

type options struct {
	logger        zerolog.Logger
	tracer        trace.Tracer
	metrics       *Metrics
	idempotency   port.IdempotencyRepository
	publisher     port.ShipmentPublisher
	storeTimeout  time.Duration
	commitTimeout time.Duration
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

func WithMetrics(metrics *Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithIdempotency enables Idempotency-Key handling for shipment submissions.
func WithIdempotency(repo port.IdempotencyRepository) Option {
	return func(o *options) { o.idempotency = repo }
}

func WithPublisher(publisher port.ShipmentPublisher) Option {
	return func(o *options) { o.publisher = publisher }
}

// WithTimeouts bounds store reads and the commit transaction. Zero keeps the default.
func WithTimeouts(store, commit time.Duration) Option {
	return func(o *options) {
		if store > 0 {
			o.storeTimeout = store
		}
		if commit > 0 {
			o.commitTimeout = commit
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:        zerolog.Nop(),
		storeTimeout:  defaultStoreTimeout,
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}
