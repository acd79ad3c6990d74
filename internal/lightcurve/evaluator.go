package lightcurve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"

	"github.com/star/starflux/internal/kepler"
	"github.com/star/starflux/internal/metrics"
	"github.com/star/starflux/internal/system"
)

// DefaultChunkSize is the number of samples handed to a worker at a time.
const DefaultChunkSize = 256

// Curve is an evaluated light curve.
type Curve struct {
	Time []float64   `json:"time"`
	Flux [][]float64 `json:"flux"`
}

// Linspace returns n evenly spaced times from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}

// chunkJob is a contiguous slice of the requested times.
type chunkJob struct {
	offset int
	times  []float64
}

// Evaluator computes light curves with a fixed pool of workers, each owning
// its own built System.
type Evaluator struct {
	workers   int
	chunkSize int
	opts      []system.Option
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewEvaluator creates an evaluator with the given number of workers.
func NewEvaluator(workers int, logger *slog.Logger, opts ...system.Option) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{
		workers:   workers,
		chunkSize: DefaultChunkSize,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/star/starflux/internal/lightcurve"),
	}
}

// Compute evaluates spec at each time (days). Results keep the order of
// times. The first error cancels the remaining work and is returned.
func (e *Evaluator) Compute(ctx context.Context, spec Spec, times []float64) (*Curve, error) {
	ctx, span := e.tracer.Start(ctx, "lightcurve.Compute", trace.WithAttributes(
		attribute.Int("points", len(times)),
		attribute.Int("secondaries", len(spec.Secondaries)),
		attribute.Int("lmax", spec.Lmax),
	))
	defer span.End()

	start := time.Now()
	curve, err := e.compute(ctx, spec, times)
	if err != nil {
		kind := errorKind(err)
		metrics.IncLightCurveErrors(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		return nil, err
	}

	duration := time.Since(start)
	metrics.RecordLightCurve(duration, len(times))
	e.logger.Debug("light curve computed",
		"points", len(times),
		"secondaries", len(spec.Secondaries),
		"duration_ms", duration.Milliseconds(),
	)
	return curve, nil
}

func (e *Evaluator) compute(ctx context.Context, spec Spec, times []float64) (*Curve, error) {
	// Fail fast on a bad description before starting workers.
	probe, err := Build(spec, e.opts...)
	if err != nil {
		return nil, err
	}

	curve := &Curve{
		Time: append([]float64(nil), times...),
		Flux: make([][]float64, len(times)),
	}
	if len(times) == 0 {
		return curve, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(e.workers, (len(times)+e.chunkSize-1)/e.chunkSize)
	jobs := make(chan chunkJob, workers*2)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < workers; i++ {
		sys := probe
		if i > 0 {
			if sys, err = Build(spec, e.opts...); err != nil {
				fail(err)
				break
			}
		}
		wg.Add(1)
		go func(sys *System) {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				for k, t := range job.times {
					sample, err := sys.Step(t)
					if err != nil {
						fail(fmt.Errorf("t=%g d: %w", t, err))
						break
					}
					// Chunks cover disjoint index ranges.
					curve.Flux[job.offset+k] = sample.Flux
				}
			}
		}(sys)
	}

	go func() {
		defer close(jobs)
		for off := 0; off < len(times); off += e.chunkSize {
			end := min(off+e.chunkSize, len(times))
			select {
			case jobs <- chunkJob{offset: off, times: times[off:end]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return curve, nil
}

// errorKind labels an evaluation error for metrics and spans.
func errorKind(err error) string {
	switch {
	case errors.Is(err, system.ErrValidation), errors.Is(err, ErrSpec):
		return "validation"
	case errors.Is(err, kepler.ErrConvergence):
		return "convergence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
