package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/adapter"
	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/envelope"
)

// Appender is the sink boundary the runner writes through.
type Appender interface {
	Append(ctx context.Context, e *domain.SignalEvent) (*domain.SignalEvent, bool, error)
}

// Runner executes adapter runs under coordinator leases: probe, normalize,
// derive, validate, append. One run is one full cycle; failures never
// propagate past the run's AdapterRunRecord.
type Runner struct {
	coordinator *Coordinator
	validator   *envelope.Validator
	sink        Appender
	log         *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(coordinator *Coordinator, validator *envelope.Validator, sink Appender, log *zap.Logger) *Runner {
	return &Runner{
		coordinator: coordinator,
		validator:   validator,
		sink:        sink,
		log:         log,
	}
}

// RunAdapter executes one run of a. Returns ErrAlreadyRunning when the
// adapter's slot is held; any other failure is folded into the run record
// and the returned outcome.
func (r *Runner) RunAdapter(ctx context.Context, a adapter.SourceAdapter) (Outcome, error) {
	lease, err := r.coordinator.StartRun(a.ID())
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.coordinator.Timeout())
	defer cancel()

	outcome, emitted, runErr := r.execute(runCtx, a)
	r.coordinator.EndRun(lease, outcome, emitted, runErr)

	return outcome, nil
}

func (r *Runner) execute(ctx context.Context, a adapter.SourceAdapter) (Outcome, int, error) {
	records, err := a.Probe(ctx)
	if err != nil {
		kind := adapter.KindOf(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout: %w", err)
		}
		r.log.Error("Adapter probe failed",
			zap.String("adapter_id", a.ID()),
			zap.String("error_kind", string(kind)),
			zap.Error(err))
		return OutcomeFailed, 0, err
	}

	var appended, skipped, dropped, failed int
	var lastErr error

	for _, rec := range records {
		e, ok, err := a.Normalize(rec)
		if err != nil {
			dropped++
			r.log.Warn("Dropping malformed record",
				zap.String("adapter_id", a.ID()),
				zap.ByteString("raw_payload", rec.Body),
				zap.Error(err))
			r.ack(ctx, a.ID(), rec)
			continue
		}
		if !ok {
			skipped++
			r.ack(ctx, a.ID(), rec)
			continue
		}

		e.ID = a.DeriveEventID(e)
		e.IncidentKey = a.DeriveIncidentKey(e)

		if err := r.validator.Validate(e); err != nil {
			dropped++
			var verr *envelope.ValidationError
			if errors.As(err, &verr) {
				r.log.Warn("Dropping invalid event",
					zap.String("adapter_id", a.ID()),
					zap.String("event_id", e.ID),
					zap.String("event_type", e.Type),
					zap.ByteString("raw_payload", verr.RawPayload),
					zap.Error(err))
			}
			r.ack(ctx, a.ID(), rec)
			continue
		}

		if _, isNew, err := r.sink.Append(ctx, e); err != nil {
			failed++
			lastErr = err
			r.log.Error("Failed to append event",
				zap.String("adapter_id", a.ID()),
				zap.String("event_id", e.ID),
				zap.Error(err))
			continue
		} else if isNew {
			appended++
		}
		r.ack(ctx, a.ID(), rec)
	}

	r.log.Info("Adapter run finished",
		zap.String("adapter_id", a.ID()),
		zap.Int("records", len(records)),
		zap.Int("appended", appended),
		zap.Int("skipped", skipped),
		zap.Int("dropped", dropped),
		zap.Int("failed", failed))

	switch {
	case failed > 0 || dropped > 0:
		return OutcomePartial, appended, lastErr
	default:
		return OutcomeSuccess, appended, nil
	}
}

// ack confirms durable handling back to queue-style sources. Malformed
// records are acked too so they cannot poison the queue.
func (r *Runner) ack(ctx context.Context, adapterID string, rec adapter.RawRecord) {
	if rec.Ack == nil {
		return
	}
	if err := rec.Ack(ctx); err != nil {
		r.log.Error("Failed to ack record",
			zap.String("adapter_id", adapterID),
			zap.Error(err))
	}
}
