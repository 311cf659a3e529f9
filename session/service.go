// Package session owns the potluck session lifecycle, per-participant
// ingredient contributions and recipe generation over the aggregated pool.
//
// Every mutation re-reads the session document, applies a pure change to a
// copy and writes it back with a compare-and-swap on the document version.
// A lost race is retried with exponential backoff, so concurrent writers
// never overwrite each other and no lock is held between requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"potluck"
	"potluck/store"
)

const (
	defaultGenerationTimeout   = 30 * time.Second
	defaultMaxWriteAttempts    = 5
	defaultRetryBaseDelay      = 20 * time.Millisecond
	defaultBreakerMinRequests  = 5
	defaultBreakerFailureRatio = 0.8
	defaultBreakerOpenTimeout  = 60 * time.Second
)

// UserResolver resolves user ids against the user directory.
type UserResolver interface {
	Lookup(ctx context.Context, userID string) (potluck.User, error)
}

type Options struct {
	// GenerationTimeout bounds a single call to the recipe generator.
	GenerationTimeout time.Duration
	// MaxWriteAttempts caps compare-and-swap attempts per mutation.
	MaxWriteAttempts int
	RetryBaseDelay   time.Duration

	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	Notifier         potluck.Notifier
	GenerationLogger potluck.GenerationLogger
	Tracer           trace.Tracer
	Meter            metric.Meter

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = defaultGenerationTimeout
	}
	if o.MaxWriteAttempts <= 0 {
		o.MaxWriteAttempts = defaultMaxWriteAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = defaultRetryBaseDelay
	}
	if o.BreakerMinRequests == 0 {
		o.BreakerMinRequests = defaultBreakerMinRequests
	}
	if o.BreakerFailureRatio <= 0 {
		o.BreakerFailureRatio = defaultBreakerFailureRatio
	}
	if o.BreakerOpenTimeout <= 0 {
		o.BreakerOpenTimeout = defaultBreakerOpenTimeout
	}
	if o.GenerationLogger == nil {
		o.GenerationLogger = potluck.NewNoOpGenerationLogger()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(potluck.TracerNameSession)
	}
	if o.Meter == nil {
		o.Meter = otel.Meter(potluck.TracerNameSession)
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type instruments struct {
	mutations          metric.Int64Counter
	conflicts          metric.Int64Counter
	generations        metric.Int64Counter
	generationFailures metric.Int64Counter
	generationDuration metric.Float64Histogram
}

func newInstruments(m metric.Meter) instruments {
	mutations, _ := m.Int64Counter("session_mutations_total",
		metric.WithDescription("Total number of committed session mutations"))
	conflicts, _ := m.Int64Counter("session_write_conflicts_total",
		metric.WithDescription("Total number of compare-and-swap conflicts on session writes"))
	generations, _ := m.Int64Counter("generation_requests_total",
		metric.WithDescription("Total number of recipe generation requests"))
	generationFailures, _ := m.Int64Counter("generation_failures_total",
		metric.WithDescription("Total number of recipe generation requests that failed"))
	generationDuration, _ := m.Float64Histogram("generation_duration_seconds",
		metric.WithDescription("Time spent waiting on the recipe generator in seconds"))
	return instruments{
		mutations:          mutations,
		conflicts:          conflicts,
		generations:        generations,
		generationFailures: generationFailures,
		generationDuration: generationDuration,
	}
}

type Service struct {
	store     store.Store
	users     UserResolver
	generator potluck.RecipeGenerator
	breaker   *gobreaker.CircuitBreaker
	opts      Options
	tracer    trace.Tracer
	metrics   instruments
}

func NewService(st store.Store, users UserResolver, gen potluck.RecipeGenerator, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		store:     st,
		users:     users,
		generator: gen,
		breaker:   newBreaker(opts),
		opts:      opts,
		tracer:    opts.Tracer,
		metrics:   newInstruments(opts.Meter),
	}
}

// errUnchanged lets a mutation report that the session already has the
// requested shape, so nothing is written and the version stays put.
var errUnchanged = errors.New("unchanged")

// mutate applies change to a fresh copy of the session and commits it with a
// compare-and-swap, retrying when another writer got there first.
func (s *Service) mutate(ctx context.Context, id, op string, change func(*potluck.Session) error) (potluck.Session, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBaseDelay

	attempt := 0
	committed, err := backoff.Retry(ctx, func() (potluck.Session, error) {
		attempt++
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return potluck.Session{}, backoff.Permanent(err)
		}
		ensureAggregate(&current)

		next := current.Clone()
		if err := change(&next); err != nil {
			if errors.Is(err, errUnchanged) {
				return current, nil
			}
			return potluck.Session{}, backoff.Permanent(err)
		}
		next.Version = current.Version + 1
		next.UpdatedAt = s.opts.Now()

		if err := s.store.Update(ctx, next, current.Version); err != nil {
			if errors.Is(err, store.ErrConflict) {
				s.metrics.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
				slog.Warn("SESSION: Write conflict, retrying", "session_id", id, "op", op, "attempt", attempt)
				return potluck.Session{}, err
			}
			return potluck.Session{}, backoff.Permanent(err)
		}

		s.metrics.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
		return next, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.opts.MaxWriteAttempts)))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if errors.Is(err, store.ErrConflict) {
			return potluck.Session{}, potluck.NewConflict(
				fmt.Sprintf("session %s kept changing, gave up after %d attempts", id, attempt), err)
		}
		return potluck.Session{}, err
	}
	return committed, nil
}

// Get returns the full current snapshot of a session.
func (s *Service) Get(ctx context.Context, id string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Get", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	ensureAggregate(&sess)
	return sess, nil
}

func (s *Service) ListByHost(ctx context.Context, hostID string) ([]potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.ListByHost", trace.WithAttributes(attribute.String("user.id", hostID)))
	defer span.End()

	out, err := s.store.ListByHost(ctx, hostID)
	if err != nil {
		return nil, fail(span, err)
	}
	for i := range out {
		ensureAggregate(&out[i])
	}
	return out, nil
}

func (s *Service) ListByParticipant(ctx context.Context, userID string) ([]potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.ListByParticipant", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	out, err := s.store.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fail(span, err)
	}
	for i := range out {
		ensureAggregate(&out[i])
	}
	return out, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.kind", string(potluck.KindOf(err))))
	return err
}
