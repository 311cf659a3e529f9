package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"potluck"
)

var errNoRecipes = errors.New("generator returned no recipes")

func newBreaker(o Options) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "recipe-generator",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     o.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < o.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= o.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("GENERATE: Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// Generate sends the session's pooled ingredient names, the cuisine and the
// preferences to the recipe generator once, and on success stores the result
// as the session's last generated recipes. Any generator failure, including a
// timeout, leaves the session untouched and returns KindGenerationFailed.
func (s *Service) Generate(ctx context.Context, id, cuisine string, prefs potluck.Preferences) ([]potluck.Recipe, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Generate", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("generation.cuisine", cuisine),
	))
	defer span.End()

	if err := prefs.Validate(); err != nil {
		return nil, fail(span, err)
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if sess.Ended() {
		return nil, fail(span, potluck.NewInvalidState("session has ended"))
	}
	ensureAggregate(&sess)

	req := potluck.GenerationRequest{
		Ingredients: potluck.DistinctFold(IngredientNames(sess.AggregatedIngredients)),
		Cuisine:     strings.TrimSpace(cuisine),
		Preferences: prefs,
	}
	if len(req.Ingredients) == 0 {
		return nil, fail(span, potluck.NewValidation("no ingredients have been contributed yet"))
	}
	span.SetAttributes(attribute.Int("generation.ingredients", len(req.Ingredients)))

	s.metrics.generations.Add(ctx, 1)
	slog.Info("GENERATE: Invoking generator", "session_id", id, "ingredients", len(req.Ingredients), "cuisine", req.Cuisine)

	start := time.Now()
	recipes, err := s.invoke(ctx, req)
	elapsed := time.Since(start)
	s.metrics.generationDuration.Record(ctx, elapsed.Seconds())
	s.logGeneration(id, req, elapsed, recipes, err)

	if err != nil {
		s.metrics.generationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
		slog.Error("GENERATE: Generator failed", "session_id", id, "error", err, "elapsed", elapsed)
		return nil, fail(span, potluck.NewGenerationFailed("recipe generation failed", err))
	}

	// The caller may have gone away while waiting; the result is still kept.
	ctx = context.WithoutCancel(ctx)
	updated, err := s.mutate(ctx, id, "store_recipes", func(sess *potluck.Session) error {
		if sess.Ended() {
			return potluck.NewInvalidState("session ended while recipes were being generated")
		}
		sess.LastGeneratedRecipes = recipes
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	slog.Info("GENERATE: Recipes stored", "session_id", id, "recipes", len(recipes), "elapsed", elapsed)

	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.RecipesGenerated(ctx, updated, recipes); err != nil {
			slog.Warn("GENERATE: Notification failed", "session_id", id, "error", err)
		}
	}
	return recipes, nil
}

// invoke calls the generator through the circuit breaker. The call runs on a
// context that ignores the caller's cancellation and is bounded only by the
// generation timeout; the select makes the bound hold even for a generator
// that does not watch its context.
func (s *Service) invoke(ctx context.Context, req potluck.GenerationRequest) ([]potluck.Recipe, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.GenerationTimeout)
	defer cancel()

	type result struct {
		recipes []potluck.Recipe
		err     error
	}
	done := make(chan result, 1)

	go func() {
		out, err := s.breaker.Execute(func() (any, error) {
			recipes, err := s.generator.Generate(callCtx, req)
			if err != nil {
				return nil, err
			}
			if len(recipes) == 0 {
				return nil, errNoRecipes
			}
			return recipes, nil
		})
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{recipes: out.([]potluck.Recipe)}
	}()

	select {
	case r := <-done:
		return r.recipes, r.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("generator timed out after %s: %w", s.opts.GenerationTimeout, callCtx.Err())
	}
}

func (s *Service) logGeneration(id string, req potluck.GenerationRequest, elapsed time.Duration, recipes []potluck.Recipe, err error) {
	entry := potluck.GenerationLog{
		SessionID:   id,
		Timestamp:   s.opts.Now(),
		Cuisine:     req.Cuisine,
		Ingredients: req.Ingredients,
		Preferences: req.Preferences,
		Duration:    elapsed,
	}
	for _, r := range recipes {
		entry.Recipes = append(entry.Recipes, r.Name)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if err := s.opts.GenerationLogger.LogGeneration(entry); err != nil {
		slog.Warn("GENERATE: Failed to record generation log", "error", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, errNoRecipes):
		return "empty"
	default:
		return "error"
	}
}
