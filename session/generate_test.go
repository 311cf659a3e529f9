package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potluck"
)

type recordingNotifier struct {
	mu      sync.Mutex
	calls   int
	session potluck.Session
	err     error
}

func (n *recordingNotifier) RecipesGenerated(ctx context.Context, s potluck.Session, recipes []potluck.Recipe) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.session = s
	return n.err
}

type memoryGenerationLogger struct {
	mu      sync.Mutex
	entries []potluck.GenerationLog
}

func (l *memoryGenerationLogger) LogGeneration(entry potluck.GenerationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func failing(err error) *stubGenerator {
	return &stubGenerator{fn: func(context.Context, potluck.GenerationRequest) ([]potluck.Recipe, error) {
		return nil, err
	}}
}

func sessionWithIngredients(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	id := mustCreate(t, svc, "P")
	_, err := svc.AddIngredients(ctx, id, "H", []string{"Onion", "rice"})
	require.NoError(t, err)
	_, err = svc.AddIngredients(ctx, id, "P", []string{"onion", "chicken"})
	require.NoError(t, err)
	return id
}

func recipesJSON(t *testing.T, svc *Service, id string) []byte {
	t.Helper()
	sess, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	data, err := json.Marshal(sess.LastGeneratedRecipes)
	require.NoError(t, err)
	return data
}

func TestGenerateSendsDistinctPool(t *testing.T) {
	ctx := context.Background()
	gen := returning(potluck.Recipe{Name: "Chicken Fried Rice", CuisineType: "Chinese"})
	logger := &memoryGenerationLogger{}
	svc, _ := newTestService(t, gen, Options{GenerationLogger: logger})
	id := sessionWithIngredients(t, svc)

	prefs := potluck.Preferences{Spice: 7, PrepTime: 3}
	recipes, err := svc.Generate(ctx, id, " Chinese ", prefs)
	require.NoError(t, err)
	require.Len(t, recipes, 1)

	assert.Equal(t, 1, gen.Calls())
	assert.Equal(t, potluck.GenerationRequest{
		Ingredients: []string{"Onion", "rice", "chicken"},
		Cuisine:     "Chinese",
		Preferences: prefs,
	}, gen.lastReq)

	require.Len(t, logger.entries, 1)
	assert.Equal(t, id, logger.entries[0].SessionID)
	assert.Equal(t, []string{"Chicken Fried Rice"}, logger.entries[0].Recipes)
	assert.Empty(t, logger.entries[0].Error)
}

func TestGenerateReplacesPreviousRecipes(t *testing.T) {
	ctx := context.Background()
	batches := [][]potluck.Recipe{
		{{Name: "Fried Rice"}, {Name: "Onion Soup"}},
		{{Name: "Chicken Curry"}},
	}
	call := 0
	gen := &stubGenerator{fn: func(context.Context, potluck.GenerationRequest) ([]potluck.Recipe, error) {
		out := batches[call]
		call++
		return out, nil
	}}
	svc, _ := newTestService(t, gen, Options{})
	id := sessionWithIngredients(t, svc)

	_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
	require.NoError(t, err)
	_, err = svc.Generate(ctx, id, "", potluck.Preferences{})
	require.NoError(t, err)

	sess, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []potluck.Recipe{{Name: "Chicken Curry"}}, sess.LastGeneratedRecipes)
}

func TestGenerateFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		gen  func(release <-chan struct{}) *stubGenerator
	}{
		{
			name: "generator error",
			gen: func(<-chan struct{}) *stubGenerator {
				return failing(errors.New("model unavailable"))
			},
		},
		{
			name: "empty result",
			gen: func(<-chan struct{}) *stubGenerator {
				return returning()
			},
		},
		{
			name: "timeout with a generator that ignores its context",
			gen: func(release <-chan struct{}) *stubGenerator {
				return &stubGenerator{fn: func(context.Context, potluck.GenerationRequest) ([]potluck.Recipe, error) {
					<-release
					return []potluck.Recipe{{Name: "Too Late"}}, nil
				}}
			},
		},
		{
			name: "timeout with a generator that honours its context",
			gen: func(<-chan struct{}) *stubGenerator {
				return &stubGenerator{fn: func(ctx context.Context, _ potluck.GenerationRequest) ([]potluck.Recipe, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := make(chan struct{})
			t.Cleanup(func() { close(release) })

			// Seed a previous result so there is something to preserve.
			seed := returning(potluck.Recipe{Name: "Seed Stew", Ingredients: []string{"onion"}})
			svc, _ := newTestService(t, seed, Options{GenerationTimeout: 20 * time.Millisecond})
			id := sessionWithIngredients(t, svc)
			_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
			require.NoError(t, err)

			before := recipesJSON(t, svc, id)
			snapshot, err := svc.Get(ctx, id)
			require.NoError(t, err)

			svc.generator = tt.gen(release)
			_, err = svc.Generate(ctx, id, "", potluck.Preferences{})
			assertKind(t, err, potluck.KindGenerationFailed)

			after, err := svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, before, recipesJSON(t, svc, id))
			assert.Equal(t, snapshot.Version, after.Version)
		})
	}
}

func TestGenerateTimeoutIsBounded(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)

	gen := &stubGenerator{fn: func(context.Context, potluck.GenerationRequest) ([]potluck.Recipe, error) {
		<-release
		return nil, nil
	}}
	svc, _ := newTestService(t, gen, Options{GenerationTimeout: 30 * time.Millisecond})
	id := sessionWithIngredients(t, svc)

	start := time.Now()
	_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
	assertKind(t, err, potluck.KindGenerationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerateIgnoresCallerCancellation(t *testing.T) {
	callerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawCancel bool
	gen := &stubGenerator{fn: func(ctx context.Context, _ potluck.GenerationRequest) ([]potluck.Recipe, error) {
		cancel()
		sawCancel = ctx.Err() != nil
		return []potluck.Recipe{{Name: "Fried Rice"}}, nil
	}}
	svc, _ := newTestService(t, gen, Options{})
	id := sessionWithIngredients(t, svc)

	_, err := svc.Generate(callerCtx, id, "", potluck.Preferences{})
	require.NoError(t, err)
	assert.False(t, sawCancel)

	sess, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []potluck.Recipe{{Name: "Fried Rice"}}, sess.LastGeneratedRecipes)
}

func TestGenerateDoesNotBlockMutations(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	gen := &stubGenerator{fn: func(context.Context, potluck.GenerationRequest) ([]potluck.Recipe, error) {
		close(started)
		<-release
		return []potluck.Recipe{{Name: "Fried Rice"}}, nil
	}}
	svc, _ := newTestService(t, gen, Options{})
	id := sessionWithIngredients(t, svc)

	type outcome struct {
		recipes []potluck.Recipe
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		recipes, err := svc.Generate(ctx, id, "", potluck.Preferences{})
		done <- outcome{recipes, err}
	}()

	<-started
	_, err := svc.AddIngredients(ctx, id, "P", []string{"lime"})
	require.NoError(t, err)
	close(release)

	res := <-done
	require.NoError(t, res.err)

	sess, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []potluck.Recipe{{Name: "Fried Rice"}}, sess.LastGeneratedRecipes)
	assert.Contains(t, sess.Participants[1].ContributedIngredients, "lime")
}

func TestGenerateRejectsInput(t *testing.T) {
	ctx := context.Background()

	t.Run("preferences out of range", func(t *testing.T) {
		gen := returning(potluck.Recipe{Name: "Fried Rice"})
		svc, _ := newTestService(t, gen, Options{})
		id := sessionWithIngredients(t, svc)

		_, err := svc.Generate(ctx, id, "", potluck.Preferences{Spice: 11})
		assertKind(t, err, potluck.KindValidation)
		assert.Zero(t, gen.Calls())
	})

	t.Run("empty pool", func(t *testing.T) {
		gen := returning(potluck.Recipe{Name: "Fried Rice"})
		svc, _ := newTestService(t, gen, Options{})
		id := mustCreate(t, svc, "P")

		_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
		assertKind(t, err, potluck.KindValidation)
		assert.Zero(t, gen.Calls())
	})

	t.Run("ended session", func(t *testing.T) {
		gen := returning(potluck.Recipe{Name: "Fried Rice"})
		svc, _ := newTestService(t, gen, Options{})
		id := sessionWithIngredients(t, svc)
		_, err := svc.End(ctx, id, "H")
		require.NoError(t, err)

		_, err = svc.Generate(ctx, id, "", potluck.Preferences{})
		assertKind(t, err, potluck.KindInvalidState)
		assert.Zero(t, gen.Calls())
	})

	t.Run("missing session", func(t *testing.T) {
		svc, _ := newTestService(t, returning(), Options{})
		_, err := svc.Generate(ctx, "missing", "", potluck.Preferences{})
		assertKind(t, err, potluck.KindNotFound)
	})
}

func TestGenerateSessionEndedMidCall(t *testing.T) {
	ctx := context.Background()
	var svc *Service
	var id string

	gen := &stubGenerator{fn: func(context.Context, potluck.GenerationRequest) ([]potluck.Recipe, error) {
		_, err := svc.End(ctx, id, "H")
		assert.NoError(t, err)
		return []potluck.Recipe{{Name: "Fried Rice"}}, nil
	}}
	svc, _ = newTestService(t, gen, Options{})
	id = sessionWithIngredients(t, svc)

	_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
	assertKind(t, err, potluck.KindInvalidState)

	sess, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, sess.LastGeneratedRecipes)
}

func TestGenerateDoesNotRetry(t *testing.T) {
	gen := failing(errors.New("throttled"))
	svc, _ := newTestService(t, gen, Options{})
	id := sessionWithIngredients(t, svc)

	_, err := svc.Generate(context.Background(), id, "", potluck.Preferences{})
	assertKind(t, err, potluck.KindGenerationFailed)
	assert.Equal(t, 1, gen.Calls())
}

func TestGenerateCircuitBreakerOpens(t *testing.T) {
	ctx := context.Background()
	gen := failing(errors.New("model unavailable"))
	svc, _ := newTestService(t, gen, Options{
		BreakerMinRequests:  2,
		BreakerFailureRatio: 1,
		BreakerOpenTimeout:  time.Hour,
	})
	id := sessionWithIngredients(t, svc)

	for range 2 {
		_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
		assertKind(t, err, potluck.KindGenerationFailed)
	}
	require.Equal(t, 2, gen.Calls())

	_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
	assertKind(t, err, potluck.KindGenerationFailed)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, gen.Calls())
	assert.Equal(t, "circuit_open", failureReason(err))
}

func TestGenerateNotifies(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		notifier := &recordingNotifier{}
		svc, _ := newTestService(t, returning(potluck.Recipe{Name: "Fried Rice"}), Options{Notifier: notifier})
		id := sessionWithIngredients(t, svc)

		_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
		require.NoError(t, err)
		assert.Equal(t, 1, notifier.calls)
		assert.Equal(t, id, notifier.session.ID)
		assert.Equal(t, []potluck.Recipe{{Name: "Fried Rice"}}, notifier.session.LastGeneratedRecipes)
	})

	t.Run("notifier failure does not fail generation", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("webhook down")}
		svc, _ := newTestService(t, returning(potluck.Recipe{Name: "Fried Rice"}), Options{Notifier: notifier})
		id := sessionWithIngredients(t, svc)

		_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
		require.NoError(t, err)
		assert.Equal(t, 1, notifier.calls)
	})

	t.Run("not called on failure", func(t *testing.T) {
		notifier := &recordingNotifier{}
		svc, _ := newTestService(t, failing(errors.New("boom")), Options{Notifier: notifier})
		id := sessionWithIngredients(t, svc)

		_, err := svc.Generate(ctx, id, "", potluck.Preferences{})
		require.Error(t, err)
		assert.Zero(t, notifier.calls)
	})
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{gobreaker.ErrOpenState, "circuit_open"},
		{gobreaker.ErrTooManyRequests, "circuit_open"},
		{errNoRecipes, "empty"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.err))
		})
	}
}
