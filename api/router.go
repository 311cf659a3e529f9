// Package api exposes the session service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"potluck"
	"potluck/session"
)

const (
	// HeaderUserID carries the authenticated caller. Authentication itself
	// happens in front of this service.
	HeaderUserID = "X-User-ID"
	// HeaderPollInterval tells clients how often to re-read a session, in seconds.
	HeaderPollInterval = "X-Poll-Interval"

	pollIntervalSeconds = "5"
)

// Sessions is the part of session.Service the API needs.
type Sessions interface {
	Create(ctx context.Context, in session.CreateInput) (string, error)
	Get(ctx context.Context, id string) (potluck.Session, error)
	ListByHost(ctx context.Context, hostID string) ([]potluck.Session, error)
	ListByParticipant(ctx context.Context, userID string) ([]potluck.Session, error)
	AddParticipants(ctx context.Context, id string, userIDs []string) (potluck.Session, error)
	RemoveParticipants(ctx context.Context, id string, userIDs []string) (potluck.Session, error)
	AddIngredients(ctx context.Context, id, participantID string, names []string) (potluck.Session, error)
	RemoveIngredients(ctx context.Context, id, participantID string, names []string) (potluck.Session, error)
	Aggregate(ctx context.Context, id string) ([]potluck.ContributedIngredient, error)
	Generate(ctx context.Context, id, cuisine string, prefs potluck.Preferences) ([]potluck.Recipe, error)
	End(ctx context.Context, id, requesterID string) (potluck.Session, error)
	Leave(ctx context.Context, id, requesterID string) (potluck.Session, error)
	Delete(ctx context.Context, id, requesterID string) error
}

// FriendSearcher backs the friend picker.
type FriendSearcher interface {
	SearchFriends(ctx context.Context, userID, query string) ([]potluck.User, error)
}

type Options struct {
	AllowedOrigins []string
	Tracer         trace.Tracer
}

// NewRouter wires every route and the shared middleware stack.
func NewRouter(sessions Sessions, friends FriendSearcher, opts Options) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(potluck.TracerNameAPI)
	}

	h := &handler{sessions: sessions, friends: friends}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(tracing(opts.Tracer))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match", HeaderUserID, "X-Request-ID"},
		ExposedHeaders: []string{"ETag", HeaderPollInterval, "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.health)
	r.Get("/cuisines", h.searchCuisines)
	r.Get("/users/{userId}/friends", h.searchFriends)

	r.Route("/potluck", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Get("/host/{userId}", h.listByHost)
		r.Get("/participant/{userId}", h.listByParticipant)
		r.Put("/AI/{id}", h.generateRecipes)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Put("/participants", h.addParticipants)
			r.Delete("/participants", h.removeParticipants)
			r.Get("/ingredients", h.aggregate)
			r.Put("/ingredients", h.addIngredients)
			r.Delete("/ingredients", h.removeIngredients)
			r.Post("/end", h.endSession)
			r.Post("/leave", h.leaveSession)
		})
	})

	return r
}

// requestLogger writes one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("API: Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
			"user_id", r.Header.Get(HeaderUserID),
		)
	})
}

// tracing starts a server span per request and names it after the matched route.
func tracing(tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if rctx := chi.RouteContext(ctx); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
				}
			}
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.Int("http.status_code", ww.Status()),
				attribute.String("user.id", r.Header.Get(HeaderUserID)),
			)
		})
	}
}

// SplitOrigins turns a comma-separated origin list into a slice.
func SplitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
