package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"potluck"
)

// CreateInput is what a host supplies when starting a session.
type CreateInput struct {
	Name         string
	Date         string
	HostID       string
	Participants []string
	Ingredients  []string
}

// Create validates the input, seeds the host (carrying Ingredients) followed
// by the initial participants, and persists the session as Active.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Create", trace.WithAttributes(attribute.String("user.id", in.HostID)))
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", fail(span, potluck.NewValidation("name is required"))
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return "", fail(span, err)
	}
	hostID := strings.TrimSpace(in.HostID)
	if hostID == "" {
		return "", fail(span, potluck.NewValidation("hostId is required"))
	}
	host, err := s.resolve(ctx, hostID)
	if err != nil {
		return "", fail(span, err)
	}

	now := s.opts.Now()
	sess := potluck.Session{
		ID:                   s.opts.NewID(),
		Name:                 name,
		Date:                 date,
		HostID:               hostID,
		Status:               potluck.StatusCreated,
		LastGeneratedRecipes: []potluck.Recipe{},
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	sess.Participants = append(sess.Participants, potluck.Participant{
		UserID:                 hostID,
		DisplayName:            displayName(host),
		ContributedIngredients: cleanNames(in.Ingredients),
	})

	for _, id := range in.Participants {
		id = strings.TrimSpace(id)
		if id == "" || sess.Participant(id) >= 0 {
			continue
		}
		u, err := s.resolve(ctx, id)
		if err != nil {
			return "", fail(span, err)
		}
		sess.Participants = append(sess.Participants, newParticipant(u))
	}
	sess.AggregatedIngredients = Aggregate(sess.Participants)

	// Created is never persisted; a validated session starts out Active.
	sess.Status = potluck.StatusActive

	if err := s.store.Create(ctx, sess); err != nil {
		return "", fail(span, potluck.Wrap(err, "failed to create session"))
	}

	s.metrics.mutations.Add(ctx, 1)
	slog.Info("SESSION: Created", "session_id", sess.ID, "host_id", hostID, "participants", len(sess.Participants))
	return sess.ID, nil
}

// AddParticipants appends users that are not already members. Re-adding a
// member is a no-op.
func (s *Service) AddParticipants(ctx context.Context, id string, userIDs []string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.AddParticipants", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	ids := cleanNames(userIDs)
	if len(ids) == 0 {
		return potluck.Session{}, fail(span, potluck.NewValidation("at least one user id is required"))
	}
	users := make([]potluck.User, 0, len(ids))
	for _, uid := range ids {
		u, err := s.resolve(ctx, uid)
		if err != nil {
			return potluck.Session{}, fail(span, err)
		}
		users = append(users, u)
	}

	sess, err := s.mutate(ctx, id, "add_participants", func(sess *potluck.Session) error {
		if sess.Ended() {
			return potluck.NewInvalidState("session has ended")
		}
		added := 0
		for _, u := range users {
			if sess.Participant(u.ID) >= 0 {
				continue
			}
			sess.Participants = append(sess.Participants, newParticipant(u))
			added++
		}
		if added == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	return sess, nil
}

// RemoveParticipant removes a member and discards their contributions. The
// host can never be removed this way.
func (s *Service) RemoveParticipant(ctx context.Context, id, userID string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.RemoveParticipant", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("user.id", userID),
	))
	defer span.End()

	sess, err := s.mutate(ctx, id, "remove_participant", func(sess *potluck.Session) error {
		return removeMember(sess, userID, "the host cannot be removed from their session")
	})
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	return sess, nil
}

// RemoveParticipants removes several members in one write. A host id in the
// list rejects the whole call; ids that are not members are ignored.
func (s *Service) RemoveParticipants(ctx context.Context, id string, userIDs []string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.RemoveParticipants", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	ids := cleanNames(userIDs)
	sess, err := s.mutate(ctx, id, "remove_participants", func(sess *potluck.Session) error {
		for _, uid := range ids {
			if sess.IsHost(uid) {
				return potluck.NewForbidden("the host cannot be removed from their session")
			}
		}
		if sess.Ended() {
			return potluck.NewInvalidState("session has ended")
		}
		removed := 0
		for _, uid := range ids {
			if idx := sess.Participant(uid); idx >= 0 {
				removeParticipantAt(sess, idx)
				removed++
			}
		}
		if removed == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	return sess, nil
}

// End lets the host close the session. An ended session is read-only.
func (s *Service) End(ctx context.Context, id, requesterID string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.End", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("user.id", requesterID),
	))
	defer span.End()

	sess, err := s.mutate(ctx, id, "end", func(sess *potluck.Session) error {
		if !sess.IsHost(requesterID) {
			return potluck.NewForbidden("only the host can end the session")
		}
		if sess.Ended() {
			return errUnchanged
		}
		sess.Status = potluck.StatusEnded
		return nil
	})
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	slog.Info("SESSION: Ended", "session_id", id)
	return sess, nil
}

// Leave removes the requester from the session. The host has to End instead.
func (s *Service) Leave(ctx context.Context, id, requesterID string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Leave", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("user.id", requesterID),
	))
	defer span.End()

	sess, err := s.mutate(ctx, id, "leave", func(sess *potluck.Session) error {
		return removeMember(sess, requesterID, "the host cannot leave their own session")
	})
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	return sess, nil
}

// Delete permanently removes the session. Only the host may delete.
func (s *Service) Delete(ctx context.Context, id, requesterID string) error {
	ctx, span := s.tracer.Start(ctx, "Service.Delete", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("user.id", requesterID),
	))
	defer span.End()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	if !sess.IsHost(requesterID) {
		return fail(span, potluck.NewForbidden("only the host can delete the session"))
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fail(span, err)
	}
	slog.Info("SESSION: Deleted", "session_id", id)
	return nil
}

func removeMember(sess *potluck.Session, userID, hostMessage string) error {
	if sess.IsHost(userID) {
		return potluck.NewForbidden(hostMessage)
	}
	if sess.Ended() {
		return potluck.NewInvalidState("session has ended")
	}
	idx := sess.Participant(userID)
	if idx < 0 {
		return potluck.NewNotFound(fmt.Sprintf("user %s is not a participant", userID))
	}
	removeParticipantAt(sess, idx)
	return nil
}

// resolve maps a directory miss to a validation error: unknown ids are bad input.
func (s *Service) resolve(ctx context.Context, userID string) (potluck.User, error) {
	u, err := s.users.Lookup(ctx, userID)
	if err != nil {
		if potluck.IsKind(err, potluck.KindNotFound) {
			return potluck.User{}, potluck.NewValidation(fmt.Sprintf("user %s cannot be resolved", userID))
		}
		return potluck.User{}, potluck.Wrap(err, "failed to resolve user")
	}
	return u, nil
}

func newParticipant(u potluck.User) potluck.Participant {
	return potluck.Participant{
		UserID:                 u.ID,
		DisplayName:            displayName(u),
		ContributedIngredients: []string{},
	}
}

func displayName(u potluck.User) string {
	switch {
	case strings.TrimSpace(u.Name) != "":
		return strings.TrimSpace(u.Name)
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

func parseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(potluck.DateLayout, raw); err == nil {
		return t.Format(potluck.DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format(potluck.DateLayout), nil
	}
	return "", potluck.NewValidation(fmt.Sprintf("date %q is not a valid calendar date", raw))
}

// cleanNames trims each entry and drops empty ones, keeping order and duplicates.
func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
