package session

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"potluck"
)

// AddIngredients appends the trimmed, non-empty names to the participant's
// list. Duplicates are kept.
func (s *Service) AddIngredients(ctx context.Context, id, participantID string, names []string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.AddIngredients", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("user.id", participantID),
	))
	defer span.End()

	cleaned := cleanNames(names)
	if len(cleaned) == 0 {
		return potluck.Session{}, fail(span, potluck.NewValidation("at least one ingredient is required"))
	}

	sess, err := s.mutate(ctx, id, "add_ingredients", func(sess *potluck.Session) error {
		idx, err := contributor(sess, participantID)
		if err != nil {
			return err
		}
		appendContributions(sess, idx, cleaned)
		return nil
	})
	if err != nil {
		return potluck.Session{}, fail(span, err)
	}
	return sess, nil
}

// RemoveIngredients removes the first case-insensitive match of each name
// from the participant's list. Names that are not there are ignored.
func (s *Service) RemoveIngredients(ctx context.Context, id, participantID string, names []string) (potluck.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Service.RemoveIngredients", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("user.id", participantID),
	))
	defer span.End()

	targets := cleanNames(names)
	sess, err := s.mutate(ctx, id, "remove_ingredients", func(sess *potluck.Session) error {
		idx, err := contributor(sess, participantID)
		if err != nil {
			return err
		}
		removed := 0
		for _, name := range targets {
			for pos, have := range sess.Participants[idx].ContributedIngredients {
				if strings.EqualFold(strings.TrimSpace(have), name) {
					removeContribution(sess, idx, pos)
					removed++
					break
				}
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

// Aggregate returns the session's attributed ingredient pool.
func (s *Service) Aggregate(ctx context.Context, id string) ([]potluck.ContributedIngredient, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.AggregatedIngredients, nil
}

func contributor(sess *potluck.Session, participantID string) (int, error) {
	if sess.Ended() {
		return -1, potluck.NewInvalidState("session has ended")
	}
	idx := sess.Participant(participantID)
	if idx < 0 {
		return -1, potluck.NewNotFound(fmt.Sprintf("participant %s not found in session %s", participantID, sess.ID))
	}
	return idx, nil
}
