// Package store persists versioned session documents.
//
// Every backend offers compare-and-swap on the session's Version: Update only
// succeeds when the stored version equals expectedVersion, otherwise it
// returns an error wrapping ErrConflict and the caller re-reads and retries.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"potluck"
)

// ErrConflict reports a lost compare-and-swap race or a duplicate create.
var ErrConflict = errors.New("version conflict")

type Store interface {
	// Create persists a new session. It fails with ErrConflict when the id is taken.
	Create(ctx context.Context, s potluck.Session) error
	Get(ctx context.Context, id string) (potluck.Session, error)
	// Update replaces the session if the stored version is expectedVersion.
	Update(ctx context.Context, s potluck.Session, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	ListByHost(ctx context.Context, hostID string) ([]potluck.Session, error)
	ListByParticipant(ctx context.Context, userID string) ([]potluck.Session, error)
}

func notFound(id string) error {
	return potluck.NewNotFound(fmt.Sprintf("session %s not found", id))
}

func conflict(id string, expected int64) error {
	return fmt.Errorf("session %s at version %d: %w", id, expected, ErrConflict)
}

func hasParticipant(s potluck.Session, userID string) bool {
	return s.Participant(userID) >= 0
}

// sortSessions orders listings by date, then id.
func sortSessions(ss []potluck.Session) {
	slices.SortFunc(ss, func(a, b potluck.Session) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.ID, b.ID))
	})
}
