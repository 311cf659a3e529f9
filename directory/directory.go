// Package directory resolves user ids to directory entries and serves friend
// search. Accounts and friend lists are owned elsewhere; this is a read-only
// snapshot.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"potluck"
	"potluck/match"
)

type Directory struct {
	users map[string]potluck.User
}

// New indexes users by id. Later duplicates replace earlier ones.
func New(users []potluck.User) *Directory {
	d := &Directory{users: make(map[string]potluck.User, len(users))}
	for _, u := range users {
		if strings.TrimSpace(u.ID) == "" {
			continue
		}
		d.users[u.ID] = u
	}
	return d
}

// Load reads either {"users": [...]} or a bare array from src.
func Load(ctx context.Context, src Source) (*Directory, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	var users []potluck.User
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &users)
	} else {
		var doc struct {
			Users []potluck.User `json:"users"`
		}
		err = json.Unmarshal(data, &doc)
		users = doc.Users
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	slog.Info("DIRECTORY: Users loaded", "users_count", len(users))
	return New(users), nil
}

func (d *Directory) Lookup(ctx context.Context, userID string) (potluck.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return potluck.User{}, potluck.NewNotFound(fmt.Sprintf("user %s not found", userID))
	}
	return u, nil
}

// SearchFriends returns the user's friends matching query, in friend-list
// order. A blank query returns every friend. Friend ids missing from the
// directory are skipped.
func (d *Directory) SearchFriends(ctx context.Context, userID, query string) ([]potluck.User, error) {
	u, err := d.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	blank := strings.TrimSpace(query) == ""
	out := make([]potluck.User, 0, len(u.Friends))
	for _, id := range u.Friends {
		f, ok := d.users[id]
		if !ok {
			continue
		}
		if blank || match.FriendMatches(f.Name, f.Email, query) {
			out = append(out, f)
		}
	}
	return out, nil
}
