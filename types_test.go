package potluck

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistinctFold(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "empty", input: nil, want: []string{}},
		{name: "no duplicates", input: []string{"Egg", "Milk"}, want: []string{"Egg", "Milk"}},
		{name: "case-insensitive duplicates keep first", input: []string{"Egg", "egg", "Milk", "EGG"}, want: []string{"Egg", "Milk"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DistinctFold(tt.input))
		})
	}
}

func TestSessionClone(t *testing.T) {
	s := Session{
		ID:     "s1",
		HostID: "h",
		Participants: []Participant{
			{UserID: "h", DisplayName: "Host", ContributedIngredients: []string{"onion"}},
		},
		AggregatedIngredients: []ContributedIngredient{{Name: "onion", ContributorName: "Host"}},
		LastGeneratedRecipes:  []Recipe{{Name: "Soup", Ingredients: []string{"onion"}}},
	}

	c := s.Clone()
	c.Participants[0].ContributedIngredients[0] = "garlic"
	c.AggregatedIngredients[0].Name = "garlic"
	c.LastGeneratedRecipes[0].Ingredients[0] = "garlic"

	assert.Equal(t, "onion", s.Participants[0].ContributedIngredients[0])
	assert.Equal(t, "onion", s.AggregatedIngredients[0].Name)
	assert.Equal(t, "onion", s.LastGeneratedRecipes[0].Ingredients[0])
}

func TestSessionCloneKeepsEmptyLists(t *testing.T) {
	s := Session{
		ID:                    "s1",
		HostID:                "h",
		Participants:          []Participant{{UserID: "h", DisplayName: "Host", ContributedIngredients: []string{}}},
		AggregatedIngredients: []ContributedIngredient{},
		LastGeneratedRecipes:  []Recipe{},
	}

	c := s.Clone()
	assert.NotNil(t, c.Participants[0].ContributedIngredients)
	assert.NotNil(t, c.AggregatedIngredients)
	assert.NotNil(t, c.LastGeneratedRecipes)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
	assert.Contains(t, string(data), `"contributedIngredients":[]`)
	assert.Contains(t, string(data), `"aggregatedIngredients":[]`)
}

func TestSessionHelpers(t *testing.T) {
	s := Session{
		HostID: "h",
		Status: StatusActive,
		Participants: []Participant{
			{UserID: "h"}, {UserID: "p"},
		},
	}

	assert.Equal(t, 1, s.Participant("p"))
	assert.Equal(t, -1, s.Participant("x"))
	assert.True(t, s.IsHost("h"))
	assert.False(t, s.IsHost(""))
	assert.False(t, s.Ended())
	assert.Equal(t, []string{"h", "p"}, s.ParticipantIDs())
}

func TestPreferencesValidate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   Preferences
		wantErr bool
	}{
		{name: "defaults", prefs: Preferences{}},
		{name: "upper bound", prefs: Preferences{PrepTime: 10, Complexity: 10, Calories: 10, Nutrition: 10, Spice: 10, Price: 10}},
		{name: "negative", prefs: Preferences{Spice: -1}, wantErr: true},
		{name: "too large", prefs: Preferences{Price: 11}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: NewValidation("bad"), want: KindValidation},
		{name: "not found", err: NewNotFound("gone"), want: KindNotFound},
		{name: "forbidden", err: NewForbidden("no"), want: KindForbidden},
		{name: "invalid state", err: NewInvalidState("ended"), want: KindInvalidState},
		{name: "generation failed", err: NewGenerationFailed("timeout", errors.New("deadline")), want: KindGenerationFailed},
		{name: "wrapped with fmt", err: fmt.Errorf("outer: %w", NewForbidden("no")), want: KindForbidden},
		{name: "foreign error", err: errors.New("boom"), want: KindInternal},
		{name: "wrap keeps kind", err: Wrap(NewNotFound("session"), "load"), want: KindNotFound},
		{name: "wrap foreign", err: Wrap(errors.New("boom"), "load"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.True(t, IsKind(tt.err, tt.want))
		})
	}

	assert.Nil(t, Wrap(nil, "noop"))
	assert.Equal(t, "session", Message(NewNotFound("session")))

	cause := errors.New("deadline")
	assert.ErrorIs(t, NewGenerationFailed("timeout", cause), cause)
}

func TestFileGenerationLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewFileGenerationLogger(&buf)

	require.NoError(t, l.LogGeneration(GenerationLog{SessionID: "s1", Cuisine: "Asian", Recipes: []string{"Fried Rice"}}))
	require.NoError(t, l.LogGeneration(GenerationLog{SessionID: "s1", Error: "timeout"}))
	require.NoError(t, l.Flush())

	var out struct {
		Generations struct {
			Entries []GenerationLog `json:"entries"`
		} `json:"generations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Generations.Entries, 2)
	assert.Equal(t, "timeout", out.Generations.Entries[1].Error)
	assert.Empty(t, l.entries)
}

func TestStdoutGenerationLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &StdoutGenerationLogger{w: &buf}

	require.NoError(t, l.LogGeneration(GenerationLog{SessionID: "s1"}))

	var entry GenerationLog
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "s1", entry.SessionID)
}
