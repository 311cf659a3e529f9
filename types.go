package potluck

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RecipeGenerator turns a flat ingredient set plus preferences into recipe suggestions.
type RecipeGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) ([]Recipe, error)
}

// Notifier is told about sessions whose recipes were regenerated.
type Notifier interface {
	RecipesGenerated(ctx context.Context, s Session, recipes []Recipe) error
}

type Status string

const (
	StatusCreated Status = "Created"
	StatusActive  Status = "Active"
	StatusEnded   Status = "Ended"
)

// DateLayout is the storage format of Session.Date.
const DateLayout = "2006-01-02"

// Session is a single potluck planning instance with one host and a set of participants.
type Session struct {
	ID                    string                  `json:"id"`
	Name                  string                  `json:"name"`
	Date                  string                  `json:"date"`
	HostID                string                  `json:"hostId"`
	Status                Status                  `json:"status"`
	Participants          []Participant           `json:"participants"`
	AggregatedIngredients []ContributedIngredient `json:"aggregatedIngredients"`
	LastGeneratedRecipes  []Recipe                `json:"lastGeneratedRecipes"`
	Version               int64                   `json:"version"`
	CreatedAt             time.Time               `json:"createdAt"`
	UpdatedAt             time.Time               `json:"updatedAt"`
}

// Participant returns the index of userID in the participant list, or -1.
func (s *Session) Participant(userID string) int {
	for i, p := range s.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Session) IsHost(userID string) bool {
	return userID != "" && s.HostID == userID
}

func (s *Session) Ended() bool {
	return s.Status == StatusEnded
}

// ParticipantIDs lists user ids in session order.
func (s *Session) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Clone returns a deep copy so a mutation can be discarded when a write conflicts.
// Empty lists stay empty rather than becoming nil.
func (s Session) Clone() Session {
	out := s
	out.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		p.ContributedIngredients = slices.Clone(p.ContributedIngredients)
		out.Participants[i] = p
	}
	out.AggregatedIngredients = slices.Clone(s.AggregatedIngredients)
	out.LastGeneratedRecipes = make([]Recipe, len(s.LastGeneratedRecipes))
	for i, r := range s.LastGeneratedRecipes {
		r.Ingredients = slices.Clone(r.Ingredients)
		r.Procedure = slices.Clone(r.Procedure)
		out.LastGeneratedRecipes[i] = r
	}
	return out
}

type Participant struct {
	UserID                 string   `json:"userId"`
	DisplayName            string   `json:"displayName"`
	ContributedIngredients []string `json:"contributedIngredients"`
}

// DistinctIngredients is the display view of the participant's list: first
// occurrence wins, compared case-insensitively.
func (p Participant) DistinctIngredients() []string {
	return DistinctFold(p.ContributedIngredients)
}

type ContributedIngredient struct {
	Name            string `json:"name"`
	ContributorName string `json:"contributorName"`
}

// Preferences are ordinal 0..10 scales where 0 means "don't care".
type Preferences struct {
	PrepTime   int `json:"prepTime" validate:"min=0,max=10"`
	Complexity int `json:"complexity" validate:"min=0,max=10"`
	Calories   int `json:"calories" validate:"min=0,max=10"`
	Nutrition  int `json:"nutrition" validate:"min=0,max=10"`
	Spice      int `json:"spice" validate:"min=0,max=10"`
	Price      int `json:"price" validate:"min=0,max=10"`
}

const MaxPreference = 10

// Validate reports the first scale outside 0..MaxPreference.
func (p Preferences) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"prepTime", p.PrepTime},
		{"complexity", p.Complexity},
		{"calories", p.Calories},
		{"nutrition", p.Nutrition},
		{"spice", p.Spice},
		{"price", p.Price},
	} {
		if f.value < 0 || f.value > MaxPreference {
			return NewValidation(f.name + " must be between 0 and 10")
		}
	}
	return nil
}

// Recipe is a generated suggestion. Only Name is guaranteed.
type Recipe struct {
	Name            string   `json:"name"`
	CuisineType     string   `json:"cuisineType,omitempty"`
	Ingredients     []string `json:"ingredients,omitempty"`
	Procedure       []string `json:"procedure,omitempty"`
	PreparationTime int      `json:"preparationTime,omitempty"`
	Complexity      int      `json:"recipeComplexity,omitempty"`
	SpiceLevel      int      `json:"spiceLevel,omitempty"`
	Calories        int      `json:"calories,omitempty"`
	NutritionLevel  int      `json:"nutritionLevel,omitempty"`
	Price           int      `json:"price,omitempty"`
}

// GenerationRequest is the payload handed to a RecipeGenerator.
type GenerationRequest struct {
	Ingredients []string    `json:"ingredients"`
	Cuisine     string      `json:"cuisine"`
	Preferences Preferences `json:"preferences"`
}

// User is a directory entry.
type User struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Friends []string `json:"friends,omitempty"`
}

// DistinctFold drops later case-insensitive duplicates, keeping order.
func DistinctFold(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
