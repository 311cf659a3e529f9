package mock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"potluck"
)

// LLMClient is a deterministic stand-in for a model. It is only a local
// development aid: the same request always yields the same recipes.
type LLMClient struct{}

func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

func (m *LLMClient) Generate(ctx context.Context, req potluck.GenerationRequest) ([]potluck.Recipe, error) {
	slog.Info("LLM_CLIENT: Invoked", "ingredients", len(req.Ingredients))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Ingredients) == 0 {
		return nil, fmt.Errorf("no ingredients to cook with")
	}

	cuisine := strings.TrimSpace(req.Cuisine)
	if cuisine == "" {
		cuisine = "Fusion"
	}

	lead := titleCase(req.Ingredients[0])
	recipes := []potluck.Recipe{
		{
			Name:            fmt.Sprintf("%s %s Skillet", cuisine, lead),
			CuisineType:     cuisine,
			Ingredients:     append([]string(nil), req.Ingredients...),
			Procedure:       skilletSteps(req.Ingredients),
			PreparationTime: 20 + 5*len(req.Ingredients),
			Complexity:      scaleOr(req.Preferences.Complexity, 3),
			SpiceLevel:      scaleOr(req.Preferences.Spice, 2),
			Calories:        150 * len(req.Ingredients),
			NutritionLevel:  scaleOr(req.Preferences.Nutrition, 6),
			Price:           scaleOr(req.Preferences.Price, 4),
		},
	}

	// A second, simpler dish once there is enough to share.
	if len(req.Ingredients) >= 3 {
		picked := req.Ingredients[len(req.Ingredients)-2:]
		recipes = append(recipes, potluck.Recipe{
			Name:            fmt.Sprintf("%s and %s Salad", titleCase(picked[0]), titleCase(picked[1])),
			CuisineType:     cuisine,
			Ingredients:     append([]string(nil), picked...),
			Procedure:       []string{"Chop everything into bite-sized pieces.", "Toss together and season to taste."},
			PreparationTime: 10,
			Complexity:      1,
			Calories:        250,
			NutritionLevel:  8,
			Price:           2,
		})
	}

	slog.Info("LLM_CLIENT: Returning mock recipes", "recipes", len(recipes))
	return recipes, nil
}

func skilletSteps(ingredients []string) []string {
	return []string{
		"Heat a large skillet over medium heat with a little oil.",
		fmt.Sprintf("Add %s and cook until tender.", strings.Join(ingredients, ", ")),
		"Season to taste and serve family-style.",
	}
}

func scaleOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
