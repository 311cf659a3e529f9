package generator

import (
	"fmt"
	"strings"

	"potluck"
)

const SystemPrompt = `You are a recipe assistant for a potluck.

GOAL
Suggest recipes that a group can cook together from the ingredients its members are bringing.

RULES
- Build every recipe around the listed ingredients. You may assume common staples (salt, pepper, oil, water) but nothing else that is substantial.
- Respect the requested cuisine when one is given; otherwise pick what suits the ingredients.
- Preferences are scales from 1 (low) to 10 (high). A preference that is not listed does not matter.
- Suggest between 1 and 5 recipes.

OUTPUT CONTRACT
- Every recipe has a name, a cuisineType, the ingredients it uses and an ordered list of procedure steps.
- preparationTime is in minutes. recipeComplexity, spiceLevel, nutritionLevel and price are 1..10 scales. calories is per serving.
- When a submit_recipes tool is available, call it exactly once with all recipes.
- Otherwise return ONE JSON object {"recipes": [...]} and nothing else: no commentary, no markdown.`

// UserMessage renders a generation request as the task the model sees.
func UserMessage(req potluck.GenerationRequest) string {
	var b strings.Builder

	b.WriteString("Ingredients brought to the potluck:\n")
	for _, name := range req.Ingredients {
		fmt.Fprintf(&b, "- %s\n", name)
	}

	if c := strings.TrimSpace(req.Cuisine); c != "" {
		fmt.Fprintf(&b, "\nCuisine: %s\n", c)
	} else {
		b.WriteString("\nCuisine: any\n")
	}

	if prefs := preferenceLines(req.Preferences); len(prefs) > 0 {
		b.WriteString("\nPreferences:\n")
		for _, line := range prefs {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	return b.String()
}

func preferenceLines(p potluck.Preferences) []string {
	scales := []struct {
		label string
		value int
		hint  string
	}{
		{"Preparation time", p.PrepTime, "10 means plenty of time"},
		{"Complexity", p.Complexity, "10 means elaborate"},
		{"Calories", p.Calories, "10 means hearty"},
		{"Nutrition", p.Nutrition, "10 means very nutritious"},
		{"Spice", p.Spice, "10 means very spicy"},
		{"Price", p.Price, "10 means expensive is fine"},
	}

	var out []string
	for _, s := range scales {
		if s.value == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %d/10 (%s)", s.label, s.value, s.hint))
	}
	return out
}
