// Package generator holds what the recipe generator implementations share:
// the prompt, the output schema and a tolerant parser for model output.
package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"potluck"
)

const (
	ToolName        = "submit_recipes"
	ToolDescription = "Submit the recipe suggestions for the potluck. Call this exactly once with every recipe."
)

// RecipesSchema describes {"recipes": [...]}, the only shape the parser accepts
// besides a bare array.
func RecipesSchema() *jsonschema.Schema {
	zero := 0.0
	scale := func() *jsonschema.Schema {
		return &jsonschema.Schema{Type: "integer", Minimum: &zero}
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"recipes": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":             {Type: "string"},
						"cuisineType":      {Type: "string"},
						"ingredients":      {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
						"procedure":        {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
						"preparationTime":  scale(),
						"recipeComplexity": scale(),
						"spiceLevel":       scale(),
						"calories":         scale(),
						"nutritionLevel":   scale(),
						"price":            scale(),
					},
					Required: []string{"name", "ingredients", "procedure"},
				},
			},
		},
		Required: []string{"recipes"},
	}
}

// SchemaMap returns RecipesSchema as a plain map, which is what both the
// Bedrock document encoder and the Ollama "format" field want.
func SchemaMap() (map[string]any, error) {
	b, err := json.Marshal(RecipesSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipes schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipes schema: %w", err)
	}
	return m, nil
}

var ErrNoJSON = errors.New("model output contains no JSON")

// ParseRecipes extracts recipes from model output. It accepts a wrapped
// object or a bare array, optionally inside a markdown fence or surrounded by
// prose. Recipes without a name are dropped.
func ParseRecipes(raw []byte) ([]potluck.Recipe, error) {
	body := extractJSON(raw)
	if len(body) == 0 {
		return nil, ErrNoJSON
	}

	var wire []wireRecipe
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to decode recipe list: %w", err)
		}
	default:
		var env struct {
			Recipes []wireRecipe `json:"recipes"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to decode recipes object: %w", err)
		}
		wire = env.Recipes
	}

	out := make([]potluck.Recipe, 0, len(wire))
	for _, w := range wire {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			continue
		}
		out = append(out, potluck.Recipe{
			Name:            name,
			CuisineType:     strings.TrimSpace(w.CuisineType),
			Ingredients:     w.Ingredients,
			Procedure:       w.Procedure,
			PreparationTime: int(w.PreparationTime),
			Complexity:      int(w.Complexity),
			SpiceLevel:      int(w.SpiceLevel),
			Calories:        int(w.Calories),
			NutritionLevel:  int(w.NutritionLevel),
			Price:           int(w.Price),
		})
	}
	return out, nil
}

func extractJSON(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if bytes.HasPrefix(s, []byte("```")) {
		s = s[3:]
		if nl := bytes.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := bytes.LastIndex(s, []byte("```")); end >= 0 {
			s = s[:end]
		}
		s = bytes.TrimSpace(s)
	}
	start := bytes.IndexAny(s, "{[")
	if start < 0 {
		return nil
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := bytes.LastIndexByte(s, closer)
	if end < start {
		return nil
	}
	return s[start : end+1]
}

type wireRecipe struct {
	Name            string   `json:"name"`
	CuisineType     string   `json:"cuisineType"`
	Ingredients     flexStrs `json:"ingredients"`
	Procedure       flexStrs `json:"procedure"`
	PreparationTime flexInt  `json:"preparationTime"`
	Complexity      flexInt  `json:"recipeComplexity"`
	SpiceLevel      flexInt  `json:"spiceLevel"`
	Calories        flexInt  `json:"calories"`
	NutritionLevel  flexInt  `json:"nutritionLevel"`
	Price           flexInt  `json:"price"`
}

// flexInt accepts 3, 3.0 and "3".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Free text such as "about 30 minutes" carries no usable scale.
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

// flexStrs accepts a list of strings or a single newline-separated string.
type flexStrs []string

func (f *flexStrs) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	var out []string
	for _, line := range strings.Split(one, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	*f = out
	return nil
}
