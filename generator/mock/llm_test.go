package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potluck"
)

func TestLLMClient_Generate(t *testing.T) {
	tests := []struct {
		name      string
		req       potluck.GenerationRequest
		wantNames []string
		wantErr   bool
	}{
		{
			name:      "single dish for a small pool",
			req:       potluck.GenerationRequest{Ingredients: []string{"onion", "rice"}, Cuisine: "Asian"},
			wantNames: []string{"Asian Onion Skillet"},
		},
		{
			name:      "salad once there is enough to share",
			req:       potluck.GenerationRequest{Ingredients: []string{"onion", "rice", "chicken"}},
			wantNames: []string{"Fusion Onion Skillet", "Rice and Chicken Salad"},
		},
		{
			name:    "nothing to cook",
			req:     potluck.GenerationRequest{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLLMClient().Generate(context.Background(), tt.req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, r := range got {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestLLMClient_Deterministic(t *testing.T) {
	req := potluck.GenerationRequest{
		Ingredients: []string{"egg", "milk", "flour"},
		Cuisine:     "French",
		Preferences: potluck.Preferences{Spice: 9},
	}

	first, err := NewLLMClient().Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := NewLLMClient().Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 9, first[0].SpiceLevel)
	assert.Equal(t, req.Ingredients, first[0].Ingredients)
}

func TestLLMClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLLMClient().Generate(ctx, potluck.GenerationRequest{Ingredients: []string{"egg"}})
	assert.ErrorIs(t, err, context.Canceled)
}
