package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithydocument "github.com/aws/smithy-go/document"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"potluck"
	"potluck/generator"
)

const (
	// defaultModelID is the default model ID for Bedrock Claude.
	// It's an inference profile ID or ARN, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// A handful of recipes with steps needs more room than a single tool call.
	defaultMaxTokens = 2048

	// Low temperature keeps structured output consistent.
	defaultTemperature = 0.2

	defaultTopP = 0.9
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMClient generates recipes with the Bedrock Converse API. The model is
// forced to answer through the submit_recipes tool so the reply is structured.
type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

func (c *LLMClient) Generate(ctx context.Context, req potluck.GenerationRequest) ([]potluck.Recipe, error) {
	ctx, span := otel.Tracer(potluck.TracerNameBedrock).Start(ctx, "LLMClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.opts.ModelID),
		attribute.Int("generation.ingredients", len(req.Ingredients)),
	)

	recipes, err := c.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("generation.recipes", len(recipes)))
	return recipes, nil
}

func (c *LLMClient) generate(ctx context.Context, req potluck.GenerationRequest) ([]potluck.Recipe, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.opts.ModelID, "ingredients", len(req.Ingredients))

	spec, err := buildToolSpec()
	if err != nil {
		return nil, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.opts.ModelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: generator.SystemPrompt},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: generator.UserMessage(req)},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(generator.ToolName)},
			},
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock Claude invoke failed", "error", err)
		return nil, fmt.Errorf("bedrock converse failed: %w", err)
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	if out.Usage != nil {
		attrs = append(attrs,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}
	slog.Info("LLM_CLIENT: Bedrock Claude invoke succeeded", attrs...)

	switch out.StopReason {
	case types.StopReasonToolUse:
		input, err := toolInputFromOutput(out)
		if err != nil {
			return nil, fmt.Errorf("failed to read tool input: %w", err)
		}
		return generator.ParseRecipes(input)

	case types.StopReasonMaxTokens:
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MaxTokens")
		return nil, errors.New("model hit MaxTokens limit")

	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return nil, errors.New("model response blocked by Bedrock safety filters")

	default:
		// The tool was forced, but some models still answer in text.
		if input, err := toolInputFromOutput(out); err == nil {
			return generator.ParseRecipes(input)
		}
		text := textFromOutput(out)
		if text == "" {
			return nil, fmt.Errorf("model returned neither a tool call nor text (stop reason %q)", out.StopReason)
		}
		return generator.ParseRecipes([]byte(text))
	}
}

// buildToolSpec constructs the submit_recipes tool.
func buildToolSpec() (types.ToolSpecification, error) {
	// The schema goes through a plain map so its custom MarshalJSON is honoured
	// by the document encoder.
	schemaMap, err := generator.SchemaMap()
	if err != nil {
		return types.ToolSpecification{}, err
	}

	return types.ToolSpecification{
		Name:        aws.String(generator.ToolName),
		Description: aws.String(generator.ToolDescription),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schemaMap),
		},
	}, nil
}

var errNoToolUse = errors.New("no submit_recipes tool use in output")

// toolInputFromOutput returns the JSON input of the first submit_recipes call.
func toolInputFromOutput(out *bedrockruntime.ConverseOutput) ([]byte, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, errNoToolUse
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != generator.ToolName || tu.Value.Input == nil {
			continue
		}

		var input any
		if err := tu.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
			return nil, fmt.Errorf("failed to decode tool input: %w", err)
		}
		return json.Marshal(normalizeInput(input))
	}
	return nil, errNoToolUse
}

// textFromOutput joins the assistant's text blocks with '\n'.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	var texts []string
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	return strings.Join(texts, "\n")
}

// normalizeInput recursively coerces document values into plain JSON types.
func normalizeInput(val any) any {
	switch v := val.(type) {
	case smithydocument.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()

	case string:
		// Some models send a nested array or object as a JSON string.
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var decoded any
			if json.Unmarshal([]byte(trimmed), &decoded) == nil {
				return normalizeInput(decoded)
			}
		}
		return v

	case []any:
		for i := range v {
			v[i] = normalizeInput(v[i])
		}
		return v

	case map[string]any:
		for key, val := range v {
			v[key] = normalizeInput(val)
		}
		return v

	default:
		return v
	}
}
