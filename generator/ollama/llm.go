package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"potluck"
	"potluck/generator"
)

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

// Client generates recipes with a local Ollama model. Structured output is
// requested by passing the recipes schema as the chat "format".
type Client struct {
	endpoint     string
	model        string
	systemPrompt string
	httpClient   potluck.HTTPClient
	options      options
	format       map[string]any
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   potluck.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, errors.New("ollama base endpoint is required")
	}
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, errors.New("ollama model id is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	format, err := generator.SchemaMap()
	if err != nil {
		return nil, err
	}

	return &Client{
		model:        opts.ModelID,
		systemPrompt: generator.SystemPrompt,
		httpClient:   opts.HTTPClient,
		endpoint:     strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options: options{
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        16384,
		},
		format: format,
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	Message wireMessage `json:"message"`
	Done    bool        `json:"done"`
	// other metadata omitted but available
}

type wireRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Format   map[string]any `json:"format,omitempty"`
	Stream   bool           `json:"stream"`
	Options  options        `json:"options,omitempty"`
}

func (c *Client) Generate(ctx context.Context, req potluck.GenerationRequest) ([]potluck.Recipe, error) {
	ctx, span := otel.Tracer(potluck.TracerNameOllama).Start(ctx, "Client.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
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

func (c *Client) generate(ctx context.Context, req potluck.GenerationRequest) ([]potluck.Recipe, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.model, "ingredients", len(req.Ingredients))

	reqBody := wireRequest{
		Model:    c.model,
		Messages: c.buildMessages(req),
		Format:   c.format,
		Stream:   false,
		Options:  c.options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LLM_CLIENT: %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		// Not a chat envelope; the body may still be the recipes themselves.
		slog.Warn("LLM_CLIENT: decode failed, parsing raw body", "err", err)
		return generator.ParseRecipes(body)
	}

	slog.Info("LLM_CLIENT: Ollama chat succeeded", "content_length", len(wr.Message.Content), "done", wr.Done)
	return generator.ParseRecipes([]byte(wr.Message.Content))
}

// buildMessages prepends the client's system prompt to the task.
func (c *Client) buildMessages(req potluck.GenerationRequest) []wireMessage {
	messages := make([]wireMessage, 0, 2)
	if sp := strings.TrimSpace(c.systemPrompt); sp != "" {
		messages = append(messages, wireMessage{Role: "system", Content: sp})
	}
	return append(messages, wireMessage{Role: "user", Content: generator.UserMessage(req)})
}
