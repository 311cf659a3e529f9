package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"potluck"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	webhookURL string
	channel    string
	httpClient doer
}

func NewClient(webhookURL, channel string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		channel:    channel,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// RecipesGenerated posts the new suggestions for a session to the configured channel.
func (c *Client) RecipesGenerated(ctx context.Context, s potluck.Session, recipes []potluck.Recipe) error {
	return c.PostMessage(ctx, c.channel, FormatRecipes(s, recipes))
}

// FormatRecipes renders a Slack mrkdwn summary of a generation.
func FormatRecipes(s potluck.Session, recipes []potluck.Recipe) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":stew: New recipe ideas for *%s* (%s), from %d ingredients brought by %d people:\n",
		s.Name, s.Date, len(s.AggregatedIngredients), len(s.Participants))
	for _, r := range recipes {
		b.WriteString("• ")
		b.WriteString(r.Name)
		if r.CuisineType != "" {
			fmt.Fprintf(&b, " _(%s)_", r.CuisineType)
		}
		if r.PreparationTime > 0 {
			fmt.Fprintf(&b, ", %d min", r.PreparationTime)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
