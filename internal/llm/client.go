// Package llm talks to the OpenRouter chat-completions API. The system
// prompt is always supplied by the server from the simulation record; the
// caller only ever contributes user/assistant turns.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	roleSystem = "system"
)

// ValidRole reports whether a role is allowed in caller-provided history.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UpstreamError carries the gateway's status and body back to the caller so
// failures are reported, never mistaken for a model answer.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

type Client struct {
	client *resty.Client
	model  string
}

func NewClient(baseURL, apiKey, model, referer string, timeout time.Duration) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetAuthToken(apiKey).
			SetHeader("HTTP-Referer", referer).
			SetHeader("X-Title", "Gauntlet CTF"),
		model: model,
	}
}

// Complete sends the system prompt plus the conversation so far and returns
// the model's reply.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	type chatRequest struct {
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
	}
	type chatResponse struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: roleSystem, Content: systemPrompt})
	messages = append(messages, history...)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&chatRequest{
			Model:    c.model,
			Messages: messages,
		}).
		SetResult(&chatResponse{}).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", &UpstreamError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	result := resp.Result().(*chatResponse)
	if len(result.Choices) == 0 {
		return "", &UpstreamError{Status: resp.StatusCode(), Body: "no choices in response"}
	}

	return result.Choices[0].Message.Content, nil
}
