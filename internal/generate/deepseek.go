// Package generate produces mind map Markdown from a topic by calling the
// DeepSeek chat completion API.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoAPIKey is returned when no DeepSeek API key is configured.
var ErrNoAPIKey = errors.New("deepseek api key not configured")

const (
	model       = "deepseek-chat"
	temperature = 0.7

	systemPrompt = "You are a specialized Mind Map generator. You output raw Markdown only."
)

// Client calls the DeepSeek chat completion endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// MindMap asks the model for a hierarchical Markdown mind map about topic.
func (c *Client) MindMap(ctx context.Context, topic string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	userPrompt := fmt.Sprintf(`Create a detailed mind map about: %s

Requirements:
- Output Markdown only, no explanations and no code fences.
- Start with a single level-1 heading naming the topic.
- Use nested headings and bullet lists to form the hierarchy.
- Cover the main branches of the topic with 2-3 levels of depth.
- Keep each node short, a phrase rather than a sentence.`, topic)

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call deepseek: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read deepseek response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode deepseek response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil && decoded.Error.Message != "" {
			return "", fmt.Errorf("deepseek status %d: %s", resp.StatusCode, decoded.Error.Message)
		}
		return "", fmt.Errorf("deepseek status %d", resp.StatusCode)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("deepseek returned no choices")
	}

	content := stripFences(decoded.Choices[0].Message.Content)
	if strings.TrimSpace(content) == "" {
		return "", errors.New("deepseek returned empty content")
	}
	return content, nil
}

// stripFences removes a surrounding Markdown code fence if the model wrapped
// its answer in one despite the instructions.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// Drop the opening fence line (``` or ```markdown).
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
