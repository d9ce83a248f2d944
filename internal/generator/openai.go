package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avelara/social-publisher/internal/auth"
)

const postSystemPrompt = `You write LinkedIn posts for a software consultancy.
Respond with a JSON object: {"content": "...", "hashtags": "#a #b #c", "image_prompt": "..."}.
Content is 3-5 short paragraphs, no hashtags inside it. image_prompt describes a clean
illustration for the post, no text in the image.`

// OpenAIGenerator implements Generator against the OpenAI REST API.
type OpenAIGenerator struct {
	BaseURL    string
	HTTPClient *http.Client

	apiKey string
	model  string
}

func NewOpenAIGenerator(apiKey, model, baseURL string) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIGenerator{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		apiKey:     apiKey,
		model:      model,
	}
}

// GeneratePost asks the chat endpoint for a JSON-mode draft on the topic.
func (g *OpenAIGenerator) GeneratePost(ctx context.Context, topic string) (*Draft, error) {
	reqBody := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": postSystemPrompt},
			{"role": "user", "content": "Write a post about: " + topic},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := g.post(ctx, "/v1/chat/completions", reqBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("generator: chat response has no choices")
	}

	var draft Draft
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &draft); err != nil {
		return nil, fmt.Errorf("generator: model did not return valid draft JSON: %w", err)
	}
	if draft.Content == "" {
		return nil, errors.New("generator: draft has no content")
	}
	return &draft, nil
}

// GenerateImage asks the images endpoint for a single image URL.
func (g *OpenAIGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  "dall-e-3",
		"prompt": prompt,
		"n":      1,
		"size":   "1024x1024",
	}

	var parsed struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := g.post(ctx, "/v1/images/generations", reqBody, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", errors.New("generator: image response has no URL")
	}
	return parsed.Data[0].URL, nil
}

func (g *OpenAIGenerator) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("generator: failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("generator: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("generator: %w", auth.ReadRequestError(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
