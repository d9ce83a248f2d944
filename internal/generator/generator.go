// Package generator is the content-generation boundary: the pipeline treats
// it as a black box that turns a topic into post text and an image URL.
package generator

import "context"

// Draft is one generated post before it enters the queue.
type Draft struct {
	Content     string `json:"content"`
	Hashtags    string `json:"hashtags"`
	ImagePrompt string `json:"image_prompt"`
}

// Generator produces post drafts and source images.
type Generator interface {
	GeneratePost(ctx context.Context, topic string) (*Draft, error)
	// GenerateImage returns a URL to a generated image for the prompt.
	GenerateImage(ctx context.Context, prompt string) (string, error)
}
