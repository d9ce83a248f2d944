// Package pipeline composes the collaborators into the two end-to-end runs:
// generating a post into the queue and publishing the next queued post.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/avelara/social-publisher/internal/canva"
	"github.com/avelara/social-publisher/internal/cloudinary"
	"github.com/avelara/social-publisher/internal/generator"
	"github.com/avelara/social-publisher/internal/linkedin"
	"github.com/avelara/social-publisher/internal/queue"
	"github.com/avelara/social-publisher/internal/telegram"
)

// Publisher owns the publish run. Telegram and Generator are optional;
// everything else is required for PublishNext.
type Publisher struct {
	Queue      *queue.Store
	Canva      *canva.Client
	Cloudinary *cloudinary.Client
	LinkedIn   *linkedin.Client
	Telegram   *telegram.Client
	Generator  generator.Generator
}

// ErrQueueEmpty is returned by PublishNext when no post is ready.
var ErrQueueEmpty = errors.New("pipeline: no ready posts in queue")

// PublishNext picks the oldest ready post, produces its final image (via the
// design pipeline unless a ready image already exists), re-hosts it,
// publishes to LinkedIn, and records the outcome. A failure marks the post
// failed and propagates; the post is not retried automatically.
func (p *Publisher) PublishNext(ctx context.Context) (*queue.Post, error) {
	post, err := p.Queue.NextReady()
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrQueueEmpty
	}
	log.Printf("[pipeline] publishing post %s (topic: %s)", post.ID, post.Topic)

	published, err := p.publish(ctx, post)
	if err != nil {
		if markErr := p.Queue.MarkFailed(post, err.Error()); markErr != nil {
			log.Printf("[pipeline] could not record failure for post %s: %v", post.ID, markErr)
		}
		return nil, err
	}
	return published, nil
}

func (p *Publisher) publish(ctx context.Context, post *queue.Post) (*queue.Post, error) {
	imageURL := post.ReadyImageURL
	if imageURL == "" {
		if post.SourceImageURL == "" {
			return nil, fmt.Errorf("pipeline: post %s has neither a ready nor a source image", post.ID)
		}
		design, err := p.Canva.CreateDesign(ctx, canva.DesignRequest{
			ImageURL: post.SourceImageURL,
			Title:    post.Topic,
			Subtitle: post.Hashtags,
			Name:     "post_" + post.ID,
		})
		if err != nil {
			return nil, err
		}
		post.DesignID = design.DesignID
		imageURL = design.DownloadURL
	} else {
		log.Printf("[pipeline] post %s already has a finished image, skipping design", post.ID)
	}

	hosted, err := p.Cloudinary.Upload(ctx, imageURL, "")
	if err != nil {
		return nil, err
	}
	post.PublishedImageURL = hosted

	text := post.Content
	if post.Hashtags != "" {
		text = post.Content + "\n\n" + post.Hashtags
	}
	postID, err := p.LinkedIn.PublishWithImage(ctx, text, hosted)
	if err != nil {
		return nil, err
	}
	post.LinkedInPostID = postID

	if err := p.Queue.MarkPublished(post); err != nil {
		return nil, err
	}

	// Notification is best-effort: a Telegram outage must not fail a post
	// that is already live.
	if p.Telegram != nil {
		caption := fmt.Sprintf("Published %s\n%s", post.Topic, postID)
		if err := p.Telegram.SendPhoto(ctx, hosted, caption); err != nil {
			log.Printf("[pipeline] telegram notification failed: %v", err)
		}
	}

	log.Printf("[pipeline] post %s published as %s", post.ID, postID)
	return post, nil
}

// Generate produces a draft and its source image for a topic and stores the
// result as a ready post.
func (p *Publisher) Generate(ctx context.Context, topic string) (*queue.Post, error) {
	if p.Generator == nil {
		return nil, errors.New("pipeline: no content generator configured")
	}

	draft, err := p.Generator.GeneratePost(ctx, topic)
	if err != nil {
		return nil, err
	}

	var imageURL string
	if draft.ImagePrompt != "" {
		imageURL, err = p.Generator.GenerateImage(ctx, draft.ImagePrompt)
		if err != nil {
			return nil, err
		}
	}

	post := &queue.Post{
		Topic:          topic,
		Content:        draft.Content,
		Hashtags:       draft.Hashtags,
		SourceImageURL: imageURL,
	}
	if err := p.Queue.Add(post); err != nil {
		return nil, err
	}
	log.Printf("[pipeline] queued post %s for topic %q", post.ID, topic)
	return post, nil
}
