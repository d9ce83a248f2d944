package queue

import "time"

// Post statuses.
const (
	StatusReady     = "ready"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Post is one queued piece of content.
type Post struct {
	ID       string `gorm:"primaryKey"` // UUID
	Topic    string
	Content  string
	Hashtags string

	// SourceImageURL is the raw image fed into the design pipeline.
	SourceImageURL string
	// ReadyImageURL, when set, is a finished image; the design pipeline is
	// skipped for this post.
	ReadyImageURL string

	// Filled in on publish.
	PublishedImageURL string
	DesignID          string
	LinkedInPostID    string

	Status      string `gorm:"index;default:ready"`
	FailReason  string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
