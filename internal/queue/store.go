// Package queue is the tabular content source: posts wait here as rows until
// the publish pipeline picks them up and records the outcome.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists the post queue in SQLite.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the queue database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("queue: failed to open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Post{}); err != nil {
		return nil, fmt.Errorf("queue: migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Add inserts a new ready post, assigning its id when empty.
func (s *Store) Add(post *Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.Status == "" {
		post.Status = StatusReady
	}
	if err := s.db.Create(post).Error; err != nil {
		return fmt.Errorf("queue: failed to add post: %w", err)
	}
	return nil
}

// NextReady returns the oldest ready post, or nil when the queue is empty.
func (s *Store) NextReady() (*Post, error) {
	var post Post
	err := s.db.Where("status = ?", StatusReady).Order("created_at ASC").First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: failed to pick next post: %w", err)
	}
	return &post, nil
}

// MarkPublished records a successful publish so the post is never selected
// again.
func (s *Store) MarkPublished(post *Post) error {
	now := time.Now()
	post.Status = StatusPublished
	post.PublishedAt = &now
	post.FailReason = ""
	if err := s.db.Save(post).Error; err != nil {
		return fmt.Errorf("queue: failed to mark post %s published: %w", post.ID, err)
	}
	return nil
}

// MarkFailed records a failed publish attempt with its reason.
func (s *Store) MarkFailed(post *Post, reason string) error {
	post.Status = StatusFailed
	post.FailReason = reason
	if err := s.db.Save(post).Error; err != nil {
		return fmt.Errorf("queue: failed to mark post %s failed: %w", post.ID, err)
	}
	return nil
}

// List returns all posts, newest first.
func (s *Store) List() ([]Post, error) {
	var posts []Post
	if err := s.db.Order("created_at DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("queue: failed to list posts: %w", err)
	}
	return posts, nil
}
