package queue

import (
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:queue-%d?mode=memory&cache=shared", time.Now().UnixNano())
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestAddAndNextReady(t *testing.T) {
	store := newTestStore(t)

	if post, err := store.NextReady(); err != nil || post != nil {
		t.Fatalf("empty queue should yield nil, nil; got %+v, %v", post, err)
	}

	first := &Post{Topic: "go generics", Content: "post one", Hashtags: "#go"}
	if err := store.Add(first); err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID == "" {
		t.Fatal("Add should assign an id")
	}
	// Force distinct created_at ordering.
	time.Sleep(5 * time.Millisecond)
	second := &Post{Topic: "error wrapping", Content: "post two"}
	if err := store.Add(second); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := store.NextReady()
	if err != nil {
		t.Fatalf("NextReady: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected oldest ready post %s, got %+v", first.ID, got)
	}
}

func TestMarkPublishedRemovesFromQueue(t *testing.T) {
	store := newTestStore(t)

	post := &Post{Topic: "topic", Content: "content"}
	if err := store.Add(post); err != nil {
		t.Fatalf("add: %v", err)
	}

	post.PublishedImageURL = "https://cdn/x.png"
	post.LinkedInPostID = "urn:li:share:1"
	if err := store.MarkPublished(post); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if post.PublishedAt == nil {
		t.Fatal("MarkPublished should set PublishedAt")
	}

	next, err := store.NextReady()
	if err != nil {
		t.Fatalf("NextReady: %v", err)
	}
	if next != nil {
		t.Fatalf("published post should not be selected again: %+v", next)
	}
}

func TestMarkFailed(t *testing.T) {
	store := newTestStore(t)

	post := &Post{Topic: "topic", Content: "content"}
	if err := store.Add(post); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.MarkFailed(post, "canva: export job failed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	next, err := store.NextReady()
	if err != nil {
		t.Fatalf("NextReady: %v", err)
	}
	if next != nil {
		t.Fatalf("failed post should not be retried automatically: %+v", next)
	}

	posts, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(posts) != 1 || posts[0].Status != StatusFailed || posts[0].FailReason == "" {
		t.Fatalf("unexpected list state: %+v", posts)
	}
}
