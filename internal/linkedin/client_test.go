package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/avelara/social-publisher/internal/auth"
)

type stubStore struct{ tok *auth.Token }

func (s *stubStore) Load() (*auth.Token, error) { return s.tok, nil }
func (s *stubStore) Save(tok *auth.Token) error { s.tok = tok; return nil }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	session := auth.NewSession("linkedin", &oauth2.Config{}, &stubStore{
		tok: &auth.Token{AccessToken: "at", TokenType: "Bearer"},
	}, srv.Client())

	client := NewClient(session)
	client.BaseURL = srv.URL
	client.HTTPClient = srv.Client()
	return client, srv
}

func TestPublishWithImage(t *testing.T) {
	var steps []string
	var uploadedBytes []byte

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, "userinfo")
		fmt.Fprint(w, `{"sub":"member-1","name":"Test Member"}`)
	})
	mux.HandleFunc("GET /source.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	})
	var srvURL string
	mux.HandleFunc("POST /v2/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "registerUpload" {
			t.Fatalf("unexpected action %q", r.URL.RawQuery)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		reg, _ := body["registerUploadRequest"].(map[string]any)
		if reg["owner"] != "urn:li:person:member-1" {
			t.Fatalf("register upload owner mismatch: %+v", reg)
		}
		steps = append(steps, "register")
		fmt.Fprintf(w, `{"value":{"asset":"urn:li:digitalmediaAsset:asset-1","uploadMechanism":{"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"%s/upload/asset-1"}}}}`, srvURL)
	})
	mux.HandleFunc("PUT /upload/asset-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Fatal("byte upload must not carry the bearer token")
		}
		uploadedBytes, _ = io.ReadAll(r.Body)
		steps = append(steps, "upload")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
			t.Fatal("create post missing Rest.li protocol header")
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["author"] != "urn:li:person:member-1" {
			t.Fatalf("post author mismatch: %+v", body)
		}
		content, _ := body["specificContent"].(map[string]any)
		share, _ := content["com.linkedin.ugc.ShareContent"].(map[string]any)
		if share["shareMediaCategory"] != "IMAGE" {
			t.Fatalf("expected IMAGE share, got %+v", share)
		}
		media, _ := share["media"].([]any)
		if len(media) != 1 {
			t.Fatalf("expected one media entry, got %+v", media)
		}
		entry, _ := media[0].(map[string]any)
		if entry["media"] != "urn:li:digitalmediaAsset:asset-1" {
			t.Fatalf("post does not reference the uploaded asset: %+v", entry)
		}
		steps = append(steps, "post")
		fmt.Fprint(w, `{"id":"urn:li:share:42"}`)
	})

	client, srv := newTestClient(t, mux)
	srvURL = srv.URL

	postID, err := client.PublishWithImage(context.Background(), "Hello\n\n#go", srv.URL+"/source.png")
	if err != nil {
		t.Fatalf("PublishWithImage: %v", err)
	}
	if postID != "urn:li:share:42" {
		t.Fatalf("unexpected post id %q", postID)
	}
	if string(uploadedBytes) != "image-bytes" {
		t.Fatalf("uploaded bytes mismatch: %q", uploadedBytes)
	}
	want := []string{"userinfo", "register", "upload", "post"}
	if strings.Join(steps, ",") != strings.Join(want, ",") {
		t.Fatalf("publish stages out of order: %v", steps)
	}
}

func TestPublishText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sub":"member-1"}`)
	})
	mux.HandleFunc("POST /v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		content, _ := body["specificContent"].(map[string]any)
		share, _ := content["com.linkedin.ugc.ShareContent"].(map[string]any)
		if share["shareMediaCategory"] != "NONE" {
			t.Fatalf("expected NONE share, got %+v", share)
		}
		w.Header().Set("X-RestLi-Id", "urn:li:share:7")
		w.WriteHeader(http.StatusCreated)
	})

	client, _ := newTestClient(t, mux)

	postID, err := client.PublishText(context.Background(), "text only")
	if err != nil {
		t.Fatalf("PublishText: %v", err)
	}
	if postID != "urn:li:share:7" {
		t.Fatalf("unexpected post id %q", postID)
	}
}

func TestPublishWithImage_RegisterFailureNamesStage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sub":"member-1"}`)
	})
	mux.HandleFunc("POST /v2/assets", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	client, srv := newTestClient(t, mux)

	_, err := client.PublishWithImage(context.Background(), "text", srv.URL+"/source.png")
	var reqErr *auth.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if !strings.Contains(err.Error(), "register upload") {
		t.Fatalf("error should name the failing stage: %v", err)
	}
}

func TestPublishWithImage_MissingUploadURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sub":"member-1"}`)
	})
	mux.HandleFunc("POST /v2/assets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":{"asset":"urn:li:digitalmediaAsset:asset-1"}}`)
	})

	client, srv := newTestClient(t, mux)

	_, err := client.PublishWithImage(context.Background(), "text", srv.URL+"/source.png")
	if err == nil || !strings.Contains(err.Error(), "missing asset or uploadUrl") {
		t.Fatalf("expected missing uploadUrl error, got %v", err)
	}
}
