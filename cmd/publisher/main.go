// Command publisher automates social-media content: generate posts into a
// local queue, then publish them to LinkedIn with a Canva-branded image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"github.com/avelara/social-publisher/internal/auth"
	"github.com/avelara/social-publisher/internal/canva"
	"github.com/avelara/social-publisher/internal/cloudinary"
	"github.com/avelara/social-publisher/internal/config"
	"github.com/avelara/social-publisher/internal/generator"
	"github.com/avelara/social-publisher/internal/linkedin"
	"github.com/avelara/social-publisher/internal/pipeline"
	"github.com/avelara/social-publisher/internal/queue"
	"github.com/avelara/social-publisher/internal/telegram"
)

func main() {
	// A missing .env is fine; env vars may come from the deployment.
	godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfgPath := os.Getenv("PUBLISHER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "login":
		runLogin(ctx, cfg, os.Args[2:])
	case "publish":
		runPublish(ctx, cfg)
	case "generate":
		runGenerate(ctx, cfg, strings.TrimSpace(strings.Join(os.Args[2:], " ")))
	case "queue":
		runQueue(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: publisher <command>

Commands:
  login canva|linkedin   run the browser authorization flow and store the token
  generate <topic>       generate a post for the topic and queue it
  publish                publish the next ready post from the queue
  queue list             show all queued posts
  queue add [flags]      add a post to the queue manually
`)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Minute}
}

func canvaOAuth(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Canva.ClientID,
		ClientSecret: cfg.Canva.ClientSecret,
		RedirectURL:  cfg.Canva.RedirectURL,
		Scopes:       cfg.Canva.Scopes,
		Endpoint:     canva.OAuthEndpoint,
	}
}

func linkedinOAuth(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.LinkedIn.ClientID,
		ClientSecret: cfg.LinkedIn.ClientSecret,
		RedirectURL:  cfg.LinkedIn.RedirectURL,
		Scopes:       cfg.LinkedIn.Scopes,
		Endpoint:     linkedin.OAuthEndpoint,
	}
}

func runLogin(ctx context.Context, cfg *config.Config, args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}
	provider := args[0]

	var oauthCfg *oauth2.Config
	switch provider {
	case "canva":
		if err := cfg.ValidateCanva(); err != nil {
			log.Fatalf("Cannot log in: %v", err)
		}
		oauthCfg = canvaOAuth(cfg)
	case "linkedin":
		if err := cfg.ValidateLinkedIn(); err != nil {
			log.Fatalf("Cannot log in: %v", err)
		}
		oauthCfg = linkedinOAuth(cfg)
	default:
		log.Fatalf("Unknown provider %q (want canva or linkedin)", provider)
	}

	// The store for login deliberately ignores any injected refresh token:
	// the point of this command is to mint a fresh one.
	store := auth.NewFileTokenStore(cfg.TokenPath(provider), "")
	flow := &auth.Flow{Name: provider, OAuth: oauthCfg, Store: store}

	tok, err := flow.Authorize(ctx)
	if err != nil {
		log.Fatalf("Authorization failed: %v", err)
	}

	fmt.Printf("\nAuthorization with %s succeeded.\n", provider)
	if tok.RefreshToken != "" {
		fmt.Printf("Refresh token (set %s for container deployments):\n\n%s\n\n",
			refreshTokenEnvVar(provider), tok.RefreshToken)
	}
}

func refreshTokenEnvVar(provider string) string {
	return strings.ToUpper(provider) + "_REFRESH_TOKEN"
}

func newSession(cfg *config.Config, provider string, oauthCfg *oauth2.Config, client *http.Client) *auth.Session {
	store := auth.NewFileTokenStore(cfg.TokenPath(provider), refreshTokenEnvVar(provider))
	return auth.NewSession(provider, oauthCfg, store, client)
}

func newPublisher(cfg *config.Config) *pipeline.Publisher {
	if err := cfg.ValidateCanva(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.ValidateLinkedIn(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.ValidateCloudinary(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	httpClient := newHTTPClient()

	canvaClient := canva.NewClient(newSession(cfg, "canva", canvaOAuth(cfg), httpClient), cfg.Canva.BrandTemplateID)
	canvaClient.HTTPClient = httpClient

	linkedinClient := linkedin.NewClient(newSession(cfg, "linkedin", linkedinOAuth(cfg), httpClient))
	linkedinClient.HTTPClient = httpClient

	store, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}

	publisher := &pipeline.Publisher{
		Queue:      store,
		Canva:      canvaClient,
		Cloudinary: cloudinary.NewClient(cfg.Cloudinary.CloudName, cfg.Cloudinary.UploadPreset, cfg.Cloudinary.Folder),
		LinkedIn:   linkedinClient,
	}
	if cfg.ValidateTelegram() == nil {
		publisher.Telegram = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	} else {
		log.Printf("[main] telegram not configured, notifications disabled")
	}
	if cfg.ValidateOpenAI() == nil {
		publisher.Generator = generator.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	}
	return publisher
}

func runPublish(ctx context.Context, cfg *config.Config) {
	publisher := newPublisher(cfg)

	post, err := publisher.PublishNext(ctx)
	if errors.Is(err, pipeline.ErrQueueEmpty) {
		fmt.Println("Nothing to publish: queue is empty.")
		return
	}
	if err != nil {
		log.Fatalf("Publish failed: %v", err)
	}
	fmt.Printf("Published %q as %s\nImage: %s\n", post.Topic, post.LinkedInPostID, post.PublishedImageURL)
}

func runGenerate(ctx context.Context, cfg *config.Config, topic string) {
	if topic == "" {
		log.Fatal("generate needs a topic, e.g.: publisher generate \"Go error handling\"")
	}
	if err := cfg.ValidateOpenAI(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	store, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}
	publisher := &pipeline.Publisher{
		Queue:     store,
		Generator: generator.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL),
	}

	post, err := publisher.Generate(ctx, topic)
	if err != nil {
		log.Fatalf("Generation failed: %v", err)
	}
	fmt.Printf("Queued post %s for topic %q\n", post.ID, post.Topic)
}

func runQueue(cfg *config.Config, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	store, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}

	switch args[0] {
	case "list":
		posts, err := store.List()
		if err != nil {
			log.Fatalf("Failed to list queue: %v", err)
		}
		if len(posts) == 0 {
			fmt.Println("Queue is empty.")
			return
		}
		for _, p := range posts {
			fmt.Printf("%s  %-9s  %s\n", p.ID, p.Status, p.Topic)
			if p.Status == queue.StatusFailed && p.FailReason != "" {
				fmt.Printf("  reason: %s\n", p.FailReason)
			}
		}
	case "add":
		fs := flag.NewFlagSet("queue add", flag.ExitOnError)
		topic := fs.String("topic", "", "post topic (shown as design title)")
		content := fs.String("content", "", "post body text")
		hashtags := fs.String("hashtags", "", "space-separated hashtags")
		sourceImage := fs.String("image", "", "source image URL for the design pipeline")
		readyImage := fs.String("ready-image", "", "finished image URL, skips the design pipeline")
		fs.Parse(args[1:])

		if *content == "" {
			log.Fatal("queue add needs -content")
		}
		post := &queue.Post{
			Topic:          *topic,
			Content:        *content,
			Hashtags:       *hashtags,
			SourceImageURL: *sourceImage,
			ReadyImageURL:  *readyImage,
		}
		if err := store.Add(post); err != nil {
			log.Fatalf("Failed to add post: %v", err)
		}
		fmt.Printf("Queued post %s\n", post.ID)
	default:
		usage()
		os.Exit(2)
	}
}
