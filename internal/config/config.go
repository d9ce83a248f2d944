package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrMissing marks a required configuration value that was neither in the
// config file nor the environment. Fatal at startup, never retried.
var ErrMissing = errors.New("config: missing required value")

// Config is the full application configuration: a yaml file provides the
// base values and environment variables override them.
type Config struct {
	TokenDir string `yaml:"token_dir"`

	Canva      Canva      `yaml:"canva"`
	LinkedIn   LinkedIn   `yaml:"linkedin"`
	Cloudinary Cloudinary `yaml:"cloudinary"`
	Telegram   Telegram   `yaml:"telegram"`
	OpenAI     OpenAI     `yaml:"openai"`
	Queue      Queue      `yaml:"queue"`
}

type Canva struct {
	ClientID        string   `yaml:"client_id"`
	ClientSecret    string   `yaml:"client_secret"`
	BrandTemplateID string   `yaml:"brand_template_id"`
	RedirectURL     string   `yaml:"redirect_url"`
	Scopes          []string `yaml:"scopes"`
}

type LinkedIn struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

type Cloudinary struct {
	CloudName    string `yaml:"cloud_name"`
	UploadPreset string `yaml:"upload_preset"`
	Folder       string `yaml:"folder"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Queue struct {
	Path string `yaml:"path"`
}

// Load reads the yaml config at path (a missing file is not an error: env
// vars alone can configure a deployment), applies env overrides, then
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.TokenDir, "PUBLISHER_TOKEN_DIR")

	overrideString(&c.Canva.ClientID, "CANVA_CLIENT_ID")
	overrideString(&c.Canva.ClientSecret, "CANVA_CLIENT_SECRET")
	overrideString(&c.Canva.BrandTemplateID, "CANVA_BRAND_TEMPLATE_ID")
	overrideString(&c.Canva.RedirectURL, "CANVA_REDIRECT_URL")

	overrideString(&c.LinkedIn.ClientID, "LINKEDIN_CLIENT_ID")
	overrideString(&c.LinkedIn.ClientSecret, "LINKEDIN_CLIENT_SECRET")
	overrideString(&c.LinkedIn.RedirectURL, "LINKEDIN_REDIRECT_URL")

	overrideString(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	overrideString(&c.Cloudinary.UploadPreset, "CLOUDINARY_UPLOAD_PRESET")
	overrideString(&c.Cloudinary.Folder, "CLOUDINARY_FOLDER")

	overrideString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	overrideString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&c.OpenAI.Model, "OPENAI_MODEL")
	overrideString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")

	overrideString(&c.Queue.Path, "PUBLISHER_QUEUE_PATH")
}

func (c *Config) applyDefaults() {
	if c.TokenDir == "" {
		c.TokenDir = "."
	}
	if c.Canva.RedirectURL == "" {
		c.Canva.RedirectURL = "http://127.0.0.1:8089/callback"
	}
	if len(c.Canva.Scopes) == 0 {
		c.Canva.Scopes = []string{
			"asset:read", "asset:write",
			"design:content:read", "design:content:write",
			"brandtemplate:content:read", "brandtemplate:meta:read",
		}
	}
	if c.LinkedIn.RedirectURL == "" {
		c.LinkedIn.RedirectURL = "http://localhost:8080/callback"
	}
	if len(c.LinkedIn.Scopes) == 0 {
		c.LinkedIn.Scopes = []string{"openid", "profile", "w_member_social"}
	}
	if c.Cloudinary.Folder == "" {
		c.Cloudinary.Folder = "social_published"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com"
	}
	if c.Queue.Path == "" {
		c.Queue.Path = "publisher.db"
	}
}

func overrideString(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

// TokenPath returns the token file location for a provider.
func (c *Config) TokenPath(provider string) string {
	return filepath.Join(c.TokenDir, provider+"_token.json")
}

// ValidateCanva checks the values the Canva client cannot run without.
func (c *Config) ValidateCanva() error {
	if c.Canva.ClientID == "" {
		return fmt.Errorf("%w: canva.client_id", ErrMissing)
	}
	if c.Canva.ClientSecret == "" {
		return fmt.Errorf("%w: canva.client_secret", ErrMissing)
	}
	if c.Canva.BrandTemplateID == "" {
		return fmt.Errorf("%w: canva.brand_template_id", ErrMissing)
	}
	return nil
}

// ValidateLinkedIn checks the values the LinkedIn client cannot run without.
func (c *Config) ValidateLinkedIn() error {
	if c.LinkedIn.ClientID == "" {
		return fmt.Errorf("%w: linkedin.client_id", ErrMissing)
	}
	if c.LinkedIn.ClientSecret == "" {
		return fmt.Errorf("%w: linkedin.client_secret", ErrMissing)
	}
	return nil
}

// ValidateCloudinary checks the values the upload client cannot run without.
func (c *Config) ValidateCloudinary() error {
	if c.Cloudinary.CloudName == "" {
		return fmt.Errorf("%w: cloudinary.cloud_name", ErrMissing)
	}
	if c.Cloudinary.UploadPreset == "" {
		return fmt.Errorf("%w: cloudinary.upload_preset", ErrMissing)
	}
	return nil
}

// ValidateOpenAI checks the values the content generator cannot run without.
func (c *Config) ValidateOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: openai.api_key", ErrMissing)
	}
	return nil
}

// ValidateTelegram checks the values the notifier cannot run without.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("%w: telegram.bot_token", ErrMissing)
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("%w: telegram.chat_id", ErrMissing)
	}
	return nil
}
