// Package cloudinary re-hosts images on Cloudinary so published posts do
// not depend on short-lived provider download URLs.
package cloudinary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avelara/social-publisher/internal/auth"
)

const DefaultBaseURL = "https://api.cloudinary.com"

// Client performs unsigned uploads; the preset carries the signing policy so
// no API secret is needed at runtime.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	cloudName    string
	uploadPreset string
	folder       string
}

func NewClient(cloudName, uploadPreset, folder string) *Client {
	return &Client{
		BaseURL:      DefaultBaseURL,
		HTTPClient:   &http.Client{Timeout: 2 * time.Minute},
		cloudName:    cloudName,
		uploadPreset: uploadPreset,
		folder:       folder,
	}
}

// Upload fetches imageURL server-side on Cloudinary and returns the hosted
// secure URL. folder overrides the client default when non-empty.
func (c *Client) Upload(ctx context.Context, imageURL, folder string) (string, error) {
	if folder == "" {
		folder = c.folder
	}
	form := url.Values{}
	form.Set("file", imageURL)
	form.Set("upload_preset", c.uploadPreset)
	if folder != "" {
		form.Set("folder", folder)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.BaseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary: upload request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("cloudinary: %w", auth.ReadRequestError(resp))
	}

	var parsed struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("cloudinary: failed to decode upload response: %w", err)
	}
	hosted := parsed.SecureURL
	if hosted == "" {
		hosted = parsed.URL
	}
	if hosted == "" {
		return "", errors.New("cloudinary: upload response is missing secure_url")
	}
	return hosted, nil
}
