// Package linkedin publishes feed posts through the LinkedIn REST API:
// text-only shares and the register-upload / upload-bytes / create-post
// sequence for posts with an image.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthLinkedIn "golang.org/x/oauth2/linkedin"

	"github.com/avelara/social-publisher/internal/auth"
)

const (
	DefaultBaseURL = "https://api.linkedin.com"

	// LinkedIn's Rest.li endpoints reject calls without this exact header.
	restliProtocolHeader  = "X-Restli-Protocol-Version"
	restliProtocolVersion = "2.0.0"

	feedShareRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
)

// OAuthEndpoint is LinkedIn's authorization/token endpoint pair.
var OAuthEndpoint = oauthLinkedIn.Endpoint

func init() {
	// LinkedIn wants client credentials in the POST body, not basic auth.
	OAuthEndpoint.AuthStyle = oauth2.AuthStyleInParams
}

// Client calls the LinkedIn API through an authenticated session.
type Client struct {
	// BaseURL exists for tests.
	BaseURL string

	// HTTPClient performs the raw image download and the asset byte upload;
	// the upload URL uses its own transport, outside the bearer scheme.
	HTTPClient *http.Client

	session *auth.Session
}

func NewClient(session *auth.Session) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		session:    session,
	}
}

// Profile is the OpenID userinfo subset the publish calls need.
type Profile struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// URN returns the member URN used as post author.
func (p *Profile) URN() string { return "urn:li:person:" + p.Sub }

// UserInfo resolves the authenticated member's identity.
func (c *Client) UserInfo(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.session.DoJSON(ctx, http.MethodGet, c.BaseURL+"/v2/userinfo", nil, &profile); err != nil {
		return nil, fmt.Errorf("linkedin: userinfo: %w", err)
	}
	if profile.Sub == "" {
		return nil, errors.New("linkedin: userinfo response is missing sub")
	}
	return &profile, nil
}

// PublishText creates a text-only feed post and returns its id.
func (c *Client) PublishText(ctx context.Context, text string) (string, error) {
	profile, err := c.UserInfo(ctx)
	if err != nil {
		return "", err
	}
	return c.createPost(ctx, profile.URN(), text, "")
}

// PublishWithImage downloads the image, uploads it as a LinkedIn asset, and
// creates a feed post referencing it. Any stage failure aborts the publish
// with the stage identified; an already-uploaded asset is left orphaned,
// LinkedIn expires those.
func (c *Client) PublishWithImage(ctx context.Context, text, imageURL string) (string, error) {
	profile, err := c.UserInfo(ctx)
	if err != nil {
		return "", err
	}

	assetURN, uploadURL, err := c.registerUpload(ctx, profile.URN())
	if err != nil {
		return "", fmt.Errorf("linkedin: register upload: %w", err)
	}
	log.Printf("[linkedin] registered upload slot for asset %s", assetURN)

	data, err := c.downloadImage(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("linkedin: download image: %w", err)
	}
	if err := c.uploadBytes(ctx, uploadURL, data); err != nil {
		return "", fmt.Errorf("linkedin: upload image bytes: %w", err)
	}
	log.Printf("[linkedin] uploaded %d image bytes", len(data))

	postID, err := c.createPost(ctx, profile.URN(), text, assetURN)
	if err != nil {
		return "", fmt.Errorf("linkedin: create post: %w", err)
	}
	log.Printf("[linkedin] published post %s", postID)
	return postID, nil
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism struct {
			MediaUploadHTTPRequest struct {
				UploadURL string            `json:"uploadUrl"`
				Headers   map[string]string `json:"headers"`
			} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// registerUpload reserves an upload slot and returns the asset URN plus the
// one-time upload URL.
func (c *Client) registerUpload(ctx context.Context, ownerURN string) (assetURN, uploadURL string, err error) {
	body := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{feedShareRecipe},
			"owner":   ownerURN,
			"serviceRelationships": []map[string]any{
				{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				},
			},
		},
	}

	var parsed registerUploadResponse
	if err := c.session.DoJSON(ctx, http.MethodPost, c.BaseURL+"/v2/assets?action=registerUpload", body, &parsed); err != nil {
		return "", "", err
	}
	assetURN = parsed.Value.Asset
	uploadURL = parsed.Value.UploadMechanism.MediaUploadHTTPRequest.UploadURL
	if assetURN == "" || uploadURL == "" {
		return "", "", errors.New("register upload response is missing asset or uploadUrl")
	}
	return assetURN, uploadURL, nil
}

// uploadBytes PUTs the image to the upload URL returned by registerUpload.
func (c *Client) uploadBytes(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return auth.ReadRequestError(resp)
	}
	return nil
}

// createPost creates the ugc post; assetURN empty means a text-only share.
func (c *Client) createPost(ctx context.Context, authorURN, text, assetURN string) (string, error) {
	shareContent := map[string]any{
		"shareCommentary":    map[string]any{"text": text},
		"shareMediaCategory": "NONE",
	}
	if assetURN != "" {
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = []map[string]any{
			{"status": "READY", "media": assetURN},
		}
	}
	body := map[string]any{
		"author":         authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode post body: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(restliProtocolHeader, restliProtocolVersion)

	resp, err := c.session.Do(ctx, http.MethodPost, c.BaseURL+"/v2/ugcPosts", payload, header)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", auth.ReadRequestError(resp)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.ID != "" {
		return parsed.ID, nil
	}
	// Some deployments only return the id in the Rest.li header.
	if id := resp.Header.Get("X-RestLi-Id"); id != "" {
		return id, nil
	}
	return "", errors.New("create post response is missing post id")
}

func (c *Client) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, auth.ReadRequestError(resp)
	}
	return io.ReadAll(resp.Body)
}
