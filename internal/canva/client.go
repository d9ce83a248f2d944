// Package canva drives Canva's asynchronous design pipeline: asset upload,
// brand-template autofill, and export, each a submit-then-poll job.
package canva

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/avelara/social-publisher/internal/auth"
)

const (
	DefaultBaseURL = "https://api.canva.com/rest"

	// Canva requires this exact header casing for upload metadata.
	assetUploadMetadataHeader = "Asset-Upload-Metadata"

	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 24
)

// OAuthEndpoint is Canva's authorization/token endpoint pair. Canva expects
// client credentials in the Authorization header of token requests.
var OAuthEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.canva.com/api/oauth/authorize",
	TokenURL:  "https://api.canva.com/rest/v1/oauth/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// Job statuses reported by Canva's job endpoints.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// Client calls the Canva REST API through an authenticated session.
type Client struct {
	// BaseURL, PollInterval and MaxPollAttempts have working defaults and
	// exist mainly for tests.
	BaseURL         string
	PollInterval    time.Duration
	MaxPollAttempts int

	// HTTPClient downloads source images; those URLs are outside Canva's
	// bearer scheme.
	HTTPClient *http.Client

	session         *auth.Session
	brandTemplateID string
}

// NewClient wires a Canva client to the session and the brand template used
// for autofill.
func NewClient(session *auth.Session, brandTemplateID string) *Client {
	return &Client{
		BaseURL:         DefaultBaseURL,
		PollInterval:    DefaultPollInterval,
		MaxPollAttempts: DefaultMaxPollAttempts,
		HTTPClient:      &http.Client{Timeout: 2 * time.Minute},
		session:         session,
		brandTemplateID: brandTemplateID,
	}
}

// jobEnvelope is the common {job: {...}} response shape. Result fields vary
// by job kind and are all optional; callers must not assume they are set
// even on success.
type jobEnvelope struct {
	Job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Asset  *struct {
			ID string `json:"id"`
		} `json:"asset,omitempty"`
		Result *struct {
			Design *struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"design,omitempty"`
		} `json:"result,omitempty"`
		URLs  []string `json:"urls,omitempty"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"job"`
}

// UploadAsset submits raw image bytes as a new asset and returns the upload
// job id.
func (c *Client) UploadAsset(ctx context.Context, name string, data []byte) (string, error) {
	meta, err := json.Marshal(map[string]string{
		"name_base64": base64.StdEncoding.EncodeToString([]byte(name)),
	})
	if err != nil {
		return "", fmt.Errorf("canva: failed to encode upload metadata: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set(assetUploadMetadataHeader, string(meta))

	resp, err := c.session.Do(ctx, http.MethodPost, c.BaseURL+"/v1/asset-uploads", data, header)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", auth.ReadRequestError(resp)
	}

	var envelope jobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("canva: failed to decode upload response: %w", err)
	}
	if envelope.Job.ID == "" {
		return "", &MissingResultError{Stage: StageUpload, Field: "job.id"}
	}
	return envelope.Job.ID, nil
}

// Autofill submits a brand-template autofill referencing an uploaded asset
// and returns the autofill job id.
func (c *Client) Autofill(ctx context.Context, assetID, title, subtitle string) (string, error) {
	body := map[string]any{
		"brand_template_id": c.brandTemplateID,
		"data": map[string]any{
			"title":    map[string]any{"type": "text", "text": title},
			"subtitle": map[string]any{"type": "text", "text": subtitle},
			"image":    map[string]any{"type": "image", "asset_id": assetID},
		},
	}
	var envelope jobEnvelope
	if err := c.session.DoJSON(ctx, http.MethodPost, c.BaseURL+"/v1/autofills", body, &envelope); err != nil {
		return "", err
	}
	if envelope.Job.ID == "" {
		return "", &MissingResultError{Stage: StageAutofill, Field: "job.id"}
	}
	return envelope.Job.ID, nil
}

// Export submits a PNG export for a design and returns the export job id.
func (c *Client) Export(ctx context.Context, designID string) (string, error) {
	body := map[string]any{
		"design_id": designID,
		"format":    map[string]any{"type": "png"},
	}
	var envelope jobEnvelope
	if err := c.session.DoJSON(ctx, http.MethodPost, c.BaseURL+"/v1/exports", body, &envelope); err != nil {
		return "", err
	}
	if envelope.Job.ID == "" {
		return "", &MissingResultError{Stage: StageExport, Field: "job.id"}
	}
	return envelope.Job.ID, nil
}

func (c *Client) getJob(ctx context.Context, path, jobID string) (*jobEnvelope, error) {
	var envelope jobEnvelope
	if err := c.session.DoJSON(ctx, http.MethodGet, c.BaseURL+path+"/"+jobID, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}
