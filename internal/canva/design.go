package canva

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/avelara/social-publisher/internal/auth"
)

// DesignRequest is the input for one branded image: a source image plus the
// texts the brand template is filled with.
type DesignRequest struct {
	ImageURL string
	Title    string
	Subtitle string
	// Name labels the uploaded asset inside Canva; optional.
	Name string
}

// DesignResult is the finished design and its downloadable export.
type DesignResult struct {
	DesignID    string
	DownloadURL string
}

// CreateDesign runs the full upload, autofill, export pipeline. Each stage's
// output is a required input of the next; any stage error aborts the pipeline
// wrapped with the stage that failed.
func (c *Client) CreateDesign(ctx context.Context, req DesignRequest) (*DesignResult, error) {
	if req.ImageURL == "" {
		return nil, fmt.Errorf("canva: design request needs a source image URL")
	}
	name := req.Name
	if name == "" {
		name = "social-post"
	}

	data, err := c.downloadImage(ctx, req.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("canva: %s stage: %w", StageUpload, err)
	}

	// Stage 1: upload the source image as an asset.
	uploadJobID, err := c.UploadAsset(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("canva: %s stage: %w", StageUpload, err)
	}
	log.Printf("[canva] upload job %s submitted (%d bytes)", uploadJobID, len(data))

	uploadJob, err := c.awaitJob(ctx, StageUpload, func(ctx context.Context) (*jobEnvelope, error) {
		return c.getJob(ctx, "/v1/asset-uploads", uploadJobID)
	})
	if err != nil {
		return nil, err
	}
	if uploadJob.Job.Asset == nil || uploadJob.Job.Asset.ID == "" {
		return nil, &MissingResultError{Stage: StageUpload, Field: "job.asset.id"}
	}
	assetID := uploadJob.Job.Asset.ID

	// Stage 2: fill the brand template with the asset and texts.
	autofillJobID, err := c.Autofill(ctx, assetID, req.Title, req.Subtitle)
	if err != nil {
		return nil, fmt.Errorf("canva: %s stage: %w", StageAutofill, err)
	}
	log.Printf("[canva] autofill job %s submitted (asset %s)", autofillJobID, assetID)

	autofillJob, err := c.awaitJob(ctx, StageAutofill, func(ctx context.Context) (*jobEnvelope, error) {
		return c.getJob(ctx, "/v1/autofills", autofillJobID)
	})
	if err != nil {
		return nil, err
	}
	if autofillJob.Job.Result == nil || autofillJob.Job.Result.Design == nil || autofillJob.Job.Result.Design.ID == "" {
		return nil, &MissingResultError{Stage: StageAutofill, Field: "job.result.design.id"}
	}
	designID := autofillJob.Job.Result.Design.ID

	// Stage 3: export the design as PNG.
	exportJobID, err := c.Export(ctx, designID)
	if err != nil {
		return nil, fmt.Errorf("canva: %s stage: %w", StageExport, err)
	}
	log.Printf("[canva] export job %s submitted (design %s)", exportJobID, designID)

	exportJob, err := c.awaitJob(ctx, StageExport, func(ctx context.Context) (*jobEnvelope, error) {
		return c.getJob(ctx, "/v1/exports", exportJobID)
	})
	if err != nil {
		return nil, err
	}
	if len(exportJob.Job.URLs) == 0 || exportJob.Job.URLs[0] == "" {
		return nil, &MissingResultError{Stage: StageExport, Field: "job.urls"}
	}

	log.Printf("[canva] design %s exported: %s", designID, exportJob.Job.URLs[0])
	return &DesignResult{DesignID: designID, DownloadURL: exportJob.Job.URLs[0]}, nil
}

// awaitJob polls a job at a fixed interval until it leaves
// pending/in_progress, bounded by MaxPollAttempts.
func (c *Client) awaitJob(ctx context.Context, stage string, fetch func(context.Context) (*jobEnvelope, error)) (*jobEnvelope, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := c.MaxPollAttempts
	if attempts <= 0 {
		attempts = DefaultMaxPollAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		envelope, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("canva: %s stage: %w", stage, err)
		}

		switch envelope.Job.Status {
		case StatusSuccess:
			return envelope, nil
		case StatusFailed:
			failed := &JobFailedError{Stage: stage}
			if envelope.Job.Error != nil {
				failed.Code = envelope.Job.Error.Code
				failed.Message = envelope.Job.Error.Message
			}
			return nil, failed
		case StatusPending, StatusInProgress, "":
			// keep polling
		default:
			log.Printf("[canva] %s job %s reported unknown status %q, still polling", stage, envelope.Job.ID, envelope.Job.Status)
		}
	}
	return nil, fmt.Errorf("canva: %s stage gave up after %d polls: %w", stage, attempts, ErrJobTimeout)
}

func (c *Client) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download source image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download source image: %w", auth.ReadRequestError(resp))
	}
	return io.ReadAll(resp.Body)
}
