// Package batch implements the client for the asynchronous transcription
// REST API: job submission, polling and result retrieval.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/speechmatics/speechmatics-go"
)

// DefaultPollInterval is the fixed interval between status checks in
// WaitForCompletion. Polling is fixed-interval, not exponential; the
// service does no rate-limit coordination beyond this.
const DefaultPollInterval = 15 * time.Second

// Client talks to the batch transcription API. It is safe for concurrent
// use; each request is independent.
type Client struct {
	// FromCLI marks requests as originating from the command line tool.
	FromCLI bool

	settings   speechmatics.ConnectionSettings
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a batch client from the given connection settings. The
// URL is normalized to end with the /v2 API prefix.
func NewClient(settings speechmatics.ConnectionSettings) *Client {
	settings.ApplyDefaults()
	settings.URL = strings.TrimSuffix(settings.URL, "/")
	if !strings.HasSuffix(settings.URL, "/v2") {
		settings.URL += "/v2"
	}

	transport := http.DefaultTransport
	if tlsConfig := settings.TLS(); tlsConfig != nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = tlsConfig
		transport = t
	}
	return &Client{
		settings: settings,
		httpClient: &http.Client{
			Transport: transport,
		},
		logger: log.Default().With("component", "batch"),
	}
}

// AudioSource names an audio input for SubmitJob: either a local file
// path, an in-memory payload with a filename, or nothing when the config
// carries a FetchData URL.
type AudioSource struct {
	Path     string
	Filename string
	Data     []byte
}

// FromFile submits the audio file at path.
func FromFile(path string) AudioSource {
	return AudioSource{Path: path}
}

// FromBytes submits an in-memory audio payload under the given filename.
func FromBytes(filename string, data []byte) AudioSource {
	return AudioSource{Filename: filename, Data: data}
}

// FetchOnly submits no audio; the job config must carry a fetch URL.
func FetchOnly() AudioSource {
	return AudioSource{}
}

func (a AudioSource) empty() bool {
	return a.Path == "" && len(a.Data) == 0
}

// SubmitJob uploads audio and configuration for transcription and returns
// the new job ID. Exactly one of an audio source or config.FetchData must
// be provided. SubmitJob is not idempotent: each call creates a new job.
//
// A single retry is attempted when the upload fails with a transient
// transport error before any response is received.
func (c *Client) SubmitJob(ctx context.Context, audio AudioSource, config speechmatics.BatchTranscriptionConfig) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}
	if !audio.empty() && config.FetchData != nil {
		return "", &speechmatics.ValidationError{
			Field:  "audio",
			Reason: "only one of audio or fetch_data can be set at a time",
		}
	}
	if audio.empty() && config.FetchData == nil {
		return "", &speechmatics.ValidationError{
			Field:  "audio",
			Reason: "either audio or fetch_data must be provided",
		}
	}

	jobConfig := speechmatics.NewJobConfig(config)
	configJSON, err := json.Marshal(jobConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job config: %w", err)
	}

	submit := func() (string, error) {
		body, contentType, err := buildSubmitBody(audio, configJSON)
		if err != nil {
			return "", err
		}
		resp, err := c.do(ctx, "POST", "jobs", nil, contentType, body)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp, http.StatusCreated, http.StatusOK); err != nil {
			return "", err
		}
		var created struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", fmt.Errorf("failed to decode job response: %w", err)
		}
		return created.ID, nil
	}

	id, err := submit()
	if err != nil && isTransientUploadError(err) {
		c.logger.Warn("job submission failed, retrying once", "err", err)
		id, err = submit()
	}
	if err != nil {
		return "", err
	}
	c.logger.Info("job submitted", "job_id", id)
	return id, nil
}

// buildSubmitBody assembles the multipart form: a config field and, when
// audio is supplied, a data_file part. Fetch-only submissions still use
// multipart encoding, just without the file part.
func buildSubmitBody(audio AudioSource, configJSON []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("config", string(configJSON)); err != nil {
		return nil, "", err
	}

	if audio.Path != "" {
		file, err := os.Open(audio.Path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open audio file: %w", err)
		}
		defer file.Close()
		part, err := writer.CreateFormFile("data_file", filepath.Base(audio.Path))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", fmt.Errorf("failed to read audio file: %w", err)
		}
	} else if len(audio.Data) > 0 {
		part, err := writer.CreateFormFile("data_file", audio.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(audio.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// CheckJobStatus returns the current job record. Safe to call repeatedly.
func (c *Client) CheckJobStatus(ctx context.Context, jobID string) (*speechmatics.JobDetails, error) {
	resp, err := c.do(ctx, "GET", "jobs/"+jobID, nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, &speechmatics.JobNotFoundError{JobID: jobID}
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var wrapped struct {
		Job speechmatics.JobDetails `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode job details: %w", err)
	}
	return &wrapped.Job, nil
}

// ListJobs returns the jobs associated with the account.
func (c *Client) ListJobs(ctx context.Context) ([]speechmatics.JobDetails, error) {
	resp, err := c.do(ctx, "GET", "jobs", nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var wrapped struct {
		Jobs []speechmatics.JobDetails `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}
	return wrapped.Jobs, nil
}

// GetJobResult fetches the finished transcript in the requested format.
// Safe to call repeatedly. A 404, meaning an unknown job or a transcript
// that is not ready yet, surfaces as JobNotFoundError.
func (c *Client) GetJobResult(ctx context.Context, jobID string, format speechmatics.TranscriptFormat) (string, error) {
	params := url.Values{"format": []string{string(format)}}
	resp, err := c.do(ctx, "GET", "jobs/"+jobID+"/transcript", params, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return "", &speechmatics.JobNotFoundError{JobID: jobID}
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	transcript, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(transcript), nil
}

// DeleteJob deletes a job. A running job is only terminated when force is
// set.
func (c *Client) DeleteJob(ctx context.Context, jobID string, force bool) error {
	params := url.Values{"force": []string{fmt.Sprintf("%t", force)}}
	resp, err := c.do(ctx, "DELETE", "jobs/"+jobID, params, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return &speechmatics.JobNotFoundError{JobID: jobID}
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}
	c.logger.Info("job deleted", "job_id", jobID)
	return nil
}

// WaitForCompletion polls the job at pollInterval until it reaches a
// terminal status or the timeout elapses, then returns the final job
// record. At most ceil(timeout/pollInterval) status checks are made. On
// timeout the remote job is left running; only a TimeoutError is
// returned. A job that ends rejected, deleted or expired is reported as a
// TranscriptionError.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, pollInterval, timeout time.Duration) (*speechmatics.JobDetails, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	maxChecks := int(math.Ceil(float64(timeout) / float64(pollInterval)))
	if maxChecks < 1 {
		maxChecks = 1
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for checks := 0; checks < maxChecks; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, &speechmatics.TimeoutError{
				Op:      fmt.Sprintf("waiting for job %s", jobID),
				Elapsed: timeout.String(),
			}
		case <-ticker.C:
			checks++
			details, err := c.CheckJobStatus(ctx, jobID)
			if err != nil {
				return nil, err
			}
			c.logger.Info("job status", "job_id", jobID, "status", details.Status)
			switch details.Status {
			case speechmatics.JobStatusDone:
				return details, nil
			case speechmatics.JobStatusRejected,
				speechmatics.JobStatusDeleted,
				speechmatics.JobStatusExpired:
				return nil, &speechmatics.TranscriptionError{
					Reason: fmt.Sprintf("job %s failed with status %s", jobID, details.Status),
				}
			}
		}
	}
	return nil, &speechmatics.TimeoutError{
		Op:      fmt.Sprintf("waiting for job %s", jobID),
		Elapsed: timeout.String(),
	}
}

// Transcribe submits audio, waits for the job to finish and fetches the
// transcript in the requested format.
func (c *Client) Transcribe(ctx context.Context, audio AudioSource, config speechmatics.BatchTranscriptionConfig, format speechmatics.TranscriptFormat, pollInterval, timeout time.Duration) (string, error) {
	jobID, err := c.SubmitJob(ctx, audio, config)
	if err != nil {
		return "", fmt.Errorf("failed to submit job: %w", err)
	}
	if _, err := c.WaitForCompletion(ctx, jobID, pollInterval, timeout); err != nil {
		return "", err
	}
	return c.GetJobResult(ctx, jobID, format)
}

// do issues a request against the API with auth and sm-sdk applied.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, contentType string, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.settings.URL + "/" + path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	q.Set("sm-sdk", speechmatics.SDKTag(c.FromCLI))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.settings.AuthToken))
	req.Header.Set("Accept-Charset", "utf-8")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// checkStatus drains and reports any unexpected response status.
func checkStatus(resp *http.Response, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	body, _ := io.ReadAll(resp.Body)
	return &speechmatics.HTTPStatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// isTransientUploadError reports whether the submission failed in a way
// worth one retry: the connection dropped before a response arrived.
func isTransientUploadError(err error) bool {
	var statusErr *speechmatics.HTTPStatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var validationErr *speechmatics.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "connection reset")
}
