package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arlewin/comfybatch/graphapi"
)

/*
Backend routes this client speaks:

	GET  /object_info         node schema catalog (absence tolerated)
	POST /prompt              submit a graph, returns a job id
	GET  /history/{jobId}     job record once execution finished
	GET  /view?filename=...   raw artifact bytes
*/

// ArtifactRef identifies one produced output file on the backend.
type ArtifactRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// PollOptions tunes the completion wait loop.
type PollOptions struct {
	// Interval between unsuccessful polls.  Zero means one second.
	Interval time.Duration
	// MaxWait bounds the whole wait.  Zero means wait forever; an
	// unresponsive backend is then interruptible only through the context.
	MaxWait time.Duration
}

func (o PollOptions) interval() time.Duration {
	if o.Interval <= 0 {
		return time.Second
	}
	return o.Interval
}

func (c *Client) get(ctx context.Context, pathAndQuery string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(pathAndQuery), nil)
	if err != nil {
		return nil, err
	}
	req.Close = true
	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.transportError(err)
	}
	return resp, nil
}

// transportError separates a server that answered garbage from one that
// could not be reached at all.  net/http exposes unparsable framing only as
// "malformed HTTP ..." error strings, so that is what is matched.
func (c *Client) transportError(err error) error {
	if strings.Contains(err.Error(), "malformed HTTP") {
		return &ProtocolError{Reason: "unparsable response from " + c.addr(), Err: err}
	}
	return &ConnectionError{Addr: c.addr(), Err: err}
}

// FetchSchemaCatalog retrieves the backend's node schema catalog.  The
// endpoint's absence degrades gracefully: any non-200 status, empty body or
// parse failure yields a nil catalog and no error, never aborting the
// caller.
func (c *Client) FetchSchemaCatalog(ctx context.Context) *graphapi.SchemaCatalog {
	resp, err := c.get(ctx, "/object_info")
	if err != nil {
		c.logger.Debug("schema catalog unavailable", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("schema catalog unavailable", zap.Int("status", resp.StatusCode))
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return nil
	}
	catalog, err := graphapi.ParseSchemaCatalog(body)
	if err != nil {
		c.logger.Debug("schema catalog unparsable", zap.Error(err))
		return nil
	}
	c.logger.Info("fetched schema catalog", zap.Int("classes", len(catalog.Classes)))
	return catalog
}

// submitEnvelope is the queue submission payload.
type submitEnvelope struct {
	Prompt   *graphapi.GraphDocument `json:"prompt"`
	ClientID string                  `json:"client_id"`
}

// backendError is the error shape the backend returns for rejected prompts.
type backendError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitGraph posts the graph to the job queue and returns the assigned job
// id.  A non-2xx response or a response without a job id is a
// SubmissionError.
func (c *Client) SubmitGraph(ctx context.Context, doc *graphapi.GraphDocument) (string, error) {
	payload, err := json.Marshal(submitEnvelope{Prompt: doc, ClientID: c.clientID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/prompt"), strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Close = true

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", c.transportError(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(string(body))
		var be backendError
		if json.Unmarshal(body, &be) == nil && be.Error.Message != "" {
			reason = be.Error.Message
		}
		return "", &SubmissionError{Status: resp.StatusCode, Reason: reason}
	}

	var result struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &SubmissionError{Status: resp.StatusCode, Reason: fmt.Sprintf("unparsable response: %v", err)}
	}
	if result.PromptID == "" {
		return "", &SubmissionError{Status: resp.StatusCode, Reason: "response carries no job id"}
	}

	c.logger.Info("graph submitted", zap.String("job_id", result.PromptID))
	return result.PromptID, nil
}

// PollJobOutputs checks the job's history record once.  A job that has not
// finished yet (non-200 status, empty body, or no record for the id) yields
// nil and no error; the caller retries.  Once present, the first image-typed
// output found in the record's own key order is returned.
func (c *Client) PollJobOutputs(ctx context.Context, jobID string) (*ArtifactRef, error) {
	resp, err := c.get(ctx, "/history/"+url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return nil, nil
	}
	return firstImageOutput(body, jobID), nil
}

// firstImageOutput walks the history record for jobID and returns the first
// image reference, scanning the outputs object in its own key order.  Which
// output node comes first is the backend's choice; the ambiguity is
// accepted.
func firstImageOutput(body []byte, jobID string) *ArtifactRef {
	var history map[string]struct {
		Outputs json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		return nil
	}
	record, ok := history[jobID]
	if !ok || len(record.Outputs) == 0 {
		return nil
	}

	// a token decoder keeps the response's key order, which a map would lose
	dec := json.NewDecoder(strings.NewReader(string(record.Outputs)))
	if t, err := dec.Token(); err != nil {
		return nil
	} else if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil
		}
		var out struct {
			Images []ArtifactRef `json:"images"`
		}
		if err := dec.Decode(&out); err != nil {
			return nil
		}
		if len(out.Images) > 0 {
			ref := out.Images[0]
			if ref.Type == "" {
				ref.Type = "output"
			}
			return &ref
		}
	}
	return nil
}

// WaitForOutputs polls until an artifact appears, the context is cancelled,
// or the optional maximum wait elapses.  There is no backoff: the contract
// is poll, sleep a fixed interval, check cancellation, repeat.
func (c *Client) WaitForOutputs(ctx context.Context, jobID string, opts PollOptions) (*ArtifactRef, error) {
	var deadline <-chan time.Time
	if opts.MaxWait > 0 {
		t := time.NewTimer(opts.MaxWait)
		defer t.Stop()
		deadline = t.C
	}

	for {
		ref, err := c.PollJobOutputs(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			return ref, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, &WaitTimeoutError{JobID: jobID, Wait: opts.MaxWait}
		case <-time.After(opts.interval()):
		}
	}
}

// DownloadArtifact fetches the artifact's raw bytes and writes them verbatim
// to destPath.  A destination that is absent or empty afterwards is a
// DownloadError.
func (c *Client) DownloadArtifact(ctx context.Context, ref ArtifactRef, destPath string) error {
	params := url.Values{}
	params.Add("filename", ref.Filename)
	params.Add("subfolder", ref.Subfolder)
	params.Add("type", ref.Type)

	resp, err := c.get(ctx, "/view?"+params.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{Path: destPath, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	f, err := os.Create(destPath)
	if err != nil {
		return &DownloadError{Path: destPath, Err: err}
	}
	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return &DownloadError{Path: destPath, Err: copyErr}
	}
	if closeErr != nil {
		return &DownloadError{Path: destPath, Err: closeErr}
	}

	st, err := os.Stat(destPath)
	if err != nil || st.Size() == 0 {
		return &DownloadError{Path: destPath}
	}
	c.logger.Info("artifact downloaded", zap.String("path", destPath), zap.Int64("bytes", st.Size()))
	return nil
}
