// Package network implements the upload server backends.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/dataplatform-io/go-uploadutils/upload"
	"github.com/hashicorp/go-retryablehttp"
)

var (
	_ upload.Server   = (*APIClient)(nil)
	_ upload.Canceler = (*APIClient)(nil)
)

type preUploadResponse struct {
	Data int64 `json:"data"`
}

// APIClient talks to the data platform REST API.
// JSON calls are retried on transient errors; chunk bodies are streamed once.
type APIClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

// NewAPIClient ...
func NewAPIClient(baseURL string, accessToken string, logger log.Logger) *APIClient {
	return newAPIClient(retryhttp.NewClient(logger), baseURL, accessToken, logger)
}

func newAPIClient(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) *APIClient {
	return &APIClient{
		httpClient:  client,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
	}
}

// PreUpload registers an upload batch for the dataset identified by key.
func (c *APIClient) PreUpload(ctx context.Context, key string, requestBody upload.PreUploadRequest) (int64, error) {
	apiURL := fmt.Sprintf("%s/datasets/%s/uploads", c.baseURL, url.PathEscape(key))

	body, err := json.Marshal(requestBody)
	if err != nil {
		return 0, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, apiURL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer c.closeBody(resp.Body)

	dump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		c.logger.Warnf("error while dumping response: %s", err)
	}
	c.logger.Debugf("Pre-upload response dump: %s", string(dump))

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, unwrapError(resp)
	}

	var response preUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("decode pre-upload response: %w", err)
	}

	return response.Data, nil
}

// UploadChunk sends one chunk as a multipart form. The body is streamed, onProgress is
// called as the chunk data is consumed by the transport.
func (c *APIClient) UploadChunk(ctx context.Context, key string, chunk upload.Chunk, onProgress upload.ProgressFunc) error {
	apiURL := fmt.Sprintf("%s/datasets/%s/uploads/chunks", c.baseURL, url.PathEscape(key))

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeChunkForm(form, chunk, onProgress)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err) //nolint:errcheck
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, pr)
	if err != nil {
		pr.CloseWithError(err) //nolint:errcheck
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-Type", form.FormDataContentType())

	c.logger.Debugf("Uploading chunk %d/%d of %s (file %d)", chunk.ChunkNo, chunk.TotalChunkNum, chunk.FileName, chunk.FileNo)

	resp, err := c.httpClient.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return unwrapError(resp)
	}

	return nil
}

// CancelUpload asks the server to discard the upload batch.
func (c *APIClient) CancelUpload(ctx context.Context, requestID int64) error {
	apiURL := fmt.Sprintf("%s/uploads/%d", c.baseURL, requestID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, apiURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return unwrapError(resp)
	}

	c.logger.Debugf("Upload %d cancelled", requestID)
	return nil
}

func (c *APIClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func writeChunkForm(form *multipart.Writer, chunk upload.Chunk, onProgress upload.ProgressFunc) error {
	fields := []struct {
		name  string
		value string
	}{
		{"reqId", strconv.FormatInt(chunk.ReqID, 10)},
		{"fileNo", strconv.Itoa(chunk.FileNo)},
		{"chunkNo", strconv.Itoa(chunk.ChunkNo)},
		{"fileName", chunk.FileName},
		{"fileSize", strconv.FormatInt(chunk.FileSize, 10)},
		{"totalChunkNum", strconv.Itoa(chunk.TotalChunkNum)},
		{"checkSumHex", chunk.CheckSumHex},
	}
	for _, f := range fields {
		if err := form.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	part, err := form.CreateFormFile("file", chunk.FileName)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}

	body := newProgressReader(io.NewSectionReader(chunk.File, 0, chunk.File.Size()), onProgress)
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("write chunk data: %w", err)
	}

	return nil
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
