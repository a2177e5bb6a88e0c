// client.go implements the Zenodo deposition API client used for uploading
// recordings and publishing depositions.
package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/errors"
	"github.com/mousetube/mousetube-go/internal/logging"
)

// Package-level logger specific to the zenodo service
var serviceLogger *slog.Logger

func init() {
	var err error
	logFilePath := filepath.Join("logs", "zenodo.log")

	serviceLogger, _, err = logging.NewFileLogger(logFilePath, "zenodo", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize zenodo file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// depositionResponse is the subset of a Zenodo deposition document the
// pipeline reads.
type depositionResponse struct {
	ID       int64  `json:"id"`
	DOI      string `json:"doi"`
	State    string `json:"state"`
	Metadata struct {
		DOI string `json:"doi"`
	} `json:"metadata"`
	Links struct {
		RecordHTML string `json:"record_html"`
		HTML       string `json:"html"`
	} `json:"links"`
}

// depositionFile is one entry of a deposition's file listing.
type depositionFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Checksum string `json:"checksum"`
}

// Client holds the configuration for interacting with the Zenodo API.
// The HTTP client is configured with a 45-second timeout so a stalled remote
// call cannot hang a worker indefinitely.
type Client struct {
	APIURL      string
	AccessToken string
	HTTPClient  *http.Client
}

// NewClient creates a Zenodo API client from the publication settings.
func NewClient(cfg *conf.ZenodoConfig) *Client {
	return &Client{
		APIURL:      strings.TrimRight(cfg.APIURL, "/"),
		AccessToken: cfg.AccessToken,
		HTTPClient:  &http.Client{Timeout: 45 * time.Second},
	}
}

// BaseURL returns the public site root of the configured Zenodo instance,
// used to build record links. "https://sandbox.zenodo.org/api" maps to
// "https://sandbox.zenodo.org".
func (c *Client) BaseURL() string {
	return strings.TrimSuffix(c.APIURL, "/api")
}

// CreateDeposition creates an empty draft deposition.
func (c *Client) CreateDeposition(ctx context.Context) (*depositionResponse, error) {
	serviceLogger.Info("Creating new Zenodo deposition")
	return c.doDeposition(ctx, http.MethodPost, c.endpoint("/deposit/depositions"),
		"application/json", bytes.NewBufferString("{}"))
}

// UploadFile streams a local file into a deposition under the given filename.
func (c *Client) UploadFile(ctx context.Context, depositionID, filename, localPath string) (*depositionFile, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.New(err).
			Component("zenodo").
			Category(errors.CategoryFileIO).
			FileContext(localPath, 0).
			Build()
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryFileIO).Build()
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, errors.New(err).
			Component("zenodo").
			Category(errors.CategoryFileIO).
			FileContext(localPath, 0).
			Build()
	}
	if err := writer.WriteField("name", filename); err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryFileIO).Build()
	}
	if err := writer.Close(); err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryFileIO).Build()
	}

	uploadURL := c.endpoint("/deposit/depositions/" + depositionID + "/files")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	serviceLogger.Debug("Uploading file to deposition",
		"deposition_id", depositionID, "filename", filename, "path", localPath)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, handleNetworkError(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serviceLogger.Error("File upload failed",
			"deposition_id", depositionID, "filename", filename,
			"status_code", resp.StatusCode, "response", string(responseBody))
		return nil, httpError("file upload", resp.StatusCode, responseBody)
	}

	var uploaded depositionFile
	if err := json.Unmarshal(responseBody, &uploaded); err != nil {
		return nil, errors.New(err).
			Component("zenodo").
			Category(errors.CategoryHTTP).
			Context("deposition_id", depositionID).
			Build()
	}
	serviceLogger.Info("File uploaded to deposition",
		"deposition_id", depositionID, "filename", filename, "filesize", uploaded.Filesize)
	return &uploaded, nil
}

// PutMetadata replaces the deposition's descriptive metadata.
func (c *Client) PutMetadata(ctx context.Context, depositionID string, metadata map[string]any) error {
	payload, err := json.Marshal(map[string]any{"metadata": metadata})
	if err != nil {
		return errors.New(err).Component("zenodo").Category(errors.CategoryValidation).Build()
	}
	serviceLogger.Debug("Updating deposition metadata", "deposition_id", depositionID)
	_, err = c.doDeposition(ctx, http.MethodPut, c.endpoint("/deposit/depositions/"+depositionID),
		"application/json", bytes.NewReader(payload))
	return err
}

// Publish makes the deposition permanent. Zenodo mints the DOI here.
func (c *Client) Publish(ctx context.Context, depositionID string) (*depositionResponse, error) {
	serviceLogger.Info("Publishing deposition", "deposition_id", depositionID)
	return c.doDeposition(ctx, http.MethodPost,
		c.endpoint("/deposit/depositions/"+depositionID+"/actions/publish"), "application/json", nil)
}

// ListFiles returns the deposition's current file entries.
func (c *Client) ListFiles(ctx context.Context, depositionID string) ([]depositionFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("/deposit/depositions/"+depositionID+"/files"), http.NoBody)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, handleNetworkError(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("file listing", resp.StatusCode, responseBody)
	}

	var files []depositionFile
	if err := json.Unmarshal(responseBody, &files); err != nil {
		return nil, errors.New(err).
			Component("zenodo").
			Category(errors.CategoryHTTP).
			Context("deposition_id", depositionID).
			Build()
	}
	return files, nil
}

// DeleteFile removes one file entry from a deposition.
func (c *Client) DeleteFile(ctx context.Context, depositionID, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.endpoint("/deposit/depositions/"+depositionID+"/files/"+fileID), http.NoBody)
	if err != nil {
		return errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return handleNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(resp.Body)
		return httpError("file deletion", resp.StatusCode, responseBody)
	}
	serviceLogger.Info("Deleted deposition file", "deposition_id", depositionID, "file_id", fileID)
	return nil
}

// doDeposition performs a request whose response body is a deposition
// document.
func (c *Client) doDeposition(ctx context.Context, method, requestURL, contentType string, body io.Reader) (*depositionResponse, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, handleNetworkError(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).Component("zenodo").Category(errors.CategoryNetwork).Build()
	}
	serviceLogger.Debug("Received deposition response",
		"method", method, "url", requestURL, "status_code", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serviceLogger.Error("Deposition request failed",
			"method", method, "url", requestURL,
			"status_code", resp.StatusCode, "response", string(responseBody))
		return nil, httpError("deposition request", resp.StatusCode, responseBody)
	}

	var deposition depositionResponse
	if err := json.Unmarshal(responseBody, &deposition); err != nil {
		return nil, errors.New(err).
			Component("zenodo").
			Category(errors.CategoryHTTP).
			Context("url", requestURL).
			Build()
	}
	return &deposition, nil
}

// endpoint builds an API URL carrying the access token.
func (c *Client) endpoint(path string) string {
	u := c.APIURL + path
	if c.AccessToken != "" {
		u += "?access_token=" + url.QueryEscape(c.AccessToken)
	}
	return u
}

// httpError wraps a non-2xx API response.
func httpError(operation string, statusCode int, body []byte) error {
	const maxBody = 512
	snippet := string(body)
	if len(snippet) > maxBody {
		snippet = snippet[:maxBody]
	}
	return errors.Newf("%s failed with status %d: %s", operation, statusCode, snippet).
		Component("zenodo").
		Category(errors.CategoryHTTP).
		Context("status_code", statusCode).
		Build()
}

// handleNetworkError triages a transport failure into a more specific error.
func handleNetworkError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		serviceLogger.Warn("Network request timed out", "error", err)
		return errors.New(fmt.Errorf("request timed out: %w", err)).
			Component("zenodo").
			Category(errors.CategoryNetwork).
			Build()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			serviceLogger.Error("DNS resolution failed", "url", urlErr.URL, "error", err)
			return errors.New(fmt.Errorf("DNS resolution failed: %w", err)).
				Component("zenodo").
				Category(errors.CategoryNetwork).
				Build()
		}
	}
	serviceLogger.Error("Network error occurred", "error", err)
	return errors.New(fmt.Errorf("network error: %w", err)).
		Component("zenodo").
		Category(errors.CategoryNetwork).
		Build()
}
