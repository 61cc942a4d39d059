// Package upload implements the upload widget and the HTTP client it submits through.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"docqa/internal/core"
	"docqa/internal/httpclient"
)

const (
	// FieldName is the multipart part the document API reads the file from.
	FieldName = "file"

	// DefaultPath is the upload endpoint path on the document API.
	DefaultPath = "/api/upload"

	// maxResponseBody bounds how much of a response is read.
	maxResponseBody = 4 << 20
)

// ClientConfig configures the HTTP uploader.
type ClientConfig struct {
	// BaseURL is the document API origin, e.g. http://localhost:8000
	BaseURL string

	// Path is appended to BaseURL (default: /api/upload)
	Path string
}

// Client posts selected files to the document API as multipart form data.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a Client using the shared HTTP client factory.
func NewClient(cfg ClientConfig) (*Client, error) {
	return NewClientWithHTTPClient(httpclient.NewDefaultHTTPClient(), cfg)
}

// NewClientWithHTTPClient creates a Client with a custom HTTP client
func NewClientWithHTTPClient(httpClient *http.Client, cfg ClientConfig) (*Client, error) {
	endpoint, err := Endpoint(cfg.BaseURL, cfg.Path)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	return &Client{httpClient: httpClient, endpoint: endpoint}, nil
}

// Endpoint joins a base URL and path into the upload URL.
func Endpoint(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid upload base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid upload base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid upload base URL %q: missing host", baseURL)
	}
	if path == "" {
		path = DefaultPath
	}
	return strings.TrimRight(u.String(), "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.endpoint
}

// Upload sends one POST carrying file under the "file" part.
// It performs a single attempt; retries are the caller's decision.
func (c *Client) Upload(ctx context.Context, file *core.SelectedFile) (*core.UploadResult, error) {
	if file == nil {
		return nil, core.ErrNoFileSelected
	}

	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return nil, core.NewTransportError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, core.NewTransportError(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")
	if requestID := core.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The rejection is reported regardless of whether the body was readable.
		decoded, decodeErr := decodeBody(raw, resp.Header.Get("Content-Encoding"))
		if decodeErr != nil || readErr != nil {
			decoded = nil
		}
		return nil, core.NewServerRejection(resp.StatusCode, decoded)
	}

	if readErr != nil {
		return nil, core.NewBodyParseError(readErr.Error(), readErr)
	}
	decoded, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, core.NewBodyParseError(err.Error(), err)
	}
	return core.NewUploadResult(decoded)
}

func encodeMultipart(file *core.SelectedFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldName, escapeQuotes(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
