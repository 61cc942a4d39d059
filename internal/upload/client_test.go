package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/core"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func pdfFile() *core.SelectedFile {
	return &core.SelectedFile{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 test"),
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClientWithHTTPClient(srv.Client(), ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "default path", base: "http://localhost:8000", want: "http://localhost:8000/api/upload"},
		{name: "trailing slash", base: "http://localhost:8000/", path: "/api/upload", want: "http://localhost:8000/api/upload"},
		{name: "custom path without slash", base: "https://docs.example.com", path: "v2/upload", want: "https://docs.example.com/v2/upload"},
		{name: "base with prefix", base: "https://example.com/rag", path: "/api/upload", want: "https://example.com/rag/api/upload"},
		{name: "missing scheme", base: "localhost:8000", wantErr: true},
		{name: "ftp scheme", base: "ftp://example.com", wantErr: true},
		{name: "missing host", base: "http://", wantErr: true},
		{name: "empty", base: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Endpoint(tt.base, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientUpload_SendsMultipartFile(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "req-123", r.Header.Get("X-Request-ID"))

		f, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4 test", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"filename":"report.pdf","total_chunks":12,"duration":1.5,"status":"success"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := core.WithRequestID(context.Background(), "req-123")

	result, err := c.Upload(ctx, pdfFile())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "report.pdf", result.Filename())
	assert.Equal(t, int64(12), result.TotalChunks())
	assert.Equal(t, "success", result.Status())
}

func TestClientUpload_NilFile(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Upload(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrNoFileSelected)
	assert.Zero(t, calls.Load())
}

func TestClientUpload_ServerRejection(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{name: "fastapi string detail", status: http.StatusBadRequest, body: `{"detail":"Only PDF files are supported"}`, wantDetail: "Only PDF files are supported"},
		{name: "fastapi validation detail", status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`, wantDetail: "field required"},
		{name: "plain text body", status: http.StatusInternalServerError, body: "boom", wantDetail: ""},
		{name: "empty body", status: http.StatusBadGateway, body: "", wantDetail: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Upload(context.Background(), pdfFile())
			var uploadErr *core.UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, core.ErrorTypeServerRejection, uploadErr.Type)
			assert.Equal(t, tt.status, uploadErr.StatusCode)
			assert.Equal(t, tt.wantDetail, uploadErr.Detail)
			assert.Equal(t, "Upload failed", core.FailureMessage(err, core.MessageOptions{}))
		})
	}
}

func TestClientUpload_TransportFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "network down", err: errors.New("Network down"), wantMsg: "Network down"},
		{name: "empty message", err: errors.New(""), wantMsg: "An error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				return nil, tt.err
			})}
			c, err := NewClientWithHTTPClient(hc, ClientConfig{BaseURL: "http://docs.invalid"})
			require.NoError(t, err)

			_, err = c.Upload(context.Background(), pdfFile())
			var uploadErr *core.UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, core.ErrorTypeTransport, uploadErr.Type)
			assert.Equal(t, tt.wantMsg, core.FailureMessage(err, core.MessageOptions{}))
		})
	}
}

func TestClientUpload_BodyParseFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "html body", body: "<html>ok</html>"},
		{name: "empty body", body: ""},
		{name: "json null", body: "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Upload(context.Background(), pdfFile())
			var uploadErr *core.UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, core.ErrorTypeBodyParse, uploadErr.Type)
			assert.NotEmpty(t, core.FailureMessage(err, core.MessageOptions{}))
		})
	}
}

func TestClientUpload_CompressedResponses(t *testing.T) {
	payload := []byte(`{"doc_id":"abc"}`)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	require.NoError(t, gw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	require.NoError(t, bw.Close())

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{name: "gzip", encoding: "gzip", body: gz.Bytes()},
		{name: "brotli", encoding: "br", body: br.Bytes()},
		{name: "identity", encoding: "", body: payload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			result, err := newTestClient(t, srv).Upload(context.Background(), pdfFile())
			require.NoError(t, err)
			assert.Equal(t, "abc", result.DocID())
		})
	}
}

func TestDecodeBody_UnsupportedEncoding(t *testing.T) {
	_, err := decodeBody([]byte("x"), "zstd")
	assert.Error(t, err)
}
