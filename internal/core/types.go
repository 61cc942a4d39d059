package core

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// SelectedFile is the blob held in an upload widget's single file slot.
type SelectedFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`

	// Pages is the preflight page count; 0 when unknown.
	Pages int `json:"pages,omitempty"`
}

// Size returns the file length in bytes.
func (f *SelectedFile) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// UploadResult is the document API's success body.
// Its shape is owned by the backend; only well-formedness is checked.
type UploadResult struct {
	Raw        json.RawMessage `json:"raw"`
	ReceivedAt time.Time       `json:"received_at"`
}

// NewUploadResult validates body and wraps it as an UploadResult.
// A body that is not JSON, or is JSON null, is rejected with a BodyParseFailure.
func NewUploadResult(body []byte) (*UploadResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, NewBodyParseError("Unexpected end of JSON input", nil)
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, NewBodyParseError("Unexpected token in JSON response", nil)
	}
	if gjson.ParseBytes(trimmed).Type == gjson.Null {
		return nil, NewBodyParseError("Upload response was empty", nil)
	}
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return &UploadResult{Raw: raw, ReceivedAt: time.Now().UTC()}, nil
}

// Get reads an arbitrary field using a gjson path.
func (r *UploadResult) Get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Raw, path)
}

// Filename returns the backend-reported filename, if any.
func (r *UploadResult) Filename() string { return r.Get("filename").String() }

// DocID returns the backend-reported document id, if any.
func (r *UploadResult) DocID() string { return r.Get("doc_id").String() }

// Status returns the backend-reported processing status, if any.
func (r *UploadResult) Status() string { return r.Get("status").String() }

// TotalChunks returns the number of chunks the backend indexed, if reported.
func (r *UploadResult) TotalChunks() int64 { return r.Get("total_chunks").Int() }

// Duration returns the backend processing time, if reported.
func (r *UploadResult) Duration() time.Duration {
	secs := r.Get("duration").Float()
	return time.Duration(secs * float64(time.Second))
}

// Map decodes the raw body into a generic value.
func (r *UploadResult) Map() (any, error) {
	var v any
	if err := json.Unmarshal(r.Raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Outcome is the tagged result of one submission. Exactly one field is set.
type Outcome struct {
	Result *UploadResult
	Err    error
}

// OK reports whether the submission succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Result != nil
}
