package core

import (
	"errors"
	"testing"
	"time"
)

func TestNewUploadResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"object", `{"doc_id":"abc"}`, false},
		{"object with whitespace", "  {\"doc_id\":\"abc\"}\n", false},
		{"array", `[1,2]`, false},
		{"empty", ``, true},
		{"null", `null`, true},
		{"truncated", `{"doc_id":`, true},
		{"html", `<html></html>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewUploadResult([]byte(tt.body))
			if tt.wantErr {
				var uploadErr *UploadError
				if !errors.As(err, &uploadErr) || uploadErr.Type != ErrorTypeBodyParse {
					t.Fatalf("expected body parse error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.ReceivedAt.IsZero() {
				t.Error("expected ReceivedAt to be set")
			}
		})
	}
}

func TestUploadResult_Accessors(t *testing.T) {
	res, err := NewUploadResult([]byte(`{"filename":"q3.pdf","total_chunks":42,"duration":1.5,"status":"success","doc_id":"abc"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Filename() != "q3.pdf" {
		t.Errorf("Filename() = %q", res.Filename())
	}
	if res.TotalChunks() != 42 {
		t.Errorf("TotalChunks() = %d", res.TotalChunks())
	}
	if res.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v", res.Duration())
	}
	if res.Status() != "success" {
		t.Errorf("Status() = %q", res.Status())
	}
	if res.DocID() != "abc" {
		t.Errorf("DocID() = %q", res.DocID())
	}

	m, err := res.Map()
	if err != nil {
		t.Fatalf("Map() error: %v", err)
	}
	if m.(map[string]any)["doc_id"] != "abc" {
		t.Errorf("Map()[doc_id] = %v", m.(map[string]any)["doc_id"])
	}
}

func TestUploadResult_NilSafe(t *testing.T) {
	var res *UploadResult
	if res.Filename() != "" || res.TotalChunks() != 0 {
		t.Error("expected zero values from nil result")
	}
}

func TestOutcome_OK(t *testing.T) {
	if (Outcome{Err: ErrNoFileSelected}).OK() {
		t.Error("outcome with error must not be OK")
	}
	if !(Outcome{Result: &UploadResult{Raw: []byte(`{}`)}}).OK() {
		t.Error("outcome with result must be OK")
	}
}
