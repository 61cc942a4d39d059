package core

import (
	"context"
	"html/template"
	"time"
)

// Uploader submits one selected file to the document API.
// Errors are *UploadError values.
type Uploader interface {
	Upload(ctx context.Context, file *SelectedFile) (*UploadResult, error)
}

// UploadHooks observes upload attempts. Implementations must be safe for concurrent use.
type UploadHooks interface {
	// OnUploadStart is called before the request is sent.
	OnUploadStart(ctx context.Context, file *SelectedFile)

	// OnUploadDone is called once the attempt settled, with its outcome.
	OnUploadDone(ctx context.Context, file *SelectedFile, outcome Outcome, elapsed time.Duration)
}

// ChatSurface is the externally implemented chat UI mounted after a successful upload.
// It takes no inputs from the page.
type ChatSurface interface {
	Render(ctx context.Context) (template.HTML, error)
}
