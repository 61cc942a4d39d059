package upload

import (
	"context"
	"time"

	"docqa/internal/core"
)

// Instrumented wraps an Uploader and reports every attempt to a set of hooks.
type Instrumented struct {
	next  core.Uploader
	hooks []core.UploadHooks
}

// NewInstrumented wraps next. Nil hooks are skipped.
func NewInstrumented(next core.Uploader, hooks ...core.UploadHooks) *Instrumented {
	filtered := make([]core.UploadHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &Instrumented{next: next, hooks: filtered}
}

// Upload delegates to the wrapped uploader.
func (u *Instrumented) Upload(ctx context.Context, file *core.SelectedFile) (*core.UploadResult, error) {
	for _, h := range u.hooks {
		h.OnUploadStart(ctx, file)
	}

	start := time.Now()
	result, err := u.next.Upload(ctx, file)
	elapsed := time.Since(start)

	outcome := core.Outcome{Result: result, Err: err}
	if err != nil {
		outcome.Result = nil
	}
	for _, h := range u.hooks {
		h.OnUploadDone(ctx, file, outcome, elapsed)
	}
	return result, err
}
