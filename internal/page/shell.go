// Package page holds page-level state and renders the upload page.
package page

import (
	"context"
	"html/template"
	"log/slog"
	"sync"

	"docqa/internal/core"
	"docqa/internal/upload"
)

// Shell tracks the outcome of the most recent uploads for one page session.
// It shows at most one error line and the chat surface only after a success.
type Shell struct {
	chat core.ChatSurface

	mu         sync.RWMutex
	lastResult *core.UploadResult
	lastError  string
}

// NewShell creates an empty shell. A nil chat renders nothing.
func NewShell(chat core.ChatSurface) *Shell {
	return &Shell{chat: chat}
}

// HandleUploadComplete records a successful upload and clears any error.
func (s *Shell) HandleUploadComplete(result *core.UploadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = result
	s.lastError = ""
}

// HandleUploadError records the failure message. An earlier result is kept,
// so the chat surface stays mounted.
func (s *Shell) HandleUploadError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}

// Callbacks returns widget callbacks bound to this shell.
func (s *Shell) Callbacks() upload.Callbacks {
	return upload.Callbacks{
		OnComplete: s.HandleUploadComplete,
		OnError:    s.HandleUploadError,
	}
}

// LastResult returns the most recent successful result, or nil.
func (s *Shell) LastResult() *core.UploadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// LastError returns the current error line, or "".
func (s *Shell) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// View is everything the page template needs.
type View struct {
	UploadEnabled bool   `json:"upload_enabled"`
	SelectedName  string `json:"selected_name,omitempty"`
	SelectedPages int    `json:"selected_pages,omitempty"`
	Submitting    bool   `json:"submitting"`

	ShowError bool   `json:"show_error"`
	Error     string `json:"error,omitempty"`

	ShowChat bool               `json:"show_chat"`
	Result   *core.UploadResult `json:"-"`
	Chat     template.HTML      `json:"-"`
}

// ResultFields exposes the known backend fields for display.
func (v View) ResultFields() map[string]any {
	if v.Result == nil {
		return nil
	}
	return map[string]any{
		"filename":     v.Result.Filename(),
		"doc_id":       v.Result.DocID(),
		"status":       v.Result.Status(),
		"total_chunks": v.Result.TotalChunks(),
		"duration":     v.Result.Duration().String(),
	}
}

// View combines the shell state with the widget's current state.
func (s *Shell) View(ctx context.Context, widget *upload.Widget) View {
	s.mu.RLock()
	result, errMsg := s.lastResult, s.lastError
	s.mu.RUnlock()

	v := View{
		ShowError: errMsg != "",
		Error:     errMsg,
		ShowChat:  result != nil,
		Result:    result,
	}
	if widget != nil {
		v.UploadEnabled = widget.Enabled()
		v.Submitting = widget.Submitting()
		if f := widget.Selected(); f != nil {
			v.SelectedName = f.Name
			v.SelectedPages = f.Pages
		}
	}

	if v.ShowChat && s.chat != nil {
		html, err := s.chat.Render(ctx)
		if err != nil {
			slog.Warn("chat surface render failed", "error", err, "session_id", core.GetSessionID(ctx))
		} else {
			v.Chat = html
		}
	}
	return v
}

// Snapshot is the persisted form of a shell.
type Snapshot struct {
	Result *core.UploadResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Snapshot captures the shell state.
func (s *Shell) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Result: s.lastResult, Error: s.lastError}
}

// Restore replaces the shell state with a snapshot.
func (s *Shell) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = snap.Result
	s.lastError = snap.Error
}
