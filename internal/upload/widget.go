package upload

import (
	"context"
	"sync"
	"time"

	"docqa/internal/core"
)

// Phase is the widget's position in its state machine.
type Phase string

const (
	PhaseNoFile    Phase = "no_file_selected"
	PhaseSelected  Phase = "file_selected"
	PhaseSending   Phase = "submitting"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// DefaultTimeout bounds one submission when no Option overrides it.
const DefaultTimeout = 5 * time.Minute

// Callbacks report the outcome of a submission to the widget's owner.
// Exactly one of them fires per attempt, after the request settled.
type Callbacks struct {
	OnComplete func(result *core.UploadResult)
	OnError    func(message string)
}

// Option configures a Widget.
type Option func(*Widget)

// WithTimeout sets the per-attempt deadline. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(w *Widget) { w.timeout = d }
}

// WithMessageOptions controls how failures are turned into display strings.
func WithMessageOptions(opts core.MessageOptions) Option {
	return func(w *Widget) { w.messages = opts }
}

// Widget owns a single selected-file slot and submits it through an Uploader.
// It is safe for concurrent use; callbacks are invoked without holding the lock.
type Widget struct {
	uploader  core.Uploader
	callbacks Callbacks
	timeout   time.Duration
	messages  core.MessageOptions

	mu    sync.Mutex
	file  *core.SelectedFile
	phase Phase
}

// NewWidget creates a widget in the NoFileSelected phase.
func NewWidget(uploader core.Uploader, callbacks Callbacks, opts ...Option) *Widget {
	w := &Widget{
		uploader:  uploader,
		callbacks: callbacks,
		timeout:   DefaultTimeout,
		phase:     PhaseNoFile,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Select replaces the file slot. A nil file clears it.
// While a submission is in flight the slot is replaced but the phase is kept.
func (w *Widget) Select(file *core.SelectedFile) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.file = file
	if w.phase == PhaseSending {
		return
	}
	if file == nil {
		w.phase = PhaseNoFile
	} else {
		w.phase = PhaseSelected
	}
}

// Submit uploads the selected file and reports through the callbacks.
// It returns false without side effects when no file is selected or
// a submission is already in flight.
func (w *Widget) Submit(ctx context.Context) bool {
	w.mu.Lock()
	if w.file == nil || w.phase == PhaseSending {
		w.mu.Unlock()
		return false
	}
	file := w.file
	w.phase = PhaseSending
	w.mu.Unlock()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	result, err := w.uploader.Upload(ctx, file)
	if err == nil && result == nil {
		err = core.NewBodyParseError("", nil)
	}

	w.mu.Lock()
	if err != nil {
		w.phase = PhaseFailed
	} else {
		w.phase = PhaseSucceeded
	}
	// A pick made or cleared mid-flight decides the next phase.
	if w.file != file {
		if w.file == nil {
			w.phase = PhaseNoFile
		} else {
			w.phase = PhaseSelected
		}
	}
	w.mu.Unlock()

	if err != nil {
		if w.callbacks.OnError != nil {
			w.callbacks.OnError(core.FailureMessage(err, w.messages))
		}
		return true
	}
	if w.callbacks.OnComplete != nil {
		w.callbacks.OnComplete(result)
	}
	return true
}

// Enabled reports whether the submit control is active: a file is selected.
// In-flight status does not affect it.
func (w *Widget) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file != nil
}

// Submitting reports whether an attempt is in flight.
func (w *Widget) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase == PhaseSending
}

// Phase returns the current phase.
func (w *Widget) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Selected returns the file in the slot, or nil.
func (w *Widget) Selected() *core.SelectedFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file
}

// Snapshot is the persisted form of a widget.
type Snapshot struct {
	File  *core.SelectedFile `json:"file,omitempty"`
	Phase Phase              `json:"phase"`
}

// Snapshot captures the widget state. An in-flight phase is recorded as
// FileSelected, since the request does not survive a restore.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	phase := w.phase
	if phase == PhaseSending {
		phase = PhaseSelected
	}
	return Snapshot{File: w.file, Phase: phase}
}

// Restore loads a snapshot into an idle widget.
func (w *Widget) Restore(s Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase == PhaseSending {
		return
	}
	w.file = s.File
	switch {
	case s.File == nil:
		w.phase = PhaseNoFile
	case s.Phase == PhaseSucceeded || s.Phase == PhaseFailed:
		w.phase = s.Phase
	default:
		w.phase = PhaseSelected
	}
}
