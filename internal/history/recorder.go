package history

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"docqa/internal/core"
)

// Recorder turns upload outcomes into history entries.
// It implements core.UploadHooks.
type Recorder struct {
	logger LoggerInterface
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to logger.
func NewRecorder(logger LoggerInterface) *Recorder {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Recorder{logger: logger, now: time.Now}
}

// OnUploadStart is a no-op; entries are written once the attempt settles.
func (r *Recorder) OnUploadStart(context.Context, *core.SelectedFile) {}

// OnUploadDone records the attempt.
func (r *Recorder) OnUploadDone(ctx context.Context, file *core.SelectedFile, outcome core.Outcome, elapsed time.Duration) {
	r.logger.Write(NewEntry(ctx, file, outcome, elapsed, r.now()))
}

// Checksum returns the hex xxhash64 digest of data.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// NewEntry builds an entry for one settled attempt.
func NewEntry(ctx context.Context, file *core.SelectedFile, outcome core.Outcome, elapsed time.Duration, at time.Time) *Entry {
	e := &Entry{
		ID:         uuid.New().String(),
		RequestID:  core.GetRequestID(ctx),
		SessionID:  core.GetSessionID(ctx),
		Timestamp:  at.UTC(),
		DurationNs: elapsed.Nanoseconds(),
	}
	if file != nil {
		e.Filename = file.Name
		e.ContentType = file.ContentType
		e.SizeBytes = file.Size()
		e.Pages = file.Pages
		e.Checksum = Checksum(file.Data)
	}

	if outcome.OK() {
		e.Outcome = OutcomeSuccess
		e.DocID = outcome.Result.DocID()
		if v, err := outcome.Result.Map(); err == nil {
			if m, ok := v.(map[string]any); ok {
				e.Result = m
			}
		}
		return e
	}

	e.Outcome = OutcomeFailure
	e.Message = core.FailureMessage(outcome.Err, core.MessageOptions{SurfaceServerDetail: true})
	var uploadErr *core.UploadError
	if errors.As(outcome.Err, &uploadErr) {
		e.ErrorType = string(uploadErr.Type)
		e.StatusCode = uploadErr.StatusCode
	}
	if errors.Is(outcome.Err, context.DeadlineExceeded) {
		e.ErrorType = "timeout"
	}
	return e
}
