package pulse

import (
	"context"
	"io"
)

// UploadFile describes a dataset file about to be uploaded.
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	SessionID   string
}

// UploadSlot is the service's answer to a slot request: a signed URL to PUT
// the bytes to and the dataset id the file will be known by.
type UploadSlot struct {
	URL       string
	DatasetID string
}

// Uploader performs the file-upload handshake: slot request, then binary
// transfer. It is invoked before any stream is opened when a send includes
// a file; a failure here short-circuits the send.
type Uploader interface {
	RequestSlot(ctx context.Context, f UploadFile) (UploadSlot, error)
	Put(ctx context.Context, url string, r io.Reader, f UploadFile) error
}

// UploadState enumerates the phases of a pending upload.
type UploadState int

const (
	UploadIdle UploadState = iota
	UploadInProgress
	UploadDone
	UploadFailed
)

// PendingUpload is the UI-facing view of an upload in flight.
type PendingUpload struct {
	State     UploadState
	Progress  float64 // 0..1, meaningful in UploadInProgress
	DatasetID string  // set in UploadDone
	Err       string  // set in UploadFailed
}
