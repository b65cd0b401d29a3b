package model

import "time"

// UploadState is a step of the upload-and-poll flow.
type UploadState string

const (
	UploadUploading  UploadState = "uploading"
	UploadProcessing UploadState = "processing"
	UploadDone       UploadState = "done"
	UploadTimedOut   UploadState = "timed_out"
	UploadFailed     UploadState = "failed"
	UploadCancelled  UploadState = "cancelled"
)

// Terminal reports whether no further transitions follow s.
func (s UploadState) Terminal() bool {
	switch s {
	case UploadDone, UploadTimedOut, UploadFailed, UploadCancelled:
		return true
	}
	return false
}

// UploadStatus is a snapshot of one upload flow.
type UploadStatus struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	FilePath  string      `json:"file_path"`
	State     UploadState `json:"state"`
	Attempts  int         `json:"attempts"`
	Message   string      `json:"message,omitempty"`
	Record    *Image      `json:"record,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}
