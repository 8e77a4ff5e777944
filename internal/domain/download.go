package domain

import "time"

// DownloadStatus describes where a video's media file is in its fetch
// lifecycle. Produced only by the download manager.
type DownloadStatus string

const (
	DownloadNotStarted DownloadStatus = "not_started"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadReady      DownloadStatus = "ready"
	DownloadFailed     DownloadStatus = "failed"
)

type DownloadState struct {
	Status DownloadStatus `json:"status"`
	// Location is the absolute local path of the media file. Set only when
	// Status is DownloadReady.
	Location  string    `json:"location,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DownloadEvent is one state transition notification. Delivery is
// at-least-once: consumers must tolerate duplicates.
type DownloadEvent struct {
	ID    VideoID       `json:"id"`
	State DownloadState `json:"state"`
}
