package ports

import (
	"context"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

// Downloader is the media fetch side of the engine. It owns every
// DownloadState; the playback layer only reads them.
type Downloader interface {
	// State is a synchronous point query. Unknown ids report DownloadNotStarted.
	State(id domain.VideoID) domain.DownloadState
	// Start begins fetching the media file for id. A no-op when the download
	// is already in progress or ready; a failed download may be restarted.
	Start(ctx context.Context, id domain.VideoID) error
	// Events returns the stream of state transitions. Single consumer,
	// at-least-once delivery.
	Events() <-chan domain.DownloadEvent
}
