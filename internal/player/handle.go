package player

import (
	"io"
	"os"
	"sync"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

// Handle is a ready-to-play media resource. A handle is exclusively owned by
// the cache entry holding it; consumers borrow it for the duration of
// playback and must not retain it past a Release or eviction.
//
// A borrow is not a lease: a concurrent Release, Clear or eviction may close
// the handle while a borrower still holds it. Borrowers must tolerate that:
// Content returns nil once the handle is closed, and reads from an already
// obtained reader may fail mid-stream.
type Handle interface {
	// Media reports the probed stream metadata.
	Media() domain.MediaInfo
	// Location is the local path of the media file backing this handle.
	Location() string
	// Content returns a seekable reader positioned at the start of the clip,
	// or nil if the handle has been closed.
	Content() io.ReadSeeker
	// Close stops playback and releases the underlying file. Safe to call
	// more than once.
	Close() error
}

// fileHandle keeps the media file open for the lifetime of the handle so a
// playback screen never waits on an open(2) after a cache hit.
type fileHandle struct {
	location string
	media    domain.MediaInfo

	mu     sync.Mutex
	file   *os.File
	closed bool
}

func (h *fileHandle) Media() domain.MediaInfo { return h.media }

func (h *fileHandle) Location() string { return h.location }

func (h *fileHandle) Content() io.ReadSeeker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	_, _ = h.file.Seek(0, io.SeekStart)
	return h.file
}

func (h *fileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.file.Close()
}
