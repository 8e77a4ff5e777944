package player

import (
	"context"
	"fmt"
	"os"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

type MediaProber interface {
	Probe(ctx context.Context, filePath string) (domain.MediaInfo, error)
}

// Factory builds one playback handle from a ready local media file.
// It holds no shared state and is safe for concurrent use.
type Factory struct {
	prober MediaProber
}

func NewFactory(prober MediaProber) *Factory {
	return &Factory{prober: prober}
}

func (f *Factory) Build(ctx context.Context, id domain.VideoID, location string) (Handle, error) {
	info, err := f.prober.Probe(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", id, err)
	}
	if len(info.Tracks) == 0 {
		return nil, fmt.Errorf("media for %s has no playable streams: %w", id, domain.ErrUnsupported)
	}

	file, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open media for %s: %w", id, err)
	}

	return &fileHandle{
		location: location,
		media:    info,
		file:     file,
	}, nil
}
