package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
	"github.com/tianzhicdev/dogetionary-sub001/internal/domain/ports"
	"github.com/tianzhicdev/dogetionary-sub001/internal/metrics"
)

type HandleBuilder interface {
	Build(ctx context.Context, id domain.VideoID, location string) (Handle, error)
}

const defaultBuildTimeout = 30 * time.Second

// Pipeline bridges the push-based download manager and the pull-based handle
// factory. Handle construction always runs on a background goroutine, never
// on the caller's, and results reach the cache only through Insert.
//
// Duplicate ready notifications may start duplicate builds for one id; the
// cache's first-writer-wins Insert collapses them and the losing handle is
// closed right away. Wasted work, not a correctness problem.
type Pipeline struct {
	cache        *Cache
	builder      HandleBuilder
	downloader   ports.Downloader
	logger       *slog.Logger
	buildTimeout time.Duration

	// builds tracks in-flight constructions so shutdown can drain them.
	builds sync.WaitGroup
}

func NewPipeline(cache *Cache, builder HandleBuilder, downloader ports.Downloader, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cache:        cache,
		builder:      builder,
		downloader:   downloader,
		logger:       logger,
		buildTimeout: defaultBuildTimeout,
	}
}

// Prepare warms the cache for one id. Best effort: a Get immediately after
// Prepare may still miss while construction is in flight.
func (p *Pipeline) Prepare(id domain.VideoID) {
	if p.cache.Contains(id) {
		metrics.PlayerPrepareAlreadyCached.Inc()
		return
	}

	state := p.downloader.State(id)
	switch state.Status {
	case domain.DownloadReady:
		p.startBuild(id, state.Location)
	case domain.DownloadFailed:
		// Terminal until the download manager reports otherwise.
		p.logger.Debug("prepare skipped, download failed",
			slog.String("videoId", string(id)),
			slog.String("error", state.Error),
		)
	default:
		// Not downloaded yet. The event subscription reacts once the media
		// turns ready; no polling here.
		p.logger.Debug("prepare deferred until media is ready",
			slog.String("videoId", string(id)),
			slog.String("status", string(state.Status)),
		)
	}
}

// PreparePlayers warms the cache for each id. No ordering or atomicity
// across the batch.
func (p *Pipeline) PreparePlayers(ids []domain.VideoID) {
	for _, id := range ids {
		p.Prepare(id)
	}
}

// Run consumes the download manager's event stream until ctx is cancelled or
// the stream closes, warming the cache for every id that turns ready.
func (p *Pipeline) Run(ctx context.Context) {
	events := p.downloader.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.State.Status != domain.DownloadReady {
				continue
			}
			if p.cache.Contains(event.ID) {
				continue
			}
			p.startBuild(event.ID, event.State.Location)
		}
	}
}

// Wait blocks until all in-flight constructions have finished.
func (p *Pipeline) Wait() {
	p.builds.Wait()
}

func (p *Pipeline) startBuild(id domain.VideoID, location string) {
	metrics.PlayerBuildsTotal.Inc()
	p.builds.Add(1)
	go func() {
		defer p.builds.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.buildTimeout)
		defer cancel()

		handle, err := p.builder.Build(ctx, id, location)
		if err != nil {
			// Surface only as a cache miss. A fresh ready notification is the
			// retry path.
			metrics.PlayerBuildFailures.Inc()
			p.logger.Warn("player handle build failed",
				slog.String("videoId", string(id)),
				slog.String("location", location),
				slog.String("error", err.Error()),
			)
			return
		}

		if !p.cache.Insert(id, handle) {
			metrics.PlayerBuildsDiscarded.Inc()
			if err := handle.Close(); err != nil {
				p.logger.Warn("duplicate handle close failed",
					slog.String("videoId", string(id)),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		p.logger.Debug("player handle ready",
			slog.String("videoId", string(id)),
			slog.String("location", location),
		)
	}()
}
