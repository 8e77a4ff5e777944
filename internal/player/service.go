package player

import (
	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

// Service is the surface the playback UI talks to. It forwards to the cache
// and pipeline and holds no state of its own. Prepare is a best-effort
// warm-up: a Get right after it may still miss, and callers must handle nil.
type Service struct {
	cache    *Cache
	pipeline *Pipeline
}

func NewService(cache *Cache, pipeline *Pipeline) *Service {
	return &Service{cache: cache, pipeline: pipeline}
}

func (s *Service) Get(id domain.VideoID) Handle {
	return s.cache.Get(id)
}

func (s *Service) Prepare(id domain.VideoID) {
	s.pipeline.Prepare(id)
}

func (s *Service) PreparePlayers(ids []domain.VideoID) {
	s.pipeline.PreparePlayers(ids)
}

func (s *Service) Release(id domain.VideoID) {
	s.cache.Release(id)
}

func (s *Service) Clear() {
	s.cache.Clear()
}

func (s *Service) Info() (int, []domain.VideoID) {
	return s.cache.Info()
}
