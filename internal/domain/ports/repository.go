package ports

import (
	"context"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

type WatchHistoryStore interface {
	Upsert(ctx context.Context, wp domain.WatchPosition) error
	Get(ctx context.Context, id domain.VideoID) (domain.WatchPosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error)
}

type PlayerSettingsStore interface {
	GetCurrentVideoID(ctx context.Context) (domain.VideoID, bool, error)
	SetCurrentVideoID(ctx context.Context, id domain.VideoID) error
}
