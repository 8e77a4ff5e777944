package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
	"github.com/tianzhicdev/dogetionary-sub001/internal/metrics"
)

const (
	defaultFetchTimeout = 5 * time.Minute
	mediaExt            = ".mp4"
	minThrottleBurst    = 64 << 10
)

type Config struct {
	// BaseURL of the dictionary backend serving media, without trailing slash.
	BaseURL string
	// Dir is where fetched media files land.
	Dir string
	// RateLimitBytes caps aggregate fetch throughput per second. 0 = unlimited.
	RateLimitBytes int64
	Timeout        time.Duration
	Client         *http.Client
}

// Manager fetches pronunciation media from the backend and owns every
// download state. State changes are published on a single-consumer event
// channel; delivery is at-least-once and consumers must tolerate duplicates.
type Manager struct {
	baseURL string
	dir     string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	states map[domain.VideoID]domain.DownloadState
	closed bool

	events  chan domain.DownloadEvent
	fetches sync.WaitGroup
}

func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("download: base URL is required")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("download: media dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("download: create media dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimitBytes > 0 {
		burst := int(cfg.RateLimitBytes)
		if burst < minThrottleBurst {
			burst = minThrottleBurst
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitBytes), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		dir:     cfg.Dir,
		client:  client,
		limiter: limiter,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		states:  make(map[domain.VideoID]domain.DownloadState),
		events:  make(chan domain.DownloadEvent, 256),
	}
	m.rebuild()
	return m, nil
}

// State reports the current download state for id. Unknown ids are
// not_started.
func (m *Manager) State(id domain.VideoID) domain.DownloadState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if state, ok := m.states[id]; ok {
		return state
	}
	return domain.DownloadState{Status: domain.DownloadNotStarted, UpdatedAt: m.now()}
}

// Events returns the state change stream. Single consumer.
func (m *Manager) Events() <-chan domain.DownloadEvent {
	return m.events
}

// Start begins fetching the media file for id in the background. A no-op for
// downloads already in progress or ready; a failed download starts over.
func (m *Manager) Start(ctx context.Context, id domain.VideoID) error {
	if err := validateID(id); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("download: manager is closed")
	}
	switch m.states[id].Status {
	case domain.DownloadInProgress, domain.DownloadReady:
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(id, domain.DownloadState{Status: domain.DownloadInProgress, UpdatedAt: m.now()})
	m.fetches.Add(1)
	m.mu.Unlock()

	go m.fetch(id)
	return nil
}

// States returns a snapshot of every known download state.
func (m *Manager) States() []domain.DownloadEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make([]domain.DownloadEvent, 0, len(m.states))
	for id, state := range m.states {
		snapshot = append(snapshot, domain.DownloadEvent{ID: id, State: state})
	}
	return snapshot
}

// Close stops all in-flight fetches and closes the event stream.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.fetches.Wait()
	close(m.events)
}

func (m *Manager) fetch(id domain.VideoID) {
	defer m.fetches.Done()

	metrics.DownloadsActive.Inc()
	defer metrics.DownloadsActive.Dec()

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	location := m.mediaPath(id)
	if err := m.fetchFile(ctx, id, location); err != nil {
		metrics.DownloadFailures.Inc()
		m.logger.Warn("media download failed",
			slog.String("videoId", string(id)),
			slog.String("error", err.Error()),
		)
		m.setState(id, domain.DownloadState{
			Status:    domain.DownloadFailed,
			Error:     err.Error(),
			UpdatedAt: m.now(),
		})
		return
	}

	m.logger.Info("media download finished",
		slog.String("videoId", string(id)),
		slog.String("location", location),
	)
	m.setState(id, domain.DownloadState{
		Status:    domain.DownloadReady,
		Location:  location,
		UpdatedAt: m.now(),
	})
}

func (m *Manager) fetchFile(ctx context.Context, id domain.VideoID, location string) error {
	url := fmt.Sprintf("%s/videos/%s/media", m.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %s", resp.Status)
	}

	// Download into a temp file and rename, so a ready location always names
	// a complete file.
	tmp, err := os.CreateTemp(m.dir, string(id)+".partial-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, &throttleReader{r: resp.Body, limiter: m.limiter, ctx: ctx})
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	metrics.DownloadBytesTotal.Add(float64(written))

	if err := os.Rename(tmpName, location); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// rebuild scans the media dir on startup so files fetched by a previous run
// come back as ready without touching the network. No events: nothing is
// consuming yet.
func (m *Manager) rebuild() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return
	}
	restored := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), mediaExt) {
			continue
		}
		id := domain.VideoID(strings.TrimSuffix(entry.Name(), mediaExt))
		if validateID(id) != nil {
			continue
		}
		m.states[id] = domain.DownloadState{
			Status:    domain.DownloadReady,
			Location:  filepath.Join(m.dir, entry.Name()),
			UpdatedAt: m.now(),
		}
		restored++
	}
	if restored > 0 {
		m.logger.Info("restored downloaded media", slog.Int("count", restored))
	}
}

func (m *Manager) setState(id domain.VideoID, state domain.DownloadState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.setStateLocked(id, state)
}

func (m *Manager) setStateLocked(id domain.VideoID, state domain.DownloadState) {
	m.states[id] = state
	select {
	case m.events <- domain.DownloadEvent{ID: id, State: state}:
	default:
		// Consumer stalled; the point-query path still sees the new state.
		metrics.DownloadEventsDropped.Inc()
		m.logger.Warn("download event dropped", slog.String("videoId", string(id)))
	}
}

func (m *Manager) mediaPath(id domain.VideoID) string {
	return filepath.Join(m.dir, string(id)+mediaExt)
}

func validateID(id domain.VideoID) error {
	raw := string(id)
	if strings.TrimSpace(raw) == "" {
		return errors.New("download: empty video id")
	}
	if strings.ContainsAny(raw, `/\`) || strings.Contains(raw, "..") {
		return fmt.Errorf("download: invalid video id %q", raw)
	}
	return nil
}
