package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
	"github.com/tianzhicdev/dogetionary-sub001/internal/player"
)

type fakeHandle struct {
	location string
	media    domain.MediaInfo
	content  string
	closed   bool
}

func (h *fakeHandle) Media() domain.MediaInfo { return h.media }
func (h *fakeHandle) Location() string        { return h.location }
func (h *fakeHandle) Content() io.ReadSeeker {
	if h.closed {
		return nil
	}
	return strings.NewReader(h.content)
}
func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type fakePlayerService struct {
	handles  map[domain.VideoID]player.Handle
	prepared []domain.VideoID
	released []domain.VideoID
	cleared  bool
}

func newFakePlayerService() *fakePlayerService {
	return &fakePlayerService{handles: make(map[domain.VideoID]player.Handle)}
}

func (f *fakePlayerService) Get(id domain.VideoID) player.Handle { return f.handles[id] }
func (f *fakePlayerService) Prepare(id domain.VideoID)           { f.prepared = append(f.prepared, id) }
func (f *fakePlayerService) PreparePlayers(ids []domain.VideoID) {
	f.prepared = append(f.prepared, ids...)
}
func (f *fakePlayerService) Release(id domain.VideoID) { f.released = append(f.released, id) }
func (f *fakePlayerService) Clear()                    { f.cleared = true }
func (f *fakePlayerService) Info() (int, []domain.VideoID) {
	ids := make([]domain.VideoID, 0, len(f.handles))
	for id := range f.handles {
		ids = append(ids, id)
	}
	return len(ids), ids
}

type fakeDownloads struct {
	states  map[domain.VideoID]domain.DownloadState
	started []domain.VideoID
	err     error
}

func (f *fakeDownloads) State(id domain.VideoID) domain.DownloadState {
	if st, ok := f.states[id]; ok {
		return st
	}
	return domain.DownloadState{Status: domain.DownloadNotStarted}
}

func (f *fakeDownloads) Start(ctx context.Context, id domain.VideoID) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDownloads) States() []domain.DownloadEvent {
	out := make([]domain.DownloadEvent, 0, len(f.states))
	for id, st := range f.states {
		out = append(out, domain.DownloadEvent{ID: id, State: st})
	}
	return out
}

type fakeHistory struct {
	positions map[domain.VideoID]domain.WatchPosition
	upserts   []domain.WatchPosition
}

func (f *fakeHistory) Upsert(ctx context.Context, wp domain.WatchPosition) error {
	f.upserts = append(f.upserts, wp)
	return nil
}

func (f *fakeHistory) Get(ctx context.Context, id domain.VideoID) (domain.WatchPosition, error) {
	wp, ok := f.positions[id]
	if !ok {
		return domain.WatchPosition{}, domain.ErrNotFound
	}
	return wp, nil
}

func (f *fakeHistory) ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error) {
	out := make([]domain.WatchPosition, 0, len(f.positions))
	for _, wp := range f.positions {
		out = append(out, wp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeSettings struct {
	current domain.VideoID
	set     bool
}

func (f *fakeSettings) GetCurrentVideoID(ctx context.Context) (domain.VideoID, bool, error) {
	return f.current, f.current != "", nil
}

func (f *fakeSettings) SetCurrentVideoID(ctx context.Context, id domain.VideoID) error {
	f.current = id
	f.set = true
	return nil
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestGetPlayerHit(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{
		location: "/media/v1.mp4",
		media:    domain.MediaInfo{Duration: 2.5},
	}
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/players/v1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp playbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "v1" || resp.Location != "/media/v1.mp4" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Media.Duration != 2.5 {
		t.Fatalf("expected duration 2.5, got %v", resp.Media.Duration)
	}
}

func TestGetPlayerMissReportsDownloadState(t *testing.T) {
	svc := newFakePlayerService()
	downloads := &fakeDownloads{states: map[domain.VideoID]domain.DownloadState{
		"v1": {Status: domain.DownloadInProgress},
	}}
	s := NewServer(svc, WithDownloads(downloads))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/players/v1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var miss playerMissResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &miss); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if miss.Download.Status != domain.DownloadInProgress {
		t.Fatalf("expected downloading status, got %q", miss.Download.Status)
	}
}

func TestGetPlayerContentStreamsMedia(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{
		location: "/media/v1.mp4",
		content:  "fake mp4 payload",
	}
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/players/v1/content", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "fake mp4 payload" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("unexpected content type: %q", got)
	}
}

func TestGetPlayerContentSupportsRange(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{
		location: "/media/v1.mp4",
		content:  "0123456789",
	}
	s := NewServer(svc)
	defer s.Close()

	req := httptest.NewRequest(http.MethodGet, "/players/v1/content", nil)
	req.Header.Set("Range", "bytes=5-")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Body.String() != "56789" {
		t.Fatalf("unexpected partial body: %q", rec.Body.String())
	}
}

func TestGetPlayerContentMiss(t *testing.T) {
	s := NewServer(newFakePlayerService())
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/players/v1/content", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetPlayerContentClosedHandle(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{location: "/media/v1.mp4", closed: true}
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/players/v1/content", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a closed handle, got %d", rec.Code)
	}
}

func TestPreparePlayersAccepted(t *testing.T) {
	svc := newFakePlayerService()
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/players/prepare", prepareRequest{IDs: []domain.VideoID{"v1", "", "v2"}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.prepared) != 2 || svc.prepared[0] != "v1" || svc.prepared[1] != "v2" {
		t.Fatalf("unexpected prepared ids: %v", svc.prepared)
	}
}

func TestPrepareRejectsEmptyIDs(t *testing.T) {
	s := NewServer(newFakePlayerService())
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/players/prepare", prepareRequest{IDs: []domain.VideoID{"", "  "}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReleaseAndClearPlayers(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{}
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodDelete, "/players/v1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(svc.released) != 1 || svc.released[0] != "v1" {
		t.Fatalf("unexpected released ids: %v", svc.released)
	}

	rec = doRequest(t, s, http.MethodDelete, "/players", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !svc.cleared {
		t.Fatal("expected clear to be forwarded")
	}
}

func TestPlayersInfo(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{}
	svc.handles["v2"] = &fakeHandle{}
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/players", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info playerInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Count != 2 || len(info.IDs) != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestStartDownload(t *testing.T) {
	downloads := &fakeDownloads{states: map[domain.VideoID]domain.DownloadState{}}
	s := NewServer(newFakePlayerService(), WithDownloads(downloads))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/videos/v1/download", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(downloads.started) != 1 || downloads.started[0] != "v1" {
		t.Fatalf("unexpected started ids: %v", downloads.started)
	}
}

func TestStartDownloadRejectsBadID(t *testing.T) {
	downloads := &fakeDownloads{err: errors.New("invalid video id")}
	s := NewServer(newFakePlayerService(), WithDownloads(downloads))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/videos/v1/download", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDownloadStateWithoutManager(t *testing.T) {
	s := NewServer(newFakePlayerService())
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/videos/v1/download", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestWatchHistoryUpsertAndGet(t *testing.T) {
	history := &fakeHistory{positions: make(map[domain.VideoID]domain.WatchPosition)}
	s := NewServer(newFakePlayerService(), WithWatchHistory(history))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPut, "/watch-history", domain.WatchPosition{
		VideoID:  "v1",
		Word:     "hello",
		Position: 1.5,
		Duration: 3.0,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(history.upserts) != 1 || history.upserts[0].Word != "hello" {
		t.Fatalf("unexpected upserts: %v", history.upserts)
	}

	history.positions["v1"] = history.upserts[0]
	rec = doRequest(t, s, http.MethodGet, "/watch-history/v1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/watch-history/v2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown video, got %d", rec.Code)
	}
}

func TestWatchHistoryRejectsInvalidBody(t *testing.T) {
	history := &fakeHistory{positions: make(map[domain.VideoID]domain.WatchPosition)}
	s := NewServer(newFakePlayerService(), WithWatchHistory(history))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPut, "/watch-history", domain.WatchPosition{Position: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing videoId, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPut, "/watch-history", domain.WatchPosition{VideoID: "v1", Position: -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative position, got %d", rec.Code)
	}
}

func TestWatchHistoryLimitValidation(t *testing.T) {
	history := &fakeHistory{positions: make(map[domain.VideoID]domain.WatchPosition)}
	s := NewServer(newFakePlayerService(), WithWatchHistory(history))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/watch-history?limit=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/watch-history?limit=500", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=500, got %d", rec.Code)
	}
}

func TestPlayerSettingsRoundTrip(t *testing.T) {
	svc := newFakePlayerService()
	settings := &fakeSettings{}
	s := NewServer(svc, WithPlayerSettings(settings))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPut, "/settings/player", playerSettingsResponse{CurrentVideoID: "v7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if settings.current != "v7" {
		t.Fatalf("expected current video v7, got %q", settings.current)
	}
	if len(svc.prepared) != 1 || svc.prepared[0] != "v7" {
		t.Fatalf("expected settings change to warm v7, got %v", svc.prepared)
	}

	rec = doRequest(t, s, http.MethodGet, "/settings/player", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp playerSettingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CurrentVideoID != "v7" {
		t.Fatalf("expected v7, got %q", resp.CurrentVideoID)
	}
}

func TestHealthEndpoint(t *testing.T) {
	svc := newFakePlayerService()
	svc.handles["v1"] = &fakeHandle{}
	s := NewServer(svc)
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/internal/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestCORSPreflightAllowAll(t *testing.T) {
	s := NewServer(newFakePlayerService())
	defer s.Close()

	req := httptest.NewRequest(http.MethodOptions, "/players", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow-origin header: %q", got)
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	s := NewServer(newFakePlayerService(), WithAllowedOrigins([]string{"https://app.example.com"}))
	defer s.Close()

	req := httptest.NewRequest(http.MethodGet, "/players", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}
}
