package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatscan/internal/bookmarks"
	"seatscan/internal/types"
)

// fakeBookmarkService scripts the bookmark lifecycle.
type fakeBookmarkService struct {
	created   *types.Bookmark
	createErr error
	got       *types.Bookmark
	getErr    error
	list      []types.Bookmark
	deleted   []string
	gotInput  bookmarks.CreateInput
}

func (f *fakeBookmarkService) Create(ctx context.Context, id types.Identity, in bookmarks.CreateInput) (*types.Bookmark, error) {
	f.gotInput = in
	return f.created, f.createErr
}

func (f *fakeBookmarkService) Get(ctx context.Context, id types.Identity, bookmarkID string) (*types.Bookmark, error) {
	return f.got, f.getErr
}

func (f *fakeBookmarkService) List(ctx context.Context, id types.Identity) ([]types.Bookmark, error) {
	return f.list, nil
}

func (f *fakeBookmarkService) Delete(ctx context.Context, id types.Identity, bookmarkID string) error {
	f.deleted = append(f.deleted, bookmarkID)
	return nil
}

// fakeReplayer scripts the seat-map refresh.
type fakeReplayer struct {
	result types.SeatMapResult
	err    error
	calls  int
}

func (f *fakeReplayer) Replay(ctx context.Context, bm *types.Bookmark) (types.SeatMapResult, error) {
	f.calls++
	return f.result, f.err
}

func sampleBookmark() *types.Bookmark {
	return &types.Bookmark{
		UserID:       "u-1",
		BookmarkID:   "bm-1",
		Title:        "FRA-JFK autumn",
		ProviderTag:  types.ProviderAmadeus,
		CarrierCode:  "LH",
		FlightNumber: "400",
		Origin:       "FRA",
		Destination:  "JFK",
		DepartureAt:  time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC),
		Snapshot:     []byte("gz"),
		CreatedAt:    time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2026, 9, 29, 10, 0, 0, 0, time.UTC).Unix(),
	}
}

func newBookmarksUnderTest(t *testing.T) (*BookmarksHandler, *fakeBookmarkService, *fakeReplayer, *fakeSearchGate, *fakeMetrics) {
	t.Helper()
	svc := &fakeBookmarkService{}
	replayer := &fakeReplayer{}
	gate := &fakeSearchGate{remaining: map[types.Capability]int{}}
	metrics := &fakeMetrics{}
	h := NewBookmarksHandler(svc, replayer, gate, metrics, newTestValidator(t), testLogger())
	return h, svc, replayer, gate, metrics
}

// routedRequest drives the request through a chi router so URL parameters
// resolve the way they do in production.
func routedRequest(t *testing.T, h *BookmarksHandler, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestHandleCreateBookmark(t *testing.T) {
	h, svc, _, _, _ := newBookmarksUnderTest(t)
	svc.created = sampleBookmark()

	body := `{"title":"FRA-JFK autumn","alertEnabled":true,"offer":{
		"id":"a1","providerTag":"AMADEUS","carrierCode":"LH","flightNumber":"400",
		"origin":"FRA","destination":"JFK","departureAt":"2026-09-10T08:00:00Z"}}`
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/bookmarks", strings.NewReader(body)), userIdentity())

	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "FRA-JFK autumn", svc.gotInput.Title)
	assert.True(t, svc.gotInput.AlertEnabled)
	assert.Equal(t, types.ProviderAmadeus, svc.gotInput.Offer.ProviderTag)
	assert.NotContains(t, rec.Body.String(), "snapshot", "the compressed snapshot never leaves the server")
}

func TestHandleCreateBookmarkGuestRefusalPassesThrough(t *testing.T) {
	h, svc, _, _, _ := newBookmarksUnderTest(t)
	svc.createErr = types.NewAppError(types.ErrCodeAuthGuestForbidden, "guests cannot bookmark; register for a free account", nil)

	body := `{"title":"x","offer":{"id":"a1","providerTag":"AMADEUS","carrierCode":"LH",
		"flightNumber":"400","origin":"FRA","destination":"JFK","departureAt":"2026-09-10T08:00:00Z"}}`
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/bookmarks", strings.NewReader(body)), guestIdentity())

	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "auth_guest_not_permitted", errorCodeOf(t, rec))
}

func TestHandleCreateBookmarkRejectsMalformedBody(t *testing.T) {
	h, _, _, _, _ := newBookmarksUnderTest(t)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/bookmarks", strings.NewReader(`{"title":`)), userIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_invalid_json", errorCodeOf(t, rec))
}

func TestHandleListBookmarks(t *testing.T) {
	h, svc, _, _, _ := newBookmarksUnderTest(t)
	svc.list = []types.Bookmark{*sampleBookmark()}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/bookmarks", nil), userIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []bookmarkView `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "bm-1", resp.Data[0].BookmarkID)
	assert.Equal(t, 1, resp.Meta.Count)
}

func TestHandleGetExpiredBookmark(t *testing.T) {
	h, svc, _, _, _ := newBookmarksUnderTest(t)
	svc.getErr = types.NewAppError(types.ErrCodeBookmarkExpired, "bookmark has expired", nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/bookmarks/bm-1", nil), userIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "bookmark_expired", errorCodeOf(t, rec))
}

func TestHandleDeleteBookmark(t *testing.T) {
	h, svc, _, _, _ := newBookmarksUnderTest(t)

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/bookmarks/bm-1", nil), userIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"bm-1"}, svc.deleted)
}

func TestHandleBookmarkSeatMapGatedLikeSearch(t *testing.T) {
	h, svc, replayer, gate, metrics := newBookmarksUnderTest(t)
	svc.got = sampleBookmark()
	replayer.result = types.SeatMapResult{ProviderTag: types.ProviderAmadeus, Available: true}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/bookmarks/bm-1/seatmap", nil), userIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, replayer.calls)
	assert.Equal(t, []types.Capability{types.CapabilitySeatmapCall}, gate.records)
	assert.Equal(t, 1, metrics.views)
}

func TestHandleBookmarkSeatMapLimitRejection(t *testing.T) {
	h, _, replayer, gate, metrics := newBookmarksUnderTest(t)
	gate.canUseErr = types.NewAppError(types.ErrCodeLimitGuestViews, "register to continue", nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/bookmarks/bm-1/seatmap", nil), guestIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, replayer.calls, "the provider is never called past the limit")
	assert.Equal(t, 1, metrics.rejections)
}

func TestHandleBookmarkSeatMapReplayFailure(t *testing.T) {
	h, svc, replayer, gate, _ := newBookmarksUnderTest(t)
	svc.got = sampleBookmark()
	replayer.err = types.NewAppError(types.ErrCodeSeatmapUnavailable, "try again shortly", nil)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/bookmarks/bm-1/seatmap", nil), userIdentity())
	rec := routedRequest(t, h, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "seatmap_temporarily_unavailable", errorCodeOf(t, rec))
	assert.Empty(t, gate.records, "a failed replay never records usage")
}
