package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postline/postline-backend/internal/engine"
	platformmock "github.com/postline/postline-backend/internal/platform/mock"
	remotememory "github.com/postline/postline-backend/internal/remote/memory"
	"github.com/postline/postline-backend/internal/staleness"
	"github.com/postline/postline-backend/internal/timeline"
)

func createTestHandler(t *testing.T) (*Handler, *remotememory.Store) {
	t.Helper()
	logger := zap.NewNop().Sugar()

	store := remotememory.NewStore()
	client := platformmock.NewClient()
	poller := staleness.NewPoller(store, logger, nil, staleness.DefaultPollerConfig())
	engineConfig := engine.DefaultConfig()
	engineConfig.TaskPollInterval = time.Millisecond
	eng := engine.New(store, client, nil, poller, logger, nil, engineConfig)

	handler := &Handler{
		engine: eng,
		logger: logger,
	}
	return handler, store
}

func testRouter(t *testing.T) (*chiRouter, *remotememory.Store) {
	t.Helper()
	handler, store := createTestHandler(t)
	m := NewMiddleware(handler.logger, nil)
	return &chiRouter{handler.Routes(m, []string{"*"}, 6000)}, store
}

type chiRouter struct {
	http.Handler
}

func (rt *chiRouter) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	return rec
}

func seedScheduledPost(t *testing.T, store *remotememory.Store, projectID string, when time.Time) timeline.Post {
	t.Helper()
	saved, err := store.SavePost(context.Background(), timeline.Post{
		Type: timeline.PostTypeScheduled,
		Date: when,
		Text: "hello",
	}, projectID)
	require.NoError(t, err)
	return saved
}

func timelinePath(projectID string, from, to time.Time) string {
	return fmt.Sprintf("/v1/projects/%s/timeline?from=%s&to=%s",
		projectID, from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func TestGetTimeline(t *testing.T) {
	router, store := testRouter(t)
	when := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	seedScheduledPost(t, store, "p1", when)

	rec := router.do(t, http.MethodGet, timelinePath("p1", when.AddDate(0, 0, -7), when.AddDate(0, 0, 7)), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TimelineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Posts, 1)
	assert.True(t, resp.Flags.Loaded)
}

func TestGetTimelineInvalidWindow(t *testing.T) {
	router, _ := testRouter(t)

	rec := router.do(t, http.MethodGet, "/v1/projects/p1/timeline?from=bogus&to=bogus", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_WINDOW", resp.Code)
}

func TestSavePostRejectsEmptyContent(t *testing.T) {
	router, _ := testRouter(t)

	rec := router.do(t, http.MethodPost, "/v1/projects/p1/posts/", SavePostRequest{
		Post: timeline.Post{
			Type: timeline.PostTypeScheduled,
			Date: time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC),
		},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "EMPTY_CONTENT", resp.Code)
}

func TestSaveAndDeletePost(t *testing.T) {
	router, store := testRouter(t)
	when := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

	rec := router.do(t, http.MethodPost, "/v1/projects/p1/posts/", SavePostRequest{
		Post: timeline.Post{
			Type: timeline.PostTypeScheduled,
			Date: when,
			Text: "launch teaser",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var saved timeline.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.IsNew())

	rec = router.do(t, http.MethodDelete, "/v1/projects/p1/posts/"+saved.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	records, err := store.FetchScheduled(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDragDropConfirmFlow(t *testing.T) {
	router, store := testRouter(t)
	when := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	post := seedScheduledPost(t, store, "p1", when)

	// Load the session first.
	rec := router.do(t, http.MethodGet, timelinePath("p1", when.AddDate(0, 0, -7), when.AddDate(0, 0, 7)), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = router.do(t, http.MethodPost, "/v1/projects/p1/drag/begin", BeginDragRequest{
		Kind: engine.KindPost,
		ID:   post.ID,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	target := when.AddDate(0, 0, 4)
	rec = router.do(t, http.MethodPost, "/v1/projects/p1/drag/drop", DropRequest{TargetDate: target})
	require.Equal(t, http.StatusOK, rec.Code)

	var drop DropResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drop))
	require.NotNil(t, drop.Prompt)
	assert.False(t, drop.Prompt.CopyOnly)

	rec = router.do(t, http.MethodPost, "/v1/projects/p1/move-prompt/confirm", ConfirmMoveRequest{
		IsCopy:      false,
		Destination: engine.DestinationInternal,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	records, err := store.FetchScheduled(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Date.Equal(target))
}

func TestConfirmWithoutPrompt(t *testing.T) {
	router, _ := testRouter(t)

	rec := router.do(t, http.MethodPost, "/v1/projects/p1/move-prompt/confirm", ConfirmMoveRequest{IsCopy: true})

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NO_PENDING_MOVE", resp.Code)
}

func TestSelectionAndBulkDelete(t *testing.T) {
	router, store := testRouter(t)
	when := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	a := seedScheduledPost(t, store, "p1", when)
	b := seedScheduledPost(t, store, "p1", when.AddDate(0, 0, 1))

	rec := router.do(t, http.MethodGet, timelinePath("p1", when.AddDate(0, 0, -7), when.AddDate(0, 0, 7)), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = router.do(t, http.MethodPost, "/v1/projects/p1/selection/mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mode SelectionModeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mode))
	assert.Equal(t, engine.ModeSelecting, mode.Mode)

	for _, id := range []string{a.ID, b.ID} {
		rec = router.do(t, http.MethodPost, "/v1/projects/p1/selection/items", ToggleItemRequest{
			Kind: engine.KindPost,
			ID:   id,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = router.do(t, http.MethodDelete, "/v1/projects/p1/selection/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result BulkDeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	records, err := store.FetchScheduled(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRefreshConflict(t *testing.T) {
	handler, _ := createTestHandler(t)
	m := NewMiddleware(handler.logger, nil)
	router := &chiRouter{handler.Routes(m, []string{"*"}, 6000)}

	rec := router.do(t, http.MethodPost, "/v1/projects/p1/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = router.do(t, http.MethodPost, "/v1/projects/p1/refresh/bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t)

	rec := router.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = router.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
